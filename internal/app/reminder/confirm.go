package reminder

import (
	"context"
	"strings"
)

// Action is the choice a user makes on a reminder draft.
type Action string

const (
	ActionSchedule     Action = "Schedule"
	ActionEdit         Action = "Edit"
	ActionDismiss      Action = "Dismiss"
	ActionAutoApproved Action = "auto_approved"
)

// DraftActions lists the choices offered on every draft, in display order.
func DraftActions() []Action {
	return []Action{ActionSchedule, ActionEdit, ActionDismiss}
}

// ParseAction matches s against the draft actions, ignoring case.
func ParseAction(s string) (Action, bool) {
	for _, a := range DraftActions() {
		if strings.EqualFold(strings.TrimSpace(s), string(a)) {
			return a, true
		}
	}
	return "", false
}

// Result builds the ConfirmationResult for choosing a. For ActionEdit, body
// is the edited message; an empty or unchanged body schedules the draft as
// is. Anything other than schedule or edit dismisses.
func (a Action) Result(draft NoteDraft, body string) ConfirmationResult {
	switch a {
	case ActionSchedule, ActionAutoApproved:
		return ConfirmationResult{Approved: true, Action: a}
	case ActionEdit:
		body = strings.TrimSpace(body)
		if body == strings.TrimSpace(draft.Body) {
			body = ""
		}
		return ConfirmationResult{Approved: true, Action: a, ModifiedMessage: body}
	default:
		return ConfirmationResult{Action: ActionDismiss}
	}
}

// ConfirmationResult captures the user's response to a note reminder draft.
type ConfirmationResult struct {
	Approved        bool   `json:"approved"`
	Action          Action `json:"action"`
	ModifiedMessage string `json:"modified_message,omitempty"` // set only when the user changed the body
}

// ConfirmationGate asks the user to confirm a detected reminder before it is
// scheduled.
type ConfirmationGate interface {
	RequestConfirmation(ctx context.Context, draft NoteDraft) (ConfirmationResult, error)
}

// ConfirmSender delivers a confirmation request to some surface (terminal,
// web client) and returns the user's answer.
type ConfirmSender interface {
	SendConfirmation(ctx context.Context, draft NoteDraft) (ConfirmationResult, error)
}

// AutoApproveGate always approves the reminder without user interaction.
type AutoApproveGate struct{}

// RequestConfirmation immediately approves the draft.
func (AutoApproveGate) RequestConfirmation(_ context.Context, _ NoteDraft) (ConfirmationResult, error) {
	return ActionAutoApproved.Result(NoteDraft{}, ""), nil
}

// ChannelConfirmationGate delegates confirmation to a ConfirmSender.
type ChannelConfirmationGate struct {
	Sender ConfirmSender
}

// NewChannelConfirmationGate creates a ChannelConfirmationGate with the given sender.
func NewChannelConfirmationGate(sender ConfirmSender) *ChannelConfirmationGate {
	return &ChannelConfirmationGate{Sender: sender}
}

// RequestConfirmation delegates to the underlying ConfirmSender.
func (g *ChannelConfirmationGate) RequestConfirmation(ctx context.Context, draft NoteDraft) (ConfirmationResult, error) {
	return g.Sender.SendConfirmation(ctx, draft)
}
