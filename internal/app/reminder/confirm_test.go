package reminder

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	result ConfirmationResult
	err    error
	drafts []NoteDraft
}

func (r *recordingSender) SendConfirmation(_ context.Context, draft NoteDraft) (ConfirmationResult, error) {
	r.drafts = append(r.drafts, draft)
	return r.result, r.err
}

func TestAutoApproveGateApprovesEvenWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := AutoApproveGate{}.RequestConfirmation(ctx, NoteDraft{Title: "Reminder: call the pharmacy"})
	require.NoError(t, err)
	assert.Equal(t, ConfirmationResult{Approved: true, Action: ActionAutoApproved}, res)
	assert.Equal(t, OutcomeScheduled, deriveStatus(res))
}

func TestChannelConfirmationGate(t *testing.T) {
	tests := []struct {
		name   string
		result ConfirmationResult
		want   OutcomeStatus
	}{
		{"schedule", ConfirmationResult{Approved: true, Action: ActionSchedule}, OutcomeScheduled},
		{"edit", ConfirmationResult{Approved: true, Action: ActionEdit, ModifiedMessage: "Water the ferns too"}, OutcomeModified},
		{"dismiss", ConfirmationResult{Action: ActionDismiss}, OutcomeDismissed},
		{"dismiss ignores edits", ConfirmationResult{Action: ActionDismiss, ModifiedMessage: "x"}, OutcomeDismissed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &recordingSender{result: tt.result}
			draft := NoteDraft{NoteID: "note-1", Title: "Reminder: water plants"}

			res, err := NewChannelConfirmationGate(sender).RequestConfirmation(context.Background(), draft)
			require.NoError(t, err)
			require.Len(t, sender.drafts, 1)
			assert.Equal(t, draft, sender.drafts[0])
			assert.Equal(t, tt.result, res)
			assert.Equal(t, tt.want, deriveStatus(res))
		})
	}
}

func TestChannelConfirmationGatePropagatesError(t *testing.T) {
	errTerminal := errors.New("terminal unavailable")
	sender := &recordingSender{err: errTerminal}

	_, err := NewChannelConfirmationGate(sender).RequestConfirmation(context.Background(), NoteDraft{})
	assert.ErrorIs(t, err, errTerminal)
}

func TestParseAction(t *testing.T) {
	for _, in := range []string{"Schedule", "schedule", " EDIT ", "dismiss"} {
		a, ok := ParseAction(in)
		require.True(t, ok, in)
		assert.Contains(t, DraftActions(), a)
	}
	_, ok := ParseAction("snooze")
	assert.False(t, ok)
	_, ok = ParseAction(string(ActionAutoApproved))
	assert.False(t, ok, "auto approval is never offered on a draft")
}

func TestActionResult(t *testing.T) {
	draft := NoteDraft{Body: "water plants tonight"}
	tests := []struct {
		name   string
		action Action
		body   string
		want   ConfirmationResult
		status OutcomeStatus
	}{
		{"schedule", ActionSchedule, "", ConfirmationResult{Approved: true, Action: ActionSchedule}, OutcomeScheduled},
		{"edit", ActionEdit, "water the ferns too", ConfirmationResult{Approved: true, Action: ActionEdit, ModifiedMessage: "water the ferns too"}, OutcomeModified},
		{"edit unchanged", ActionEdit, " water plants tonight ", ConfirmationResult{Approved: true, Action: ActionEdit}, OutcomeScheduled},
		{"dismiss", ActionDismiss, "ignored", ConfirmationResult{Action: ActionDismiss}, OutcomeDismissed},
		{"unknown dismisses", Action(""), "", ConfirmationResult{Action: ActionDismiss}, OutcomeDismissed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.action.Result(draft, tt.body)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.status, deriveStatus(got))
		})
	}
}
