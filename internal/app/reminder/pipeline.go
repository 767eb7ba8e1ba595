package reminder

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"nudge/internal/domain/timeparse"
	"nudge/internal/observability"
	"nudge/internal/shared/logging"
)

// OutcomeStatus describes the result of turning a note into a reminder.
type OutcomeStatus string

const (
	OutcomeScheduled OutcomeStatus = "scheduled"
	OutcomeDismissed OutcomeStatus = "dismissed"
	OutcomeModified  OutcomeStatus = "modified"
	OutcomeNoTime    OutcomeStatus = "no_time"
	OutcomeInvalid   OutcomeStatus = "invalid"
)

// Note is the free text a reminder is derived from. Hint, when set, is a
// time phrase that takes precedence over anything found in Text.
type Note struct {
	ID   string `json:"id"`
	Text string `json:"text"`
	Hint string `json:"hint,omitempty"`
}

// NoteDraft is the reminder proposed to the user for confirmation.
type NoteDraft struct {
	NoteID           string               `json:"note_id"`
	Title            string               `json:"title"`
	Body             string               `json:"body"`
	TriggerAt        time.Time            `json:"trigger_at"`
	DisplayText      string               `json:"display_text"`
	LowConfidence    bool                 `json:"low_confidence"`
	Extraction       timeparse.Extraction `json:"extraction"`
	SuggestedActions []Action             `json:"suggested_actions"`
}

// NoteOutcome captures the full result of processing a note.
type NoteOutcome struct {
	Draft          NoteDraft          `json:"draft"`
	Result         ConfirmationResult `json:"result"`
	Status         OutcomeStatus      `json:"status"`
	NotificationID string             `json:"notification_id,omitempty"`
	ExecutedAt     time.Time          `json:"executed_at"`
}

const maxTitleRunes = 60

// NotePipeline orchestrates note -> draft -> confirm -> schedule.
type NotePipeline struct {
	Parser    *timeparse.Parser
	Scheduler *Scheduler
	Gate      ConfirmationGate
	Tracer    *observability.TracerProvider
	// Now returns the current time; injectable for testing.
	Now func() time.Time

	logger logging.Logger
}

// NewNotePipeline creates a NotePipeline with the given collaborators.
func NewNotePipeline(parser *timeparse.Parser, scheduler *Scheduler, gate ConfirmationGate, logger logging.Logger) *NotePipeline {
	if gate == nil {
		gate = AutoApproveGate{}
	}
	return &NotePipeline{
		Parser:    parser,
		Scheduler: scheduler,
		Gate:      gate,
		Now:       time.Now,
		logger:    logging.OrNop(logger),
	}
}

// ScheduleReminderFromNote detects a time in the note, confirms it, and
// schedules a notification under the note's slot. Notes without a time and
// times already in the past are reported through the outcome status, not as
// errors.
func (p *NotePipeline) ScheduleReminderFromNote(ctx context.Context, note Note) (outcome NoteOutcome, err error) {
	ctx, span := p.Tracer.StartSpan(ctx, observability.SpanReminderNote)
	defer func() { observability.EndSpan(span, err) }()

	if note.ID == "" {
		note.ID = uuid.NewString()
	}

	draft, ok := p.BuildDraft(note)
	if !ok {
		return NoteOutcome{Draft: draft, Status: OutcomeNoTime, ExecutedAt: p.Now()}, nil
	}

	result, err := p.Gate.RequestConfirmation(ctx, draft)
	if err != nil {
		return NoteOutcome{}, fmt.Errorf("reminder confirmation: %w", err)
	}

	status := deriveStatus(result)
	if result.ModifiedMessage != "" {
		draft.Body = result.ModifiedMessage
	}

	outcome = NoteOutcome{
		Draft:      draft,
		Result:     result,
		Status:     status,
		ExecutedAt: p.Now(),
	}
	if status == OutcomeDismissed {
		return outcome, nil
	}

	id, err := p.Scheduler.ScheduleOnce(ctx, NoteSlot(note.ID), draft.Title, draft.Body, draft.TriggerAt, map[string]string{
		"note_id": note.ID,
		"type":    "note_reminder",
	})
	if errors.Is(err, ErrInvalidTrigger) {
		p.logger.Info("NotePipeline: note %s resolved to a past time (%s), skipping", note.ID, draft.DisplayText)
		outcome.Status = OutcomeInvalid
		return outcome, nil
	}
	if err != nil {
		return NoteOutcome{}, fmt.Errorf("schedule note reminder: %w", err)
	}
	outcome.NotificationID = id
	return outcome, nil
}

// BuildDraft resolves the note's time and composes the notification text.
// It reports false when no time expression was found.
func (p *NotePipeline) BuildDraft(note Note) (NoteDraft, bool) {
	draft := NoteDraft{
		NoteID:           note.ID,
		SuggestedActions: DraftActions(),
	}

	var extraction timeparse.Extraction
	if hint := strings.TrimSpace(note.Hint); hint != "" {
		extraction = p.Parser.ExtractTimeFromText(hint)
	}
	if !extraction.HasTime {
		extraction = p.Parser.ExtractTimeFromText(note.Text)
	}
	draft.Extraction = extraction
	if !extraction.HasTime || extraction.Reminder == nil {
		return draft, false
	}

	info := *extraction.Reminder
	draft.TriggerAt = info.Date
	draft.DisplayText = info.DisplayText
	draft.LowConfidence = !info.IsValid

	subject := stripPhrase(note.Text, extraction.TimeString)
	draft.Title = "Reminder: " + truncate(subject, maxTitleRunes)
	draft.Body = strings.TrimSpace(note.Text)
	return draft, true
}

// deriveStatus maps a ConfirmationResult to an OutcomeStatus.
func deriveStatus(r ConfirmationResult) OutcomeStatus {
	if !r.Approved {
		return OutcomeDismissed
	}
	if r.ModifiedMessage != "" {
		return OutcomeModified
	}
	return OutcomeScheduled
}

var leadIn = regexp.MustCompile(`(?i)^(?:remind me to|remind me|don'?t forget to|remember to)\s+`)

// stripPhrase removes the matched time phrase and common lead-ins so the
// remaining text can serve as the reminder subject. Matching is case
// insensitive and offsets always index the original text.
func stripPhrase(text, phrase string) string {
	out := text
	if phrase != "" {
		re := regexp.MustCompile("(?i)" + regexp.QuoteMeta(phrase))
		if loc := re.FindStringIndex(out); loc != nil {
			out = out[:loc[0]] + out[loc[1]:]
		}
	}
	out = strings.Join(strings.Fields(out), " ")
	out = leadIn.ReplaceAllString(out, "")
	out = strings.Trim(out, " ,.;:-")
	if out == "" {
		return strings.TrimSpace(text)
	}
	return out
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n-1])) + "…"
}
