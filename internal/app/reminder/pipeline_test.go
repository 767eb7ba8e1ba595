package reminder

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"nudge/internal/domain/timeparse"
)

func newTestPipeline(t *testing.T, gate ConfirmationGate) (*NotePipeline, *fakeDispatcher) {
	t.Helper()
	s, d, _ := newTestScheduler(t)
	parser := &timeparse.Parser{Now: func() time.Time { return testNow }}
	p := NewNotePipeline(parser, s, gate, nil)
	p.Now = func() time.Time { return testNow }
	return p, d
}

func TestNotePipeline_AutoApproveSchedules(t *testing.T) {
	p, d := newTestPipeline(t, AutoApproveGate{})

	outcome, err := p.ScheduleReminderFromNote(context.Background(), Note{ID: "n1", Text: "remind me in 30 minutes to stretch"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Status != OutcomeScheduled {
		t.Errorf("expected status 'scheduled', got %q", outcome.Status)
	}
	if outcome.NotificationID == "" {
		t.Error("expected a notification id")
	}
	if !outcome.Draft.TriggerAt.Equal(testNow.Add(30 * time.Minute)) {
		t.Errorf("unexpected trigger %v", outcome.Draft.TriggerAt)
	}
	if outcome.Draft.DisplayText != "In 30 minutes" {
		t.Errorf("unexpected display text %q", outcome.Draft.DisplayText)
	}
	if outcome.Draft.Title != "Reminder: stretch" {
		t.Errorf("unexpected title %q", outcome.Draft.Title)
	}
	n := d.live[outcome.NotificationID]
	if n.SlotKey != NoteSlot("n1") {
		t.Errorf("expected slot %q, got %q", NoteSlot("n1"), n.SlotKey)
	}
	if n.Data["note_id"] != "n1" {
		t.Errorf("expected note_id data, got %v", n.Data)
	}
	if outcome.ExecutedAt != testNow {
		t.Errorf("expected ExecutedAt=%v, got %v", testNow, outcome.ExecutedAt)
	}
}

func TestNotePipeline_RescheduleSameNoteKeepsOne(t *testing.T) {
	p, d := newTestPipeline(t, AutoApproveGate{})
	ctx := context.Background()

	for _, text := range []string{"call mom friday", "call mom tomorrow at 6pm"} {
		if _, err := p.ScheduleReminderFromNote(ctx, Note{ID: "same", Text: text}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if d.liveCount() != 1 {
		t.Fatalf("expected one live notification, got %d", d.liveCount())
	}
}

func TestNotePipeline_HintTakesPrecedence(t *testing.T) {
	p, _ := newTestPipeline(t, AutoApproveGate{})

	outcome, err := p.ScheduleReminderFromNote(context.Background(), Note{ID: "n2", Text: "buy flowers friday", Hint: "tomorrow at 8am"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Draft.DisplayText != "Tomorrow at 8 AM" {
		t.Errorf("expected hint to win, got %q", outcome.Draft.DisplayText)
	}
}

func TestNotePipeline_NoTime(t *testing.T) {
	p, d := newTestPipeline(t, AutoApproveGate{})

	outcome, err := p.ScheduleReminderFromNote(context.Background(), Note{Text: "buy milk"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Status != OutcomeNoTime {
		t.Errorf("expected status 'no_time', got %q", outcome.Status)
	}
	if outcome.Draft.NoteID == "" {
		t.Error("expected a generated note id")
	}
	if d.calls != 0 {
		t.Errorf("expected no dispatcher calls, got %d", d.calls)
	}
}

func TestNotePipeline_NonASCIINote(t *testing.T) {
	p, d := newTestPipeline(t, AutoApproveGate{})

	outcome, err := p.ScheduleReminderFromNote(context.Background(), Note{ID: "n3", Text: "ȺȺȺȺȺȺȺȺȺȺ call mom tomorrow"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Status != OutcomeScheduled {
		t.Fatalf("expected status 'scheduled', got %q", outcome.Status)
	}
	if outcome.Draft.Title != "Reminder: ȺȺȺȺȺȺȺȺȺȺ call mom" {
		t.Errorf("unexpected title %q", outcome.Draft.Title)
	}
	if d.liveCount() != 1 {
		t.Errorf("expected one live notification, got %d", d.liveCount())
	}
}

func TestNotePipeline_Dismissed(t *testing.T) {
	sender := &recordingSender{result: ConfirmationResult{Approved: false, Action: ActionDismiss}}
	p, d := newTestPipeline(t, NewChannelConfirmationGate(sender))

	outcome, err := p.ScheduleReminderFromNote(context.Background(), Note{Text: "water plants tonight"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Status != OutcomeDismissed {
		t.Errorf("expected status 'dismissed', got %q", outcome.Status)
	}
	if d.liveCount() != 0 {
		t.Errorf("expected nothing scheduled, got %d", d.liveCount())
	}
}

func TestNotePipeline_ModifiedMessage(t *testing.T) {
	sender := &recordingSender{result: ConfirmationResult{Approved: true, Action: ActionEdit, ModifiedMessage: "Water the ferns too"}}
	p, d := newTestPipeline(t, NewChannelConfirmationGate(sender))

	outcome, err := p.ScheduleReminderFromNote(context.Background(), Note{Text: "water plants tonight"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Status != OutcomeModified {
		t.Errorf("expected status 'modified', got %q", outcome.Status)
	}
	if got := d.live[outcome.NotificationID].Body; got != "Water the ferns too" {
		t.Errorf("expected modified body, got %q", got)
	}
}

func TestNotePipeline_GateError(t *testing.T) {
	sender := &recordingSender{err: fmt.Errorf("terminal closed")}
	p, _ := newTestPipeline(t, NewChannelConfirmationGate(sender))

	_, err := p.ScheduleReminderFromNote(context.Background(), Note{Text: "call mom friday"})
	if err == nil || !strings.Contains(err.Error(), "terminal closed") {
		t.Fatalf("expected gate error, got %v", err)
	}
}

func TestBuildDraft_LowConfidence(t *testing.T) {
	p, _ := newTestPipeline(t, nil)

	draft, ok := p.BuildDraft(Note{ID: "x", Text: "take meds at 3"})
	if !ok {
		t.Fatal("expected a time")
	}
	if !draft.LowConfidence {
		t.Error("bare clock time should be low confidence")
	}
	if draft.Title != "Reminder: take meds" {
		t.Errorf("unexpected title %q", draft.Title)
	}
	if len(draft.SuggestedActions) != 3 || draft.SuggestedActions[0] != ActionSchedule {
		t.Errorf("unexpected actions %v", draft.SuggestedActions)
	}
}

func TestStripPhrase(t *testing.T) {
	tests := map[string][2]string{
		"remind me to call mom tomorrow": {"tomorrow", "call mom"},
		"Dentist at 3pm":                 {"at 3pm", "Dentist"},
		"remind me in 30 minutes":        {"in 30 minutes", "remind me"},
		"Remind Me To pay rent Friday":   {"friday", "pay rent"},
		"ȺȺȺȺȺȺȺȺȺȺ call mom tomorrow":   {"tomorrow", "ȺȺȺȺȺȺȺȺȺȺ call mom"},
		"ȺȺȺ TOMORROW ȺȺȺ":               {"tomorrow", "ȺȺȺ ȺȺȺ"},
		"İstanbul flight tomorrow":       {"tomorrow", "İstanbul flight"},
	}
	for text, tc := range tests {
		if got := stripPhrase(text, tc[0]); got != tc[1] {
			t.Errorf("stripPhrase(%q, %q) = %q, want %q", text, tc[0], got, tc[1])
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("got %q", got)
	}
	if got := truncate(strings.Repeat("a", 80), 10); got != strings.Repeat("a", 9)+"…" {
		t.Errorf("got %q", got)
	}
}
