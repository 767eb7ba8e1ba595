// Package reminder schedules device notifications and keeps at most one live
// notification per logical slot.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"nudge/internal/infra/kv"
	"nudge/internal/observability"
	"nudge/internal/shared/logging"
)

// ErrInvalidTrigger is returned when a trigger time is zero or not in the future.
var ErrInvalidTrigger = errors.New("reminder: trigger time must be in the future")

// Notification is a pending device notification. ID is assigned by the
// Dispatcher.
type Notification struct {
	ID        string            `json:"id"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	TriggerAt time.Time         `json:"trigger_at"`
	SlotKey   string            `json:"slot_key,omitempty"`
	Data      map[string]string `json:"data,omitempty"`
}

// Dispatcher hands notifications to the delivery layer.
type Dispatcher interface {
	Schedule(ctx context.Context, n Notification) (string, error)
	Cancel(ctx context.Context, id string) error
	ListScheduled(ctx context.Context) ([]Notification, error)
}

const slotKeyPrefix = "notification:"

// SlotKey is the store key holding the live notification id for slot.
func SlotKey(slot string) string {
	return slotKeyPrefix + slot
}

// NoteSlot is the slot used for a reminder created from a note.
func NoteSlot(noteID string) string {
	return "note:" + noteID
}

// Config tunes the Scheduler.
type Config struct {
	// ImmediateDelay is added to now for NotifyNow.
	ImmediateDelay time.Duration
}

// Scheduler validates trigger times and tracks slot ownership.
type Scheduler struct {
	dispatcher Dispatcher
	store      kv.Store
	logger     logging.Logger
	metrics    *observability.MetricsCollector
	immediate  time.Duration

	// Now returns the current time; injectable for testing.
	Now func() time.Time

	mu sync.Mutex
}

// NewScheduler creates a Scheduler over dispatcher, persisting slot ids in store.
func NewScheduler(dispatcher Dispatcher, store kv.Store, cfg Config, logger logging.Logger) *Scheduler {
	immediate := cfg.ImmediateDelay
	if immediate <= 0 {
		immediate = time.Second
	}
	return &Scheduler{
		dispatcher: dispatcher,
		store:      store,
		logger:     logging.OrNop(logger),
		immediate:  immediate,
		Now:        time.Now,
	}
}

// WithMetrics attaches a metrics collector.
func (s *Scheduler) WithMetrics(m *observability.MetricsCollector) *Scheduler {
	s.metrics = m
	return s
}

func (s *Scheduler) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func (s *Scheduler) validTrigger(at time.Time) bool {
	return !at.IsZero() && at.After(s.now())
}

// ScheduleNotification dispatches a one-off notification and returns its id.
// A zero or past trigger returns ErrInvalidTrigger without calling the
// dispatcher.
func (s *Scheduler) ScheduleNotification(ctx context.Context, title, body string, at time.Time) (string, error) {
	return s.dispatch(ctx, Notification{Title: title, Body: body, TriggerAt: at})
}

func (s *Scheduler) dispatch(ctx context.Context, n Notification) (string, error) {
	if !s.validTrigger(n.TriggerAt) {
		return "", ErrInvalidTrigger
	}
	id, err := s.dispatcher.Schedule(ctx, n)
	if err != nil {
		return "", fmt.Errorf("dispatch notification: %w", err)
	}
	s.metrics.RecordScheduled(ctx, n.SlotKey)
	return id, nil
}

// NotifyNow schedules a notification to fire after the immediate delay.
func (s *Scheduler) NotifyNow(ctx context.Context, title, body string, data map[string]string) (string, error) {
	return s.dispatch(ctx, Notification{
		Title:     title,
		Body:      body,
		TriggerAt: s.now().Add(s.immediate),
		Data:      data,
	})
}

// ScheduleOnce replaces whatever notification slot currently owns. The
// previous id is cancelled best-effort before the new one is dispatched and
// recorded, so repeated calls leave a single live notification.
func (s *Scheduler) ScheduleOnce(ctx context.Context, slot, title, body string, at time.Time, extra map[string]string) (string, error) {
	if strings.TrimSpace(slot) == "" {
		return "", fmt.Errorf("reminder: slot is required")
	}
	if !s.validTrigger(at) {
		return "", ErrInvalidTrigger
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelSlotLocked(ctx, slot)

	id, err := s.dispatch(ctx, Notification{
		Title:     title,
		Body:      body,
		TriggerAt: at,
		SlotKey:   slot,
		Data:      extra,
	})
	if err != nil {
		return "", err
	}
	if err := s.store.Set(ctx, SlotKey(slot), id); err != nil {
		// An unrecorded live id could never be replaced; withdraw it.
		if cancelErr := s.dispatcher.Cancel(ctx, id); cancelErr != nil {
			s.logger.Warn("Scheduler: failed to withdraw unrecorded %s notification %s: %v", slot, id, cancelErr)
		}
		return "", fmt.Errorf("persist slot %s: %w", slot, err)
	}
	s.logger.Debug("Scheduler: slot %s -> %s at %s", slot, id, at.Format(time.RFC3339))
	return id, nil
}

// cancelSlotLocked cancels and forgets the id stored for slot. Failures are
// logged only. Must be called with s.mu held.
func (s *Scheduler) cancelSlotLocked(ctx context.Context, slot string) {
	key := SlotKey(slot)
	id, ok, err := s.store.Get(ctx, key)
	if err != nil {
		s.logger.Warn("Scheduler: failed to read slot %s: %v", slot, err)
		return
	}
	if !ok || id == "" {
		return
	}
	status := "ok"
	if err := s.dispatcher.Cancel(ctx, id); err != nil {
		status = "error"
		s.logger.Warn("Scheduler: failed to cancel %s notification %s: %v", slot, id, err)
	}
	s.metrics.RecordCancelled(ctx, slot, status)
	if err := s.store.Remove(ctx, key); err != nil {
		s.logger.Warn("Scheduler: failed to clear slot %s: %v", slot, err)
	}
}

// CancelSlot cancels the notification owned by slot, if any.
func (s *Scheduler) CancelSlot(ctx context.Context, slot string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelSlotLocked(ctx, slot)
}

// SlotID returns the id currently recorded for slot.
func (s *Scheduler) SlotID(ctx context.Context, slot string) (string, bool, error) {
	return s.store.Get(ctx, SlotKey(slot))
}

// Cancel cancels a single notification and clears the slot that owned it.
func (s *Scheduler) Cancel(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending, err := s.dispatcher.ListScheduled(ctx)
	if err != nil {
		s.logger.Warn("Scheduler: list before cancel failed: %v", err)
	}
	if err := s.dispatcher.Cancel(ctx, id); err != nil {
		return fmt.Errorf("cancel notification %s: %w", id, err)
	}
	slot := ""
	for _, n := range pending {
		if n.ID == id {
			slot = n.SlotKey
			break
		}
	}
	s.metrics.RecordCancelled(ctx, slot, "ok")
	if slot != "" {
		s.forgetLocked(ctx, slot, id)
	}
	return nil
}

// CancelAll cancels every pending notification and clears their slots. It
// keeps going past individual failures and returns them joined.
func (s *Scheduler) CancelAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending, err := s.dispatcher.ListScheduled(ctx)
	if err != nil {
		return fmt.Errorf("list scheduled: %w", err)
	}
	var errs []error
	for _, n := range pending {
		if err := s.dispatcher.Cancel(ctx, n.ID); err != nil {
			errs = append(errs, fmt.Errorf("cancel %s: %w", n.ID, err))
			continue
		}
		s.metrics.RecordCancelled(ctx, n.SlotKey, "ok")
		if n.SlotKey != "" {
			s.forgetLocked(ctx, n.SlotKey, n.ID)
		}
	}
	s.logger.Info("Scheduler: cancelled %d notifications", len(pending)-len(errs))
	return errors.Join(errs...)
}

// forgetLocked removes slot's pointer if it still refers to id.
func (s *Scheduler) forgetLocked(ctx context.Context, slot, id string) {
	current, ok, err := s.store.Get(ctx, SlotKey(slot))
	if err != nil || !ok || current != id {
		return
	}
	if err := s.store.Remove(ctx, SlotKey(slot)); err != nil {
		s.logger.Warn("Scheduler: failed to clear slot %s: %v", slot, err)
	}
}

// ListScheduled returns the dispatcher's pending notifications.
func (s *Scheduler) ListScheduled(ctx context.Context) ([]Notification, error) {
	return s.dispatcher.ListScheduled(ctx)
}
