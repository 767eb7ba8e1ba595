// Package notify is the in-process notification dispatcher. It arms a Go
// timer per pending notification, persists the pending set so it survives
// restarts, and fans fired notifications out to sinks.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"nudge/internal/app/reminder"
	"nudge/internal/infra/kv"
	"nudge/internal/observability"
	"nudge/internal/shared/logging"
)

// PendingKey is the store key holding the pending notification set.
const PendingKey = "dispatcher:pending"

// ErrStopped is returned by Schedule after Stop.
var ErrStopped = errors.New("notify: dispatcher stopped")

type entry struct {
	n     reminder.Notification
	timer *time.Timer
}

// Dispatcher implements reminder.Dispatcher with local timers.
type Dispatcher struct {
	store   kv.Store
	logger  logging.Logger
	metrics *observability.MetricsCollector

	// Now returns the current time; injectable for testing.
	Now func() time.Time

	mu      sync.Mutex
	pending map[string]*entry
	sinks   []Sink
	closed  bool

	wg       sync.WaitGroup
	stopped  chan struct{}
	stopOnce sync.Once
}

var _ reminder.Dispatcher = (*Dispatcher)(nil)

// NewDispatcher creates a Dispatcher persisting into store.
func NewDispatcher(store kv.Store, logger logging.Logger, sinks ...Sink) *Dispatcher {
	return &Dispatcher{
		store:   store,
		logger:  logging.OrNop(logger),
		Now:     time.Now,
		pending: make(map[string]*entry),
		sinks:   sinks,
		stopped: make(chan struct{}),
	}
}

// WithMetrics attaches a metrics collector.
func (d *Dispatcher) WithMetrics(m *observability.MetricsCollector) *Dispatcher {
	d.metrics = m
	return d
}

// AddSink registers a sink for fired notifications.
func (d *Dispatcher) AddSink(s Sink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sinks = append(d.sinks, s)
}

func (d *Dispatcher) now() time.Time {
	if d.Now == nil {
		return time.Now()
	}
	return d.Now()
}

// Start loads persisted notifications and re-arms them. Past-due entries
// fire immediately. The dispatcher stops when ctx is done.
func (d *Dispatcher) Start(ctx context.Context) error {
	var saved []reminder.Notification
	if _, err := kv.LoadJSON(ctx, d.store, PendingKey, &saved); err != nil {
		if !errors.Is(err, kv.ErrCorrupt) {
			return fmt.Errorf("load pending notifications: %w", err)
		}
		d.logger.Warn("Dispatcher: discarding corrupt pending set: %v", err)
	}

	d.mu.Lock()
	overdue := 0
	for _, n := range saved {
		if _, exists := d.pending[n.ID]; exists || n.ID == "" {
			continue
		}
		if !n.TriggerAt.After(d.now()) {
			overdue++
		}
		d.armLocked(n)
	}
	count := len(d.pending)
	d.mu.Unlock()

	d.logger.Info("Dispatcher started with %d pending notifications (%d overdue)", count, overdue)

	go func() {
		select {
		case <-ctx.Done():
			d.Stop()
		case <-d.stopped:
		}
	}()
	return nil
}

// Stop disarms all timers. Pending notifications stay persisted and are
// recovered by the next Start. Safe to call multiple times.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		for _, e := range d.pending {
			e.timer.Stop()
		}
		d.mu.Unlock()

		close(d.stopped)
		d.wg.Wait()
		d.logger.Info("Dispatcher stopped")
	})
}

// Done returns a channel that is closed once Stop has begun.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.stopped
}

// Schedule assigns an id, persists, and arms n.
func (d *Dispatcher) Schedule(ctx context.Context, n reminder.Notification) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return "", ErrStopped
	}

	n.ID = uuid.NewString()
	d.armLocked(n)
	if err := d.persistLocked(ctx); err != nil {
		d.pending[n.ID].timer.Stop()
		delete(d.pending, n.ID)
		return "", err
	}
	d.logger.Debug("Dispatcher: scheduled %s (%q) at %s", n.ID, n.Title, n.TriggerAt.Format(time.RFC3339))
	return n.ID, nil
}

// Cancel disarms and forgets id. Unknown ids are ignored.
func (d *Dispatcher) Cancel(ctx context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.pending[id]
	if !ok {
		return nil
	}
	e.timer.Stop()
	delete(d.pending, id)
	return d.persistLocked(ctx)
}

// ListScheduled returns pending notifications ordered by trigger time.
func (d *Dispatcher) ListScheduled(context.Context) ([]reminder.Notification, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]reminder.Notification, 0, len(d.pending))
	for _, e := range d.pending {
		out = append(out, e.n)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TriggerAt.Equal(out[j].TriggerAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].TriggerAt.Before(out[j].TriggerAt)
	})
	return out, nil
}

// armLocked must be called with d.mu held.
func (d *Dispatcher) armLocked(n reminder.Notification) {
	delay := n.TriggerAt.Sub(d.now())
	if delay < 0 {
		delay = 0
	}
	id := n.ID
	d.pending[id] = &entry{
		n:     n,
		timer: time.AfterFunc(delay, func() { d.fire(id) }),
	}
}

func (d *Dispatcher) persistLocked(ctx context.Context) error {
	list := make([]reminder.Notification, 0, len(d.pending))
	for _, e := range d.pending {
		list = append(list, e.n)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	if err := kv.SaveJSON(ctx, d.store, PendingKey, list); err != nil {
		return fmt.Errorf("persist pending notifications: %w", err)
	}
	return nil
}

func (d *Dispatcher) fire(id string) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	e, ok := d.pending[id]
	if !ok {
		d.mu.Unlock()
		return
	}
	delete(d.pending, id)
	ctx := context.Background()
	if err := d.persistLocked(ctx); err != nil {
		d.logger.Warn("Dispatcher: failed to persist fired status for %s: %v", id, err)
	}
	sinks := append([]Sink(nil), d.sinks...)
	d.wg.Add(1)
	d.mu.Unlock()
	defer d.wg.Done()

	late := d.now().Sub(e.n.TriggerAt) > time.Minute
	d.metrics.RecordFired(ctx, late)
	d.logger.Info("Dispatcher: firing %s (%q)", id, e.n.Title)

	for _, s := range sinks {
		if err := s.Deliver(ctx, e.n); err != nil {
			d.logger.Warn("Dispatcher: sink delivery failed for %s: %v", id, err)
		}
	}
}
