// Package smart schedules the daily wake-up and bedtime notifications and an
// occasional food-pattern insight.
package smart

import (
	"context"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"nudge/internal/domain/userdata"
	"nudge/internal/infra/kv"
	"nudge/internal/infra/llm"
	"nudge/internal/observability"
	"nudge/internal/shared/logging"
)

// Owned slots.
const (
	SlotMorning     = "morning"
	SlotBedtime     = "bedtime"
	SlotFoodInsight = "foodInsight"
)

// ThrottleKey holds the Unix-millisecond time of the last full run.
const ThrottleKey = "lastFullRescheduleTimestamp"

// SlotScheduler is the part of reminder.Scheduler the orchestrator uses.
type SlotScheduler interface {
	ScheduleOnce(ctx context.Context, slot, title, body string, at time.Time, extra map[string]string) (string, error)
	CancelSlot(ctx context.Context, slot string)
}

// Config tunes the orchestrator.
type Config struct {
	ThrottleInterval time.Duration
	DefaultWakeTime  string
	DefaultBedTime   string
	FoodAnalysisTTL  time.Duration
	FoodLookbackDays int
}

// DefaultConfig returns a 12 hour throttle and 07:00/22:00 defaults.
func DefaultConfig() Config {
	return Config{
		ThrottleInterval: 12 * time.Hour,
		DefaultWakeTime:  "07:00",
		DefaultBedTime:   "22:00",
		FoodAnalysisTTL:  24 * time.Hour,
		FoodLookbackDays: 14,
	}
}

// Deps are the orchestrator's collaborators. AI may be nil.
type Deps struct {
	Scheduler SlotScheduler
	Store     kv.Store
	Tasks     userdata.TaskSource
	Profile   userdata.ProfileSource
	Food      userdata.FoodJournal
	AI        llm.Generator
}

// Orchestrator computes and schedules the smart notification slots.
type Orchestrator struct {
	deps    Deps
	cfg     Config
	logger  logging.Logger
	metrics *observability.MetricsCollector
	tracer  *observability.TracerProvider

	// Now returns the current time; injectable for testing.
	Now func() time.Time

	mu sync.Mutex
	// generation is bumped by CancelAll; background work started under an
	// older generation must not schedule anything. Guarded by mu.
	generation uint64
	analyzing  sync.Mutex
	group      errgroup.Group
}

// NewOrchestrator creates an Orchestrator. Zero Config fields take defaults.
func NewOrchestrator(deps Deps, cfg Config, logger logging.Logger) *Orchestrator {
	def := DefaultConfig()
	if cfg.ThrottleInterval <= 0 {
		cfg.ThrottleInterval = def.ThrottleInterval
	}
	if cfg.DefaultWakeTime == "" {
		cfg.DefaultWakeTime = def.DefaultWakeTime
	}
	if cfg.DefaultBedTime == "" {
		cfg.DefaultBedTime = def.DefaultBedTime
	}
	if cfg.FoodAnalysisTTL <= 0 {
		cfg.FoodAnalysisTTL = def.FoodAnalysisTTL
	}
	if cfg.FoodLookbackDays <= 0 {
		cfg.FoodLookbackDays = def.FoodLookbackDays
	}
	return &Orchestrator{
		deps:   deps,
		cfg:    cfg,
		logger: logging.OrNop(logger),
		Now:    time.Now,
	}
}

// WithObservability attaches metrics and tracing.
func (o *Orchestrator) WithObservability(m *observability.MetricsCollector, t *observability.TracerProvider) *Orchestrator {
	o.metrics = m
	o.tracer = t
	return o
}

func (o *Orchestrator) now() time.Time {
	if o.Now == nil {
		return time.Now()
	}
	return o.Now()
}

// Reschedule recomputes the morning and bedtime slots and starts a food
// analysis in the background. Within the throttle interval of the previous
// run it does nothing and reports false. Collaborator failures skip the
// affected slot; only store failures on the throttle stamp are returned.
func (o *Orchestrator) Reschedule(ctx context.Context) (ran bool, err error) {
	ctx, span := o.tracer.StartSpan(ctx, observability.SpanSmartReschedule)
	defer func() { observability.EndSpan(span, err) }()

	o.mu.Lock()
	defer o.mu.Unlock()

	now := o.now()
	if last, ok := o.lastRun(ctx); ok && now.Sub(last) < o.cfg.ThrottleInterval {
		o.logger.Debug("Smart: last run %s ago; skipping", now.Sub(last).Round(time.Second))
		return false, nil
	}
	if err := o.deps.Store.Set(ctx, ThrottleKey, strconv.FormatInt(now.UnixMilli(), 10)); err != nil {
		return false, err
	}

	profile, err := o.deps.Profile.Profile(ctx)
	if err != nil {
		o.logger.Warn("Smart: profile unavailable, using defaults: %v", err)
		profile = userdata.Profile{}
	}

	o.scheduleMorning(ctx, now, profile)
	o.scheduleBedtime(ctx, now, profile)

	bg := context.WithoutCancel(ctx)
	gen := o.generation
	o.group.Go(func() error {
		o.analyzeFood(bg, gen)
		return nil
	})
	return true, nil
}

// Wait blocks until background food analysis started by Reschedule is done.
func (o *Orchestrator) Wait() {
	_ = o.group.Wait()
}

func (o *Orchestrator) lastRun(ctx context.Context) (time.Time, bool) {
	raw, ok, err := o.deps.Store.Get(ctx, ThrottleKey)
	if err != nil || !ok {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		o.logger.Warn("Smart: ignoring unreadable %s %q", ThrottleKey, raw)
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

func (o *Orchestrator) scheduleMorning(ctx context.Context, now time.Time, profile userdata.Profile) {
	at := nextOccurrence(now, parseClock(profile.WakeTime, o.cfg.DefaultWakeTime))

	tasks, err := o.deps.Tasks.PendingTasks(ctx, userdata.TaskQuery{DueOn: now})
	if err != nil {
		o.logger.Warn("Smart: task lookup for morning failed: %v", err)
		tasks = nil
	}

	c := o.content(ctx, SlotMorning, now, morningPrompt(profile, tasks), morningFallback(profile, tasks))
	if _, err := o.deps.Scheduler.ScheduleOnce(ctx, SlotMorning, c.Title, c.Body, at, map[string]string{"type": SlotMorning}); err != nil {
		o.logger.Warn("Smart: morning notification not scheduled: %v", err)
		return
	}
	o.logger.Info("Smart: morning notification set for %s", at.Format(time.RFC3339))
}

func (o *Orchestrator) scheduleBedtime(ctx context.Context, now time.Time, profile userdata.Profile) {
	tasks, err := o.deps.Tasks.PendingTasks(ctx, userdata.TaskQuery{})
	if err != nil {
		o.logger.Warn("Smart: task lookup for bedtime failed: %v", err)
		return
	}
	if len(tasks) == 0 {
		o.deps.Scheduler.CancelSlot(ctx, SlotBedtime)
		o.logger.Debug("Smart: no pending tasks; bedtime slot cleared")
		return
	}

	at := nextOccurrence(now, parseClock(profile.BedTime, o.cfg.DefaultBedTime))
	c := o.content(ctx, SlotBedtime, now, bedtimePrompt(profile, tasks), bedtimeFallback(tasks))
	if _, err := o.deps.Scheduler.ScheduleOnce(ctx, SlotBedtime, c.Title, c.Body, at, map[string]string{
		"type":  SlotBedtime,
		"count": strconv.Itoa(len(tasks)),
	}); err != nil {
		o.logger.Warn("Smart: bedtime notification not scheduled: %v", err)
		return
	}
	o.logger.Info("Smart: bedtime notification set for %s", at.Format(time.RFC3339))
}

// CancelAll cancels every owned slot and clears the throttle stamp so the
// next Reschedule runs in full. A food analysis still in flight finishes
// without scheduling its insight.
func (o *Orchestrator) CancelAll(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.generation++
	for _, slot := range []string{SlotMorning, SlotBedtime, SlotFoodInsight} {
		o.deps.Scheduler.CancelSlot(ctx, slot)
	}
	return o.deps.Store.Remove(ctx, ThrottleKey)
}
