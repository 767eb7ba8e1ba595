package geofence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"nudge/internal/domain/userdata"
	"nudge/internal/infra/kv"
	"nudge/internal/observability"
	"nudge/internal/shared/logging"
)

// Persisted keys.
const (
	SettingsKey  = "notificationSettings"
	LocationsKey = "savedLocations"
	DetectionKey = "lastStoreDetection"
)

// Config tunes detection and sampling.
type Config struct {
	CooldownWindow   time.Duration
	CooldownDistance float64
	PreviewLimit     int
	SampleInterval   time.Duration
	SampleDistance   float64
}

// DefaultConfig returns the 30 minute / 500 m cooldown and a three item preview.
func DefaultConfig() Config {
	return Config{
		CooldownWindow:   30 * time.Minute,
		CooldownDistance: 500,
		PreviewLimit:     3,
		SampleInterval:   5 * time.Minute,
		SampleDistance:   100,
	}
}

// Deps are the engine's collaborators.
type Deps struct {
	Store    kv.Store
	Platform Platform
	Geocoder Geocoder
	Tasks    userdata.TaskSource
	Notifier Notifier
}

// Engine owns saved locations, settings, and the store-detection cooldown.
type Engine struct {
	store    kv.Store
	platform Platform
	geocoder Geocoder
	tasks    userdata.TaskSource
	notifier Notifier

	cfg      Config
	logger   logging.Logger
	metrics  *observability.MetricsCollector
	tracer   *observability.TracerProvider
	validate *validator.Validate

	// Now returns the current time; injectable for testing.
	Now func() time.Time

	// mu serializes settings/location mutations and registration.
	mu       sync.Mutex
	sampling bool

	// detectMu makes the cooldown read-check-write atomic.
	detectMu sync.Mutex
}

// NewEngine creates an Engine. Zero Config fields fall back to DefaultConfig.
func NewEngine(deps Deps, cfg Config, logger logging.Logger) *Engine {
	def := DefaultConfig()
	if cfg.CooldownWindow <= 0 {
		cfg.CooldownWindow = def.CooldownWindow
	}
	if cfg.CooldownDistance <= 0 {
		cfg.CooldownDistance = def.CooldownDistance
	}
	if cfg.PreviewLimit <= 0 {
		cfg.PreviewLimit = def.PreviewLimit
	}
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = def.SampleInterval
	}
	return &Engine{
		store:    deps.Store,
		platform: deps.Platform,
		geocoder: deps.Geocoder,
		tasks:    deps.Tasks,
		notifier: deps.Notifier,
		cfg:      cfg,
		logger:   logging.OrNop(logger),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		Now:      time.Now,
	}
}

// WithObservability attaches metrics and tracing.
func (e *Engine) WithObservability(m *observability.MetricsCollector, t *observability.TracerProvider) *Engine {
	e.metrics = m
	e.tracer = t
	return e
}

func (e *Engine) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

// Settings returns the persisted settings, or defaults when none are stored
// or the stored value is unreadable.
func (e *Engine) Settings(ctx context.Context) (Settings, error) {
	s := DefaultSettings()
	if _, err := kv.LoadJSON(ctx, e.store, SettingsKey, &s); err != nil {
		if errors.Is(err, kv.ErrCorrupt) {
			e.logger.Warn("Geofence: %v; using defaults", err)
			return DefaultSettings(), nil
		}
		return Settings{}, err
	}
	return s, nil
}

// Locations returns the saved locations.
func (e *Engine) Locations(ctx context.Context) ([]SavedLocation, error) {
	var locs []SavedLocation
	if _, err := kv.LoadJSON(ctx, e.store, LocationsKey, &locs); err != nil {
		if errors.Is(err, kv.ErrCorrupt) {
			e.logger.Warn("Geofence: %v; treating as empty", err)
			return nil, nil
		}
		return nil, err
	}
	return locs, nil
}

// Run consumes platform events until ctx is done or events is closed.
func (e *Engine) Run(ctx context.Context, events <-chan Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if _, err := e.HandleEvent(ctx, ev); err != nil {
				e.logger.Warn("Geofence: %s event failed: %v", ev.Kind, err)
			}
		}
	}
}

// HandleEvent processes a single platform event and reports whether a
// notification was sent.
func (e *Engine) HandleEvent(ctx context.Context, ev Event) (bool, error) {
	e.metrics.RecordGeofenceEvent(ctx, string(ev.Kind))
	switch ev.Kind {
	case EventEnter, EventExit:
		return e.handleRegion(ctx, ev)
	case EventSample:
		return e.DetectStore(ctx, ev.Lat, ev.Lng)
	default:
		return false, fmt.Errorf("geofence: unknown event kind %q", ev.Kind)
	}
}
