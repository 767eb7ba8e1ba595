package geofence

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"nudge/internal/infra/kv"
)

// Sync re-registers the full region set and starts or stops background
// sampling to match the current settings. It reports false, touching
// nothing, when monitoring is enabled but location permission is missing.
func (e *Engine) Sync(ctx context.Context) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.syncLocked(ctx)
}

func (e *Engine) syncLocked(ctx context.Context) (bool, error) {
	settings, err := e.Settings(ctx)
	if err != nil {
		return false, err
	}

	if !settings.Enabled {
		if err := e.platform.RegisterRegions(ctx, nil); err != nil {
			return false, fmt.Errorf("clear regions: %w", err)
		}
		if err := e.stopSamplingLocked(ctx); err != nil {
			return false, err
		}
		e.logger.Info("Geofence: monitoring disabled; regions cleared")
		return true, nil
	}

	if ok := e.permitted(ctx); !ok {
		return false, nil
	}

	locs, err := e.Locations(ctx)
	if err != nil {
		return false, err
	}
	regions := make([]Region, 0, len(locs))
	for _, l := range locs {
		regions = append(regions, Region{
			ID:            l.ID,
			Lat:           l.Lat,
			Lng:           l.Lng,
			Radius:        l.Radius,
			NotifyOnEnter: l.NotifyOnEnter,
			NotifyOnExit:  l.NotifyOnExit,
		})
	}
	if err := e.platform.RegisterRegions(ctx, regions); err != nil {
		return false, fmt.Errorf("register regions: %w", err)
	}

	if settings.AutoDetectStores {
		if err := e.platform.StartLocationUpdates(ctx, UpdateOptions{
			Interval:       e.cfg.SampleInterval,
			DistanceMeters: e.cfg.SampleDistance,
		}); err != nil {
			return false, fmt.Errorf("start location updates: %w", err)
		}
		e.sampling = true
	} else if err := e.stopSamplingLocked(ctx); err != nil {
		return false, err
	}

	e.logger.Info("Geofence: registered %d regions (store detection: %t)", len(regions), settings.AutoDetectStores)
	return true, nil
}

func (e *Engine) stopSamplingLocked(ctx context.Context) error {
	if !e.sampling {
		return nil
	}
	if err := e.platform.StopLocationUpdates(ctx); err != nil {
		return fmt.Errorf("stop location updates: %w", err)
	}
	e.sampling = false
	return nil
}

// permitted checks location permission; a failing check counts as denied.
func (e *Engine) permitted(ctx context.Context) bool {
	ok, err := e.platform.HasPermission(ctx)
	if err != nil {
		e.logger.Warn("Geofence: permission check failed: %v", err)
		return false
	}
	if !ok {
		e.logger.Info("Geofence: location permission not granted")
	}
	return ok
}

// Sampling reports whether background location updates are running.
func (e *Engine) Sampling() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sampling
}

// UpdateSettings persists s and re-syncs. Enabling monitoring without
// permission returns false and leaves the stored settings unchanged.
func (e *Engine) UpdateSettings(ctx context.Context, s Settings) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if s.Enabled && !e.permitted(ctx) {
		return false, nil
	}
	if err := kv.SaveJSON(ctx, e.store, SettingsKey, s); err != nil {
		return false, fmt.Errorf("save settings: %w", err)
	}
	return e.syncLocked(ctx)
}

// AddLocation validates and stores loc, assigning an ID when empty.
func (e *Engine) AddLocation(ctx context.Context, loc SavedLocation) (SavedLocation, error) {
	if err := e.validate.Struct(loc); err != nil {
		return SavedLocation{}, fmt.Errorf("invalid location: %w", err)
	}
	if loc.ID == "" {
		loc.ID = uuid.NewString()
	}
	err := e.mutateLocations(ctx, func(locs []SavedLocation) ([]SavedLocation, error) {
		for _, l := range locs {
			if l.ID == loc.ID {
				return nil, fmt.Errorf("geofence: location %s already exists", loc.ID)
			}
		}
		return append(locs, loc), nil
	})
	if err != nil {
		return SavedLocation{}, err
	}
	return loc, nil
}

// UpdateLocation replaces the location with loc.ID.
func (e *Engine) UpdateLocation(ctx context.Context, loc SavedLocation) error {
	if err := e.validate.Struct(loc); err != nil {
		return fmt.Errorf("invalid location: %w", err)
	}
	return e.mutateLocations(ctx, func(locs []SavedLocation) ([]SavedLocation, error) {
		for i, l := range locs {
			if l.ID == loc.ID {
				locs[i] = loc
				return locs, nil
			}
		}
		return nil, ErrLocationNotFound
	})
}

// RemoveLocation deletes the location with id.
func (e *Engine) RemoveLocation(ctx context.Context, id string) error {
	return e.mutateLocations(ctx, func(locs []SavedLocation) ([]SavedLocation, error) {
		for i, l := range locs {
			if l.ID == id {
				return append(locs[:i], locs[i+1:]...), nil
			}
		}
		return nil, ErrLocationNotFound
	})
}

// mutateLocations applies fn to the stored list, persists, and performs a
// full re-registration. Permission is checked before anything is written.
func (e *Engine) mutateLocations(ctx context.Context, fn func([]SavedLocation) ([]SavedLocation, error)) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	settings, err := e.Settings(ctx)
	if err != nil {
		return err
	}
	if settings.Enabled && !e.permitted(ctx) {
		return ErrPermissionDenied
	}

	locs, err := e.Locations(ctx)
	if err != nil {
		return err
	}
	next, err := fn(locs)
	if err != nil {
		return err
	}
	if err := kv.SaveJSON(ctx, e.store, LocationsKey, next); err != nil {
		return fmt.Errorf("save locations: %w", err)
	}
	if _, err := e.syncLocked(ctx); err != nil {
		return err
	}
	return nil
}
