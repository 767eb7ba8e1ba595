package geofence

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"nudge/internal/domain/userdata"
	"nudge/internal/infra/kv"
	"nudge/internal/observability"
)

func (e *Engine) handleRegion(ctx context.Context, ev Event) (sent bool, err error) {
	ctx, span := e.tracer.StartSpan(ctx, observability.SpanGeofenceRegion,
		attribute.String(observability.AttrRegion, ev.RegionID),
		attribute.String("nudge.event", string(ev.Kind)),
	)
	defer func() { observability.EndSpan(span, err) }()

	settings, err := e.Settings(ctx)
	if err != nil {
		return false, err
	}
	if !settings.Enabled {
		return false, nil
	}

	loc, ok, err := e.findLocation(ctx, ev.RegionID)
	if err != nil {
		return false, err
	}
	if !ok {
		e.logger.Debug("Geofence: event for unknown region %s", ev.RegionID)
		return false, nil
	}

	switch ev.Kind {
	case EventExit:
		if loc.Type != LocationHome || !loc.NotifyOnExit || !settings.LeaveHomeReminder {
			return false, nil
		}
		return e.leavingHome(ctx, settings)
	case EventEnter:
		if !loc.NotifyOnEnter {
			return false, nil
		}
		categories, ok := regionCategories[loc.Type]
		if !ok {
			return false, nil
		}
		return e.arrived(ctx, settings, loc, categories)
	}
	return false, nil
}

func (e *Engine) findLocation(ctx context.Context, id string) (SavedLocation, bool, error) {
	locs, err := e.Locations(ctx)
	if err != nil {
		return SavedLocation{}, false, err
	}
	for _, l := range locs {
		if l.ID == id {
			return l, true, nil
		}
	}
	return SavedLocation{}, false, nil
}

func (e *Engine) leavingHome(ctx context.Context, settings Settings) (bool, error) {
	tasks, err := e.tasks.PendingTasks(ctx, userdata.TaskQuery{LocationTagged: true, ExcludeTimeBased: true})
	if err != nil {
		e.logger.Warn("Geofence: task lookup failed on leaving home: %v", err)
		return false, nil
	}
	if len(tasks) == 0 && settings.SmartFilteringEnabled {
		e.metrics.RecordSuppressed(ctx, "leaving_home", "no_tasks")
		return false, nil
	}

	body := FormatPreview(tasks, e.cfg.PreviewLimit)
	if body == "" {
		body = "Nothing on your errand list. Have a good trip!"
	}
	return e.send(ctx, regionEmoji[LocationHome]+" Leaving home?", body, map[string]string{
		"type":  "leaving_home",
		"count": fmt.Sprint(len(tasks)),
	})
}

func (e *Engine) arrived(ctx context.Context, settings Settings, loc SavedLocation, categories []userdata.Category) (bool, error) {
	tasks, err := e.tasks.PendingTasks(ctx, userdata.TaskQuery{Categories: categories, ExcludeTimeBased: true})
	if err != nil {
		e.logger.Warn("Geofence: task lookup failed on arrival at %s: %v", loc.Name, err)
		return false, nil
	}
	if len(tasks) == 0 && settings.SmartFilteringEnabled {
		e.metrics.RecordSuppressed(ctx, "arrival", "no_tasks")
		return false, nil
	}

	body := FormatPreview(tasks, e.cfg.PreviewLimit)
	if body == "" {
		body = "No pending tasks here."
	}
	return e.send(ctx, fmt.Sprintf("%s Arrived at %s", regionEmoji[loc.Type], loc.Name), body, map[string]string{
		"type":        "arrival",
		"location_id": loc.ID,
		"count":       fmt.Sprint(len(tasks)),
	})
}

// DetectStore classifies the address at lat/lng and, outside the cooldown
// window, notifies about tasks for the detected store category. It reports
// whether a notification was sent.
func (e *Engine) DetectStore(ctx context.Context, lat, lng float64) (sent bool, err error) {
	ctx, span := e.tracer.StartSpan(ctx, observability.SpanGeofenceDetect)
	defer func() { observability.EndSpan(span, err) }()

	settings, err := e.Settings(ctx)
	if err != nil {
		return false, err
	}
	if !settings.Enabled || !settings.AutoDetectStores || e.geocoder == nil {
		return false, nil
	}

	address, err := e.geocoder.ReverseGeocode(ctx, lat, lng)
	if err != nil {
		e.logger.Warn("Geofence: reverse geocode failed at %.5f,%.5f: %v", lat, lng, err)
		return false, nil
	}
	match, ok := MatchStore(address)
	if !ok {
		return false, nil
	}
	span.SetAttributes(observability.CategoryAttrs(string(match.Category))...)
	e.metrics.RecordStoreDetection(ctx, string(match.Category))

	e.detectMu.Lock()
	defer e.detectMu.Unlock()

	now := e.now()
	here := Point{Lat: lat, Lng: lng}
	if rec, found := e.lastDetection(ctx); found && rec.Category == match.Category {
		elapsed := now.Sub(rec.Timestamp)
		distance := Haversine(Point{Lat: rec.Lat, Lng: rec.Lng}, here)
		if elapsed < e.cfg.CooldownWindow && distance < e.cfg.CooldownDistance {
			e.logger.Debug("Geofence: %s within cooldown (%s, %.0fm)", match.Category, elapsed, distance)
			e.metrics.RecordSuppressed(ctx, "store", "cooldown")
			return false, nil
		}
	}

	tasks, err := e.tasks.PendingTasks(ctx, userdata.TaskQuery{Categories: []userdata.Category{match.Category}})
	if err != nil {
		e.logger.Warn("Geofence: task lookup failed for %s: %v", match.Category, err)
		return false, nil
	}
	if len(tasks) == 0 && settings.SmartFilteringEnabled {
		e.metrics.RecordSuppressed(ctx, "store", "no_tasks")
		return false, nil
	}

	rec := DetectionRecord{Category: match.Category, Lat: lat, Lng: lng, Timestamp: now}
	if err := kv.SaveJSON(ctx, e.store, DetectionKey, rec); err != nil {
		return false, fmt.Errorf("save detection record: %w", err)
	}

	body := FormatPreview(tasks, e.cfg.PreviewLimit)
	if body == "" {
		body = "Anything you need while you're here?"
	}
	return e.send(ctx, fmt.Sprintf("%s Near %s", match.Emoji, match.Name), body, map[string]string{
		"type":     "store_detected",
		"category": string(match.Category),
		"address":  address,
	})
}

// lastDetection loads the cooldown record. Unreadable records count as absent.
func (e *Engine) lastDetection(ctx context.Context) (DetectionRecord, bool) {
	var rec DetectionRecord
	found, err := kv.LoadJSON(ctx, e.store, DetectionKey, &rec)
	if err != nil {
		if !errors.Is(err, kv.ErrCorrupt) {
			e.logger.Warn("Geofence: failed to read detection record: %v", err)
		}
		return DetectionRecord{}, false
	}
	return rec, found
}

func (e *Engine) send(ctx context.Context, title, body string, data map[string]string) (bool, error) {
	if _, err := e.notifier.NotifyNow(ctx, title, body, data); err != nil {
		e.logger.Warn("Geofence: notification %q not sent: %v", title, err)
		return false, nil
	}
	e.logger.Info("Geofence: sent %q", title)
	return true, nil
}
