// Package geofence turns platform region and location events into filtered,
// deduplicated location reminders.
package geofence

import (
	"context"
	"errors"
	"time"

	"nudge/internal/domain/userdata"
)

var (
	// ErrLocationNotFound is returned when updating or removing an unknown location.
	ErrLocationNotFound = errors.New("geofence: location not found")
	// ErrPermissionDenied is returned when location access has not been granted.
	ErrPermissionDenied = errors.New("geofence: location permission denied")
)

// LocationType is the kind of a user-defined region.
type LocationType string

const (
	LocationHome LocationType = "home"
	LocationWork LocationType = "work"
	LocationGym  LocationType = "gym"
)

// SavedLocation is a user-defined circular region.
type SavedLocation struct {
	ID            string       `json:"id"`
	Name          string       `json:"name" validate:"required,max=80"`
	Type          LocationType `json:"type" validate:"required,oneof=home work gym"`
	Lat           float64      `json:"lat" validate:"latitude"`
	Lng           float64      `json:"lng" validate:"longitude"`
	Radius        float64      `json:"radius" validate:"gte=50,lte=5000"`
	NotifyOnEnter bool         `json:"notify_on_enter"`
	NotifyOnExit  bool         `json:"notify_on_exit"`
}

// Point returns the region centre.
func (l SavedLocation) Point() Point {
	return Point{Lat: l.Lat, Lng: l.Lng}
}

// Settings are the user's location-reminder toggles.
type Settings struct {
	Enabled               bool `json:"enabled"`
	SmartFilteringEnabled bool `json:"smart_filtering_enabled"`
	LeaveHomeReminder     bool `json:"leave_home_reminder"`
	AutoDetectStores      bool `json:"auto_detect_stores"`
}

// DefaultSettings returns the settings used before the user changes anything.
func DefaultSettings() Settings {
	return Settings{
		Enabled:               true,
		SmartFilteringEnabled: true,
		LeaveHomeReminder:     true,
		AutoDetectStores:      true,
	}
}

// DetectionRecord remembers the last store category that produced a
// notification. There is a single record for all categories.
type DetectionRecord struct {
	Category  userdata.Category `json:"category"`
	Lat       float64           `json:"lat"`
	Lng       float64           `json:"lng"`
	Timestamp time.Time         `json:"timestamp"`
}

// Region is what gets registered with the platform.
type Region struct {
	ID            string  `json:"id"`
	Lat           float64 `json:"lat"`
	Lng           float64 `json:"lng"`
	Radius        float64 `json:"radius"`
	NotifyOnEnter bool    `json:"notify_on_enter"`
	NotifyOnExit  bool    `json:"notify_on_exit"`
}

// EventKind distinguishes platform events.
type EventKind string

const (
	EventEnter  EventKind = "enter"
	EventExit   EventKind = "exit"
	EventSample EventKind = "sample"
)

// Event is a platform-delivered region transition or location sample.
type Event struct {
	Kind     EventKind `json:"kind"`
	RegionID string    `json:"region_id,omitempty"`
	Lat      float64   `json:"lat"`
	Lng      float64   `json:"lng"`
	At       time.Time `json:"at"`
}

// UpdateOptions gate background location sampling.
type UpdateOptions struct {
	Interval       time.Duration
	DistanceMeters float64
}

// Platform is the device geofencing/location service.
type Platform interface {
	HasPermission(ctx context.Context) (bool, error)
	// RegisterRegions replaces the full registered set.
	RegisterRegions(ctx context.Context, regions []Region) error
	StartLocationUpdates(ctx context.Context, opts UpdateOptions) error
	StopLocationUpdates(ctx context.Context) error
}

// Geocoder turns coordinates into an address string.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lng float64) (string, error)
}

// Notifier sends an immediate notification. reminder.Scheduler satisfies it.
type Notifier interface {
	NotifyNow(ctx context.Context, title, body string, data map[string]string) (string, error)
}
