// Package platform provides a host-side stand-in for the device geofencing
// service. Coordinates fed into it become region transitions and gated
// location samples on an event channel.
package platform

import (
	"context"
	"errors"
	"sync"
	"time"

	"nudge/internal/app/geofence"
	"nudge/internal/shared/logging"
)

// ErrClosed is returned by Feed after Close.
var ErrClosed = errors.New("platform: closed")

// Simulated implements geofence.Platform.
type Simulated struct {
	logger logging.Logger

	mu         sync.Mutex
	permission bool
	regions    map[string]geofence.Region
	inside     map[string]bool
	sampling   bool
	opts       geofence.UpdateOptions
	lastSample *geofence.Event
	closed     bool

	// sendMu guards sends against the channel being closed.
	sendMu sync.RWMutex
	done   chan struct{}
	events chan geofence.Event
}

var _ geofence.Platform = (*Simulated)(nil)

// NewSimulated creates a platform whose event channel holds buffer events.
func NewSimulated(buffer int, logger logging.Logger) *Simulated {
	if buffer < 0 {
		buffer = 0
	}
	return &Simulated{
		logger:     logging.OrNop(logger),
		permission: true,
		regions:    make(map[string]geofence.Region),
		inside:     make(map[string]bool),
		done:       make(chan struct{}),
		events:     make(chan geofence.Event, buffer),
	}
}

// Events is the channel consumed by geofence.Engine.Run. It is closed by Close.
func (s *Simulated) Events() <-chan geofence.Event {
	return s.events
}

// SetPermission grants or revokes location access.
func (s *Simulated) SetPermission(granted bool) {
	s.mu.Lock()
	s.permission = granted
	s.mu.Unlock()
}

func (s *Simulated) HasPermission(context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.permission, nil
}

func (s *Simulated) RegisterRegions(_ context.Context, regions []geofence.Region) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := make(map[string]geofence.Region, len(regions))
	for _, r := range regions {
		next[r.ID] = r
	}
	for id := range s.inside {
		if _, ok := next[id]; !ok {
			delete(s.inside, id)
		}
	}
	s.regions = next
	s.logger.Debug("Platform: %d regions registered", len(next))
	return nil
}

func (s *Simulated) StartLocationUpdates(_ context.Context, opts geofence.UpdateOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sampling = true
	s.opts = opts
	return nil
}

func (s *Simulated) StopLocationUpdates(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sampling = false
	s.lastSample = nil
	return nil
}

// Regions returns the currently registered regions.
func (s *Simulated) Regions() []geofence.Region {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]geofence.Region, 0, len(s.regions))
	for _, r := range s.regions {
		out = append(out, r)
	}
	return out
}

// Feed reports the device at lat/lng at time at. Region crossings produce
// enter/exit events for regions that asked for them; a location sample is
// produced when sampling is on and the interval or distance gate is passed.
// Feed blocks while the event buffer is full.
func (s *Simulated) Feed(ctx context.Context, lat, lng float64, at time.Time) error {
	events, err := s.derive(lat, lng, at)
	if err != nil {
		return err
	}
	s.sendMu.RLock()
	defer s.sendMu.RUnlock()
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	for _, ev := range events {
		select {
		case s.events <- ev:
		case <-s.done:
			return ErrClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (s *Simulated) derive(lat, lng float64, at time.Time) ([]geofence.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if !s.permission {
		return nil, nil
	}

	here := geofence.Point{Lat: lat, Lng: lng}
	var out []geofence.Event
	for id, r := range s.regions {
		in := geofence.Haversine(here, geofence.Point{Lat: r.Lat, Lng: r.Lng}) <= r.Radius
		was := s.inside[id]
		s.inside[id] = in
		switch {
		case in && !was && r.NotifyOnEnter:
			out = append(out, geofence.Event{Kind: geofence.EventEnter, RegionID: id, Lat: lat, Lng: lng, At: at})
		case !in && was && r.NotifyOnExit:
			out = append(out, geofence.Event{Kind: geofence.EventExit, RegionID: id, Lat: lat, Lng: lng, At: at})
		}
	}

	if s.sampling && s.sampleDue(here, at) {
		ev := geofence.Event{Kind: geofence.EventSample, Lat: lat, Lng: lng, At: at}
		s.lastSample = &ev
		out = append(out, ev)
	}
	return out, nil
}

func (s *Simulated) sampleDue(here geofence.Point, at time.Time) bool {
	if s.lastSample == nil {
		return true
	}
	if s.opts.Interval > 0 && at.Sub(s.lastSample.At) >= s.opts.Interval {
		return true
	}
	moved := geofence.Haversine(geofence.Point{Lat: s.lastSample.Lat, Lng: s.lastSample.Lng}, here)
	return s.opts.DistanceMeters > 0 && moved >= s.opts.DistanceMeters
}

// Close stops event delivery and closes the event channel.
func (s *Simulated) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.done)
	s.mu.Unlock()

	s.sendMu.Lock()
	close(s.events)
	s.sendMu.Unlock()
}
