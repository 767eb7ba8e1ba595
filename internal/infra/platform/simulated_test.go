package platform

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"nudge/internal/app/geofence"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var (
	home = geofence.Region{ID: "home", Lat: 37.7600, Lng: -122.4300, Radius: 150, NotifyOnEnter: true, NotifyOnExit: true}
	t0   = time.Date(2025, time.March, 12, 8, 0, 0, 0, time.UTC)
)

func drain(p *Simulated) []geofence.Event {
	var out []geofence.Event
	for {
		select {
		case ev := <-p.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestRegionTransitions(t *testing.T) {
	p := NewSimulated(8, nil)
	defer p.Close()
	ctx := context.Background()
	require.NoError(t, p.RegisterRegions(ctx, []geofence.Region{home}))

	require.NoError(t, p.Feed(ctx, 37.7600, -122.4300, t0))
	require.NoError(t, p.Feed(ctx, 37.7601, -122.4301, t0.Add(time.Minute)))
	require.NoError(t, p.Feed(ctx, 37.7700, -122.4300, t0.Add(2*time.Minute)))

	events := drain(p)
	require.Len(t, events, 2)
	assert.Equal(t, geofence.EventEnter, events[0].Kind)
	assert.Equal(t, geofence.EventExit, events[1].Kind)
	assert.Equal(t, "home", events[1].RegionID)
}

func TestSamplingGates(t *testing.T) {
	p := NewSimulated(8, nil)
	defer p.Close()
	ctx := context.Background()

	require.NoError(t, p.Feed(ctx, 1, 1, t0))
	assert.Empty(t, drain(p), "no samples before updates start")

	require.NoError(t, p.StartLocationUpdates(ctx, geofence.UpdateOptions{Interval: 5 * time.Minute, DistanceMeters: 100}))
	require.NoError(t, p.Feed(ctx, 1, 1, t0))
	require.NoError(t, p.Feed(ctx, 1, 1, t0.Add(time.Minute)))
	require.NoError(t, p.Feed(ctx, 1.002, 1, t0.Add(2*time.Minute)))
	require.NoError(t, p.Feed(ctx, 1.002, 1, t0.Add(8*time.Minute)))

	events := drain(p)
	require.Len(t, events, 3)
	for _, ev := range events {
		assert.Equal(t, geofence.EventSample, ev.Kind)
	}

	require.NoError(t, p.StopLocationUpdates(ctx))
	require.NoError(t, p.Feed(ctx, 2, 2, t0.Add(time.Hour)))
	assert.Empty(t, drain(p))
}

func TestNoEventsWithoutPermission(t *testing.T) {
	p := NewSimulated(4, nil)
	defer p.Close()
	ctx := context.Background()
	require.NoError(t, p.RegisterRegions(ctx, []geofence.Region{home}))
	p.SetPermission(false)

	require.NoError(t, p.Feed(ctx, home.Lat, home.Lng, t0))
	assert.Empty(t, drain(p))
	ok, err := p.HasPermission(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCloseUnblocksFeed(t *testing.T) {
	p := NewSimulated(0, nil)
	ctx := context.Background()
	require.NoError(t, p.StartLocationUpdates(ctx, geofence.UpdateOptions{}))

	errc := make(chan error, 1)
	go func() { errc <- p.Feed(ctx, 1, 1, t0) }()
	time.Sleep(20 * time.Millisecond)
	p.Close()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("Feed did not return after Close")
	}
	_, open := <-p.Events()
	assert.False(t, open)
	assert.ErrorIs(t, p.Feed(ctx, 1, 1, t0), ErrClosed)
}
