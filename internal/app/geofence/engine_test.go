package geofence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"nudge/internal/domain/userdata"
	"nudge/internal/infra/kv"
	udsource "nudge/internal/infra/userdata"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakePlatform struct {
	mu         sync.Mutex
	permission bool
	permErr    error
	regions    []Region
	registers  int
	sampling   bool
	opts       UpdateOptions
}

func (p *fakePlatform) HasPermission(context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.permission, p.permErr
}

func (p *fakePlatform) RegisterRegions(_ context.Context, regions []Region) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.regions = append([]Region(nil), regions...)
	p.registers++
	return nil
}

func (p *fakePlatform) StartLocationUpdates(_ context.Context, opts UpdateOptions) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sampling = true
	p.opts = opts
	return nil
}

func (p *fakePlatform) StopLocationUpdates(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sampling = false
	return nil
}

type fakeGeocoder struct {
	address string
	err     error
}

func (g *fakeGeocoder) ReverseGeocode(context.Context, float64, float64) (string, error) {
	return g.address, g.err
}

type sent struct {
	title, body string
	data        map[string]string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sent
}

func (n *fakeNotifier) NotifyNow(_ context.Context, title, body string, data map[string]string) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sent{title, body, data})
	return "id", nil
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

type harness struct {
	engine   *Engine
	platform *fakePlatform
	geocoder *fakeGeocoder
	notifier *fakeNotifier
	tasks    *udsource.Static
	store    *kv.MemoryStore
	now      time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		platform: &fakePlatform{permission: true},
		geocoder: &fakeGeocoder{address: "Whole Foods Market, 399 4th St, San Francisco"},
		notifier: &fakeNotifier{},
		tasks: &udsource.Static{Doc: udsource.Document{Tasks: []userdata.Task{
			{ID: "1", Title: "Oat milk", Category: userdata.CategoryGrocery, Location: "supermarket"},
			{ID: "2", Title: "Bananas", Category: userdata.CategoryGrocery},
			{ID: "3", Title: "Coffee beans", Category: userdata.CategoryGrocery},
			{ID: "4", Title: "Bread", Category: userdata.CategoryGrocery},
			{ID: "5", Title: "Stretch routine", Category: userdata.CategoryFitness},
			{ID: "6", Title: "Team sync", Category: userdata.CategoryWork, TimeBased: true},
		}}},
		store: kv.NewMemoryStore(),
		now:   time.Date(2025, time.March, 12, 17, 0, 0, 0, time.UTC),
	}
	h.engine = NewEngine(Deps{
		Store:    h.store,
		Platform: h.platform,
		Geocoder: h.geocoder,
		Tasks:    h.tasks,
		Notifier: h.notifier,
	}, DefaultConfig(), nil)
	h.engine.Now = func() time.Time { return h.now }
	return h
}

var storePoint = Point{Lat: 37.7810, Lng: -122.3990}

func TestDetectStore_CooldownSuppressesDuplicates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	ok, err := h.engine.DetectStore(ctx, storePoint.Lat, storePoint.Lng)
	require.NoError(t, err)
	assert.True(t, ok)

	// 10 minutes later, ~100 m away.
	h.now = h.now.Add(10 * time.Minute)
	ok, err = h.engine.DetectStore(ctx, storePoint.Lat+0.0009, storePoint.Lng)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, h.notifier.count())

	// 31 minutes after the first detection, same place.
	h.now = h.now.Add(21 * time.Minute)
	ok, err = h.engine.DetectStore(ctx, storePoint.Lat, storePoint.Lng)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, h.notifier.count())
}

func TestDetectStore_FarAwaySameCategoryNotifies(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.engine.DetectStore(ctx, storePoint.Lat, storePoint.Lng)
	require.NoError(t, err)

	h.now = h.now.Add(5 * time.Minute)
	ok, err := h.engine.DetectStore(ctx, storePoint.Lat+0.01, storePoint.Lng) // ~1.1 km
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDetectStore_SingleGlobalRecord(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.tasks.Doc.Tasks = append(h.tasks.Doc.Tasks, userdata.Task{ID: "p", Title: "Refill", Category: userdata.CategoryPharmacy})

	_, err := h.engine.DetectStore(ctx, storePoint.Lat, storePoint.Lng)
	require.NoError(t, err)

	h.geocoder.address = "CVS Pharmacy, 731 Market St"
	h.now = h.now.Add(time.Minute)
	ok, err := h.engine.DetectStore(ctx, storePoint.Lat, storePoint.Lng)
	require.NoError(t, err)
	assert.True(t, ok, "a different category is never suppressed")

	// The record now holds pharmacy, so grocery is not in cooldown any more.
	h.geocoder.address = "Whole Foods Market"
	h.now = h.now.Add(time.Minute)
	ok, err = h.engine.DetectStore(ctx, storePoint.Lat, storePoint.Lng)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, h.notifier.count())
}

func TestDetectStore_NotificationContent(t *testing.T) {
	h := newHarness(t)

	_, err := h.engine.DetectStore(context.Background(), storePoint.Lat, storePoint.Lng)
	require.NoError(t, err)
	require.Equal(t, 1, h.notifier.count())

	got := h.notifier.sent[0]
	assert.Equal(t, "🛒 Near Whole Foods", got.title)
	assert.Equal(t, "Oat milk, Bananas, Coffee beans +1 more", got.body)
	assert.Equal(t, "grocery", got.data["category"])

	var rec DetectionRecord
	found, err := kv.LoadJSON(context.Background(), h.store, DetectionKey, &rec)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, userdata.CategoryGrocery, rec.Category)
	assert.True(t, h.now.Equal(rec.Timestamp))
}

func TestDetectStore_SmartFilteringSuppressesEmpty(t *testing.T) {
	h := newHarness(t)
	h.geocoder.address = "USPS Post Office, 101 Hyde St"
	ctx := context.Background()

	ok, err := h.engine.DetectStore(ctx, storePoint.Lat, storePoint.Lng)
	require.NoError(t, err)
	assert.False(t, ok)

	_, found, _ := h.store.Get(ctx, DetectionKey)
	assert.False(t, found, "suppressed detections leave the record untouched")

	_, err = h.engine.UpdateSettings(ctx, Settings{Enabled: true, AutoDetectStores: true})
	require.NoError(t, err)
	ok, err = h.engine.DetectStore(ctx, storePoint.Lat, storePoint.Lng)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDetectStore_GeocodeFailureIsSkipped(t *testing.T) {
	h := newHarness(t)
	h.geocoder.err = errors.New("timeout")

	ok, err := h.engine.DetectStore(context.Background(), storePoint.Lat, storePoint.Lng)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestDetectStore_UnknownAddress(t *testing.T) {
	h := newHarness(t)
	h.geocoder.address = "1 Residential Way"

	ok, err := h.engine.DetectStore(context.Background(), storePoint.Lat, storePoint.Lng)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestDetectStore_CorruptRecordIsCacheMiss(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.store.Set(ctx, DetectionKey, "%%%"))

	ok, err := h.engine.DetectStore(ctx, storePoint.Lat, storePoint.Lng)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDetectStore_ConcurrentSamplesNotifyOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = h.engine.DetectStore(ctx, storePoint.Lat, storePoint.Lng)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, h.notifier.count())
}

func addHome(t *testing.T, h *harness) SavedLocation {
	t.Helper()
	home, err := h.engine.AddLocation(context.Background(), SavedLocation{
		Name: "Home", Type: LocationHome, Lat: 37.76, Lng: -122.43, Radius: 150, NotifyOnExit: true,
	})
	require.NoError(t, err)
	return home
}

func TestLeavingHome(t *testing.T) {
	h := newHarness(t)
	home := addHome(t, h)

	ok, err := h.engine.HandleEvent(context.Background(), Event{Kind: EventExit, RegionID: home.ID})
	require.NoError(t, err)
	assert.True(t, ok)
	require.Equal(t, 1, h.notifier.count())
	assert.Equal(t, "🏠 Leaving home?", h.notifier.sent[0].title)
	// Only location-tagged, non-time-based tasks.
	assert.Equal(t, "Oat milk, Bananas, Coffee beans +2 more", h.notifier.sent[0].body)

	ok, err = h.engine.HandleEvent(context.Background(), Event{Kind: EventEnter, RegionID: home.ID})
	require.NoError(t, err)
	assert.False(t, ok, "home has no arrival mapping")
}

func TestLeavingHome_SmartFilterSuppressesEmptyList(t *testing.T) {
	h := newHarness(t)
	home := addHome(t, h)
	h.tasks.Doc.Tasks = nil

	ok, err := h.engine.HandleEvent(context.Background(), Event{Kind: EventExit, RegionID: home.ID})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, h.notifier.count())
}

func TestArrivalAtGym(t *testing.T) {
	h := newHarness(t)
	gym, err := h.engine.AddLocation(context.Background(), SavedLocation{
		Name: "Mission Cliffs", Type: LocationGym, Lat: 37.76, Lng: -122.41, Radius: 100, NotifyOnEnter: true,
	})
	require.NoError(t, err)

	ok, err := h.engine.HandleEvent(context.Background(), Event{Kind: EventEnter, RegionID: gym.ID})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "💪 Arrived at Mission Cliffs", h.notifier.sent[0].title)
	assert.Equal(t, "Stretch routine", h.notifier.sent[0].body)
}

func TestLocationCRUDReRegistersEverything(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	home := addHome(t, h)
	work, err := h.engine.AddLocation(ctx, SavedLocation{Name: "Office", Type: LocationWork, Lat: 37.79, Lng: -122.40, Radius: 200, NotifyOnEnter: true})
	require.NoError(t, err)
	assert.Len(t, h.platform.regions, 2)
	assert.True(t, h.platform.sampling)

	work.Radius = 300
	require.NoError(t, h.engine.UpdateLocation(ctx, work))
	assert.Len(t, h.platform.regions, 2)
	assert.Equal(t, 300.0, h.platform.regions[1].Radius)

	require.NoError(t, h.engine.RemoveLocation(ctx, home.ID))
	require.Len(t, h.platform.regions, 1)
	assert.Equal(t, work.ID, h.platform.regions[0].ID)
	assert.Equal(t, 4, h.platform.registers)

	assert.ErrorIs(t, h.engine.RemoveLocation(ctx, "missing"), ErrLocationNotFound)
	assert.ErrorIs(t, h.engine.UpdateLocation(ctx, SavedLocation{ID: "missing", Name: "x", Type: LocationGym, Radius: 100}), ErrLocationNotFound)
}

func TestAddLocationValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	bad := []SavedLocation{
		{Type: LocationHome, Radius: 100},
		{Name: "Cabin", Type: "cabin", Radius: 100},
		{Name: "Home", Type: LocationHome, Lat: 91, Radius: 100},
		{Name: "Home", Type: LocationHome, Radius: 10},
	}
	for _, loc := range bad {
		_, err := h.engine.AddLocation(ctx, loc)
		assert.Error(t, err, "%+v", loc)
	}
	locs, err := h.engine.Locations(ctx)
	require.NoError(t, err)
	assert.Empty(t, locs)
}

func TestPermissionDeniedLeavesStateUntouched(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.platform.permission = false

	_, err := h.engine.AddLocation(ctx, SavedLocation{Name: "Home", Type: LocationHome, Radius: 100})
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.Empty(t, h.store.Keys())

	ok, err := h.engine.Sync(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, h.platform.registers)

	ok, err = h.engine.UpdateSettings(ctx, DefaultSettings())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, h.store.Keys())

	h.platform.permErr = errors.New("platform unavailable")
	ok, err = h.engine.Sync(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDisablingStopsMonitoring(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	addHome(t, h)
	require.True(t, h.engine.Sampling())

	s := DefaultSettings()
	s.Enabled = false
	ok, err := h.engine.UpdateSettings(ctx, s)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, h.platform.regions)
	assert.False(t, h.platform.sampling)
	assert.False(t, h.engine.Sampling())

	notified, err := h.engine.DetectStore(ctx, storePoint.Lat, storePoint.Lng)
	require.NoError(t, err)
	assert.False(t, notified)
}

func TestTogglingAutoDetectStopsSampling(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.engine.Sync(ctx)
	require.NoError(t, err)
	assert.True(t, h.platform.sampling)
	assert.Equal(t, 5*time.Minute, h.platform.opts.Interval)

	s := DefaultSettings()
	s.AutoDetectStores = false
	_, err = h.engine.UpdateSettings(ctx, s)
	require.NoError(t, err)
	assert.False(t, h.platform.sampling)
}

func TestRunConsumesEventsSerially(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan Event)
	done := make(chan error, 1)
	go func() { done <- h.engine.Run(ctx, events) }()

	for i := 0; i < 3; i++ {
		events <- Event{Kind: EventSample, Lat: storePoint.Lat, Lng: storePoint.Lng}
	}
	events <- Event{Kind: "bogus"}
	close(events)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after channel close")
	}
	assert.Equal(t, 1, h.notifier.count())
}

func TestRunStopsOnContextCancel(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- h.engine.Run(ctx, make(chan Event)) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestSettingsDefaultsOnCorruptValue(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.store.Set(ctx, SettingsKey, "not json"))

	s, err := h.engine.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), s)
}
