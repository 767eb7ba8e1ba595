package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nudge/internal/app/geofence"
	"nudge/internal/app/reminder"
	"nudge/internal/app/smart"
	"nudge/internal/domain/timeparse"
	"nudge/internal/domain/userdata"
	"nudge/internal/infra/kv"
	"nudge/internal/infra/notify"
	"nudge/internal/infra/platform"
	udsource "nudge/internal/infra/userdata"
	"nudge/internal/shared/config"
)

type staticGeocoder string

func (g staticGeocoder) ReverseGeocode(context.Context, float64, float64) (string, error) {
	return string(g), nil
}

type testEnv struct {
	http     *httptest.Server
	platform *platform.Simulated
	hub      *Hub
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	store := kv.NewMemoryStore()
	hub := NewHub(nil)

	dispatcher := notify.NewDispatcher(store, nil, hub)
	require.NoError(t, dispatcher.Start(ctx))
	scheduler := reminder.NewScheduler(dispatcher, store, reminder.Config{}, nil)

	data := &udsource.Static{Doc: udsource.Document{Tasks: []userdata.Task{
		{ID: "1", Title: "Milk", Category: userdata.CategoryGrocery},
	}}}
	plat := platform.NewSimulated(8, nil)
	engine := geofence.NewEngine(geofence.Deps{
		Store:    store,
		Platform: plat,
		Geocoder: staticGeocoder("Safeway, 2020 Market St"),
		Tasks:    data,
		Notifier: scheduler,
	}, geofence.DefaultConfig(), nil)
	orch := smart.NewOrchestrator(smart.Deps{
		Scheduler: scheduler,
		Store:     store,
		Tasks:     data,
		Profile:   data,
		Food:      data,
	}, smart.DefaultConfig(), nil)

	srv := New(config.ServerConfig{Host: "127.0.0.1", Port: 0}, Deps{
		Parser:    timeparse.New(),
		Pipeline:  reminder.NewNotePipeline(timeparse.New(), scheduler, nil, nil),
		Scheduler: scheduler,
		Smart:     orch,
		Geofence:  engine,
		Platform:  plat,
		Hub:       hub,
		Version:   "test",
	}, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		hub.Close()
		plat.Close()
		orch.Wait()
		dispatcher.Stop()
	})
	return &testEnv{http: ts, platform: plat, hub: hub}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (int, APIResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.http.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out APIResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func dataMap(t *testing.T, r APIResponse) map[string]any {
	t.Helper()
	m, ok := r.Data.(map[string]any)
	require.True(t, ok, "data is %T", r.Data)
	return m
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	status, resp := env.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "test", dataMap(t, resp)["version"])
}

func TestParseEndpoint(t *testing.T) {
	env := newTestEnv(t)

	status, resp := env.do(t, http.MethodPost, "/api/v1/parse", map[string]string{"text": "remind me in 30 minutes"})
	require.Equal(t, http.StatusOK, status)
	data := dataMap(t, resp)
	assert.Equal(t, true, data["has_time"])
	assert.Equal(t, "In 30 minutes", data["reminder"].(map[string]any)["display_text"])

	status, _ = env.do(t, http.MethodPost, "/api/v1/parse", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestNoteReminderLifecycle(t *testing.T) {
	env := newTestEnv(t)

	status, resp := env.do(t, http.MethodPost, "/api/v1/notes", reminder.Note{ID: "n1", Text: "call mom in 2 hours"})
	require.Equal(t, http.StatusOK, status)
	data := dataMap(t, resp)
	assert.Equal(t, "scheduled", data["status"])
	id, _ := data["notification_id"].(string)
	require.NotEmpty(t, id)

	status, resp = env.do(t, http.MethodGet, "/api/v1/notifications", nil)
	require.Equal(t, http.StatusOK, status)
	list, _ := resp.Data.([]any)
	assert.Len(t, list, 1)

	status, _ = env.do(t, http.MethodDelete, "/api/v1/notifications/"+id, nil)
	assert.Equal(t, http.StatusOK, status)

	_, resp = env.do(t, http.MethodGet, "/api/v1/notifications", nil)
	list, _ = resp.Data.([]any)
	assert.Empty(t, list)

	status, resp = env.do(t, http.MethodPost, "/api/v1/notes", reminder.Note{Text: "just a thought"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "no_time", dataMap(t, resp)["status"])
}

func TestLocationEndpoints(t *testing.T) {
	env := newTestEnv(t)

	status, resp := env.do(t, http.MethodPost, "/api/v1/locations", geofence.SavedLocation{
		Name: "Home", Type: geofence.LocationHome, Lat: 37.76, Lng: -122.43, Radius: 150, NotifyOnExit: true,
	})
	require.Equal(t, http.StatusCreated, status)
	id := dataMap(t, resp)["id"].(string)
	assert.Len(t, env.platform.Regions(), 1)

	status, _ = env.do(t, http.MethodPost, "/api/v1/locations", geofence.SavedLocation{Name: "Bad", Type: "cabin", Radius: 100})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = env.do(t, http.MethodDelete, "/api/v1/locations/nope", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = env.do(t, http.MethodDelete, "/api/v1/locations/"+id, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Empty(t, env.platform.Regions())

	env.platform.SetPermission(false)
	status, _ = env.do(t, http.MethodPost, "/api/v1/locations", geofence.SavedLocation{
		Name: "Gym", Type: geofence.LocationGym, Radius: 100,
	})
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = env.do(t, http.MethodPut, "/api/v1/settings", geofence.DefaultSettings())
	assert.Equal(t, http.StatusForbidden, status)
}

func TestStoreSampleEvent(t *testing.T) {
	env := newTestEnv(t)

	sample := geofence.Event{Kind: geofence.EventSample, Lat: 37.7690, Lng: -122.4270}
	status, resp := env.do(t, http.MethodPost, "/api/v1/geofence/events", sample)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, dataMap(t, resp)["notified"])

	_, resp = env.do(t, http.MethodPost, "/api/v1/geofence/events", sample)
	assert.Equal(t, false, dataMap(t, resp)["notified"], "cooldown")

	status, _ = env.do(t, http.MethodPost, "/api/v1/geofence/events", geofence.Event{Kind: "teleport"})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestSmartEndpoints(t *testing.T) {
	env := newTestEnv(t)

	_, resp := env.do(t, http.MethodPost, "/api/v1/smart/reschedule", nil)
	assert.Equal(t, true, dataMap(t, resp)["ran"])
	_, resp = env.do(t, http.MethodPost, "/api/v1/smart/reschedule", nil)
	assert.Equal(t, false, dataMap(t, resp)["ran"])

	_, resp = env.do(t, http.MethodGet, "/api/v1/notifications", nil)
	list, _ := resp.Data.([]any)
	assert.Len(t, list, 2)

	status, _ := env.do(t, http.MethodPost, "/api/v1/smart/cancel-all", nil)
	assert.Equal(t, http.StatusOK, status)
	_, resp = env.do(t, http.MethodGet, "/api/v1/notifications", nil)
	list, _ = resp.Data.([]any)
	assert.Empty(t, list)
}

func TestWebsocketReceivesNotifications(t *testing.T) {
	env := newTestEnv(t)

	url := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return env.hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, env.hub.Deliver(context.Background(), reminder.Notification{ID: "x", Title: "Ping", Body: "pong"}))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg struct {
		Type    string                `json:"type"`
		Payload reminder.Notification `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "notification", msg.Type)
	assert.Equal(t, "Ping", msg.Payload.Title)
}

func TestMapDomainError(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, mapDomainError(geofence.ErrLocationNotFound))
	assert.Equal(t, http.StatusForbidden, mapDomainError(geofence.ErrPermissionDenied))
	assert.Equal(t, http.StatusBadRequest, mapDomainError(reminder.ErrInvalidTrigger))
	assert.Zero(t, mapDomainError(assert.AnError))
	assert.Zero(t, mapDomainError(nil))
}
