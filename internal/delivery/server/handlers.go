package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"nudge/internal/app/geofence"
	"nudge/internal/app/reminder"
)

type healthResponse struct {
	Status    string    `json:"status"`
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
	Uptime    string    `json:"uptime"`
	Clients   int       `json:"ws_clients"`
}

func (s *Server) handleHealth(c *gin.Context) {
	ok(c, healthResponse{
		Status:    "ok",
		Version:   s.deps.Version,
		Timestamp: time.Now(),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Clients:   s.deps.Hub.Clients(),
	})
}

type parseRequest struct {
	Text string `json:"text" binding:"required"`
}

func (s *Server) handleParse(c *gin.Context) {
	var req parseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	ok(c, s.deps.Parser.ExtractTimeFromText(req.Text))
}

func (s *Server) handleNote(c *gin.Context) {
	var note reminder.Note
	if err := c.ShouldBindJSON(&note); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	if note.Text == "" && note.Hint == "" {
		fail(c, http.StatusBadRequest, errors.New("text or hint is required"))
		return
	}
	outcome, err := s.deps.Pipeline.ScheduleReminderFromNote(c.Request.Context(), note)
	if err != nil {
		failMapped(c, err)
		return
	}
	if outcome.Status == reminder.OutcomeScheduled {
		s.deps.Hub.Broadcast("reminder_scheduled", outcome)
	}
	ok(c, outcome)
}

func (s *Server) handleListNotifications(c *gin.Context) {
	list, err := s.deps.Scheduler.ListScheduled(c.Request.Context())
	if err != nil {
		failMapped(c, err)
		return
	}
	ok(c, list)
}

func (s *Server) handleCancelNotification(c *gin.Context) {
	if err := s.deps.Scheduler.Cancel(c.Request.Context(), c.Param("id")); err != nil {
		failMapped(c, err)
		return
	}
	ok(c, gin.H{"cancelled": c.Param("id")})
}

func (s *Server) handleCancelAllNotifications(c *gin.Context) {
	if err := s.deps.Scheduler.CancelAll(c.Request.Context()); err != nil {
		failMapped(c, err)
		return
	}
	ok(c, gin.H{"cancelled": "all"})
}

func (s *Server) handleReschedule(c *gin.Context) {
	ran, err := s.deps.Smart.Reschedule(c.Request.Context())
	if err != nil {
		failMapped(c, err)
		return
	}
	ok(c, gin.H{"ran": ran})
}

func (s *Server) handleSmartCancelAll(c *gin.Context) {
	if err := s.deps.Smart.CancelAll(c.Request.Context()); err != nil {
		failMapped(c, err)
		return
	}
	ok(c, gin.H{"cancelled": true})
}

func (s *Server) handleListLocations(c *gin.Context) {
	locs, err := s.deps.Geofence.Locations(c.Request.Context())
	if err != nil {
		failMapped(c, err)
		return
	}
	if locs == nil {
		locs = []geofence.SavedLocation{}
	}
	ok(c, locs)
}

func (s *Server) handleAddLocation(c *gin.Context) {
	var loc geofence.SavedLocation
	if err := c.ShouldBindJSON(&loc); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	saved, err := s.deps.Geofence.AddLocation(c.Request.Context(), loc)
	if err != nil {
		failMapped(c, err)
		return
	}
	c.JSON(http.StatusCreated, APIResponse{Success: true, Data: saved})
}

func (s *Server) handleUpdateLocation(c *gin.Context) {
	var loc geofence.SavedLocation
	if err := c.ShouldBindJSON(&loc); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	loc.ID = c.Param("id")
	if err := s.deps.Geofence.UpdateLocation(c.Request.Context(), loc); err != nil {
		failMapped(c, err)
		return
	}
	ok(c, loc)
}

func (s *Server) handleRemoveLocation(c *gin.Context) {
	if err := s.deps.Geofence.RemoveLocation(c.Request.Context(), c.Param("id")); err != nil {
		failMapped(c, err)
		return
	}
	ok(c, gin.H{"removed": c.Param("id")})
}

func (s *Server) handleGetSettings(c *gin.Context) {
	settings, err := s.deps.Geofence.Settings(c.Request.Context())
	if err != nil {
		failMapped(c, err)
		return
	}
	ok(c, settings)
}

func (s *Server) handleUpdateSettings(c *gin.Context) {
	var settings geofence.Settings
	if err := c.ShouldBindJSON(&settings); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	applied, err := s.deps.Geofence.UpdateSettings(c.Request.Context(), settings)
	if err != nil {
		failMapped(c, err)
		return
	}
	if !applied {
		fail(c, http.StatusForbidden, geofence.ErrPermissionDenied)
		return
	}
	ok(c, settings)
}

func (s *Server) handleSync(c *gin.Context) {
	synced, err := s.deps.Geofence.Sync(c.Request.Context())
	if err != nil {
		failMapped(c, err)
		return
	}
	ok(c, gin.H{"synced": synced})
}

func (s *Server) handleEvent(c *gin.Context) {
	var ev geofence.Event
	if err := c.ShouldBindJSON(&ev); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	notified, err := s.deps.Geofence.HandleEvent(c.Request.Context(), ev)
	if err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	ok(c, gin.H{"notified": notified})
}

type positionRequest struct {
	Lat float64   `json:"lat" binding:"latitude"`
	Lng float64   `json:"lng" binding:"longitude"`
	At  time.Time `json:"at"`
}

// handlePosition feeds a device position into the simulated platform, which
// turns it into region and sample events for the engine's event loop.
func (s *Server) handlePosition(c *gin.Context) {
	if s.deps.Platform == nil {
		fail(c, http.StatusNotImplemented, errors.New("no simulated platform configured"))
		return
	}
	var req positionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	if req.At.IsZero() {
		req.At = time.Now()
	}
	if err := s.deps.Platform.Feed(c.Request.Context(), req.Lat, req.Lng, req.At); err != nil {
		failMapped(c, err)
		return
	}
	c.JSON(http.StatusAccepted, APIResponse{Success: true})
}
