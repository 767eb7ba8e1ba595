// Package server exposes the engine over HTTP and pushes fired notifications
// to websocket clients.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"nudge/internal/app/geofence"
	"nudge/internal/app/reminder"
	"nudge/internal/app/smart"
	"nudge/internal/domain/timeparse"
	"nudge/internal/infra/platform"
	"nudge/internal/observability"
	"nudge/internal/shared/config"
	"nudge/internal/shared/logging"
)

// Deps are the services behind the routes. Platform and Obs may be nil.
type Deps struct {
	Parser    *timeparse.Parser
	Pipeline  *reminder.NotePipeline
	Scheduler *reminder.Scheduler
	Smart     *smart.Orchestrator
	Geofence  *geofence.Engine
	Platform  *platform.Simulated
	Hub       *Hub
	Obs       *observability.Observability
	Version   string
}

// Server is the HTTP front end.
type Server struct {
	deps       Deps
	logger     logging.Logger
	engine     *gin.Engine
	httpServer *http.Server
	startTime  time.Time
}

// New builds the router for cfg.
func New(cfg config.ServerConfig, deps Deps, logger logging.Logger) *Server {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	if deps.Hub == nil {
		deps.Hub = NewHub(logger)
	}
	s := &Server{
		deps:      deps,
		logger:    logging.OrNop(logger),
		engine:    gin.New(),
		startTime: time.Now(),
	}

	s.engine.Use(gin.Recovery(), requestLogger(s.logger), tracing(s.tracer()))
	if cfg.EnableCORS {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
		corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
		corsConfig.AllowWebSockets = true
		s.engine.Use(cors.New(corsConfig))
	}
	s.routes()

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) tracer() *observability.TracerProvider {
	if s.deps.Obs == nil {
		return nil
	}
	return s.deps.Obs.Tracer
}

func (s *Server) routes() {
	s.engine.GET("/healthz", s.handleHealth)
	s.engine.GET("/ws", s.deps.Hub.ServeWS)
	if s.deps.Obs != nil && s.deps.Obs.Metrics.Enabled() {
		s.engine.GET("/metrics", gin.WrapH(s.deps.Obs.Metrics.Handler()))
	}

	api := s.engine.Group("/api/v1")
	api.POST("/parse", s.handleParse)
	api.POST("/notes", s.handleNote)

	notifications := api.Group("/notifications")
	{
		notifications.GET("", s.handleListNotifications)
		notifications.DELETE("", s.handleCancelAllNotifications)
		notifications.DELETE("/:id", s.handleCancelNotification)
	}

	smartGroup := api.Group("/smart")
	{
		smartGroup.POST("/reschedule", s.handleReschedule)
		smartGroup.POST("/cancel-all", s.handleSmartCancelAll)
	}

	locations := api.Group("/locations")
	{
		locations.GET("", s.handleListLocations)
		locations.POST("", s.handleAddLocation)
		locations.PUT("/:id", s.handleUpdateLocation)
		locations.DELETE("/:id", s.handleRemoveLocation)
	}

	api.GET("/settings", s.handleGetSettings)
	api.PUT("/settings", s.handleUpdateSettings)
	api.POST("/geofence/sync", s.handleSync)
	api.POST("/geofence/events", s.handleEvent)
	api.POST("/geofence/position", s.handlePosition)
}

// Handler returns the router; used by tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("Server: listening on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		s.deps.Hub.Close()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	s.deps.Hub.Close()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errc
}
