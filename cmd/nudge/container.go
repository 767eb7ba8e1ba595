package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"nudge/internal/app/geofence"
	"nudge/internal/app/reminder"
	"nudge/internal/app/smart"
	"nudge/internal/delivery/server"
	"nudge/internal/domain/timeparse"
	"nudge/internal/infra/geocode"
	"nudge/internal/infra/kv"
	"nudge/internal/infra/llm"
	"nudge/internal/infra/notify"
	"nudge/internal/infra/platform"
	udsource "nudge/internal/infra/userdata"
	"nudge/internal/observability"
	"nudge/internal/shared/config"
	"nudge/internal/shared/logging"
)

// Container holds the wired services for one CLI invocation.
type Container struct {
	Config     config.Config
	Obs        *observability.Observability
	Store      kv.Store
	Dispatcher *notify.Dispatcher
	Scheduler  *reminder.Scheduler
	Parser     *timeparse.Parser
	Pipeline   *reminder.NotePipeline
	Platform   *platform.Simulated
	Geofence   *geofence.Engine
	Smart      *smart.Orchestrator
	Hub        *server.Hub
	UserData   *udsource.FileSource

	logger logging.Logger
}

type containerOptions struct {
	// confirm routes note confirmations through the terminal prompt.
	confirm bool
	out     io.Writer
}

func buildContainer(ctx context.Context, cfg config.Config, opts containerOptions) (*Container, error) {
	obs, err := observability.Setup(cfg.Observability, Version)
	if err != nil {
		return nil, err
	}
	logger := logging.NewComponentLogger("Main")

	store, err := kv.Open(cfg.Store.Driver, cfg.Store.Path)
	if err != nil {
		_ = obs.Shutdown(ctx)
		return nil, fmt.Errorf("open store: %w", err)
	}

	c := &Container{
		Config:   cfg,
		Obs:      obs,
		Store:    store,
		Parser:   timeparse.New(),
		Hub:      server.NewHub(logging.NewComponentLogger("Hub")),
		UserData: udsource.NewFileSource(cfg.UserData.Path),
		logger:   logger,
	}

	out := opts.out
	if out == nil {
		out = os.Stdout
	}
	c.Dispatcher = notify.NewDispatcher(store, logging.NewComponentLogger("Dispatcher"),
		notify.LogSink{Logger: logging.NewComponentLogger("Notify")},
		c.Hub,
		consoleSink(out),
	).WithMetrics(obs.Metrics)

	c.Scheduler = reminder.NewScheduler(c.Dispatcher, store, reminder.Config{
		ImmediateDelay: cfg.Scheduler.ImmediateDelay,
	}, logging.NewComponentLogger("Scheduler")).WithMetrics(obs.Metrics)

	var gate reminder.ConfirmationGate
	if opts.confirm && isTTY() {
		gate = reminder.NewChannelConfirmationGate(promptSender{stdin: os.Stdin, stdout: os.Stdout})
	}
	c.Pipeline = reminder.NewNotePipeline(c.Parser, c.Scheduler, gate, logging.NewComponentLogger("NotePipeline"))
	c.Pipeline.Tracer = obs.Tracer

	geocoder, err := c.buildGeocoder()
	if err != nil {
		c.Close(ctx)
		return nil, err
	}
	ai, err := c.buildGenerator()
	if err != nil {
		c.Close(ctx)
		return nil, err
	}

	c.Platform = platform.NewSimulated(cfg.Geofence.EventBuffer, logging.NewComponentLogger("Platform"))
	deps := geofence.Deps{
		Store:    store,
		Platform: c.Platform,
		Tasks:    c.UserData,
		Notifier: c.Scheduler,
	}
	// A nil *geocode.Client must not become a non-nil interface.
	if geocoder != nil {
		deps.Geocoder = geocoder
	}
	c.Geofence = geofence.NewEngine(deps, geofence.Config{
		CooldownWindow:   cfg.Geofence.CooldownWindow,
		CooldownDistance: cfg.Geofence.CooldownDistanceMeters,
		PreviewLimit:     cfg.Geofence.PreviewLimit,
		SampleInterval:   cfg.Geofence.SampleInterval,
		SampleDistance:   cfg.Geofence.SampleDistanceMeters,
	}, logging.NewComponentLogger("Geofence")).WithObservability(obs.Metrics, obs.Tracer)

	smartDeps := smart.Deps{
		Scheduler: c.Scheduler,
		Store:     store,
		Tasks:     c.UserData,
		Profile:   c.UserData,
		Food:      c.UserData,
	}
	if ai != nil {
		smartDeps.AI = ai
	}
	c.Smart = smart.NewOrchestrator(smartDeps, smart.Config{
		ThrottleInterval: cfg.Smart.ThrottleInterval,
		DefaultWakeTime:  cfg.Smart.DefaultWakeTime,
		DefaultBedTime:   cfg.Smart.DefaultBedTime,
		FoodAnalysisTTL:  cfg.Smart.FoodAnalysisTTL,
		FoodLookbackDays: cfg.Smart.FoodLookbackDays,
	}, logging.NewComponentLogger("Smart")).WithObservability(obs.Metrics, obs.Tracer)

	if err := c.Dispatcher.Start(ctx); err != nil {
		c.Close(ctx)
		return nil, err
	}
	return c, nil
}

func (c *Container) buildGeocoder() (*geocode.Client, error) {
	if !c.Config.Geocoder.Enabled {
		return nil, nil
	}
	client, err := geocode.New(c.Config.Geocoder, logging.NewComponentLogger("Geocoder"))
	if err != nil {
		return nil, fmt.Errorf("geocoder: %w", err)
	}
	return client.WithObservability(c.Obs.Metrics, c.Obs.Tracer), nil
}

func (c *Container) buildGenerator() (*llm.Client, error) {
	client, err := llm.New(c.Config.LLM, logging.NewComponentLogger("LLM"))
	if errors.Is(err, llm.ErrDisabled) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}
	return client.WithObservability(c.Obs.Metrics, c.Obs.Tracer), nil
}

// Close waits for background work, stops timers, and flushes exporters.
func (c *Container) Close(ctx context.Context) {
	if c.Smart != nil {
		c.Smart.Wait()
	}
	if c.Dispatcher != nil {
		c.Dispatcher.Stop()
	}
	if c.Platform != nil {
		c.Platform.Close()
	}
	if c.Hub != nil {
		c.Hub.Close()
	}
	if closer, ok := c.Store.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			c.logger.Warn("Failed to close store: %v", err)
		}
	}
	if err := c.Obs.Shutdown(ctx); err != nil {
		c.logger.Warn("Observability shutdown: %v", err)
	}
}

func consoleSink(w io.Writer) notify.Sink {
	return notify.SinkFunc(func(_ context.Context, n reminder.Notification) error {
		_, err := fmt.Fprintf(w, "%s %s\n  %s\n", yellow("🔔"), bold(n.Title), n.Body)
		return err
	})
}
