package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"nudge/internal/delivery/server"
)

func newServeCommand(cli *CLI) *cobra.Command {
	var (
		port          int
		rescheduleInt time.Duration
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, websocket feed, and background engines",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cli.withContainer(cmd, containerOptions{}, func(ctx context.Context, c *Container) error {
				cfg := c.Config.Server
				if cmd.Flags().Changed("port") {
					cfg.Port = port
				}
				srv := server.New(cfg, server.Deps{
					Parser:    c.Parser,
					Pipeline:  c.Pipeline,
					Scheduler: c.Scheduler,
					Smart:     c.Smart,
					Geofence:  c.Geofence,
					Platform:  c.Platform,
					Hub:       c.Hub,
					Obs:       c.Obs,
					Version:   Version,
				}, c.logger)

				if _, err := c.Geofence.Sync(ctx); err != nil {
					c.logger.Warn("Initial region sync failed: %v", err)
				}

				g, gctx := errgroup.WithContext(ctx)
				g.Go(func() error { return c.Geofence.Run(gctx, c.Platform.Events()) })
				g.Go(func() error { return srv.Run(gctx) })
				g.Go(func() error { return rescheduleLoop(gctx, c, rescheduleInt) })

				err := g.Wait()
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Listen port (overrides server.port)")
	cmd.Flags().DurationVar(&rescheduleInt, "reschedule-every", time.Hour, "How often to attempt a smart reschedule; the throttle still applies")
	return cmd
}

// rescheduleLoop runs the smart orchestrator on start and then on every tick.
func rescheduleLoop(ctx context.Context, c *Container, every time.Duration) error {
	if every <= 0 {
		return nil
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		if _, err := c.Smart.Reschedule(ctx); err != nil {
			c.logger.Warn("Smart reschedule failed: %v", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
