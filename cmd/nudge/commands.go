package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"nudge/internal/app/geofence"
	"nudge/internal/app/reminder"
	"nudge/internal/app/smart"
	"nudge/internal/domain/timeparse"
)

func newParseCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "parse <text>",
		Short: "Show the time expression found in text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ex := timeparse.New().ExtractTimeFromText(strings.Join(args, " "))
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(ex)
			}
			printExtraction(cmd.OutOrStdout(), ex)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw extraction as JSON")
	return cmd
}

func newRemindCommand(cli *CLI) *cobra.Command {
	var (
		id      string
		hint    string
		confirm bool
	)
	cmd := &cobra.Command{
		Use:   "remind <note text>",
		Short: "Schedule a reminder from a note",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.withContainer(cmd, containerOptions{confirm: confirm}, func(ctx context.Context, c *Container) error {
				out, err := c.Pipeline.ScheduleReminderFromNote(ctx, reminder.Note{
					ID:   id,
					Text: strings.Join(args, " "),
					Hint: hint,
				})
				if err != nil {
					return err
				}
				printOutcome(cmd.OutOrStdout(), out)
				if out.Status == reminder.OutcomeNoTime || out.Status == reminder.OutcomeInvalid {
					return &ExitCodeError{Code: 2, Err: fmt.Errorf("nothing scheduled (%s)", out.Status)}
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Note id; reusing an id replaces its reminder")
	cmd.Flags().StringVar(&hint, "when", "", "Explicit time phrase, overrides the note text")
	cmd.Flags().BoolVarP(&confirm, "interactive", "i", false, "Confirm or edit before scheduling")
	return cmd
}

func newNotificationsCommand(cli *CLI) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "notifications",
		Aliases: []string{"ls"},
		Short:   "List pending notifications",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cli.withContainer(cmd, containerOptions{}, func(ctx context.Context, c *Container) error {
				list, err := c.Scheduler.ListScheduled(ctx)
				if err != nil {
					return err
				}
				printNotifications(cmd.OutOrStdout(), list, time.Now())
				return nil
			})
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel one pending notification",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.withContainer(cmd, containerOptions{}, func(ctx context.Context, c *Container) error {
				if err := c.Scheduler.Cancel(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), successText("cancelled "+args[0]))
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Cancel every pending notification",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cli.withContainer(cmd, containerOptions{}, func(ctx context.Context, c *Container) error {
				if err := c.Scheduler.CancelAll(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), successText("all notifications cancelled"))
				return nil
			})
		},
	})
	return cmd
}

func newRescheduleCommand(cli *CLI) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "reschedule",
		Short: "Plan the wake-up, wind-down, and meal insight notifications",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cli.withContainer(cmd, containerOptions{}, func(ctx context.Context, c *Container) error {
				if force {
					if err := c.Store.Remove(ctx, smart.ThrottleKey); err != nil {
						return err
					}
				}
				ran, err := c.Smart.Reschedule(ctx)
				if err != nil {
					return err
				}
				c.Smart.Wait()
				if !ran {
					fmt.Fprintln(cmd.OutOrStdout(), warnText("throttled; use --force to run anyway"))
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), successText("smart notifications rescheduled"))
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Ignore the throttle window")
	return cmd
}

func newCancelAllCommand(cli *CLI) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel-all",
		Short: "Cancel the smart notifications and reset the throttle",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cli.withContainer(cmd, containerOptions{}, func(ctx context.Context, c *Container) error {
				if err := c.Smart.CancelAll(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), successText("smart notifications cancelled"))
				return nil
			})
		},
	}
}

func newLocationsCommand(cli *CLI) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "locations",
		Short: "Manage saved places",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cli.withContainer(cmd, containerOptions{}, func(ctx context.Context, c *Container) error {
				locs, err := c.Geofence.Locations(ctx)
				if err != nil {
					return err
				}
				printLocations(cmd.OutOrStdout(), locs)
				return nil
			})
		},
	}

	var loc geofence.SavedLocation
	var locType string
	add := &cobra.Command{
		Use:   "add",
		Short: "Save a place and register its region",
		RunE: func(cmd *cobra.Command, _ []string) error {
			loc.Type = geofence.LocationType(locType)
			return cli.withContainer(cmd, containerOptions{}, func(ctx context.Context, c *Container) error {
				saved, err := c.Geofence.AddLocation(ctx, loc)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), successText(fmt.Sprintf("saved %s (%s)", saved.Name, saved.ID)))
				return nil
			})
		},
	}
	add.Flags().StringVar(&loc.Name, "name", "", "Display name")
	add.Flags().StringVar(&locType, "type", "", "home, work, or gym")
	add.Flags().Float64Var(&loc.Lat, "lat", 0, "Latitude")
	add.Flags().Float64Var(&loc.Lng, "lng", 0, "Longitude")
	add.Flags().Float64Var(&loc.Radius, "radius", 150, "Radius in meters")
	add.Flags().BoolVar(&loc.NotifyOnEnter, "on-enter", true, "Notify on arrival")
	add.Flags().BoolVar(&loc.NotifyOnExit, "on-exit", false, "Notify on departure")
	_ = add.MarkFlagRequired("name")
	_ = add.MarkFlagRequired("type")

	remove := &cobra.Command{
		Use:     "remove <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a saved place",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.withContainer(cmd, containerOptions{}, func(ctx context.Context, c *Container) error {
				if err := c.Geofence.RemoveLocation(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), successText("removed "+args[0]))
				return nil
			})
		},
	}

	cmd.AddCommand(add, remove)
	return cmd
}

func newSettingsCommand(cli *CLI) *cobra.Command {
	var enabled, smartFilter, leaveHome, autoDetect bool
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change location reminder settings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cli.withContainer(cmd, containerOptions{}, func(ctx context.Context, c *Container) error {
				settings, err := c.Geofence.Settings(ctx)
				if err != nil {
					return err
				}
				changed := false
				apply := func(name string, dst *bool, val bool) {
					if cmd.Flags().Changed(name) {
						*dst, changed = val, true
					}
				}
				apply("enabled", &settings.Enabled, enabled)
				apply("smart-filter", &settings.SmartFilteringEnabled, smartFilter)
				apply("leave-home", &settings.LeaveHomeReminder, leaveHome)
				apply("auto-detect", &settings.AutoDetectStores, autoDetect)

				if changed {
					applied, err := c.Geofence.UpdateSettings(ctx, settings)
					if err != nil {
						return err
					}
					if !applied {
						return geofence.ErrPermissionDenied
					}
				}
				printSettings(cmd.OutOrStdout(), settings)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&enabled, "enabled", true, "Master switch")
	cmd.Flags().BoolVar(&smartFilter, "smart-filter", true, "Only notify when relevant tasks exist")
	cmd.Flags().BoolVar(&leaveHome, "leave-home", true, "Remind about errands when leaving home")
	cmd.Flags().BoolVar(&autoDetect, "auto-detect", true, "Detect nearby stores from location samples")
	return cmd
}

func newDetectCommand(cli *CLI) *cobra.Command {
	return &cobra.Command{
		Use:   "detect <lat> <lng>",
		Short: "Run store detection for a coordinate",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var lat, lng float64
			if _, err := fmt.Sscan(args[0], &lat); err != nil {
				return fmt.Errorf("latitude: %w", err)
			}
			if _, err := fmt.Sscan(args[1], &lng); err != nil {
				return fmt.Errorf("longitude: %w", err)
			}
			return cli.withContainer(cmd, containerOptions{}, func(ctx context.Context, c *Container) error {
				if !c.Config.Geocoder.Enabled {
					return errors.New("store detection needs geocoder.enabled: true")
				}
				sent, err := c.Geofence.DetectStore(ctx, lat, lng)
				if err != nil {
					return err
				}
				if !sent {
					fmt.Fprintln(cmd.OutOrStdout(), gray("no notification (unknown place, cooldown, or nothing to do)"))
					return nil
				}
				// Wait for the immediate notification so it prints before exit.
				select {
				case <-time.After(c.Config.Scheduler.ImmediateDelay + 200*time.Millisecond):
				case <-ctx.Done():
				}
				return nil
			})
		},
	}
}
