package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"nudge/internal/shared/config"
)

// CLI holds flag state shared by every subcommand.
type CLI struct {
	configPath string
	verbose    bool
	storeFlag  string
}

func newRootCommand() *cobra.Command {
	cli := &CLI{}

	root := &cobra.Command{
		Use:   "nudge",
		Short: "⏰ Time, place, and routine based reminders",
		Long: fmt.Sprintf(`%s

Turns natural-language notes into scheduled reminders, watches saved places and
nearby stores, and plans daily wake-up and wind-down notifications.

%s
  nudge parse "pick up dry cleaning tomorrow at 5pm"
  nudge remind "call mom in 2 hours"
  nudge locations add --name Home --type home --lat 37.77 --lng -122.42
  nudge serve`, bold("nudge "+Version), bold("EXAMPLES:")),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&cli.configPath, "config", "c", "", "Config file (default ~/.nudge/config.yaml)")
	root.PersistentFlags().BoolVarP(&cli.verbose, "verbose", "v", false, "Debug logging")
	root.PersistentFlags().StringVar(&cli.storeFlag, "store", "", "Override store driver (memory, file, sqlite)")
	_ = viper.BindPFlag("verbose", root.PersistentFlags().Lookup("verbose"))

	root.AddCommand(
		newParseCommand(),
		newRemindCommand(cli),
		newNotificationsCommand(cli),
		newRescheduleCommand(cli),
		newCancelAllCommand(cli),
		newLocationsCommand(cli),
		newSettingsCommand(cli),
		newDetectCommand(cli),
		newServeCommand(cli),
		newVersionCommand(),
	)
	return root
}

func (cli *CLI) loadConfig() (config.Config, error) {
	cfg, err := config.Load(cli.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if cli.verbose || viper.GetBool("verbose") {
		cfg.Observability.LogLevel = "debug"
	}
	if cli.storeFlag != "" {
		cfg.Store.Driver = cli.storeFlag
	}
	return cfg, nil
}

// withContainer builds the service container, runs fn, and tears it down.
func (cli *CLI) withContainer(cmd *cobra.Command, opts containerOptions, fn func(ctx context.Context, c *Container) error) error {
	cfg, err := cli.loadConfig()
	if err != nil {
		return err
	}
	if opts.out == nil {
		opts.out = cmd.OutOrStdout()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := buildContainer(ctx, cfg, opts)
	if err != nil {
		return err
	}
	defer c.Close(context.WithoutCancel(ctx))
	return fn(ctx, c)
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "nudge %s\n", Version)
		},
	}
}
