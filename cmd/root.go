// Package cmd wires the streambridge command line
package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tphakala/streambridge/cmd/config"
	"github.com/tphakala/streambridge/cmd/devices"
	"github.com/tphakala/streambridge/cmd/elements"
	"github.com/tphakala/streambridge/cmd/record"
	"github.com/tphakala/streambridge/cmd/version"
	"github.com/tphakala/streambridge/internal/buildinfo"
	"github.com/tphakala/streambridge/internal/conf"
	"github.com/tphakala/streambridge/internal/errors"
	"github.com/tphakala/streambridge/internal/logger"
)

// skipSetup marks commands that run without loading configuration
const skipSetup = "skip-setup"

const sentryFlushTimeout = 2 * time.Second

// CLI is the root command together with the logger and telemetry its
// setup acquires
type CLI struct {
	root     *cobra.Command
	settings *conf.Settings
	info     *buildinfo.Context

	configFile string
	central    *logger.CentralLogger
	reporter   *errors.SentryReporter
}

// New builds the command tree
func New(info *buildinfo.Context) *CLI {
	c := &CLI{
		settings: conf.Defaults(),
		info:     info,
	}

	c.root = &cobra.Command{
		Use:           "streambridge",
		Short:         "Capture audio and stream it through an Opus encode pipeline",
		Version:       info.Version(),
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	if err := c.setupFlags(); err != nil {
		panic(err)
	}

	versionCmd := version.Command(info)
	versionCmd.Annotations = map[string]string{skipSetup: "true"}
	configCmd := config.Command()
	configCmd.Annotations = map[string]string{skipSetup: "true"}

	c.root.AddCommand(
		record.Command(c.settings),
		devices.Command(),
		elements.Command(c.settings),
		configCmd,
		versionCmd,
	)

	c.root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		for p := cmd; p != nil; p = p.Parent() {
			if p.Annotations[skipSetup] != "" {
				return nil
			}
		}
		return c.initialize()
	}

	return c
}

// Execute runs the command line; ctx is cancelled on interrupt
func (c *CLI) Execute(ctx context.Context) error {
	return c.root.ExecuteContext(ctx)
}

// Command returns the root command
func (c *CLI) Command() *cobra.Command {
	return c.root
}

// Close flushes telemetry and the log file
func (c *CLI) Close() {
	if c.reporter != nil {
		c.reporter.Flush(sentryFlushTimeout)
	}
	if c.central != nil {
		_ = c.central.Flush()
		_ = c.central.Close()
	}
}

// initialize loads configuration after flags are parsed, so flag values
// take precedence over the config file and environment
func (c *CLI) initialize() error {
	loaded, err := conf.Load(c.configFile)
	if err != nil {
		return err
	}
	*c.settings = *loaded

	central, err := logger.NewCentralLogger(c.settings.LoggingConfig())
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.SetGlobal(central)
	c.central = central

	if dsn := c.settings.Telemetry.SentryDSN; dsn != "" {
		reporter, err := errors.NewSentryReporter(dsn, c.info.Release())
		if err != nil {
			return err
		}
		errors.SetReporter(reporter)
		c.reporter = reporter
	}

	logger.Global().Module("main").Debug("configuration loaded",
		logger.String("version", c.info.Version()),
		logger.String("instance_id", c.info.InstanceID()),
		logger.Bool("telemetry", c.reporter.IsEnabled()))
	return nil
}

// setupFlags defines flags that are global to the command line interface
func (c *CLI) setupFlags() error {
	flags := c.root.PersistentFlags()
	flags.StringVarP(&c.configFile, "config", "c", "", "Path to config.yaml (default: search ./, ~/.config/streambridge, /etc/streambridge)")
	flags.BoolP("debug", "d", false, "Enable debug output")
	flags.String("log-level", logger.DefaultLogLevel, "Log level (debug, info, warn, error)")

	if err := viper.BindPFlag("debug", flags.Lookup("debug")); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	if err := viper.BindPFlag("log.level", flags.Lookup("log-level")); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	return nil
}
