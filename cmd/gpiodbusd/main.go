// Package main is the entry point for the gpiodbusd GPIO D-Bus daemon.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/gpiodbus/internal/config"
	"github.com/jmylchreest/gpiodbus/internal/daemon"
	"github.com/jmylchreest/gpiodbus/internal/logging"
)

// Build-time variables (set via ldflags)
var (
	version = "dev"
)

var opts struct {
	debug bool
}

var rootCmd = &cobra.Command{
	Use:   "gpiodbusd",
	Short: "D-Bus daemon exposing GPIO chips and lines",
	Long: `gpiodbusd claims a well-known name on the system bus and exports the
GPIO chips present on the machine as bus objects, keeping the object
tree synchronized with kernel hotplug events.

Losing the bus name or connection terminates the daemon; restarting it
is the job of the process supervisor.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	rootCmd.Flags().BoolVarP(&opts.debug, "debug", "d", false,
		"print additional debug messages")
}

func run(cmd *cobra.Command, args []string) error {
	logger := logging.New(os.Stderr, opts.debug)
	slog.SetDefault(logger)

	logger.Info("initiating gpiodbusd", "version", version)

	cfg, err := config.Load("")
	if err != nil {
		return die(logger, err)
	}

	d := daemon.New(cfg, version, logger)

	logger.Info("gpiodbusd started", "bus_name", cfg.Bus.Name)

	if err := d.Run(cmd.Context()); err != nil {
		return die(logger, err)
	}

	logger.Info("gpiodbusd exiting cleanly")
	return nil
}

// errLogged marks errors die has already reported.
var errLogged = errors.New("fatal condition logged")

// die reports a fatal condition at critical severity. This is the only
// place fatal conditions are logged; the non-zero exit happens in main.
func die(logger *slog.Logger, err error) error {
	var fatal *daemon.FatalError
	if errors.As(err, &fatal) && fatal.Err != nil {
		logger.Log(context.Background(), logging.LevelCritical,
			fatal.Message, "error", fatal.Err)
	} else {
		logger.Log(context.Background(), logging.LevelCritical, err.Error())
	}
	return fmt.Errorf("%w: %w", errLogged, err)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Flag parse errors arrive here before any logger exists.
		if !errors.Is(err, errLogged) {
			fmt.Fprintf(os.Stderr, "<0>%s\n", err)
		}
		os.Exit(1)
	}
}
