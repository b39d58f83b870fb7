// Package main provides the CLI entrypoint for gpiodbus.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/spf13/cobra"

	"github.com/jmylchreest/gpiodbus/internal/config"
	api "github.com/jmylchreest/gpiodbus/internal/dbus"
)

// Build-time variables (set via ldflags)
var (
	version = "dev"
)

// Global options shared by all subcommands.
var globalOpts struct {
	dest    string
	timeout time.Duration
}

var rootCmd = &cobra.Command{
	Use:   "gpiodbus",
	Short: "Query and control GPIO chips via the gpiodbusd daemon",
	Long: `gpiodbus talks to the gpiodbusd daemon over the system bus.

It can list the exported GPIO chips and their lines, read and drive
individual line values, and follow chip hotplug events as the daemon
observes them.`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&globalOpts.dest, "dest",
		config.DefaultBusName, "Bus name of the daemon")
	rootCmd.PersistentFlags().DurationVar(&globalOpts.timeout, "timeout",
		10*time.Second, "Per-call timeout")
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// callContext returns the context used for a single bus call.
func callContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), globalOpts.timeout)
}

// connect opens a private system bus connection for one command.
func connect() (*dbus.Conn, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to the system bus: %w", err)
	}
	return conn, nil
}

// manager returns the daemon's root object.
func manager(conn *dbus.Conn) dbus.BusObject {
	return conn.Object(globalOpts.dest, api.ManagerPath)
}

// chipObject returns the object for a chip by device name.
func chipObject(conn *dbus.Conn, name string) dbus.BusObject {
	return conn.Object(globalOpts.dest, api.ChipPath(name))
}
