package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	api "github.com/jmylchreest/gpiodbus/internal/dbus"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	conn, err := connect()
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := callContext()
	defer cancel()

	var name, daemonVersion string
	var started uint64
	err = manager(conn).CallWithContext(ctx,
		api.ManagerInterface+".ServerInfo", 0).Store(&name, &daemonVersion, &started)
	if err != nil {
		return fmt.Errorf("daemon not reachable at %s: %w", globalOpts.dest, err)
	}

	startedAt := time.Unix(int64(started), 0)
	fmt.Printf("%s %s on %s, started %s\n",
		name, daemonVersion, globalOpts.dest, humanize.Time(startedAt))
	return nil
}
