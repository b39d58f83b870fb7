package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/godbus/dbus/v5"
	"github.com/spf13/cobra"

	api "github.com/jmylchreest/gpiodbus/internal/dbus"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow chip hotplug events",
	Long: `Subscribe to the daemon's ChipAdded and ChipRemoved signals and print
them as they arrive. Runs until interrupted.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	conn, err := connect()
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.AddMatchSignal(
		dbus.WithMatchInterface(api.ManagerInterface),
		dbus.WithMatchObjectPath(api.ManagerPath),
	); err != nil {
		return fmt.Errorf("failed to subscribe to signals: %w", err)
	}

	sigCh := make(chan *dbus.Signal, 16)
	conn.Signal(sigCh)

	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case sig, ok := <-sigCh:
			if !ok {
				return fmt.Errorf("connection to the bus closed")
			}
			printChipSignal(sig)
		}
	}
}

func printChipSignal(sig *dbus.Signal) {
	if len(sig.Body) == 0 {
		return
	}
	path, ok := sig.Body[0].(dbus.ObjectPath)
	if !ok {
		return
	}
	switch sig.Name {
	case api.ManagerInterface + ".ChipAdded":
		fmt.Printf("added   %s\n", path)
	case api.ManagerInterface + ".ChipRemoved":
		fmt.Printf("removed %s\n", path)
	}
}
