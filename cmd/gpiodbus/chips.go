package main

import (
	"fmt"

	"github.com/godbus/dbus/v5"
	"github.com/spf13/cobra"

	api "github.com/jmylchreest/gpiodbus/internal/dbus"
)

var chipsCmd = &cobra.Command{
	Use:   "chips",
	Short: "List GPIO chips exported by the daemon",
	Args:  cobra.NoArgs,
	RunE:  runChips,
}

func init() {
	rootCmd.AddCommand(chipsCmd)
}

func runChips(cmd *cobra.Command, args []string) error {
	conn, err := connect()
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := callContext()
	defer cancel()

	var paths []dbus.ObjectPath
	err = manager(conn).CallWithContext(ctx,
		api.ManagerInterface+".ListChips", 0).Store(&paths)
	if err != nil {
		return fmt.Errorf("failed to list chips: %w", err)
	}

	for _, path := range paths {
		var name, label string
		var numLines uint32
		obj := conn.Object(globalOpts.dest, path)
		err := obj.CallWithContext(ctx, api.ChipInterface+".Info", 0).
			Store(&name, &label, &numLines)
		if err != nil {
			fmt.Printf("%s (info unavailable: %v)\n", path, err)
			continue
		}
		fmt.Printf("%s [%s] (%d lines)\n", name, label, numLines)
	}

	return nil
}
