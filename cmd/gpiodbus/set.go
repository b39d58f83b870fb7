package main

import (
	"fmt"

	"github.com/spf13/cobra"

	api "github.com/jmylchreest/gpiodbus/internal/dbus"
)

var setCmd = &cobra.Command{
	Use:   "set <chip> <offset> <0|1>",
	Short: "Drive a GPIO line as output",
	Args:  cobra.ExactArgs(3),
	RunE:  runSet,
}

func init() {
	rootCmd.AddCommand(setCmd)
}

func runSet(cmd *cobra.Command, args []string) error {
	offset, err := parseOffset(args[1])
	if err != nil {
		return err
	}

	var value int32
	switch args[2] {
	case "0":
		value = 0
	case "1":
		value = 1
	default:
		return fmt.Errorf("invalid line value %q, want 0 or 1", args[2])
	}

	conn, err := connect()
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := callContext()
	defer cancel()

	call := chipObject(conn, args[0]).CallWithContext(ctx,
		api.ChipInterface+".SetLine", 0, offset, value)
	if call.Err != nil {
		return fmt.Errorf("failed to set line %d of %s: %w", offset, args[0], call.Err)
	}

	return nil
}
