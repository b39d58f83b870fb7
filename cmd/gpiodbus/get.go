package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	api "github.com/jmylchreest/gpiodbus/internal/dbus"
)

var getCmd = &cobra.Command{
	Use:   "get <chip> <offset>",
	Short: "Read the value of a GPIO line",
	Args:  cobra.ExactArgs(2),
	RunE:  runGet,
}

func init() {
	rootCmd.AddCommand(getCmd)
}

func runGet(cmd *cobra.Command, args []string) error {
	offset, err := parseOffset(args[1])
	if err != nil {
		return err
	}

	conn, err := connect()
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := callContext()
	defer cancel()

	var value int32
	err = chipObject(conn, args[0]).CallWithContext(ctx,
		api.ChipInterface+".ReadLine", 0, offset).Store(&value)
	if err != nil {
		return fmt.Errorf("failed to read line %d of %s: %w", offset, args[0], err)
	}

	fmt.Println(value)
	return nil
}

func parseOffset(s string) (uint32, error) {
	offset, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid line offset %q", s)
	}
	return uint32(offset), nil
}
