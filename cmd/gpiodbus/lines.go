package main

import (
	"fmt"

	"github.com/spf13/cobra"

	api "github.com/jmylchreest/gpiodbus/internal/dbus"
)

var linesCmd = &cobra.Command{
	Use:   "lines <chip>",
	Short: "List the lines of a GPIO chip",
	Args:  cobra.ExactArgs(1),
	RunE:  runLines,
}

func init() {
	rootCmd.AddCommand(linesCmd)
}

// lineRow mirrors the (usbs) wire struct of the Lines reply.
type lineRow struct {
	Offset   uint32
	Name     string
	Used     bool
	Consumer string
}

func runLines(cmd *cobra.Command, args []string) error {
	conn, err := connect()
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := callContext()
	defer cancel()

	var rows []lineRow
	err = chipObject(conn, args[0]).CallWithContext(ctx,
		api.ChipInterface+".Lines", 0).Store(&rows)
	if err != nil {
		return fmt.Errorf("failed to list lines of %s: %w", args[0], err)
	}

	for _, row := range rows {
		name := row.Name
		if name == "" {
			name = "unnamed"
		}
		state := "unused"
		if row.Used {
			state = "used"
			if row.Consumer != "" {
				state = fmt.Sprintf("used by %q", row.Consumer)
			}
		}
		fmt.Printf("line %3d: %-24s %s\n", row.Offset, name, state)
	}

	return nil
}
