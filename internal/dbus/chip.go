package dbus

import (
	"errors"
	"log/slog"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	"github.com/jmylchreest/gpiodbus/internal/gpio"
)

// gpioChip is the chip handle surface the exported object needs.
// Satisfied by *gpio.Chip; faked in tests.
type gpioChip interface {
	Info() gpio.ChipInfo
	Lines() ([]gpio.LineInfo, error)
	Read(offset int) (int, error)
	Set(offset, value int) error
	Close() error
}

// lineDesc is the wire representation of one line: (usbs).
type lineDesc struct {
	Offset   uint32
	Name     string
	Used     bool
	Consumer string
}

// chipObject exposes one GPIO chip on the bus at a fixed object path.
// Handlers are synchronous and bounded: each is at most a couple of
// ioctl round-trips, so they cannot stall the bus dispatcher.
type chipObject struct {
	name   string
	path   dbus.ObjectPath
	chip   gpioChip
	logger *slog.Logger
}

// Info returns the chip name, label and number of lines.
// D-Bus method: Info() -> (ssu)
func (o *chipObject) Info() (string, string, uint32, *dbus.Error) {
	o.logger.Debug("Info called", "chip", o.name)
	info := o.chip.Info()
	return info.Name, info.Label, uint32(info.NumLines), nil
}

// Lines returns per-line information for the whole chip.
// D-Bus method: Lines() -> a(usbs)
func (o *chipObject) Lines() ([]lineDesc, *dbus.Error) {
	o.logger.Debug("Lines called", "chip", o.name)

	lines, err := o.chip.Lines()
	if err != nil {
		return nil, failedError(err)
	}

	descs := make([]lineDesc, 0, len(lines))
	for _, l := range lines {
		descs = append(descs, lineDesc{
			Offset:   uint32(l.Offset),
			Name:     l.Name,
			Used:     l.Used,
			Consumer: l.Consumer,
		})
	}
	return descs, nil
}

// ReadLine returns the current value of one line.
// D-Bus method: ReadLine(u) -> i
func (o *chipObject) ReadLine(offset uint32) (int32, *dbus.Error) {
	o.logger.Debug("ReadLine called", "chip", o.name, "offset", offset)

	value, err := o.chip.Read(int(offset))
	if err != nil {
		return 0, lineError(err)
	}
	return int32(value), nil
}

// SetLine drives one line as output.
// D-Bus method: SetLine(u, i)
func (o *chipObject) SetLine(offset uint32, value int32) *dbus.Error {
	o.logger.Debug("SetLine called",
		"chip", o.name, "offset", offset, "value", value)

	if err := o.chip.Set(int(offset), int(value)); err != nil {
		return lineError(err)
	}
	return nil
}

func lineError(err error) *dbus.Error {
	if errors.Is(err, gpio.ErrUnknownLine) {
		return dbus.NewError(ErrorUnknownLine, []interface{}{err.Error()})
	}
	return failedError(err)
}

func failedError(err error) *dbus.Error {
	return dbus.NewError(ErrorFailed, []interface{}{err.Error()})
}

// chipMethods returns the D-Bus method introspection data.
func chipMethods() []introspect.Method {
	return []introspect.Method{
		{
			Name: "Info",
			Args: []introspect.Arg{
				{Name: "name", Type: "s", Direction: "out"},
				{Name: "label", Type: "s", Direction: "out"},
				{Name: "num_lines", Type: "u", Direction: "out"},
			},
		},
		{
			Name: "Lines",
			Args: []introspect.Arg{
				{Name: "lines", Type: "a(usbs)", Direction: "out"},
			},
		},
		{
			Name: "ReadLine",
			Args: []introspect.Arg{
				{Name: "offset", Type: "u", Direction: "in"},
				{Name: "value", Type: "i", Direction: "out"},
			},
		},
		{
			Name: "SetLine",
			Args: []introspect.Arg{
				{Name: "offset", Type: "u", Direction: "in"},
				{Name: "value", Type: "i", Direction: "in"},
			},
		},
	}
}
