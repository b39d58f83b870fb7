// Package gpio wraps the GPIO character device interface.
// It keeps the rest of the daemon independent of the underlying ioctl
// library and holds requested output lines for the lifetime of a chip.
package gpio

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"sync"

	"github.com/warthog618/go-gpiocdev"
)

// ChipInfo describes a GPIO chip.
type ChipInfo struct {
	Name     string
	Label    string
	NumLines int
}

// LineInfo describes a single line on a chip.
type LineInfo struct {
	Offset   int
	Name     string
	Used     bool
	Consumer string
}

var chipNameRe = regexp.MustCompile(`^gpiochip[0-9]+$`)

// IsChipName reports whether name looks like a GPIO chip device name.
func IsChipName(name string) bool {
	return chipNameRe.MatchString(name)
}

// Chips enumerates the GPIO chips currently present under /dev.
func Chips() ([]string, error) {
	matches, err := filepath.Glob("/dev/gpiochip*")
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		name := filepath.Base(m)
		if IsChipName(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Chip is an open GPIO chip. Output lines requested through Set are
// held until the chip is closed so their values persist.
type Chip struct {
	name string
	dev  *gpiocdev.Chip

	mu  sync.Mutex
	out map[int]*gpiocdev.Line
}

// Open opens the named chip (e.g. "gpiochip0").
func Open(name string) (*Chip, error) {
	dev, err := gpiocdev.NewChip(name, gpiocdev.WithConsumer("gpiodbusd"))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", name, err)
	}
	return &Chip{
		name: name,
		dev:  dev,
		out:  make(map[int]*gpiocdev.Line),
	}, nil
}

// Info returns the chip description.
func (c *Chip) Info() ChipInfo {
	return ChipInfo{
		Name:     c.dev.Name,
		Label:    c.dev.Label,
		NumLines: c.dev.Lines(),
	}
}

// Lines returns information for every line on the chip.
func (c *Chip) Lines() ([]LineInfo, error) {
	n := c.dev.Lines()
	lines := make([]LineInfo, 0, n)
	for offset := 0; offset < n; offset++ {
		info, err := c.dev.LineInfo(offset)
		if err != nil {
			return nil, fmt.Errorf("failed to read line %d info on %s: %w",
				offset, c.name, err)
		}
		lines = append(lines, LineInfo{
			Offset:   info.Offset,
			Name:     info.Name,
			Used:     info.Used,
			Consumer: info.Consumer,
		})
	}
	return lines, nil
}

// Read returns the current value of a line. Lines we hold as outputs
// are read back directly; anything else is requested as input for the
// duration of the read.
func (c *Chip) Read(offset int) (int, error) {
	if err := c.checkOffset(offset); err != nil {
		return 0, err
	}

	c.mu.Lock()
	line, held := c.out[offset]
	c.mu.Unlock()
	if held {
		return line.Value()
	}

	line, err := c.dev.RequestLine(offset, gpiocdev.AsInput)
	if err != nil {
		return 0, fmt.Errorf("failed to request line %d on %s: %w",
			offset, c.name, err)
	}
	defer line.Close()

	return line.Value()
}

// Set drives a line as output. The line is requested on first use and
// held so the value persists until the chip goes away.
func (c *Chip) Set(offset, value int) error {
	if err := c.checkOffset(offset); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if line, held := c.out[offset]; held {
		return line.SetValue(value)
	}

	line, err := c.dev.RequestLine(offset, gpiocdev.AsOutput(value))
	if err != nil {
		return fmt.Errorf("failed to request line %d on %s as output: %w",
			offset, c.name, err)
	}
	c.out[offset] = line
	return nil
}

// Close releases all held lines and the chip handle.
func (c *Chip) Close() error {
	c.mu.Lock()
	for offset, line := range c.out {
		_ = line.Close()
		delete(c.out, offset)
	}
	c.mu.Unlock()
	return c.dev.Close()
}

func (c *Chip) checkOffset(offset int) error {
	if offset < 0 || offset >= c.dev.Lines() {
		return fmt.Errorf("%w: offset %d out of range on %s",
			ErrUnknownLine, offset, c.name)
	}
	return nil
}
