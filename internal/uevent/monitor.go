package uevent

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// Netlink multicast group the kernel broadcasts uevents on.
const kernelGroup = 1

// Large enough for any single uevent datagram.
const readBufSize = 16 * 1024

// Monitor subscribes to kernel hotplug events for a single subsystem
// and delivers them on a channel. Events for other subsystems and
// malformed datagrams are dropped.
type Monitor struct {
	subsystem string
	logger    *slog.Logger

	mu      sync.Mutex
	file    *os.File
	started bool
	closed  bool

	events chan Event
}

// NewMonitor creates a Monitor for the given kernel subsystem.
func NewMonitor(subsystem string, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		subsystem: subsystem,
		logger:    logger,
		events:    make(chan Event, 16),
	}
}

// Start opens the netlink socket and begins delivering events.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("monitor closed")
	}
	if m.started {
		return fmt.Errorf("monitor already started")
	}

	// Non-blocking so reads go through the runtime poller and Close
	// can interrupt a pending read.
	fd, err := unix.Socket(unix.AF_NETLINK,
		unix.SOCK_RAW|unix.SOCK_CLOEXEC|unix.SOCK_NONBLOCK,
		unix.NETLINK_KOBJECT_UEVENT)
	if err != nil {
		return fmt.Errorf("failed to open uevent socket: %w", err)
	}

	sa := &unix.SockaddrNetlink{
		Family: unix.AF_NETLINK,
		Groups: kernelGroup,
	}
	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return fmt.Errorf("failed to bind uevent socket: %w", err)
	}

	m.file = os.NewFile(uintptr(fd), "uevent")
	m.started = true

	go m.read(m.file)

	m.logger.Debug("uevent monitor started", "subsystem", m.subsystem)
	return nil
}

// Events returns the channel hotplug events are delivered on.
// The channel is closed when the monitor stops.
func (m *Monitor) Events() <-chan Event {
	return m.events
}

// Close shuts the socket down and stops event delivery.
func (m *Monitor) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	if !m.started {
		close(m.events)
		return nil
	}
	// Interrupts the pending read via the poller; the reader then
	// closes the channel.
	return m.file.Close()
}

func (m *Monitor) read(f *os.File) {
	defer close(m.events)

	buf := make([]byte, readBufSize)
	for {
		// One read returns one uevent datagram.
		n, err := f.Read(buf)
		if err != nil {
			if !errors.Is(err, os.ErrClosed) {
				m.logger.Warn("uevent socket read failed", "error", err)
			}
			return
		}
		if n == 0 {
			continue
		}

		ev, err := parseEvent(buf[:n])
		if err != nil {
			if err != errNotKernel {
				m.logger.Debug("dropping malformed uevent", "error", err)
			}
			continue
		}
		if ev.Subsystem != m.subsystem {
			continue
		}

		select {
		case m.events <- ev:
		default:
			// A stalled consumer must not block the reader.
			m.logger.Warn("uevent dropped, consumer too slow",
				"action", ev.Action, "device", ev.Name)
		}
	}
}
