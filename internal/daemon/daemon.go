package daemon

import (
	"context"
	"log/slog"

	"github.com/jmylchreest/gpiodbus/internal/config"
	"github.com/jmylchreest/gpiodbus/internal/dbus"
	"github.com/jmylchreest/gpiodbus/internal/gpio"
	"github.com/jmylchreest/gpiodbus/internal/uevent"
)

// FatalError is an unrecoverable condition. It propagates out of Run
// to the entry routine, which logs it at critical severity and
// terminates the process with a failure status exactly once. Nothing
// below the entry routine exits the process.
type FatalError struct {
	Message string
	Err     error
}

func (e *FatalError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// Bus is the daemon's handle on bus name ownership and the exported
// object tree.
type Bus interface {
	Own()
	Events() <-chan dbus.Event
	AddChip(name string) error
	RemoveChip(name string)
	Release()
}

// Monitor delivers kernel hotplug events for the watched subsystem.
type Monitor interface {
	Start() error
	Events() <-chan uevent.Event
	Close() error
}

// Daemon owns every process-lifetime resource: the bus server, the
// hotplug monitor and the signal bridge. It is constructed once in the
// entry routine and nothing outlives it.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger

	bus       Bus
	monitor   Monitor
	enumerate func() ([]string, error)
}

// New creates a Daemon from the loaded configuration.
func New(cfg *config.Config, version string, logger *slog.Logger) *Daemon {
	if logger == nil {
		logger = slog.Default()
	}
	return &Daemon{
		cfg:       cfg,
		logger:    logger,
		bus:       dbus.NewServer(cfg.Bus.Name, version, logger),
		monitor:   uevent.NewMonitor(cfg.Monitor.Subsystem, logger),
		enumerate: gpio.Chips,
	}
}

// Run executes the event loop. It blocks until the context is
// cancelled or a termination signal arrives (returns nil, graceful) or
// bus ownership terminally fails (returns *FatalError). Every event is
// handled to completion on the loop goroutine; resources are released
// in reverse acquisition order on any return.
func (d *Daemon) Run(ctx context.Context) error {
	signals := NewSignalBridge()
	defer signals.Close()

	d.bus.Own()
	defer d.bus.Release()
	defer d.monitor.Close()

	// Stays nil, and therefore unselectable, until the subscription
	// exists. The subscription is only created after NameAcquired.
	var devEvents <-chan uevent.Event

	for {
		select {
		case <-ctx.Done():
			d.logger.Debug("context cancelled, shutting down")
			return nil

		case sig := <-signals.Terminated():
			d.logger.Debug("termination signal received", "signal", sig.String())
			signals.Disarm()
			return nil

		case <-signals.Reload():
			// Reserved for config reload, deliberately inert.
			d.logger.Debug("SIGHUP received, ignoring")

		case ev, ok := <-d.bus.Events():
			if !ok {
				return &FatalError{
					Message: dbus.LostConnectionClosed.Message(d.cfg.Bus.Name),
				}
			}
			switch ev := ev.(type) {
			case dbus.ConnectionAcquired:
				d.logger.Debug("bus connection acquired")

			case dbus.NameAcquired:
				d.logger.Info("bus name acquired", "name", ev.Name)
				if devEvents == nil {
					devEvents = d.subscribe()
				}
				d.seedChips()

			case dbus.NameLost:
				return &FatalError{
					Message: ev.Reason.Message(d.cfg.Bus.Name),
					Err:     ev.Err,
				}
			}

		case ev, ok := <-devEvents:
			if !ok {
				d.logger.Warn("hotplug monitor stopped, chip tree no longer synchronized")
				devEvents = nil
				continue
			}
			d.handleDeviceEvent(ev)
		}
	}
}

// subscribe starts the hotplug monitor. A subscription failure costs
// hotplug tracking, not the process: the already exported tree keeps
// serving.
func (d *Daemon) subscribe() <-chan uevent.Event {
	if err := d.monitor.Start(); err != nil {
		d.logger.Error("failed to start hotplug monitor", "error", err)
		return nil
	}
	return d.monitor.Events()
}

// seedChips enumerates the currently present chips and registers each
// in the object tree.
func (d *Daemon) seedChips() {
	names, err := d.enumerate()
	if err != nil {
		d.logger.Error("failed to enumerate GPIO chips", "error", err)
		return
	}
	for _, name := range names {
		if err := d.bus.AddChip(name); err != nil {
			d.logger.Warn("failed to register chip", "chip", name, "error", err)
		}
	}
	d.logger.Info("initial enumeration complete", "chips", len(names))
}

// handleDeviceEvent synchronizes the object tree with one hotplug
// event. Events for devices that are not GPIO chips and actions the
// tree has no use for are logged and dropped.
func (d *Daemon) handleDeviceEvent(ev uevent.Event) {
	d.logger.Debug("uevent", "action", ev.Action, "device", ev.Name)

	if !gpio.IsChipName(ev.Name) {
		return
	}

	switch ev.Action {
	case uevent.ActionAdd:
		if err := d.bus.AddChip(ev.Name); err != nil {
			d.logger.Warn("failed to register chip", "chip", ev.Name, "error", err)
		}
	case uevent.ActionRemove:
		d.bus.RemoveChip(ev.Name)
	}
}
