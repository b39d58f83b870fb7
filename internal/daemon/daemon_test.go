package daemon

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/gpiodbus/internal/config"
	"github.com/jmylchreest/gpiodbus/internal/dbus"
	"github.com/jmylchreest/gpiodbus/internal/uevent"
)

// Keep the test process alive even when a bridge under test has been
// disarmed and a stray signal arrives.
func TestMain(m *testing.M) {
	guard := make(chan os.Signal, 8)
	signal.Notify(guard, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)
	os.Exit(m.Run())
}

type fakeBus struct {
	events chan dbus.Event

	mu       sync.Mutex
	added    []string
	removed  []string
	released bool

	changed chan struct{}
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		events:  make(chan dbus.Event, 8),
		changed: make(chan struct{}, 64),
	}
}

func (b *fakeBus) Own()                      {}
func (b *fakeBus) Events() <-chan dbus.Event { return b.events }

func (b *fakeBus) AddChip(name string) error {
	b.mu.Lock()
	b.added = append(b.added, name)
	b.mu.Unlock()
	b.changed <- struct{}{}
	return nil
}

func (b *fakeBus) RemoveChip(name string) {
	b.mu.Lock()
	b.removed = append(b.removed, name)
	b.mu.Unlock()
	b.changed <- struct{}{}
}

func (b *fakeBus) Release() {
	b.mu.Lock()
	b.released = true
	b.mu.Unlock()
}

func (b *fakeBus) addedChips() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.added...)
}

func (b *fakeBus) removedChips() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.removed...)
}

func (b *fakeBus) waitChange(t *testing.T) {
	t.Helper()
	select {
	case <-b.changed:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for object tree change")
	}
}

type fakeMonitor struct {
	events chan uevent.Event

	mu      sync.Mutex
	started bool
	closed  bool
}

func newFakeMonitor() *fakeMonitor {
	return &fakeMonitor{events: make(chan uevent.Event, 8)}
}

func (m *fakeMonitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = true
	return nil
}

func (m *fakeMonitor) Events() <-chan uevent.Event { return m.events }

func (m *fakeMonitor) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *fakeMonitor) isStarted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}

func (m *fakeMonitor) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func newTestDaemon(bus *fakeBus, monitor *fakeMonitor, chips []string) *Daemon {
	return &Daemon{
		cfg:       config.DefaultConfig(),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		bus:       bus,
		monitor:   monitor,
		enumerate: func() ([]string, error) { return chips, nil },
	}
}

func runDaemon(ctx context.Context, d *Daemon) chan error {
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	return done
}

func waitDone(t *testing.T, done chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
		return nil
	}
}

func TestRun_ContextCancel(t *testing.T) {
	bus := newFakeBus()
	monitor := newFakeMonitor()
	d := newTestDaemon(bus, monitor, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := runDaemon(ctx, d)
	cancel()

	require.NoError(t, waitDone(t, done))
	assert.True(t, bus.released)
	assert.True(t, monitor.isClosed())
}

func TestRun_TerminationSignal(t *testing.T) {
	bus := newFakeBus()
	monitor := newFakeMonitor()
	d := newTestDaemon(bus, monitor, nil)

	done := runDaemon(context.Background(), d)
	// Give the loop a moment to register its handlers.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGTERM))

	require.NoError(t, waitDone(t, done))
	assert.True(t, bus.released)
	assert.True(t, monitor.isClosed())
}

func TestRun_TerminationAfterNameAcquired(t *testing.T) {
	bus := newFakeBus()
	monitor := newFakeMonitor()
	d := newTestDaemon(bus, monitor, []string{"gpiochip0"})

	done := runDaemon(context.Background(), d)
	bus.events <- dbus.ConnectionAcquired{}
	bus.events <- dbus.NameAcquired{Name: "org.gpiod"}
	bus.waitChange(t)

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGINT))

	require.NoError(t, waitDone(t, done))
	assert.True(t, bus.released)
	assert.True(t, monitor.isClosed())
}

func TestRun_ReloadSignalIsInert(t *testing.T) {
	bus := newFakeBus()
	monitor := newFakeMonitor()
	d := newTestDaemon(bus, monitor, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := runDaemon(ctx, d)
	time.Sleep(100 * time.Millisecond)

	for i := 0; i < 3; i++ {
		require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGHUP))
		time.Sleep(20 * time.Millisecond)
	}

	// Still running, nothing subscribed, nothing registered.
	select {
	case err := <-done:
		t.Fatalf("loop stopped on SIGHUP: %v", err)
	default:
	}
	assert.False(t, monitor.isStarted())
	assert.Empty(t, bus.addedChips())

	cancel()
	require.NoError(t, waitDone(t, done))
}

func TestRun_ConnectionFailureIsFatal(t *testing.T) {
	bus := newFakeBus()
	monitor := newFakeMonitor()
	d := newTestDaemon(bus, monitor, nil)

	done := runDaemon(context.Background(), d)
	bus.events <- dbus.NameLost{Reason: dbus.LostConnectionFailed, Err: errors.New("no bus")}

	err := waitDone(t, done)
	var fatal *FatalError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, "unable to make connection to the bus", fatal.Message)

	// Connection was never acquired, so no subscription was created.
	assert.False(t, monitor.isStarted())
	assert.True(t, monitor.isClosed())
	assert.True(t, bus.released)
}

func TestRun_NameLostIsFatal(t *testing.T) {
	bus := newFakeBus()
	monitor := newFakeMonitor()
	d := newTestDaemon(bus, monitor, []string{"gpiochip0", "gpiochip1"})

	done := runDaemon(context.Background(), d)
	bus.events <- dbus.ConnectionAcquired{}
	bus.events <- dbus.NameAcquired{Name: "org.gpiod"}
	bus.waitChange(t)
	bus.waitChange(t)
	bus.events <- dbus.NameLost{Reason: dbus.LostNameRevoked}

	err := waitDone(t, done)
	var fatal *FatalError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, `name "org.gpiod" lost on the bus`, fatal.Message)

	// Subscription and enumeration happened, in that order, after
	// the name was acquired.
	assert.True(t, monitor.isStarted())
	assert.Equal(t, []string{"gpiochip0", "gpiochip1"}, bus.addedChips())
	assert.True(t, bus.released)
	assert.True(t, monitor.isClosed())
}

func TestRun_ClosedBusChannelIsFatal(t *testing.T) {
	bus := newFakeBus()
	monitor := newFakeMonitor()
	d := newTestDaemon(bus, monitor, nil)

	done := runDaemon(context.Background(), d)
	close(bus.events)

	err := waitDone(t, done)
	var fatal *FatalError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, "connection to the bus closed", fatal.Message)
}

func TestRun_DeviceEventsSyncTree(t *testing.T) {
	bus := newFakeBus()
	monitor := newFakeMonitor()
	d := newTestDaemon(bus, monitor, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := runDaemon(ctx, d)
	bus.events <- dbus.ConnectionAcquired{}
	bus.events <- dbus.NameAcquired{Name: "org.gpiod"}

	monitor.events <- uevent.Event{Action: "add", Name: "gpiochip0", Subsystem: "gpio"}
	bus.waitChange(t)
	monitor.events <- uevent.Event{Action: "remove", Name: "gpiochip0", Subsystem: "gpio"}
	bus.waitChange(t)

	// Neither of these touches the tree: unknown action, not a chip.
	monitor.events <- uevent.Event{Action: "change", Name: "gpiochip0", Subsystem: "gpio"}
	monitor.events <- uevent.Event{Action: "add", Name: "ttyUSB0", Subsystem: "gpio"}
	time.Sleep(100 * time.Millisecond)

	cancel()
	require.NoError(t, waitDone(t, done))

	assert.Equal(t, []string{"gpiochip0"}, bus.addedChips())
	assert.Equal(t, []string{"gpiochip0"}, bus.removedChips())
}

func TestRun_DeviceEventDeliveredExactlyOnce(t *testing.T) {
	bus := newFakeBus()
	monitor := newFakeMonitor()
	d := newTestDaemon(bus, monitor, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := runDaemon(ctx, d)
	bus.events <- dbus.ConnectionAcquired{}
	bus.events <- dbus.NameAcquired{Name: "org.gpiod"}

	monitor.events <- uevent.Event{Action: "add", Name: "gpiochip0", Subsystem: "gpio"}
	bus.waitChange(t)

	cancel()
	require.NoError(t, waitDone(t, done))

	// The literal action and name were preserved and seen once.
	assert.Equal(t, []string{"gpiochip0"}, bus.addedChips())
}

func TestRun_MonitorFailureIsNotFatal(t *testing.T) {
	bus := newFakeBus()
	monitor := newFakeMonitor()
	d := newTestDaemon(bus, monitor, []string{"gpiochip0"})

	var logs bytes.Buffer
	d.logger = slog.New(slog.NewTextHandler(&logs, nil))

	ctx, cancel := context.WithCancel(context.Background())
	done := runDaemon(ctx, d)
	bus.events <- dbus.ConnectionAcquired{}
	bus.events <- dbus.NameAcquired{Name: "org.gpiod"}
	bus.waitChange(t)

	// The monitor dying costs hotplug tracking, not the process.
	close(monitor.events)
	select {
	case err := <-done:
		t.Fatalf("daemon stopped on monitor failure: %v", err)
	case <-time.After(200 * time.Millisecond):
	}

	cancel()
	require.NoError(t, waitDone(t, done))
	assert.Contains(t, logs.String(), "hotplug monitor stopped")
}

func TestFatalError(t *testing.T) {
	cause := errors.New("underlying")
	err := &FatalError{Message: "connection to the bus closed", Err: cause}

	assert.Equal(t, "connection to the bus closed: underlying", err.Error())
	assert.ErrorIs(t, err, cause)

	err = &FatalError{Message: "connection to the bus closed"}
	assert.Equal(t, "connection to the bus closed", err.Error())
}
