package dbus

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	"github.com/jmylchreest/gpiodbus/internal/gpio"
)

// errNoTree is returned for chip registrations arriving before a bus
// connection exists. The state machine makes this unreachable in
// practice: the monitor only starts after the name is acquired.
var errNoTree = errors.New("object tree not initialized")

// exporter is the subset of *dbus.Conn the tree uses. Faked in tests.
type exporter interface {
	Export(v interface{}, path dbus.ObjectPath, iface string) error
	Emit(path dbus.ObjectPath, name string, values ...interface{}) error
}

// Tree is the routing table from object paths to exported chip
// objects. It is seeded from enumeration when the bus name is acquired
// and kept in sync with hotplug add/remove events afterwards. Method
// calls to paths not in the table are answered by the bus library with
// a single UnknownObject error reply.
type Tree struct {
	conn   exporter
	open   func(name string) (gpioChip, error)
	logger *slog.Logger

	mu    sync.RWMutex
	chips map[string]*chipObject
}

// NewTree creates an empty Tree exporting on conn.
func NewTree(conn exporter, logger *slog.Logger) *Tree {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tree{
		conn: conn,
		open: func(name string) (gpioChip, error) {
			return gpio.Open(name)
		},
		logger: logger,
		chips:  make(map[string]*chipObject),
	}
}

// Add opens the named chip and exports it. Adding a chip that is
// already present is not an error: the duplicate is logged and ignored.
func (t *Tree) Add(name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.chips[name]; ok {
		t.logger.Debug("chip already registered, ignoring", "chip", name)
		return nil
	}

	chip, err := t.open(name)
	if err != nil {
		return fmt.Errorf("failed to register %s: %w", name, err)
	}

	obj := &chipObject{
		name:   name,
		path:   ChipPath(name),
		chip:   chip,
		logger: t.logger,
	}

	if err := t.export(obj); err != nil {
		_ = chip.Close()
		return fmt.Errorf("failed to export %s: %w", name, err)
	}
	t.chips[name] = obj

	t.logger.Info("chip registered", "chip", name, "path", string(obj.path))
	t.emit("ChipAdded", obj.path)
	return nil
}

// Remove unexports and closes the named chip. Removing an unknown chip
// is logged and ignored.
func (t *Tree) Remove(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	obj, ok := t.chips[name]
	if !ok {
		t.logger.Debug("chip not registered, ignoring removal", "chip", name)
		return
	}
	delete(t.chips, name)

	t.unexport(obj.path)
	if err := obj.chip.Close(); err != nil {
		t.logger.Warn("failed to close chip", "chip", name, "error", err)
	}

	t.logger.Info("chip deregistered", "chip", name, "path", string(obj.path))
	t.emit("ChipRemoved", obj.path)
}

// Paths returns the object paths of all registered chips, sorted.
func (t *Tree) Paths() []dbus.ObjectPath {
	t.mu.RLock()
	defer t.mu.RUnlock()

	paths := make([]dbus.ObjectPath, 0, len(t.chips))
	for _, obj := range t.chips {
		paths = append(paths, obj.path)
	}
	sort.Slice(paths, func(i, j int) bool { return paths[i] < paths[j] })
	return paths
}

// Close unexports and closes every registered chip.
func (t *Tree) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for name, obj := range t.chips {
		t.unexport(obj.path)
		_ = obj.chip.Close()
		delete(t.chips, name)
	}
}

func (t *Tree) export(obj *chipObject) error {
	if err := t.conn.Export(obj, obj.path, ChipInterface); err != nil {
		return err
	}
	node := &introspect.Node{
		Name: string(obj.path),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			{
				Name:    ChipInterface,
				Methods: chipMethods(),
			},
		},
	}
	return t.conn.Export(introspect.NewIntrospectable(node), obj.path,
		"org.freedesktop.DBus.Introspectable")
}

func (t *Tree) unexport(path dbus.ObjectPath) {
	if err := t.conn.Export(nil, path, ChipInterface); err != nil {
		t.logger.Warn("failed to unexport chip", "path", string(path), "error", err)
	}
	_ = t.conn.Export(nil, path, "org.freedesktop.DBus.Introspectable")
}

func (t *Tree) emit(member string, path dbus.ObjectPath) {
	if err := t.conn.Emit(ManagerPath, ManagerInterface+"."+member, path); err != nil {
		t.logger.Warn("failed to emit signal", "signal", member, "error", err)
	}
}

// ChipPath returns the object path a chip is exported at.
func ChipPath(name string) dbus.ObjectPath {
	return dbus.ObjectPath(chipPathBase + "/" + escapePathElement(name))
}

// escapePathElement maps a device name onto the characters an object
// path element may contain.
func escapePathElement(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "_"
	}
	return b.String()
}
