// Package dbus exposes GPIO chips on the system bus and owns the
// daemon's well-known name. Losing the name, in any of its forms, is
// reported to the event loop as a terminal event; the package never
// terminates the process itself.
package dbus

import (
	"log/slog"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
)

const (
	// ManagerInterface is the root service interface name.
	ManagerInterface = "org.gpiod.Manager"
	// ChipInterface is the per-chip interface name.
	ChipInterface = "org.gpiod.Chip"
	// ManagerPath is the root object path.
	ManagerPath = dbus.ObjectPath("/org/gpiod")

	chipPathBase = "/org/gpiod/chips"

	// ErrorFailed is the generic structured error returned to callers.
	ErrorFailed = "org.gpiod.Error.Failed"
	// ErrorUnknownLine is returned for offsets outside a chip's range.
	ErrorUnknownLine = "org.gpiod.Error.UnknownLine"
)

const nameLostSignal = "org.freedesktop.DBus.NameLost"

// Server owns the daemon's identity on the system bus: the connection,
// the well-known name, the exported object tree. One instance per
// process.
type Server struct {
	busName string
	version string
	logger  *slog.Logger

	// connect is swapped out in tests.
	connect func() (*dbus.Conn, error)

	mu       sync.Mutex
	state    NameState
	conn     *dbus.Conn
	tree     *Tree
	released bool

	// Buffered for the at-most-three events one ownership sequence can
	// produce, so the sender never blocks on a departed consumer.
	events chan Event
}

// NewServer creates a Server that will claim busName on the system bus.
func NewServer(busName, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		busName: busName,
		version: version,
		logger:  logger,
		connect: func() (*dbus.Conn, error) {
			return dbus.ConnectSystemBus()
		},
		state:  StateUnrequested,
		events: make(chan Event, 4),
	}
}

// Events returns the channel ownership transitions are delivered on.
func (s *Server) Events() <-chan Event {
	return s.events
}

// State returns the current name ownership state.
func (s *Server) State() NameState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Own starts the ownership sequence asynchronously. Transitions arrive
// on Events; a NameLost event is terminal.
func (s *Server) Own() {
	s.transition(StateRequested)
	go s.own()
}

func (s *Server) own() {
	conn, err := s.connect()
	if err != nil {
		s.lost(LostConnectionFailed, err)
		return
	}

	s.mu.Lock()
	if s.released {
		// Release ran while the dial was in flight. The connection must
		// not be installed after teardown; discard it here.
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.conn = conn
	s.tree = NewTree(conn, s.logger)
	s.mu.Unlock()

	s.transition(StateConnectionAcquired)
	s.logger.Debug("bus connection acquired", "unique_name", conn.Names()[0])
	s.events <- ConnectionAcquired{}

	if err := s.exportManager(conn); err != nil {
		s.lost(LostConnectionClosed, err)
		return
	}

	// Watch for revocation before requesting the name so the window
	// between acquiring and watching cannot swallow a NameLost.
	sigCh := make(chan *dbus.Signal, 8)
	conn.Signal(sigCh)
	if err := conn.AddMatchSignal(
		dbus.WithMatchSender("org.freedesktop.DBus"),
		dbus.WithMatchInterface("org.freedesktop.DBus"),
		dbus.WithMatchMember("NameLost"),
		dbus.WithMatchArg(0, s.busName),
	); err != nil {
		s.lost(LostConnectionClosed, err)
		return
	}

	reply, err := conn.RequestName(s.busName, dbus.NameFlagDoNotQueue)
	if err != nil {
		s.lost(LostConnectionClosed, err)
		return
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		// Losing the race to another owner is an expected outcome,
		// fatal only for us.
		s.lost(LostNameRevoked, nil)
		return
	}

	s.transition(StateNameAcquired)
	s.logger.Debug("bus name acquired", "name", s.busName)
	s.events <- NameAcquired{Name: s.busName}

	for sig := range sigCh {
		if sig.Name != nameLostSignal || len(sig.Body) == 0 {
			continue
		}
		if name, ok := sig.Body[0].(string); ok && name == s.busName {
			s.lost(LostNameRevoked, nil)
			return
		}
	}

	// godbus closes the signal channel when the connection dies.
	s.lost(LostConnectionClosed, nil)
}

// AddChip registers a chip in the object tree.
func (s *Server) AddChip(name string) error {
	tree := s.currentTree()
	if tree == nil {
		return errNoTree
	}
	return tree.Add(name)
}

// RemoveChip deregisters a chip from the object tree.
func (s *Server) RemoveChip(name string) {
	if tree := s.currentTree(); tree != nil {
		tree.Remove(name)
	}
}

// Release tears down the object tree, relinquishes the name and closes
// the connection. Safe to call regardless of how far ownership got.
func (s *Server) Release() {
	s.mu.Lock()
	tree := s.tree
	conn := s.conn
	s.tree = nil
	s.conn = nil
	s.released = true
	s.mu.Unlock()

	if tree != nil {
		tree.Close()
	}
	if conn == nil {
		return
	}
	if _, err := conn.ReleaseName(s.busName); err != nil {
		s.logger.Warn("failed to release bus name", "name", s.busName, "error", err)
	}
	if err := conn.Close(); err != nil {
		s.logger.Warn("failed to close bus connection", "error", err)
	}
}

func (s *Server) currentTree() *Tree {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree
}

func (s *Server) exportManager(conn *dbus.Conn) error {
	m := &manager{
		tree:    s.currentTree(),
		version: s.version,
		started: time.Now(),
		logger:  s.logger,
	}
	if err := conn.Export(m, ManagerPath, ManagerInterface); err != nil {
		return err
	}

	node := &introspect.Node{
		Name: string(ManagerPath),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			{
				Name:    ManagerInterface,
				Methods: managerMethods(),
				Signals: managerSignals(),
			},
		},
	}
	return conn.Export(introspect.NewIntrospectable(node), ManagerPath,
		"org.freedesktop.DBus.Introspectable")
}

// transition moves the state machine forward. Illegal transitions are
// logged and dropped; in particular nothing moves out of NameLost.
func (s *Server) transition(next NameState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.canTransition(next) {
		s.logger.Debug("ignoring illegal state transition",
			"from", s.state.String(), "to", next.String())
		return false
	}
	s.state = next
	return true
}

func (s *Server) lost(reason LostReason, err error) {
	if !s.transition(StateNameLost) {
		return
	}
	s.events <- NameLost{Reason: reason, Err: err}
}
