package dbus

import (
	"log/slog"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
)

// manager is the root object of the service. It answers enumeration
// and identity queries; per-chip operations live on the chip objects.
type manager struct {
	tree    *Tree
	version string
	started time.Time
	logger  *slog.Logger
}

// ListChips returns the object paths of all chips currently exported.
// D-Bus method: ListChips() -> ao
func (m *manager) ListChips() ([]dbus.ObjectPath, *dbus.Error) {
	m.logger.Debug("ListChips called")
	return m.tree.Paths(), nil
}

// ServerInfo returns the daemon name, version and start time.
// D-Bus method: ServerInfo() -> (sst)
func (m *manager) ServerInfo() (string, string, uint64, *dbus.Error) {
	m.logger.Debug("ServerInfo called")
	return "gpiodbusd", m.version, uint64(m.started.Unix()), nil
}

// managerMethods returns the D-Bus method introspection data.
func managerMethods() []introspect.Method {
	return []introspect.Method{
		{
			Name: "ListChips",
			Args: []introspect.Arg{
				{Name: "chips", Type: "ao", Direction: "out"},
			},
		},
		{
			Name: "ServerInfo",
			Args: []introspect.Arg{
				{Name: "name", Type: "s", Direction: "out"},
				{Name: "version", Type: "s", Direction: "out"},
				{Name: "started", Type: "t", Direction: "out"},
			},
		},
	}
}

// managerSignals returns the D-Bus signal introspection data.
func managerSignals() []introspect.Signal {
	return []introspect.Signal{
		{
			Name: "ChipAdded",
			Args: []introspect.Arg{
				{Name: "path", Type: "o"},
			},
		},
		{
			Name: "ChipRemoved",
			Args: []introspect.Arg{
				{Name: "path", Type: "o"},
			},
		},
	}
}
