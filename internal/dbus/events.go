package dbus

import "fmt"

// Event is a bus ownership lifecycle notification delivered to the
// event loop. The set of events is sealed.
type Event interface {
	ownerEvent()
}

// ConnectionAcquired reports that a live connection to the system bus
// exists. The connection itself stays owned by the Server.
type ConnectionAcquired struct{}

func (ConnectionAcquired) ownerEvent() {}

// NameAcquired reports that the daemon became the primary owner of its
// well-known name.
type NameAcquired struct {
	Name string
}

func (NameAcquired) ownerEvent() {}

// NameLost is terminal: whatever the reason, the process must exit
// with a failure status.
type NameLost struct {
	Reason LostReason
	Err    error
}

func (NameLost) ownerEvent() {}

// LostReason distinguishes the three ways ownership can end. They
// differ only in the exit message; the remedial action is identical.
type LostReason int

const (
	// LostConnectionFailed means a bus connection was never established.
	LostConnectionFailed LostReason = iota
	// LostConnectionClosed means the established connection went away.
	LostConnectionClosed
	// LostNameRevoked means the bus took the name away, or another
	// owner already held it.
	LostNameRevoked
)

// Message returns the exit message for the reason.
func (r LostReason) Message(name string) string {
	switch r {
	case LostConnectionFailed:
		return "unable to make connection to the bus"
	case LostConnectionClosed:
		return "connection to the bus closed"
	default:
		return fmt.Sprintf("name %q lost on the bus", name)
	}
}
