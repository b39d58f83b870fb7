package dbus

// NameState tracks ownership of the daemon's well-known bus name.
// There is exactly one instance per process, owned by the Server.
type NameState int

const (
	// StateUnrequested is the initial state before ownership is requested.
	StateUnrequested NameState = iota
	// StateRequested means the ownership sequence has started.
	StateRequested
	// StateConnectionAcquired means a live bus connection exists.
	StateConnectionAcquired
	// StateNameAcquired means the daemon is the primary owner of the name.
	StateNameAcquired
	// StateNameLost is terminal. The process must exit; there is no
	// retry and no transition out of it.
	StateNameLost
)

// String returns the string representation of the state.
func (s NameState) String() string {
	switch s {
	case StateUnrequested:
		return "unrequested"
	case StateRequested:
		return "requested"
	case StateConnectionAcquired:
		return "connection-acquired"
	case StateNameAcquired:
		return "name-acquired"
	case StateNameLost:
		return "name-lost"
	default:
		return "unknown"
	}
}

// canTransition reports whether moving from s to next is legal.
// The happy path is strictly ordered; NameLost is reachable from any
// state after the initial one and is terminal.
func (s NameState) canTransition(next NameState) bool {
	if s == StateNameLost {
		return false
	}
	switch next {
	case StateRequested:
		return s == StateUnrequested
	case StateConnectionAcquired:
		return s == StateRequested
	case StateNameAcquired:
		return s == StateConnectionAcquired
	case StateNameLost:
		return s != StateUnrequested
	default:
		return false
	}
}
