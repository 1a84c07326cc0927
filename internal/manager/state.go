package manager

// ServerState is the lifecycle state of the managed server.
type ServerState int32

const (
	StateStopped ServerState = iota
	StateStarting
	StateStarted
	StateStopping
)

func (s ServerState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateStarted:
		return "started"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// canTransition reports whether from -> to is a lifecycle edge.
func canTransition(from, to ServerState) bool {
	if to == StateStopped {
		return from != StateStopped
	}
	switch {
	case from == StateStopped && to == StateStarting,
		from == StateStarting && to == StateStarted,
		from == StateStarted && to == StateStopping:
		return true
	}
	return false
}
