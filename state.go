package lum

// LifecycleState is the state a module instance is in.
//
// The normal progression is Registered -> Initializing -> Running ->
// Stopping -> Stopped. Failed is terminal and reachable from Initializing,
// Running, and Stopping; a Failed module is never retried within the same
// process lifetime and never serves events.
type LifecycleState int

const (
	StateRegistered LifecycleState = iota
	StateInitializing
	StateRunning
	StateStopping
	StateStopped
	StateFailed
)

func (s LifecycleState) String() string {
	switch s {
	case StateRegistered:
		return "registered"
	case StateInitializing:
		return "initializing"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions can occur from s.
func (s LifecycleState) Terminal() bool {
	return s == StateStopped || s == StateFailed
}
