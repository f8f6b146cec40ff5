package pubsub

import "sync/atomic"

// State is the connection lifecycle state of a Client.
type State uint32

// Client states.
const (
	// StateUninitialized means no transport has been created yet.
	StateUninitialized State = iota
	StateDisconnected
	StateConnected
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// stateManager handles atomic state transitions.
type stateManager struct {
	state atomic.Uint32
}

func (sm *stateManager) get() State {
	return State(sm.state.Load())
}

func (sm *stateManager) set(s State) {
	sm.state.Store(uint32(s))
}

// transition moves from one state to another and reports whether it did.
func (sm *stateManager) transition(from, to State) bool {
	return sm.state.CompareAndSwap(uint32(from), uint32(to))
}
