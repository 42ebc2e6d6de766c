package stream

import (
	"fmt"
	"sync"
)

// State represents the lifecycle of a streaming session
type State int

const (
	StateIdle State = iota
	StateStreaming
	StateComplete
	StateError
	StateCancelled
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateComplete:
		return "complete"
	case StateError:
		return "error"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state is final
func (s State) Terminal() bool {
	return s == StateComplete || s == StateError || s == StateCancelled
}

// Tracker records the state of concurrent streaming sessions keyed by id.
// All methods are safe for concurrent use.
type Tracker struct {
	mu     sync.RWMutex
	states map[string]State
}

// NewTracker creates an empty tracker
func NewTracker() *Tracker {
	return &Tracker{
		states: make(map[string]State),
	}
}

// Begin transitions a session to streaming. It fails when the session is
// already streaming, so a conversation can never run two generations at once.
func (t *Tracker) Begin(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.states[id] == StateStreaming {
		return fmt.Errorf("session %s is already streaming", id)
	}
	t.states[id] = StateStreaming
	return nil
}

// Set records a state transition for the session
func (t *Tracker) Set(id string, state State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.states[id] = state
}

// Get returns the current state of the session
func (t *Tracker) Get(id string) State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.states[id]
}

// Active reports whether the session is currently streaming
func (t *Tracker) Active(id string) bool {
	return t.Get(id) == StateStreaming
}

// Remove forgets the session entirely
func (t *Tracker) Remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.states, id)
}
