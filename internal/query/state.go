package query

import (
	"errors"
	"fmt"
	"sync"
)

// State is one step of a query's lifecycle.
type State int

const (
	Idle State = iota
	Translating
	Validating
	Executing
	Analyzing
	Done
	Failed
)

var stateNames = [...]string{"idle", "translating", "validating", "executing", "analyzing", "done", "failed"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Terminal reports whether s ends a query.
func (s State) Terminal() bool { return s == Done || s == Failed }

// ErrIllegalTransition is the class of every rejected transition.
var ErrIllegalTransition = errors.New("query: illegal state transition")

// TransitionError is a rejected transition.
type TransitionError struct {
	From, To State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s -> %s", ErrIllegalTransition, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrIllegalTransition }

// next lists the legal forward moves. Failed is legal from every state but
// itself, and a finished machine may start over at Translating.
var next = map[State]State{
	Idle:        Translating,
	Translating: Validating,
	Validating:  Executing,
	Executing:   Analyzing,
	Analyzing:   Done,
}

// Machine tracks one pipeline's state. It is safe for concurrent use; a
// second query started while one is in flight is an illegal transition.
type Machine struct {
	mu    sync.Mutex
	state State
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Busy reports whether a query is in flight.
func (m *Machine) Busy() bool {
	s := m.State()
	return s != Idle && !s.Terminal()
}

// Transition moves to `to` or returns a *TransitionError.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !legal(m.state, to) {
		return &TransitionError{From: m.state, To: to}
	}
	m.state = to
	return nil
}

func legal(from, to State) bool {
	switch {
	case to == Failed:
		return from != Failed
	case to == Translating && from.Terminal():
		return true
	}
	n, ok := next[from]
	return ok && n == to
}
