// Package statemachine provides a small generic state machine in Rob
// Pike's style: states are functions, and running a state returns the
// next one.
package statemachine

import (
	"sync"
)

// StateFn is one state of a machine over an entity of type T. Executing
// the state may mutate the entity and returns the next state; returning
// nil ends the machine.
type StateFn[T any] func(*T) StateFn[T]

// Machine drives an entity through StateFn states. Transitions are
// serialized, but the entity itself is only touched by the state
// functions the caller supplies.
type Machine[T any] struct {
	mu     sync.RWMutex
	entity *T
	state  StateFn[T]
}

// New returns a machine positioned at initial. A nil initial state makes
// the machine done from the start.
func New[T any](entity *T, initial StateFn[T]) *Machine[T] {
	return &Machine[T]{entity: entity, state: initial}
}

// Step runs the current state once and moves to the state it returns.
// It reports whether a state was run; a done machine returns false.
func (m *Machine[T]) Step() bool {
	return m.run()
}

// Dispatch positions the machine at fn and runs it once. A nil fn is
// ignored, leaving the machine where it was.
func (m *Machine[T]) Dispatch(fn StateFn[T]) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	m.state = fn
	m.mu.Unlock()
	m.run()
}

func (m *Machine[T]) run() bool {
	m.mu.Lock()
	fn := m.state
	m.mu.Unlock()
	if fn == nil {
		return false
	}

	// The state runs outside the lock so it may call SetState or
	// Current on this machine.
	next := fn(m.entity)

	m.mu.Lock()
	m.state = next
	m.mu.Unlock()
	return true
}

// SetState repositions the machine without running anything.
func (m *Machine[T]) SetState(fn StateFn[T]) {
	m.mu.Lock()
	m.state = fn
	m.mu.Unlock()
}

// Current returns the state the next Step would run.
func (m *Machine[T]) Current() StateFn[T] {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Done reports whether the machine has no state left to run.
func (m *Machine[T]) Done() bool {
	return m.Current() == nil
}
