// Package courtesy implements the Courtesy Monitor (C9): a single
// allow/disallow gate the Worker Pool consults before starting or
// continuing a task, so a worker can suspend itself out of courtesy to
// its host machine (on battery, under interactive use, etc.) without the
// pool needing to know why.
package courtesy

import "sync"

// Monitor is the courtesy gate. Safe for concurrent use. The zero value is
// not ready for use; call New.
type Monitor struct {
	mu      sync.Mutex
	cond    *sync.Cond
	allowed bool
}

// New creates a Monitor. allowed is the initial state.
func New(allowed bool) *Monitor {
	m := &Monitor{allowed: allowed}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Allowed reports whether work is currently permitted.
func (m *Monitor) Allowed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.allowed
}

// SetAllowed changes the gate state, waking any goroutine blocked in
// WaitUntilAllowed.
func (m *Monitor) SetAllowed(allowed bool) {
	m.mu.Lock()
	changed := m.allowed != allowed
	m.allowed = allowed
	m.mu.Unlock()
	if changed && allowed {
		m.cond.Broadcast()
	}
}

// WaitUntilAllowed blocks until the gate is open. Returns immediately if
// it already is.
func (m *Monitor) WaitUntilAllowed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for !m.allowed {
		m.cond.Wait()
	}
}
