package session

import "sync"

// Epoch tracks the current session scope behind a generation counter.
//
// Contract:
//   - Concurrency: safe for concurrent use.
//   - Begin bumps the generation even when the scope is unchanged, so a
//     logout/login cycle under the same identity still invalidates guards.
type Epoch struct {
	mu    sync.RWMutex
	scope Scope
	gen   uint64
}

// NewEpoch creates an epoch starting at the given scope, generation 1.
func NewEpoch(scope Scope) *Epoch {
	return &Epoch{scope: scope, gen: 1}
}

// Begin switches the current scope and invalidates all outstanding guards.
func (e *Epoch) Begin(scope Scope) {
	e.mu.Lock()
	e.scope = scope
	e.gen++
	e.mu.Unlock()
}

// Scope returns the current scope.
func (e *Epoch) Scope() Scope {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.scope
}

// Guard captures the current {scope, generation} pair.
// Deliveries that cross an async gap call Valid before mutating shared state.
func (e *Epoch) Guard() Guard {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Guard{epoch: e, scope: e.scope, gen: e.gen}
}

// Guard is a snapshot of the epoch at capture time.
type Guard struct {
	epoch *Epoch
	scope Scope
	gen   uint64
}

// Valid reports whether the epoch still matches the captured snapshot.
// A zero Guard is never valid.
func (g Guard) Valid() bool {
	if g.epoch == nil {
		return false
	}
	g.epoch.mu.RLock()
	defer g.epoch.mu.RUnlock()
	return g.epoch.gen == g.gen && g.epoch.scope == g.scope
}

// Scope returns the scope captured by the guard.
func (g Guard) Scope() Scope {
	return g.scope
}
