package swr

import (
	"sync"
	"time"
)

// throttle enforces a minimum interval between user- or event-triggered
// revalidations of the same key. Scheduler-driven revalidations bypass it.
type throttle struct {
	window time.Duration

	mu   sync.Mutex
	last map[string]time.Time
}

func newThrottle(window time.Duration) *throttle {
	return &throttle{
		window: window,
		last:   make(map[string]time.Time),
	}
}

// allow reports whether a throttled revalidation of key may proceed,
// recording the attempt when it may. Check and record are one atomic step so
// two concurrent triggers cannot both pass.
func (t *throttle) allow(key string) bool {
	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	if last, ok := t.last[key]; ok && now.Sub(last) < t.window {
		return false
	}
	t.last[key] = now
	return true
}

// clear forgets all recorded attempts, for session switches.
func (t *throttle) clear() {
	t.mu.Lock()
	t.last = make(map[string]time.Time)
	t.mu.Unlock()
}
