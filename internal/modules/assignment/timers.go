// README: Cancelable timer registry keyed by assignment/retry identity.
package assignment

import (
	"sync"
	"time"
)

// timerRegistry owns every in-flight response timer and retry backoff of the
// orchestrator. Resolving an assignment cancels its timer through here; a
// callback that fires first unregisters itself, so cancel-after-fire is a
// harmless no-op.
type timerRegistry struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
}

func newTimerRegistry() *timerRegistry {
	return &timerRegistry{timers: make(map[string]*time.Timer)}
}

// schedule arms fn after d under key, replacing any timer already registered
// under the same key.
func (r *timerRegistry) schedule(key string, d time.Duration, fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	if old, ok := r.timers[key]; ok {
		old.Stop()
	}
	r.timers[key] = time.AfterFunc(d, func() {
		r.mu.Lock()
		delete(r.timers, key)
		closed := r.closed
		r.mu.Unlock()
		if !closed {
			fn()
		}
	})
}

// cancel stops the timer under key if it has not fired yet.
func (r *timerRegistry) cancel(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.timers[key]; ok {
		t.Stop()
		delete(r.timers, key)
	}
}

// close stops all timers and rejects further scheduling. Used on shutdown.
func (r *timerRegistry) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	for key, t := range r.timers {
		t.Stop()
		delete(r.timers, key)
	}
}
