// Package guard implements keyed time-window idempotency guards:
// "has action A happened for key K within window W?". The throttle
// (15s) and the cart-recovery reminder (48h) are both instances.
// Entries live only in process memory; losing them on restart is
// accepted because these guards are advisory anti-spam, not
// correctness-critical. The durable once-a-day welcome guard is NOT a
// Window — it is a message-log query, see services.BotService.
package guard

import (
	"sync"
	"time"
)

// Window suppresses repeat actions for the same key inside a rolling
// time window. Allow is an atomic check-and-set: under concurrent
// calls for the same key exactly one caller wins the window.
type Window struct {
	ttl     time.Duration
	entries map[string]time.Time
	mu      sync.Mutex

	now func() time.Time // swapped out in tests
}

// NewWindow creates a guard with the given window duration.
func NewWindow(ttl time.Duration) *Window {
	return &Window{
		ttl:     ttl,
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Allow reports whether the action is allowed for key right now and,
// if so, records it in the same critical section. The check and the
// record are never separated by a suspension point, so two concurrent
// messages from the same sender cannot both pass.
func (w *Window) Allow(key string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if last, exists := w.entries[key]; exists && w.now().Sub(last) < w.ttl {
		return false
	}
	w.entries[key] = w.now()
	return true
}

// Forget drops the entry for key, re-arming the guard immediately.
func (w *Window) Forget(key string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.entries, key)
}

// Sweep removes entries older than the window and returns how many
// were dropped. Called periodically by the cleanup job.
func (w *Window) Sweep() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	removed := 0
	for key, last := range w.entries {
		if w.now().Sub(last) >= w.ttl {
			delete(w.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of live entries (for monitoring).
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}
