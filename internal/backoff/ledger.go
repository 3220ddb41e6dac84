// Package backoff holds the process-wide record of backend throttling.
package backoff

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultCooldown is applied when the backend throttles without a
// Retry-After hint.
const DefaultCooldown = 30 * time.Second

// Ledger records whether the backend is currently rate-limiting this
// process, and until when. One instance per process, injected into every
// collaborator. Invariant: limited implies retryAfter is in the future.
type Ledger struct {
	mu         sync.Mutex
	clock      clockwork.Clock
	limited    bool
	retryAfter time.Time
}

func NewLedger(clock clockwork.Clock) *Ledger {
	return &Ledger{clock: clock}
}

// IsLimited reports whether a wait period from a prior throttle signal is
// still in effect. Expiry is lazy: once the period has elapsed the flag
// is cleared here rather than by a timer.
func (l *Ledger) IsLimited() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.expireLocked()
	return l.limited
}

// RemainingWait returns the time until the client is eligible again, and
// whether a wait is in effect at all.
func (l *Ledger) RemainingWait() (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.expireLocked()
	if !l.limited {
		return 0, false
	}
	return l.retryAfter.Sub(l.clock.Now()), true
}

// NoteThrottled marks the ledger limited. A positive hint (the backend's
// Retry-After) sets the cooldown; otherwise DefaultCooldown applies.
func (l *Ledger) NoteThrottled(hint time.Duration) {
	if hint <= 0 {
		hint = DefaultCooldown
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limited = true
	l.retryAfter = l.clock.Now().Add(hint)
}

// Reset unconditionally clears the limited state. Used on subsystem
// re-initialization.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limited = false
	l.retryAfter = time.Time{}
}

func (l *Ledger) expireLocked() {
	if l.limited && !l.retryAfter.After(l.clock.Now()) {
		l.limited = false
		l.retryAfter = time.Time{}
	}
}
