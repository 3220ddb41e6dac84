package activity

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/angola031/ecoswap-session/internal/metrics"
)

const (
	// DefaultHardTimeout is the inactivity deadline after which the
	// session is force-terminated.
	DefaultHardTimeout = 30 * time.Minute
	// DefaultResetGuard coalesces deadline resets: activity within this
	// window of the previous reset does not move the deadline.
	DefaultResetGuard = 30 * time.Second
)

// TerminationHooks are the actions run when the deadline fires.
// EraseCredentials always runs, even when SignOut fails: a terminated
// session must not leave tokens behind.
type TerminationHooks struct {
	SignOut          func(ctx context.Context) error
	EraseCredentials func(ctx context.Context)
	OnTimeout        func(redirect string)
}

// Terminator enforces the hard inactivity deadline. Touch moves the
// deadline forward, rate-limited by the reset guard; once fired, the
// terminator is spent and further touches are ignored.
type Terminator struct {
	clock   clockwork.Clock
	timeout time.Duration
	guard   time.Duration
	hooks   TerminationHooks
	admin   bool
	onReset func()

	mu        sync.Mutex
	lastReset time.Time
	fired     bool
	timer     clockwork.Timer

	stopCh   chan struct{}
	stopOnce sync.Once
}

type TerminatorOptions struct {
	HardTimeout  time.Duration
	ResetGuard   time.Duration
	AdminSurface bool
	// OnReset is called whenever a touch actually moves the deadline.
	OnReset func()
}

func NewTerminator(clock clockwork.Clock, opts TerminatorOptions, hooks TerminationHooks) *Terminator {
	if opts.HardTimeout <= 0 {
		opts.HardTimeout = DefaultHardTimeout
	}
	if opts.ResetGuard <= 0 {
		opts.ResetGuard = DefaultResetGuard
	}
	return &Terminator{
		clock:   clock,
		timeout: opts.HardTimeout,
		guard:   opts.ResetGuard,
		hooks:   hooks,
		admin:   opts.AdminSurface,
		onReset: opts.OnReset,
		stopCh:  make(chan struct{}),
	}
}

// Start anchors the deadline at now and launches the timer loop.
func (t *Terminator) Start() {
	t.mu.Lock()
	t.lastReset = t.clock.Now()
	t.timer = t.clock.NewTimer(t.timeout)
	t.mu.Unlock()

	go func() {
		for {
			select {
			case <-t.timer.Chan():
				t.mu.Lock()
				remaining := t.timeout - t.clock.Since(t.lastReset)
				if remaining > 0 {
					t.timer.Reset(remaining)
					t.mu.Unlock()
					continue
				}
				t.fired = true
				t.mu.Unlock()
				t.terminate()
				return
			case <-t.stopCh:
				t.mu.Lock()
				if t.timer != nil {
					t.timer.Stop()
				}
				t.mu.Unlock()
				return
			}
		}
	}()
}

// Stop disarms the deadline without terminating.
func (t *Terminator) Stop() {
	t.stopOnce.Do(func() {
		close(t.stopCh)
	})
}

// Touch moves the deadline forward. Touches within the guard window of
// the previous accepted reset are dropped to avoid timer churn.
func (t *Terminator) Touch() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fired {
		return
	}
	now := t.clock.Now()
	if now.Sub(t.lastReset) < t.guard {
		return
	}
	t.lastReset = now
	if t.onReset != nil {
		t.onReset()
	}
}

// Fired reports whether the deadline has already terminated the session.
func (t *Terminator) Fired() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fired
}

// RedirectTarget is where a terminated user lands, carrying the reason
// so the sign-in page can explain itself.
func (t *Terminator) RedirectTarget() string {
	if t.admin {
		return "/admin/login?reason=timeout"
	}
	return "/login?reason=timeout"
}

func (t *Terminator) terminate() {
	slog.Info("Inactivity deadline reached, terminating session", "timeout", t.timeout)
	metrics.SessionTerminationsTotal.WithLabelValues("timeout").Inc()

	ctx := context.Background()
	if t.hooks.SignOut != nil {
		if err := t.hooks.SignOut(ctx); err != nil {
			slog.Warn("Sign-out during termination failed, erasing credentials anyway", "error", err)
		}
	}
	if t.hooks.EraseCredentials != nil {
		t.hooks.EraseCredentials(ctx)
	}
	if t.hooks.OnTimeout != nil {
		t.hooks.OnTimeout(t.RedirectTarget())
	}
}
