// Package retry is the single place that performs backoff sleeping.
// Higher components depend on it instead of re-implementing delay logic.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/angola031/ecoswap-session/internal/backoff"
	"github.com/angola031/ecoswap-session/internal/domain"
	"github.com/angola031/ecoswap-session/internal/metrics"
)

type Action int

const (
	Stop      Action = iota // permanent error, abort immediately
	Retry                   // transient error, exponential backoff
	Throttled               // rate-limited, note the ledger then back off
)

// Classify maps an operation error to a retry action.
type Classify func(err error) Action

// DefaultClassify treats throttle signals as Throttled, missing
// configuration as permanent, and everything else as transient with the
// full attempt budget.
func DefaultClassify(err error) Action {
	if _, ok := domain.AsThrottled(err); ok {
		return Throttled
	}
	if errors.Is(err, domain.ErrConfigurationMissing) {
		return Stop
	}
	return Retry
}

type Policy struct {
	MaxRetries int           // retries after the first attempt (default 3)
	BaseDelay  time.Duration // first backoff delay (default 1s)
	MaxDelay   time.Duration // backoff growth cap (default 30s)
	OnRetry    func(attempt int, err error, delay time.Duration)
}

const (
	defaultMaxRetries = 3
	defaultBaseDelay  = 1 * time.Second
	defaultMaxDelay   = 30 * time.Second
)

func (p Policy) withDefaults() Policy {
	if p.MaxRetries <= 0 {
		p.MaxRetries = defaultMaxRetries
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = defaultBaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = defaultMaxDelay
	}
	return p
}

// Invoker executes operations with exponential backoff, consulting the
// shared backoff ledger before every attempt.
type Invoker struct {
	ledger *backoff.Ledger
	clock  clockwork.Clock
	policy Policy
}

func NewInvoker(ledger *backoff.Ledger, clock clockwork.Clock, policy Policy) *Invoker {
	return &Invoker{ledger: ledger, clock: clock, policy: policy.withDefaults()}
}

type Operation[T any] func(ctx context.Context) (T, error)

// Do runs op with the invoker's retry policy. Attempts are numbered from
// zero; after a failed attempt n the delay is min(base*2^n, max). A
// throttle-classified failure additionally marks the ledger with the
// backend's Retry-After hint so independent call chains wait too. The
// exhausted-budget error carries the label for diagnostics.
func Do[T any](ctx context.Context, inv *Invoker, label string, classify Classify, op Operation[T]) (T, error) {
	var zero T
	if classify == nil {
		classify = DefaultClassify
	}
	p := inv.policy

	for attempt := 0; ; attempt++ {
		if wait, ok := inv.ledger.RemainingWait(); ok {
			if err := inv.sleep(ctx, wait); err != nil {
				return zero, fmt.Errorf("%s: %w", label, err)
			}
		}

		val, err := op(ctx)
		if err == nil {
			return val, nil
		}

		switch classify(err) {
		case Stop:
			return zero, &PermanentError{Label: label, Err: err}
		case Throttled:
			var hint time.Duration
			if te, ok := domain.AsThrottled(err); ok {
				hint = te.RetryAfter
			}
			inv.ledger.NoteThrottled(hint)
			metrics.ThrottleEventsTotal.Inc()
		}

		if attempt == p.MaxRetries {
			return zero, fmt.Errorf("%s: failed after %d attempts: %w", label, attempt+1, err)
		}

		delay := min(p.BaseDelay<<attempt, p.MaxDelay)
		metrics.RetryAttemptsTotal.WithLabelValues(label).Inc()
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, delay)
		}
		if err := inv.sleep(ctx, delay); err != nil {
			return zero, fmt.Errorf("%s: %w", label, err)
		}
	}
}

// DoVoid is Do for operations without a result.
func DoVoid(ctx context.Context, inv *Invoker, label string, classify Classify, op func(ctx context.Context) error) error {
	_, err := Do(ctx, inv, label, classify, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

func (inv *Invoker) sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-inv.clock.After(d):
		return nil
	case <-ctx.Done():
		return fmt.Errorf("cancelled during backoff: %w", ctx.Err())
	}
}

// PermanentError wraps a Stop-classified error.
type PermanentError struct {
	Label string
	Err   error
}

func (e *PermanentError) Error() string { return e.Label + ": " + e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }
