// Package session holds the credential and its lifecycle: validity
// checks, proactive and just-in-time renewal, and teardown.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/angola031/ecoswap-session/internal/domain"
	"github.com/angola031/ecoswap-session/internal/metrics"
	"github.com/angola031/ecoswap-session/internal/platform/retry"
)

const (
	// DefaultRenewalThreshold is the lookahead window before expiry at
	// which proactive renewal triggers.
	DefaultRenewalThreshold = 5 * time.Minute
	// DefaultRefreshTick is the interval of the background proactive
	// renewal check.
	DefaultRefreshTick = 10 * time.Minute
)

// Store owns the credential. State is derived lazily from the credential
// and the clock; no timer is needed for the Valid -> Expiring transition.
// Concurrent renewal attempts are collapsed into one in-flight call.
type Store struct {
	mu      sync.Mutex
	cred    *domain.Credential
	lastErr error

	backend domain.AuthBackend
	persist domain.CredentialStore
	invoker *retry.Invoker
	clock   clockwork.Clock

	threshold time.Duration
	tickEvery time.Duration

	renewals singleflight.Group

	stopCh   chan struct{}
	stopOnce sync.Once
}

var _ domain.SessionService = (*Store)(nil)

type Options struct {
	RenewalThreshold time.Duration
	RefreshTick      time.Duration
}

func NewStore(backend domain.AuthBackend, persist domain.CredentialStore, invoker *retry.Invoker, clock clockwork.Clock, opts Options) *Store {
	if opts.RenewalThreshold <= 0 {
		opts.RenewalThreshold = DefaultRenewalThreshold
	}
	if opts.RefreshTick <= 0 {
		opts.RefreshTick = DefaultRefreshTick
	}
	return &Store{
		backend:   backend,
		persist:   persist,
		invoker:   invoker,
		clock:     clock,
		threshold: opts.RenewalThreshold,
		tickEvery: opts.RefreshTick,
		stopCh:    make(chan struct{}),
	}
}

// LoadPersisted installs the credential persisted by a previous process,
// if any. Expired credentials without a refresh handle are discarded.
func (s *Store) LoadPersisted(ctx context.Context) error {
	cred, err := s.persist.Load(ctx)
	if err != nil {
		return err
	}
	if cred == nil {
		return nil
	}
	if cred.Expired(s.clock.Now()) && cred.RefreshToken == "" {
		return s.persist.Clear(ctx)
	}

	s.mu.Lock()
	s.cred = cred
	s.lastErr = nil
	s.mu.Unlock()
	return nil
}

// Status recomputes the session view from the credential and the clock.
func (s *Store) Status() domain.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	st := s.stateLocked(now)
	status := domain.SessionStatus{
		State:         st,
		HasCredential: s.cred != nil,
		IsValid:       st == domain.StateValid,
	}
	if s.cred != nil {
		expires := s.cred.ExpiresAt
		status.ExpiresAt = &expires
	}
	if s.lastErr != nil {
		status.LastError = s.lastErr.Error()
	}
	return status
}

// Valid reports whether a credential is held and comfortably away from
// expiry.
func (s *Store) Valid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked(s.clock.Now()) == domain.StateValid
}

// Refresh renews the credential when it is expiring or renewable-invalid.
// When the session is already valid it returns true without a network
// call. Renewal failures demote the store and surface as false, never as
// a panic; callers treat "no token" as "redirect to sign-in".
func (s *Store) Refresh(ctx context.Context) bool {
	return s.refresh(ctx, false)
}

// ForceRefresh renews even when the session looks valid. Used by the
// request client after an authorization failure.
func (s *Store) ForceRefresh(ctx context.Context) bool {
	return s.refresh(ctx, true)
}

func (s *Store) refresh(ctx context.Context, force bool) bool {
	s.mu.Lock()
	if !force && s.stateLocked(s.clock.Now()) == domain.StateValid {
		s.mu.Unlock()
		return true
	}
	var handle string
	if s.cred != nil {
		handle = s.cred.RefreshToken
	}
	s.mu.Unlock()

	if handle == "" {
		return false
	}

	// Independent call chains observing Expiring at the same time share
	// one in-flight renewal instead of each issuing a backend call.
	_, err, shared := s.renewals.Do("renewal", func() (any, error) {
		return s.renew(ctx, handle)
	})
	if shared {
		metrics.SessionRenewalsTotal.WithLabelValues("deduplicated").Inc()
	}
	return err == nil
}

func (s *Store) renew(ctx context.Context, handle string) (*domain.Credential, error) {
	start := s.clock.Now()
	cred, err := retry.Do(ctx, s.invoker, "session_renewal", nil, func(ctx context.Context) (*domain.Credential, error) {
		return s.backend.RefreshSession(ctx, handle)
	})
	metrics.SessionRenewalDuration.Observe(s.clock.Since(start).Seconds())

	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		metrics.SessionRenewalsTotal.WithLabelValues("failure").Inc()
		slog.Warn("Session renewal failed, discarding credential", "error", err)

		s.mu.Lock()
		s.cred = nil
		s.lastErr = domain.ErrRenewalFailed
		s.mu.Unlock()

		if clearErr := s.persist.Clear(context.WithoutCancel(ctx)); clearErr != nil {
			slog.Warn("Failed to clear persisted credential", "error", clearErr)
		}
		return nil, err
	}

	metrics.SessionRenewalsTotal.WithLabelValues("success").Inc()
	s.install(ctx, cred)
	return cred, nil
}

// install replaces the credential. Replacement is atomic from the
// caller's perspective.
func (s *Store) install(ctx context.Context, cred *domain.Credential) {
	s.mu.Lock()
	s.cred = cred
	s.lastErr = nil
	s.mu.Unlock()

	if err := s.persist.Save(context.WithoutCancel(ctx), cred); err != nil {
		slog.Warn("Failed to persist credential", "error", err)
	}
}

// AccessToken renews if needed and returns the token only while the
// session is valid. A returned token always satisfies expiry > now.
func (s *Store) AccessToken(ctx context.Context) (string, bool) {
	s.refresh(ctx, false)

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	if s.stateLocked(now) != domain.StateValid || s.cred.Expired(now) {
		return "", false
	}
	return s.cred.AccessToken, true
}

// CurrentToken returns the held token without triggering renewal, and
// only if it has not expired.
func (s *Store) CurrentToken() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cred == nil || s.cred.Expired(s.clock.Now()) {
		return "", false
	}
	return s.cred.AccessToken, true
}

// HandleEvent applies a backend lifecycle event to the store.
func (s *Store) HandleEvent(ctx context.Context, ev domain.AuthEvent) {
	switch ev.Type {
	case domain.EventSignedIn, domain.EventTokenRefreshed:
		if ev.Session == nil {
			return
		}
		cred := *ev.Session
		s.install(ctx, &cred)
		slog.Info("Credential replaced from auth event", "event", string(ev.Type))
	case domain.EventSignedOut:
		s.Clear(ctx)
		metrics.SessionTerminationsTotal.WithLabelValues("signed_out").Inc()
		slog.Info("Credential cleared from auth event")
	case domain.EventUserUpdated:
		// Profile change only; the credential is untouched.
	}
}

// SignOut revokes the session server-side and clears the credential
// locally. Local clearing happens even when revocation fails.
func (s *Store) SignOut(ctx context.Context) error {
	token, ok := s.CurrentToken()
	var err error
	if ok {
		err = s.backend.SignOut(ctx, token)
	}
	s.Clear(ctx)
	return err
}

// Clear drops the credential and its persisted copy.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	s.cred = nil
	s.lastErr = nil
	s.mu.Unlock()

	if err := s.persist.Clear(context.WithoutCancel(ctx)); err != nil {
		slog.Warn("Failed to clear persisted credential", "error", err)
	}
}

// Terminate drops the credential and wipes the whole auth namespace from
// persistent storage. Used by forced termination.
func (s *Store) Terminate(ctx context.Context) {
	s.mu.Lock()
	s.cred = nil
	s.lastErr = nil
	s.mu.Unlock()

	if err := s.persist.Wipe(context.WithoutCancel(ctx)); err != nil {
		slog.Warn("Failed to wipe credential namespace", "error", err)
	}
}

// Start launches the background proactive renewal tick. Renewal is not
// purely reactive to expiry: every tick, a credential inside the
// lookahead window is renewed ahead of demand.
func (s *Store) Start() {
	ticker := s.clock.NewTicker(s.tickEvery)
	go func() {
		for {
			select {
			case <-ticker.Chan():
				s.mu.Lock()
				held := s.cred != nil
				s.mu.Unlock()
				if held {
					s.Refresh(context.Background())
				}
			case <-s.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop halts the background tick.
func (s *Store) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
}

func (s *Store) stateLocked(now time.Time) domain.SessionState {
	if s.cred == nil {
		if s.lastErr != nil {
			return domain.StateInvalid
		}
		return domain.StateAbsent
	}
	if s.cred.ExpiringWithin(now, s.threshold) {
		return domain.StateExpiring
	}
	return domain.StateValid
}
