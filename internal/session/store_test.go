package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angola031/ecoswap-session/internal/backoff"
	"github.com/angola031/ecoswap-session/internal/domain"
	"github.com/angola031/ecoswap-session/internal/platform/retry"
)

type fakeBackend struct {
	mu           sync.Mutex
	refreshCalls int
	refreshFn    func(ctx context.Context, refreshToken string) (*domain.Credential, error)
	signOutCalls int
	signOutErr   error
}

func (b *fakeBackend) RefreshSession(ctx context.Context, refreshToken string) (*domain.Credential, error) {
	b.mu.Lock()
	b.refreshCalls++
	b.mu.Unlock()
	return b.refreshFn(ctx, refreshToken)
}

func (b *fakeBackend) SignOut(ctx context.Context, accessToken string) error {
	b.mu.Lock()
	b.signOutCalls++
	b.mu.Unlock()
	return b.signOutErr
}

func (b *fakeBackend) calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.refreshCalls
}

type fakePersist struct {
	mu    sync.Mutex
	cred  *domain.Credential
	wiped bool
}

func (p *fakePersist) Load(context.Context) (*domain.Credential, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cred, nil
}

func (p *fakePersist) Save(_ context.Context, cred *domain.Credential) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cred = cred
	return nil
}

func (p *fakePersist) Clear(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cred = nil
	return nil
}

func (p *fakePersist) Wipe(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cred = nil
	p.wiped = true
	return nil
}

func freshCredential(clock clockwork.Clock, ttl time.Duration) *domain.Credential {
	return &domain.Credential{
		AccessToken:  "access-" + ttl.String(),
		RefreshToken: "refresh-" + ttl.String(),
		ExpiresAt:    clock.Now().Add(ttl),
	}
}

func newTestStore(t *testing.T, clock clockwork.Clock, backend *fakeBackend) (*Store, *fakePersist) {
	t.Helper()
	persist := &fakePersist{}
	inv := retry.NewInvoker(backoff.NewLedger(clock), clock, retry.Policy{
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
		MaxDelay:   4 * time.Millisecond,
	})
	store := NewStore(backend, persist, inv, clock, Options{})
	t.Cleanup(store.Stop)
	return store, persist
}

func installCredential(store *Store, cred *domain.Credential) {
	store.mu.Lock()
	store.cred = cred
	store.lastErr = nil
	store.mu.Unlock()
}

func TestStatus_AbsentWithoutCredential(t *testing.T) {
	store, _ := newTestStore(t, clockwork.NewFakeClock(), &fakeBackend{})

	status := store.Status()
	assert.Equal(t, domain.StateAbsent, status.State)
	assert.False(t, status.HasCredential)
	assert.False(t, status.IsValid)
}

func TestStatus_ValidToExpiringByClockAlone(t *testing.T) {
	clock := clockwork.NewFakeClock()
	backend := &fakeBackend{}
	store, _ := newTestStore(t, clock, backend)
	installCredential(store, freshCredential(clock, 10*time.Minute))

	assert.Equal(t, domain.StateValid, store.Status().State)
	assert.True(t, store.Valid())

	// 6 minutes later only 4 minutes remain, inside the 5-minute window.
	clock.Advance(6 * time.Minute)
	assert.Equal(t, domain.StateExpiring, store.Status().State)
	assert.False(t, store.Valid())
	assert.Zero(t, backend.calls(), "status recomputation must not touch the network")
}

func TestRefresh_IdempotentFastPath(t *testing.T) {
	clock := clockwork.NewFakeClock()
	backend := &fakeBackend{}
	store, _ := newTestStore(t, clock, backend)
	installCredential(store, freshCredential(clock, time.Hour))

	assert.True(t, store.Refresh(context.Background()))
	assert.Zero(t, backend.calls())
}

func TestRefresh_ExpiringIssuesExactlyOneRenewal(t *testing.T) {
	clock := clockwork.NewFakeClock()
	backend := &fakeBackend{}
	backend.refreshFn = func(context.Context, string) (*domain.Credential, error) {
		return freshCredential(clock, time.Hour), nil
	}
	store, persist := newTestStore(t, clock, backend)
	installCredential(store, freshCredential(clock, 4*time.Minute))

	require.Equal(t, domain.StateExpiring, store.Status().State)
	assert.True(t, store.Refresh(context.Background()))
	assert.Equal(t, 1, backend.calls())
	assert.Equal(t, domain.StateValid, store.Status().State)

	persist.mu.Lock()
	assert.NotNil(t, persist.cred, "renewed credential must be persisted")
	persist.mu.Unlock()
}

func TestAccessToken_ExpiryInvariant(t *testing.T) {
	clock := clockwork.NewFakeClock()
	backend := &fakeBackend{}
	store, _ := newTestStore(t, clock, backend)
	installCredential(store, freshCredential(clock, time.Hour))

	token, ok := store.AccessToken(context.Background())
	require.True(t, ok)
	assert.NotEmpty(t, token)

	status := store.Status()
	require.NotNil(t, status.ExpiresAt)
	assert.True(t, status.ExpiresAt.After(clock.Now()))
}

func TestRefresh_FailureDemotesToInvalid(t *testing.T) {
	clock := clockwork.NewRealClock()
	backend := &fakeBackend{}
	backend.refreshFn = func(context.Context, string) (*domain.Credential, error) {
		return nil, domain.ErrUnauthorized
	}
	store, persist := newTestStore(t, clock, backend)
	installCredential(store, &domain.Credential{
		AccessToken:  "stale",
		RefreshToken: "handle",
		ExpiresAt:    clock.Now().Add(time.Minute),
	})

	assert.False(t, store.Refresh(context.Background()))
	assert.Equal(t, 4, backend.calls(), "invoker budget is 4 attempts")

	status := store.Status()
	assert.Equal(t, domain.StateInvalid, status.State)
	assert.False(t, status.HasCredential)
	assert.NotEmpty(t, status.LastError)

	_, ok := store.AccessToken(context.Background())
	assert.False(t, ok)
	assert.Equal(t, 4, backend.calls(), "no renewal without a refresh handle")

	persist.mu.Lock()
	assert.Nil(t, persist.cred)
	persist.mu.Unlock()
}

func TestRefresh_ConcurrentCallersShareOneRenewal(t *testing.T) {
	clock := clockwork.NewRealClock()
	gate := make(chan struct{})
	backend := &fakeBackend{}
	backend.refreshFn = func(context.Context, string) (*domain.Credential, error) {
		<-gate
		return freshCredential(clock, time.Hour), nil
	}
	store, _ := newTestStore(t, clock, backend)
	installCredential(store, &domain.Credential{
		AccessToken:  "stale",
		RefreshToken: "handle",
		ExpiresAt:    clock.Now().Add(time.Minute),
	})

	results := make(chan bool, 2)
	go func() { results <- store.Refresh(context.Background()) }()

	require.Eventually(t, func() bool { return backend.calls() == 1 }, time.Second, time.Millisecond)
	go func() { results <- store.Refresh(context.Background()) }()
	time.Sleep(50 * time.Millisecond)
	close(gate)

	assert.True(t, <-results)
	assert.True(t, <-results)
	assert.Equal(t, 1, backend.calls(), "concurrent renewals must collapse into one backend call")
}

func TestHandleEvent_SignedInInstallsCredential(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store, persist := newTestStore(t, clock, &fakeBackend{})

	store.HandleEvent(context.Background(), domain.AuthEvent{
		Type:    domain.EventSignedIn,
		Session: freshCredential(clock, time.Hour),
	})

	assert.True(t, store.Valid())
	persist.mu.Lock()
	assert.NotNil(t, persist.cred)
	persist.mu.Unlock()
}

func TestHandleEvent_TokenRefreshedReplacesCredential(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store, _ := newTestStore(t, clock, &fakeBackend{})
	installCredential(store, freshCredential(clock, time.Minute))

	replacement := freshCredential(clock, 2*time.Hour)
	store.HandleEvent(context.Background(), domain.AuthEvent{
		Type:    domain.EventTokenRefreshed,
		Session: replacement,
	})

	token, ok := store.CurrentToken()
	require.True(t, ok)
	assert.Equal(t, replacement.AccessToken, token)
}

func TestHandleEvent_SignedOutClearsCredential(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store, persist := newTestStore(t, clock, &fakeBackend{})
	installCredential(store, freshCredential(clock, time.Hour))

	store.HandleEvent(context.Background(), domain.AuthEvent{Type: domain.EventSignedOut})

	assert.Equal(t, domain.StateAbsent, store.Status().State)
	_, ok := store.CurrentToken()
	assert.False(t, ok)
	persist.mu.Lock()
	assert.Nil(t, persist.cred)
	persist.mu.Unlock()
}

func TestHandleEvent_UserUpdatedKeepsCredential(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store, _ := newTestStore(t, clock, &fakeBackend{})
	installCredential(store, freshCredential(clock, time.Hour))

	store.HandleEvent(context.Background(), domain.AuthEvent{Type: domain.EventUserUpdated})

	assert.True(t, store.Valid())
}

func TestLoadPersisted_InstallsStoredCredential(t *testing.T) {
	clock := clockwork.NewFakeClock()
	backend := &fakeBackend{}
	persist := &fakePersist{cred: freshCredential(clock, time.Hour)}
	inv := retry.NewInvoker(backoff.NewLedger(clock), clock, retry.Policy{BaseDelay: time.Millisecond})
	store := NewStore(backend, persist, inv, clock, Options{})
	t.Cleanup(store.Stop)

	require.NoError(t, store.LoadPersisted(context.Background()))
	assert.True(t, store.Valid())
}

func TestLoadPersisted_DiscardsExpiredWithoutHandle(t *testing.T) {
	clock := clockwork.NewFakeClock()
	persist := &fakePersist{cred: &domain.Credential{
		AccessToken: "dead",
		ExpiresAt:   clock.Now().Add(-time.Hour),
	}}
	inv := retry.NewInvoker(backoff.NewLedger(clock), clock, retry.Policy{BaseDelay: time.Millisecond})
	store := NewStore(&fakeBackend{}, persist, inv, clock, Options{})
	t.Cleanup(store.Stop)

	require.NoError(t, store.LoadPersisted(context.Background()))
	assert.Equal(t, domain.StateAbsent, store.Status().State)
	persist.mu.Lock()
	assert.Nil(t, persist.cred)
	persist.mu.Unlock()
}

func TestBackgroundTick_RenewsExpiringCredential(t *testing.T) {
	clock := clockwork.NewFakeClock()
	backend := &fakeBackend{}
	backend.refreshFn = func(context.Context, string) (*domain.Credential, error) {
		return freshCredential(clock, time.Hour), nil
	}
	store, _ := newTestStore(t, clock, backend)
	installCredential(store, freshCredential(clock, 4*time.Minute))

	store.Start()
	clock.BlockUntil(1)
	clock.Advance(DefaultRefreshTick)

	require.Eventually(t, func() bool { return backend.calls() == 1 }, time.Second, time.Millisecond)
}

func TestSignOut_ClearsEvenWhenBackendFails(t *testing.T) {
	clock := clockwork.NewFakeClock()
	backend := &fakeBackend{signOutErr: assert.AnError}
	store, persist := newTestStore(t, clock, backend)
	installCredential(store, freshCredential(clock, time.Hour))

	err := store.SignOut(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 1, backend.signOutCalls)
	assert.Equal(t, domain.StateAbsent, store.Status().State)
	persist.mu.Lock()
	assert.Nil(t, persist.cred)
	persist.mu.Unlock()
}

func TestTerminate_WipesNamespace(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store, persist := newTestStore(t, clock, &fakeBackend{})
	installCredential(store, freshCredential(clock, time.Hour))

	store.Terminate(context.Background())

	_, ok := store.AccessToken(context.Background())
	assert.False(t, ok)
	persist.mu.Lock()
	assert.True(t, persist.wiped)
	persist.mu.Unlock()
}
