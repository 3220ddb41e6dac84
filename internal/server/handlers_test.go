package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angola031/ecoswap-session/internal/activity"
	"github.com/angola031/ecoswap-session/internal/domain"
	"github.com/angola031/ecoswap-session/internal/platform/config"
)

type stubSession struct {
	status     domain.SessionStatus
	refreshOK  bool
	token      string
	tokenOK    bool
	signOutErr error
	signedOut  bool
	terminated bool
}

func (s *stubSession) Status() domain.SessionStatus { return s.status }
func (s *stubSession) Valid() bool                  { return s.status.IsValid }
func (s *stubSession) Refresh(context.Context) bool { return s.refreshOK }
func (s *stubSession) AccessToken(context.Context) (string, bool) {
	return s.token, s.tokenOK
}
func (s *stubSession) SignOut(context.Context) error {
	s.signedOut = true
	return s.signOutErr
}
func (s *stubSession) Terminate(context.Context) { s.terminated = true }

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:                  "test",
		Port:                    "0",
		SessionSecret:           "test-secret",
		MaxWebSocketConnections: 100,
	}
}

func newTestServer(t *testing.T, cfg *config.Config, sess sessionControl, term *activity.Terminator, opts Options) *Server {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}
	return New(cfg, sess, activity.NewBus(), term, opts)
}

func TestHandleSessionStatus(t *testing.T) {
	expires := time.Now().Add(time.Hour)
	sess := &stubSession{status: domain.SessionStatus{
		State:         domain.StateValid,
		HasCredential: true,
		IsValid:       true,
		ExpiresAt:     &expires,
	}}
	srv := newTestServer(t, nil, sess, nil, Options{})

	req := httptest.NewRequest(http.MethodGet, "/session/status", nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var status domain.SessionStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, domain.StateValid, status.State)
	assert.True(t, status.IsValid)
}

func TestHandleSessionRefresh_Success(t *testing.T) {
	sess := &stubSession{refreshOK: true, status: domain.SessionStatus{State: domain.StateValid, IsValid: true}}
	srv := newTestServer(t, nil, sess, nil, Options{})

	req := httptest.NewRequest(http.MethodPost, "/session/refresh", nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleSessionRefresh_FailureRedirectsToLogin(t *testing.T) {
	sess := &stubSession{refreshOK: false}
	srv := newTestServer(t, nil, sess, nil, Options{})

	req := httptest.NewRequest(http.MethodPost, "/session/refresh", nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "/login?reason=expired", body["redirect"])
}

func TestHandleSessionRefresh_AdminSurfaceRedirect(t *testing.T) {
	cfg := testConfig()
	cfg.AdminSurface = true
	srv := newTestServer(t, cfg, &stubSession{}, nil, Options{})

	req := httptest.NewRequest(http.MethodPost, "/session/refresh", nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "/admin/login?reason=expired", body["redirect"])
}

func TestHandleSessionToken(t *testing.T) {
	sess := &stubSession{token: "tok-1", tokenOK: true}
	srv := newTestServer(t, nil, sess, nil, Options{})

	req := httptest.NewRequest(http.MethodGet, "/session/token", nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "tok-1", body["access_token"])
}

func TestHandleSessionToken_NoSession(t *testing.T) {
	srv := newTestServer(t, nil, &stubSession{}, nil, Options{})

	req := httptest.NewRequest(http.MethodGet, "/session/token", nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotContains(t, rec.Body.String(), "access_token")
}

func TestHandleLogout_ErasesCookiesAndRedirects(t *testing.T) {
	var endedReason string
	sess := &stubSession{}
	srv := newTestServer(t, nil, sess, nil, Options{
		OnSessionEnd: func(_ context.Context, reason string) { endedReason = reason },
	})

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.Host = "shop.ecoswap.dev"
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, sess.signedOut)
	assert.Equal(t, "manual", endedReason)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "/login?reason=manual", body["redirect"])

	expired := 0
	for _, c := range rec.Result().Cookies() {
		if c.MaxAge < 0 {
			expired++
		}
	}
	assert.GreaterOrEqual(t, expired, 45, "every auth cookie variant must be expired")
}

func TestHandleLogout_SignOutFailureStillClearsCookies(t *testing.T) {
	sess := &stubSession{signOutErr: assert.AnError}
	srv := newTestServer(t, nil, sess, nil, Options{})

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.Host = "shop.ecoswap.dev"
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Result().Cookies())
}

func TestGuardTerminated_BlocksSessionEndpoints(t *testing.T) {
	clock := clockwork.NewFakeClock()
	term := activity.NewTerminator(clock, activity.TerminatorOptions{HardTimeout: time.Minute}, activity.TerminationHooks{})
	term.Start()
	defer term.Stop()
	clock.BlockUntil(1)
	clock.Advance(time.Minute)
	require.Eventually(t, func() bool { return term.Fired() }, time.Second, time.Millisecond)

	srv := newTestServer(t, nil, &stubSession{refreshOK: true}, term, Options{})

	req := httptest.NewRequest(http.MethodGet, "/session/status", nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "/login?reason=timeout", body["redirect"])
}

func TestHandleLiveness(t *testing.T) {
	srv := newTestServer(t, nil, &stubSession{}, nil, Options{})

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestHandleReadiness_ProbeFailure(t *testing.T) {
	srv := newTestServer(t, nil, &stubSession{}, nil, Options{
		Ready: func(context.Context) error { return assert.AnError },
	})

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpointServes(t *testing.T) {
	srv := newTestServer(t, nil, &stubSession{}, nil, Options{})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "go_goroutines") ||
		strings.Contains(rec.Body.String(), "session_renewals_total"))
}
