package server

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/angola031/ecoswap-session/internal/cookies"
	"github.com/angola031/ecoswap-session/internal/metrics"
)

func (s *Server) handleSessionStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.session.Status())
}

func (s *Server) handleSessionRefresh(c echo.Context) error {
	ctx := c.Request().Context()
	if !s.session.Refresh(ctx) {
		return c.JSON(http.StatusUnauthorized, map[string]any{
			"valid":    false,
			"redirect": s.loginRedirect("expired"),
		})
	}
	return c.JSON(http.StatusOK, s.session.Status())
}

func (s *Server) handleSessionToken(c echo.Context) error {
	ctx := c.Request().Context()
	token, ok := s.session.AccessToken(ctx)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{
			"error":    "no valid session",
			"redirect": s.loginRedirect("expired"),
		})
	}
	return c.JSON(http.StatusOK, map[string]string{"access_token": token})
}

// handleLogout signs out server-side, erases every auth cookie variant,
// and tells the client where to land. Cookie erasure happens even when
// revocation fails.
func (s *Server) handleLogout(c echo.Context) error {
	ctx := c.Request().Context()

	if err := s.session.SignOut(ctx); err != nil {
		slog.Warn("Sign-out failed, clearing cookies anyway", "error", err)
	}

	s.expireBrowserSession(c)
	cookies.EraseAll(c.Response(), c.Request().Host)

	metrics.SessionTerminationsTotal.WithLabelValues("manual").Inc()
	if s.onEnd != nil {
		s.onEnd(ctx, "manual")
	}

	return c.JSON(http.StatusOK, map[string]string{
		"redirect": s.loginRedirect("manual"),
	})
}

// expireBrowserSession invalidates the gorilla session cookie.
func (s *Server) expireBrowserSession(c echo.Context) {
	sess, err := s.cookieStore.Get(c.Request(), browserSessionName)
	if err != nil {
		return
	}
	sess.Options.MaxAge = -1
	if err := sess.Save(c.Request(), c.Response()); err != nil {
		slog.Warn("Failed to expire browser session", "error", err)
	}
}
