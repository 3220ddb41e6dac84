// Package server exposes the session core over HTTP: status and token
// endpoints, logout, the activity websocket ingest, and observability
// routes.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/angola031/ecoswap-session/internal/activity"
	"github.com/angola031/ecoswap-session/internal/domain"
	"github.com/angola031/ecoswap-session/internal/platform/config"
	"github.com/angola031/ecoswap-session/internal/platform/requestid"
)

const browserSessionName = "session"

// sessionControl is the session store surface the handlers need.
type sessionControl interface {
	domain.SessionService
	Terminate(ctx context.Context)
}

// Options carries the optional wiring: a readiness probe and a callback
// fired when the session ends (manual logout or termination), used to
// broadcast invalidations across instances.
type Options struct {
	Ready        func(ctx context.Context) error
	OnSessionEnd func(ctx context.Context, reason string)
}

type Server struct {
	echo        *echo.Echo
	config      *config.Config
	session     sessionControl
	bus         *activity.Bus
	terminator  *activity.Terminator
	limits      *ConnectionLimits
	cookieStore *sessions.CookieStore
	upgrader    websocket.Upgrader
	ready       func(ctx context.Context) error
	onEnd       func(ctx context.Context, reason string)
}

func New(cfg *config.Config, session sessionControl, bus *activity.Bus, terminator *activity.Terminator, opts Options) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(requestIDMiddleware)

	cookieStore := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	cookieStore.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400,
		HttpOnly: true,
		Secure:   cfg.AppEnv == "production",
		SameSite: http.SameSiteLaxMode,
	}

	srv := &Server{
		echo:        e,
		config:      cfg,
		session:     session,
		bus:         bus,
		terminator:  terminator,
		limits:      NewConnectionLimits(int64(cfg.MaxWebSocketConnections), 16, 10, 10),
		cookieStore: cookieStore,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		ready: opts.Ready,
		onEnd: opts.OnSessionEnd,
	}
	srv.registerRoutes()
	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	return s.echo.Start(fmt.Sprintf(":%s", s.config.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// requestIDMiddleware tags every request context with a short ID that
// the logging handler picks up.
func requestIDMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		ctx := requestid.Into(req.Context(), requestid.New())
		c.SetRequest(req.WithContext(ctx))
		return next(c)
	}
}

// ensureBrowserSession assigns a stable browser session ID cookie so
// activity and termination can be attributed to a browser.
func (s *Server) ensureBrowserSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		sess, err := s.cookieStore.Get(c.Request(), browserSessionName)
		if err == nil {
			if _, ok := sess.Values["sid"]; !ok {
				sess.Values["sid"] = uuid.NewString()
				if err := sess.Save(c.Request(), c.Response()); err != nil {
					slog.Warn("Failed to save browser session", "error", err)
				}
			}
		}
		return next(c)
	}
}

// guardTerminated short-circuits session endpoints once the inactivity
// deadline has fired: cookies are erased and the caller is pointed at
// the sign-in page.
func (s *Server) guardTerminated(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.terminator != nil && s.terminator.Fired() {
			s.expireBrowserSession(c)
			return c.JSON(http.StatusUnauthorized, map[string]string{
				"error":    "session terminated",
				"redirect": s.terminator.RedirectTarget(),
			})
		}
		return next(c)
	}
}

func (s *Server) loginRedirect(reason string) string {
	if s.config.AdminSurface {
		return "/admin/login?reason=" + reason
	}
	return "/login?reason=" + reason
}
