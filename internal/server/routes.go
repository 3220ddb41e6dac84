package server

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	// Observability endpoints (no auth required)
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Session lifecycle
	s.echo.GET("/session/status", s.handleSessionStatus, s.ensureBrowserSession, s.guardTerminated)
	s.echo.POST("/session/refresh", s.handleSessionRefresh, s.ensureBrowserSession, s.guardTerminated)
	s.echo.GET("/session/token", s.handleSessionToken, s.ensureBrowserSession, s.guardTerminated)

	// Logout works even after termination so cookies can be cleaned up.
	s.echo.POST("/auth/logout", s.handleLogout, s.ensureBrowserSession)

	// Activity ingest from the UI
	s.echo.GET("/ws/activity", s.handleActivityWS, s.guardTerminated)
}
