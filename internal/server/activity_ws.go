package server

import (
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/angola031/ecoswap-session/internal/domain"
	"github.com/angola031/ecoswap-session/internal/metrics"
)

const (
	wsReadLimit    = 1024
	wsPongWait     = 90 * time.Second
	wsWriteTimeout = 10 * time.Second
)

// handleActivityWS upgrades the connection and feeds interaction events
// from the UI into the activity bus. Events are tiny JSON frames like
// {"kind":"click"}; anything else on the wire ends the connection.
func (s *Server) handleActivityWS(c echo.Context) error {
	ip := c.RealIP()
	ok, reason := s.limits.Acquire(ip)
	if !ok {
		metrics.ActivityConnectionsRejectedTotal.WithLabelValues(string(reason)).Inc()
		slog.Warn("Rejected activity connection", "ip", ip, "reason", string(reason))
		return echo.NewHTTPError(503, "connection limit reached")
	}
	defer s.limits.Release(ip)

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade has already written the error response.
		return nil
	}
	defer conn.Close()

	metrics.ActivityConnections.Inc()
	defer metrics.ActivityConnections.Dec()

	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		var ev domain.ActivityEvent
		if err := conn.ReadJSON(&ev); err != nil {
			return nil
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		if ev.At.IsZero() {
			ev.At = time.Now()
		}
		s.bus.Publish(ev)
	}
}
