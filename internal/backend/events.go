package backend

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/angola031/ecoswap-session/internal/domain"
	"github.com/angola031/ecoswap-session/internal/platform/retry"
)

const redialPause = 5 * time.Second

// EventStream subscribes to the auth service's lifecycle events
// (SIGNED_IN, SIGNED_OUT, TOKEN_REFRESHED, USER_UPDATED) over a
// websocket and hands each event to the registered handler.
type EventStream struct {
	url     string
	apiKey  string
	dialer  *websocket.Dialer
	invoker *retry.Invoker
	clock   clockwork.Clock
	handler func(domain.AuthEvent)
}

func NewEventStream(baseURL, apiKey string, invoker *retry.Invoker, clock clockwork.Clock, handler func(domain.AuthEvent)) *EventStream {
	wsURL := strings.Replace(baseURL, "http", "ws", 1) + "/auth/v1/events"
	return &EventStream{
		url:     wsURL,
		apiKey:  apiKey,
		dialer:  &websocket.Dialer{HandshakeTimeout: httpCallTimeout},
		invoker: invoker,
		clock:   clock,
		handler: handler,
	}
}

// Run connects and consumes events until ctx is cancelled, redialing
// with backoff on connection loss.
func (s *EventStream) Run(ctx context.Context) {
	for {
		err := retry.DoVoid(ctx, s.invoker, "auth_event_stream", nil, func(ctx context.Context) error {
			return s.consume(ctx)
		})
		if ctx.Err() != nil {
			return
		}
		slog.Warn("Auth event stream disconnected, redialing", "error", err)

		select {
		case <-s.clock.After(redialPause):
		case <-ctx.Done():
			return
		}
	}
}

func (s *EventStream) consume(ctx context.Context) error {
	header := http.Header{"apikey": []string{s.apiKey}}
	conn, _, err := s.dialer.DialContext(ctx, s.url, header)
	if err != nil {
		return fmt.Errorf("failed to dial auth event stream: %w", err)
	}
	defer func() { _ = conn.Close() }()

	// Close the connection when ctx is cancelled so ReadJSON unblocks.
	// The watcher must not outlive its connection: consume returns on
	// every read error while the stream keeps redialing under the same
	// long-lived ctx.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		var ev domain.AuthEvent
		if err := conn.ReadJSON(&ev); err != nil {
			return fmt.Errorf("auth event stream read failed: %w", err)
		}
		if ev.Type == "" {
			continue
		}
		s.handler(ev)
	}
}
