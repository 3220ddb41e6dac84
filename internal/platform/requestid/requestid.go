// Package requestid tags inbound requests with a short random ID and
// surfaces it on every log record emitted while handling them.
package requestid

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
)

// LogKey is the attribute name under which the ID appears in records.
const LogKey = "request_id"

type ctxKey struct{}

// New returns a fresh 16-character hex ID.
func New() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// Into attaches id to ctx.
func Into(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// From reads the ID from ctx. The second return is false when the
// context carries none.
func From(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok && id != ""
}

// LogHandler decorates a slog.Handler so records pick up the request ID
// from their context.
type LogHandler struct {
	next slog.Handler
}

// Wrap builds a LogHandler around next.
func Wrap(next slog.Handler) LogHandler {
	return LogHandler{next: next}
}

func (h LogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h LogHandler) Handle(ctx context.Context, rec slog.Record) error {
	if id, ok := From(ctx); ok {
		rec = rec.Clone()
		rec.AddAttrs(slog.String(LogKey, id))
	}
	return h.next.Handle(ctx, rec)
}

func (h LogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return LogHandler{next: h.next.WithAttrs(attrs)}
}

func (h LogHandler) WithGroup(name string) slog.Handler {
	return LogHandler{next: h.next.WithGroup(name)}
}
