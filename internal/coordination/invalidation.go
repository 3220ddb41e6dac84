// Package coordination broadcasts session invalidations across
// instances via Redis Pub/Sub, so a sign-out or forced termination on
// one instance clears the session everywhere.
package coordination

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// Invalidation is the message published when a session ends.
type Invalidation struct {
	Reason string    `json:"reason"`
	Origin string    `json:"origin"`
	At     time.Time `json:"at"`
}

// Invalidator publishes and consumes session invalidations. Each
// instance carries a unique origin ID so it can ignore its own
// broadcasts.
type Invalidator struct {
	rdb       *goredis.Client
	namespace string
	origin    string
}

func NewInvalidator(rdb *goredis.Client, namespace string) *Invalidator {
	return &Invalidator{
		rdb:       rdb,
		namespace: namespace,
		origin:    uuid.NewString(),
	}
}

func (i *Invalidator) channel() string {
	return i.namespace + ":invalidate"
}

// Publish broadcasts that the session ended, with the reason
// (manual/timeout/signed_out).
func (i *Invalidator) Publish(ctx context.Context, reason string) error {
	msg := Invalidation{Reason: reason, Origin: i.origin, At: time.Now()}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal invalidation: %w", err)
	}
	return i.rdb.Publish(ctx, i.channel(), data).Err()
}

// Subscription is an active invalidation listener.
type Subscription struct {
	sub    *goredis.PubSub
	cancel context.CancelFunc
}

// Close unsubscribes and stops the listener.
func (s *Subscription) Close() {
	s.cancel()
	_ = s.sub.Close()
}

// Subscribe listens for invalidations from other instances and calls
// handler with the reason. Broadcasts from this instance are skipped.
func (i *Invalidator) Subscribe(ctx context.Context, handler func(reason string)) *Subscription {
	sub := i.rdb.Subscribe(ctx, i.channel())
	subCtx, cancel := context.WithCancel(ctx)

	go func() {
		msgCh := sub.Channel()
		for {
			select {
			case msg, ok := <-msgCh:
				if !ok {
					return
				}
				var inv Invalidation
				if err := json.Unmarshal([]byte(msg.Payload), &inv); err != nil {
					slog.Warn("Failed to unmarshal invalidation message", "error", err)
					continue
				}
				if inv.Origin == i.origin {
					continue
				}
				handler(inv.Reason)
			case <-subCtx.Done():
				return
			}
		}
	}()

	return &Subscription{sub: sub, cancel: cancel}
}
