// Package activity tracks user interaction and enforces inactivity
// timeouts: an in-process event bus fed by the websocket ingest, a
// monitor that throttles and detects idleness, and a terminator that
// force-ends sessions after a hard deadline.
package activity

import (
	"sync"

	"github.com/angola031/ecoswap-session/internal/domain"
)

// Bus fans interaction events out to subscribers. Publishing never
// blocks: a subscriber that cannot keep up loses events rather than
// stalling the ingest path.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan domain.ActivityEvent
	nextID int
	closed bool
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan domain.ActivityEvent)}
}

// Subscribe registers a buffered subscriber channel. The returned
// cancel function removes the subscription and closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan domain.ActivityEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan domain.ActivityEvent, buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber with buffer room.
func (b *Bus) Publish(ev domain.ActivityEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Close shuts the bus down and closes all subscriber channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
