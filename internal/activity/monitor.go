package activity

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/angola031/ecoswap-session/internal/domain"
	"github.com/angola031/ecoswap-session/internal/metrics"
)

const (
	// DefaultThrottle is the minimum spacing between forwarded activity
	// signals. Bursts of interaction collapse to one signal per window.
	DefaultThrottle = time.Second
	// DefaultIdleAfter is how long without qualifying activity before
	// the monitor reports the user idle.
	DefaultIdleAfter = 5 * time.Minute
)

// Monitor watches the interaction stream. Qualifying events are
// throttled and forwarded to OnActivity; a gap longer than the idle
// window fires OnInactive exactly once, re-armed by the next event.
type Monitor struct {
	clock     clockwork.Clock
	throttle  time.Duration
	idleAfter time.Duration

	onActivity func(domain.ActivityEvent)
	onInactive func()

	mu            sync.Mutex
	lastForwarded time.Time
	lastActivity  time.Time
	idle          bool
	timer         clockwork.Timer

	stopCh   chan struct{}
	stopOnce sync.Once
}

type MonitorOptions struct {
	Throttle  time.Duration
	IdleAfter time.Duration
}

func NewMonitor(clock clockwork.Clock, opts MonitorOptions, onActivity func(domain.ActivityEvent), onInactive func()) *Monitor {
	if opts.Throttle <= 0 {
		opts.Throttle = DefaultThrottle
	}
	if opts.IdleAfter <= 0 {
		opts.IdleAfter = DefaultIdleAfter
	}
	return &Monitor{
		clock:      clock,
		throttle:   opts.Throttle,
		idleAfter:  opts.IdleAfter,
		onActivity: onActivity,
		onInactive: onInactive,
		stopCh:     make(chan struct{}),
	}
}

// Start arms the idle timer. The timer loop owns the timer channel;
// Observe only moves the lastActivity watermark, so a fire is checked
// against the watermark and re-armed when activity arrived in between.
func (m *Monitor) Start() {
	m.mu.Lock()
	m.lastActivity = m.clock.Now()
	m.timer = m.clock.NewTimer(m.idleAfter)
	m.mu.Unlock()

	go func() {
		for {
			select {
			case <-m.timer.Chan():
				m.mu.Lock()
				remaining := m.idleAfter - m.clock.Since(m.lastActivity)
				if remaining > 0 {
					m.timer.Reset(remaining)
					m.mu.Unlock()
					continue
				}
				m.idle = true
				m.mu.Unlock()
				if m.onInactive != nil {
					m.onInactive()
				}
			case <-m.stopCh:
				m.mu.Lock()
				if m.timer != nil {
					m.timer.Stop()
				}
				m.mu.Unlock()
				return
			}
		}
	}()
}

// Stop halts the idle timer loop.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
	})
}

// Observe feeds one interaction event into the monitor. Non-qualifying
// kinds are ignored. Every qualifying event moves the activity watermark
// and defers the idle countdown; the throttle gates only whether
// OnActivity is forwarded.
func (m *Monitor) Observe(ev domain.ActivityEvent) {
	if !ev.Qualifies() {
		return
	}
	metrics.ActivityEventsTotal.WithLabelValues(string(ev.Kind)).Inc()

	m.mu.Lock()
	now := m.clock.Now()
	m.lastActivity = now
	if m.idle && m.timer != nil {
		// The idle fire consumed the timer; the next event re-arms it.
		m.idle = false
		m.timer.Reset(m.idleAfter)
	}
	forward := m.lastForwarded.IsZero() || now.Sub(m.lastForwarded) >= m.throttle
	if forward {
		m.lastForwarded = now
	}
	m.mu.Unlock()

	if forward && m.onActivity != nil {
		m.onActivity(ev)
	}
}

// Attach consumes events from the bus until the monitor is stopped or
// the subscription is closed.
func (m *Monitor) Attach(bus *Bus) {
	events, cancel := bus.Subscribe(64)
	go func() {
		defer cancel()
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				m.Observe(ev)
			case <-m.stopCh:
				return
			}
		}
	}()
}
