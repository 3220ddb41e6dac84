package server

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// LimitReason describes why a connection was rejected.
type LimitReason string

const (
	LimitReasonGlobal LimitReason = "global_limit"
	LimitReasonPerIP  LimitReason = "per_ip_limit"
	LimitReasonRate   LimitReason = "rate_limit"
)

// ConnectionLimits gates the activity websocket ingest: a global cap
// per instance, a per-IP cap, and a per-IP token bucket on connection
// attempts.
type ConnectionLimits struct {
	globalCurrent atomic.Int64
	globalMax     int64

	perIPMu  sync.Mutex
	perIP    map[string]int
	perIPMax int

	rateMu      sync.Mutex
	rateLimits  map[string]*ipRateEntry
	ratePerSec  rate.Limit
	rateBurst   int
	nextCleanup time.Time
}

type ipRateEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const rateCleanupEvery = 5 * time.Minute

func NewConnectionLimits(globalMax int64, perIPMax int, perSecond float64, burst int) *ConnectionLimits {
	return &ConnectionLimits{
		globalMax:   globalMax,
		perIP:       make(map[string]int),
		perIPMax:    perIPMax,
		rateLimits:  make(map[string]*ipRateEntry),
		ratePerSec:  rate.Limit(perSecond),
		rateBurst:   burst,
		nextCleanup: time.Now().Add(rateCleanupEvery),
	}
}

// Acquire claims a slot for the given IP, checking the rate limit
// first, then the global and per-IP caps. On rejection the reason names
// the limit that was hit.
func (l *ConnectionLimits) Acquire(ip string) (bool, LimitReason) {
	if !l.allowRate(ip) {
		return false, LimitReasonRate
	}
	if !l.acquireGlobal() {
		return false, LimitReasonGlobal
	}
	if !l.acquirePerIP(ip) {
		l.globalCurrent.Add(-1)
		return false, LimitReasonPerIP
	}
	return true, ""
}

// Release frees the slot claimed by Acquire.
func (l *ConnectionLimits) Release(ip string) {
	l.perIPMu.Lock()
	if count := l.perIP[ip]; count > 1 {
		l.perIP[ip] = count - 1
	} else if count == 1 {
		delete(l.perIP, ip)
	}
	l.perIPMu.Unlock()

	l.globalCurrent.Add(-1)
}

// Current returns the number of held slots.
func (l *ConnectionLimits) Current() int64 {
	return l.globalCurrent.Load()
}

func (l *ConnectionLimits) acquireGlobal() bool {
	for {
		current := l.globalCurrent.Load()
		if current >= l.globalMax {
			return false
		}
		if l.globalCurrent.CompareAndSwap(current, current+1) {
			return true
		}
	}
}

func (l *ConnectionLimits) acquirePerIP(ip string) bool {
	l.perIPMu.Lock()
	defer l.perIPMu.Unlock()
	if l.perIP[ip] >= l.perIPMax {
		return false
	}
	l.perIP[ip]++
	return true
}

func (l *ConnectionLimits) allowRate(ip string) bool {
	l.rateMu.Lock()
	defer l.rateMu.Unlock()

	now := time.Now()
	if now.After(l.nextCleanup) {
		cutoff := now.Add(-2 * rateCleanupEvery)
		for key, entry := range l.rateLimits {
			if entry.lastSeen.Before(cutoff) {
				delete(l.rateLimits, key)
			}
		}
		l.nextCleanup = now.Add(rateCleanupEvery)
	}

	entry, ok := l.rateLimits[ip]
	if !ok {
		entry = &ipRateEntry{limiter: rate.NewLimiter(l.ratePerSec, l.rateBurst)}
		l.rateLimits[ip] = entry
	}
	entry.lastSeen = now
	return entry.limiter.Allow()
}
