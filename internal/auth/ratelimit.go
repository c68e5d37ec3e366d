package auth

import (
	"strconv"
	"sync"
	"time"
)

// rateCounter tracks one fixed window. The window resets at fixed boundaries,
// so a burst straddling a boundary can admit up to twice the nominal rate;
// this is the accepted trade-off for O(1) bookkeeping.
type rateCounter struct {
	count       int
	windowStart time.Time
}

// FixedWindowLimiter counts requests per "{ip}:{userID}" key (bare IP while
// unauthenticated) in fixed windows. Counters are pruned lazily when observed
// stale beyond twice the window; there is no background sweep.
//
// The limiter is safe for concurrent use.
type FixedWindowLimiter struct {
	mu       sync.Mutex
	enabled  bool
	max      int
	window   time.Duration
	counters map[string]*rateCounter
	lastGC   time.Time
	now      func() time.Time
}

// NewFixedWindowLimiter constructs a limiter. A disabled limiter admits
// everything.
func NewFixedWindowLimiter(enabled bool, max int, window time.Duration) *FixedWindowLimiter {
	return &FixedWindowLimiter{
		enabled:  enabled,
		max:      max,
		window:   window,
		counters: make(map[string]*rateCounter),
		now:      time.Now,
	}
}

func rateKey(ip string, userID int64) string {
	if userID == 0 {
		return ip
	}
	return ip + ":" + strconv.FormatInt(userID, 10)
}

// Allow records one request for the key and reports whether it stays within
// the window's budget.
func (l *FixedWindowLimiter) Allow(ip string, userID int64) bool {
	if !l.enabled {
		return true
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.maybeGC(now)

	key := rateKey(ip, userID)
	c, ok := l.counters[key]
	if !ok || now.Sub(c.windowStart) > l.window {
		l.counters[key] = &rateCounter{count: 1, windowStart: now}
		return true
	}
	c.count++
	return c.count <= l.max
}

// PurgeUser drops every counter keyed to the user. Best-effort cleanup on
// logout; not required for correctness.
func (l *FixedWindowLimiter) PurgeUser(userID int64) {
	if userID == 0 {
		return
	}
	suffix := ":" + strconv.FormatInt(userID, 10)
	l.mu.Lock()
	defer l.mu.Unlock()
	for key := range l.counters {
		if len(key) > len(suffix) && key[len(key)-len(suffix):] == suffix {
			delete(l.counters, key)
		}
	}
}

// maybeGC sweeps counters stale beyond 2x the window, at most once per window.
// Caller holds the mutex.
func (l *FixedWindowLimiter) maybeGC(now time.Time) {
	if now.Sub(l.lastGC) < l.window {
		return
	}
	l.lastGC = now
	for key, c := range l.counters {
		if now.Sub(c.windowStart) > 2*l.window {
			delete(l.counters, key)
		}
	}
}

// setClock overrides the time source in tests.
func (l *FixedWindowLimiter) setClock(fn func() time.Time) {
	if fn != nil {
		l.now = fn
	}
}
