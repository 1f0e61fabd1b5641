package gateway

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultIdleTTL is how long a caller may be idle before its limiters are dropped
const DefaultIdleTTL = time.Hour

// RateLimiter applies per-minute and per-day request budgets to each caller
// IP using token buckets. A zero budget disables that window.
//
// Thread Safety: Safe for concurrent use.
type RateLimiter struct {
	perMinute int
	perDay    int
	idleTTL   time.Duration
	now       func() time.Time

	mu      sync.Mutex
	callers map[string]*callerLimits
}

type callerLimits struct {
	minute   *rate.Limiter
	day      *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a limiter allowing perMinute requests per minute
// and perDay requests per day for each caller.
func NewRateLimiter(perMinute, perDay int) *RateLimiter {
	return &RateLimiter{
		perMinute: perMinute,
		perDay:    perDay,
		idleTTL:   DefaultIdleTTL,
		now:       time.Now,
		callers:   make(map[string]*callerLimits),
	}
}

// Enabled reports whether any budget is configured
func (l *RateLimiter) Enabled() bool {
	return l != nil && (l.perMinute > 0 || l.perDay > 0)
}

func budget(n int, window time.Duration) *rate.Limiter {
	if n <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(window/time.Duration(n)), n)
}

// Allow consumes one request from the caller's budgets. A request is only
// charged when every window has capacity.
func (l *RateLimiter) Allow(caller string) bool {
	if !l.Enabled() {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	c, ok := l.callers[caller]
	if !ok {
		c = &callerLimits{
			minute: budget(l.perMinute, time.Minute),
			day:    budget(l.perDay, 24*time.Hour),
		}
		l.callers[caller] = c
	}
	c.lastSeen = now

	var granted []*rate.Reservation
	for _, lim := range []*rate.Limiter{c.minute, c.day} {
		if lim == nil {
			continue
		}
		res := lim.ReserveN(now, 1)
		if !res.OK() || res.DelayFrom(now) > 0 {
			res.CancelAt(now)
			for _, g := range granted {
				g.CancelAt(now)
			}
			return false
		}
		granted = append(granted, res)
	}
	return true
}

// Sweep drops callers idle for longer than the idle TTL whose budgets have
// fully refilled, and returns how many were removed. A caller with a drained
// daily budget is kept so that eviction cannot hand out a fresh one.
func (l *RateLimiter) Sweep() int {
	if l == nil {
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.idleTTL)
	removed := 0
	for caller, c := range l.callers {
		if c.lastSeen.Before(cutoff) && c.refilled(now) {
			delete(l.callers, caller)
			removed++
		}
	}
	return removed
}

// refilled reports whether every window is back to its full burst.
func (c *callerLimits) refilled(now time.Time) bool {
	for _, lim := range []*rate.Limiter{c.minute, c.day} {
		if lim != nil && lim.TokensAt(now) < float64(lim.Burst()) {
			return false
		}
	}
	return true
}

// Len returns the number of tracked callers
func (l *RateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.callers)
}

// Run sweeps idle callers every interval until ctx is canceled.
func (l *RateLimiter) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			l.Sweep()
		}
	}
}

// callerIP returns the IP part of the request's remote address.
// Forwarding headers are not trusted.
func callerIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
