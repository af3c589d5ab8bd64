package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// SiteLimiter holds one token bucket per site. Sites impose independent limits,
// so a slow bucket for one site never delays another.
type SiteLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*rate.Limiter
	interval  time.Duration            // refill interval of one token
	burst     int                      // bucket capacity
	overrides map[string]time.Duration // per-site refill intervals
}

// NewSiteLimiter creates a limiter that refills one token per interval with
// the given burst. overrides may be nil.
func NewSiteLimiter(interval time.Duration, burst int, overrides map[string]time.Duration) *SiteLimiter {
	if burst < 1 {
		burst = 1
	}
	return &SiteLimiter{
		buckets:   make(map[string]*rate.Limiter),
		interval:  interval,
		burst:     burst,
		overrides: overrides,
	}
}

func (l *SiteLimiter) bucketFor(site string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if b, ok := l.buckets[site]; ok {
		return b
	}
	interval := l.interval
	if d, ok := l.overrides[site]; ok {
		interval = d
	}
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	b := rate.NewLimiter(limit, l.burst)
	l.buckets[site] = b
	return b
}

// Wait blocks until a token for site is available.
// Returns an error if the context is cancelled while waiting.
func (l *SiteLimiter) Wait(ctx context.Context, site string) error {
	if err := l.bucketFor(site).Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait for %s: %w", site, err)
	}
	return nil
}
