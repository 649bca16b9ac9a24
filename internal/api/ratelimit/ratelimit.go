// Package ratelimit keeps one token bucket per key (a userId) for submission endpoints.
package ratelimit

import (
	"sync"
	"time"

	cache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// Limiter hands out per-key token buckets. Idle buckets expire after idleTTL.
type Limiter struct {
	rate    rate.Limit
	burst   int
	mu      sync.Mutex
	buckets *cache.Cache
}

// New returns a Limiter allowing rps requests per second per key with the given burst.
// A non-positive rps disables limiting.
func New(rps float64, burst int) *Limiter {
	if burst <= 0 {
		burst = 1
	}
	idleTTL := 10 * time.Minute
	return &Limiter{
		rate:    rate.Limit(rps),
		burst:   burst,
		buckets: cache.New(idleTTL, 5*time.Minute),
	}
}

// Allow consumes one token for key and reports whether the request may proceed.
func (l *Limiter) Allow(key string) bool {
	if l == nil || l.rate <= 0 {
		return true
	}
	return l.bucket(key).Allow()
}

// RetryAfter is the whole number of seconds until key has a token again, at least 1.
func (l *Limiter) RetryAfter(key string) int {
	if l == nil || l.rate <= 0 {
		return 0
	}
	r := l.bucket(key).Reserve()
	d := r.Delay()
	r.Cancel()
	secs := int(d.Seconds() + 0.999)
	if secs < 1 {
		secs = 1
	}
	return secs
}

func (l *Limiter) bucket(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if v, ok := l.buckets.Get(key); ok {
		// Refresh expiry so active keys keep their bucket.
		l.buckets.SetDefault(key, v)
		return v.(*rate.Limiter)
	}
	lim := rate.NewLimiter(l.rate, l.burst)
	l.buckets.SetDefault(key, lim)
	return lim
}
