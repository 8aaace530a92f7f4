package server

import (
	"sync"
	"time"
)

// rateLimiter throttles webhook deliveries per client-ip+provider key
// with a fixed window counter. A limit of zero or less disables it.
type rateLimiter struct {
	limit  int
	window time.Duration
	mu     sync.Mutex
	counts map[string]*windowCount
}

type windowCount struct {
	start time.Time
	n     int
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &rateLimiter{
		limit:  limit,
		window: window,
		counts: make(map[string]*windowCount),
	}
}

func (r *rateLimiter) Allow(key string) bool {
	if r.limit <= 0 {
		return true
	}
	if key == "" {
		return false
	}

	now := time.Now().UTC()
	r.mu.Lock()
	defer r.mu.Unlock()

	// The key space is client IPs; drop dead windows so the map does
	// not grow unbounded under churn.
	if len(r.counts) > 4096 {
		for k, c := range r.counts {
			if now.Sub(c.start) > r.window {
				delete(r.counts, k)
			}
		}
	}

	c := r.counts[key]
	if c == nil || now.Sub(c.start) > r.window {
		c = &windowCount{start: now}
		r.counts[key] = c
	}
	if c.n >= r.limit {
		return false
	}
	c.n++
	return true
}
