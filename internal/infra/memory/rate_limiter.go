package memory

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a fixed-window counter for single-instance deployments.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

type window struct {
	count int
	reset time.Time
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{windows: make(map[string]*window), now: time.Now}
}

func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, per time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	w, ok := r.windows[key]
	if !ok || !now.Before(w.reset) {
		w = &window{reset: now.Add(per)}
		r.windows[key] = w
		if len(r.windows) > 10000 {
			r.gcLocked(now)
		}
	}
	w.count++
	return w.count <= limit, nil
}

func (r *RateLimiter) gcLocked(now time.Time) {
	for k, w := range r.windows {
		if !now.Before(w.reset) {
			delete(r.windows, k)
		}
	}
}
