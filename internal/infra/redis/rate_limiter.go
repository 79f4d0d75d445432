package redis

import (
	"context"
	"time"
)

// RateLimiter is a fixed-window counter shared by every bot instance.
type RateLimiter struct {
	client *Client
}

func NewRateLimiter(client *Client) *RateLimiter {
	return &RateLimiter{client: client}
}

func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	count, err := r.client.Incr(ctx, "rate_limit:"+key)
	if err != nil {
		return false, err
	}

	if count == 1 {
		err = r.client.Expire(ctx, "rate_limit:"+key, window)
		if err != nil {
			return false, err
		}
	}

	if count > int64(limit) {
		return false, nil
	}

	return true, nil
}
