package redis

import (
	"context"
	"strconv"
	"time"
)

// RateLimiter counts attempts per key in fixed windows. The window start is
// part of the key, so a counter whose EXPIRE was lost still rolls over.
type RateLimiter struct {
	client RedisClient
	now    func() time.Time
}

func NewRateLimiter(client RedisClient) *RateLimiter {
	return &RateLimiter{client: client, now: time.Now}
}

// Allow records one attempt and reports whether it is within limit.
func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 || window <= 0 {
		return true, nil
	}
	bucket := r.now().UnixNano() / int64(window)
	k := key + ":" + strconv.FormatInt(bucket, 10)

	n, err := r.client.Incr(ctx, k)
	if err != nil {
		return false, err
	}
	if n == 1 {
		if err := r.client.Expire(ctx, k, window); err != nil {
			return false, err
		}
	}
	return n <= int64(limit), nil
}

func LoginAttemptKey(remoteIP string) string {
	return "login_attempts:" + remoteIP
}
