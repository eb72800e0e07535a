package repository

import (
	"context"
	"time"
)

// RunLocker guards a job against concurrent pipeline runs.
type RunLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Refresh(ctx context.Context, key, token string, ttl time.Duration) error
	Unlock(ctx context.Context, key, token string) error
}
