package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"longform-scriptgen/internal/domain"
	"longform-scriptgen/internal/domain/ports/repository"
	"longform-scriptgen/internal/infra/metrics"
)

var _ repository.ProgressCache = (*ProgressCache)(nil)

// ProgressCache stores the latest RunProgress of each job as JSON.
type ProgressCache struct {
	client RedisClient
	ttl    time.Duration
}

func NewProgressCache(client RedisClient, ttl time.Duration) *ProgressCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &ProgressCache{client: client, ttl: ttl}
}

func progressKey(jobID string) string { return "run_progress:" + jobID }

func (c *ProgressCache) Put(ctx context.Context, p repository.RunProgress) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, progressKey(p.JobID), data, c.ttl)
}

func (c *ProgressCache) Get(ctx context.Context, jobID string) (*repository.RunProgress, error) {
	data, err := c.client.Get(ctx, progressKey(jobID))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			metrics.IncCacheRequest("progress", "miss")
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	metrics.IncCacheRequest("progress", "hit")
	var p repository.RunProgress
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, fmt.Errorf("decode progress: %w", err)
	}
	return &p, nil
}

func (c *ProgressCache) Delete(ctx context.Context, jobID string) error {
	return c.client.Del(ctx, progressKey(jobID))
}
