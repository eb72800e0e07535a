package worker

import (
	"context"
	"time"

	"longform-scriptgen/internal/domain/model"
	"longform-scriptgen/internal/domain/ports/adapter"
)

var _ adapter.Notifier = (*AsyncNotifier)(nil)

// AsyncNotifier hands notifications to the pool so a slow chat API never
// delays the end of a run.
type AsyncNotifier struct {
	pool    *Pool
	next    adapter.Notifier
	timeout time.Duration
}

func NewAsyncNotifier(pool *Pool, next adapter.Notifier, timeout time.Duration) *AsyncNotifier {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &AsyncNotifier{pool: pool, next: next, timeout: timeout}
}

func (n *AsyncNotifier) NotifyJob(_ context.Context, job *model.Job) error {
	snapshot := job.Clone()
	return n.pool.Submit(func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, n.timeout)
		defer cancel()
		return n.next.NotifyJob(ctx, snapshot)
	})
}
