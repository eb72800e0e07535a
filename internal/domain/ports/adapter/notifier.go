package adapter

import (
	"context"

	"longform-scriptgen/internal/domain/model"
)

// Notifier tells the owner that a job reached a terminal state.
type Notifier interface {
	NotifyJob(ctx context.Context, job *model.Job) error
}
