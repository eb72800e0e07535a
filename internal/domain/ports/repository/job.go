package repository

import (
	"context"

	"longform-scriptgen/internal/domain/model"
)

// JobFilter narrows List. Zero values mean "any".
type JobFilter struct {
	Status        model.JobStatus
	LibraryStatus model.LibraryStatus
	Limit         int
	Offset        int
}

type JobRepository interface {
	Create(ctx context.Context, tx Tx, job *model.Job) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Job, error)
	// List returns jobs ordered by creation time, oldest first.
	List(ctx context.Context, tx Tx, f JobFilter) ([]*model.Job, error)
	// Update merges the patch into the stored record and returns the result.
	Update(ctx context.Context, tx Tx, id string, patch model.JobPatch) (*model.Job, error)
	Delete(ctx context.Context, tx Tx, id string) error
	// NextPending atomically picks the oldest PENDING job and marks it WRITING,
	// so two runners never pick the same job.
	NextPending(ctx context.Context) (*model.Job, error)
}
