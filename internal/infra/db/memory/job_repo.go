// Package memory keeps jobs in process memory. It backs dev mode and tests
// when no database is configured.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"longform-scriptgen/internal/domain"
	"longform-scriptgen/internal/domain/model"
	"longform-scriptgen/internal/domain/ports/repository"
)

var _ repository.JobRepository = (*JobRepo)(nil)

type JobRepo struct {
	mu   sync.Mutex
	jobs map[string]*model.Job
	now  func() time.Time
}

func NewJobRepo() *JobRepo {
	return &JobRepo{jobs: make(map[string]*model.Job), now: func() time.Time { return time.Now().UTC() }}
}

func (r *JobRepo) Create(ctx context.Context, _ repository.Tx, job *model.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.ID]; ok {
		return domain.ErrAlreadyExists
	}
	r.jobs[job.ID] = job.Clone()
	return nil
}

func (r *JobRepo) FindByID(ctx context.Context, _ repository.Tx, id string) (*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return j.Clone(), nil
}

func (r *JobRepo) List(ctx context.Context, _ repository.Tx, f repository.JobFilter) ([]*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		if f.Status != "" && j.Status != f.Status {
			continue
		}
		if f.LibraryStatus != "" && j.LibraryStatus != f.LibraryStatus {
			continue
		}
		out = append(out, j.Clone())
	}
	sortByCreation(out)
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return []*model.Job{}, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *JobRepo) Update(ctx context.Context, _ repository.Tx, id string, patch model.JobPatch) (*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	next := j.Clone()
	patch.Apply(next, r.now())
	r.jobs[id] = next
	return next.Clone(), nil
}

func (r *JobRepo) Delete(ctx context.Context, _ repository.Tx, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.jobs, id)
	return nil
}

func (r *JobRepo) NextPending(ctx context.Context) (*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var next *model.Job
	for _, j := range r.jobs {
		if j.Status != model.JobStatusPending {
			continue
		}
		if next == nil || j.CreatedAt.Before(next.CreatedAt) || (j.CreatedAt.Equal(next.CreatedAt) && j.ID < next.ID) {
			next = j
		}
	}
	if next == nil {
		return nil, domain.ErrNotFound
	}
	claimed := next.Clone()
	model.JobPatch{
		Status:      model.Ptr(model.JobStatusWriting),
		Error:       model.Ptr(""),
		CurrentTask: model.Ptr("Queued run starting"),
	}.Apply(claimed, r.now())
	r.jobs[claimed.ID] = claimed
	return claimed.Clone(), nil
}

func sortByCreation(jobs []*model.Job) {
	sort.Slice(jobs, func(a, b int) bool {
		if jobs[a].CreatedAt.Equal(jobs[b].CreatedAt) {
			return jobs[a].ID < jobs[b].ID
		}
		return jobs[a].CreatedAt.Before(jobs[b].CreatedAt)
	})
}
