package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"longform-scriptgen/internal/domain"
	"longform-scriptgen/internal/domain/model"
	"longform-scriptgen/internal/domain/ports/repository"
	"longform-scriptgen/internal/infra/metrics"
)

// JobStore owns the canonical in-memory snapshot of every job it has seen.
// Writes are serialised, persisted first and only then applied to the
// snapshot; reads always return a fresh copy.
type JobStore struct {
	repo repository.JobRepository
	log  *zerolog.Logger

	mu   sync.Mutex
	snap map[string]*model.Job
}

func NewJobStore(repo repository.JobRepository, logger *zerolog.Logger) *JobStore {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "job_store").Logger()
	return &JobStore{repo: repo, log: &l, snap: make(map[string]*model.Job)}
}

func (s *JobStore) Create(ctx context.Context, job *model.Job) error {
	if err := job.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.repo.Create(ctx, nil, job)
	metrics.IncJobStoreOp("create", err)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	s.snap[job.ID] = job.Clone()
	return nil
}

// Get serves from the snapshot, loading it on first access.
func (s *JobStore) Get(ctx context.Context, id string) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.snap[id]; ok {
		return j.Clone(), nil
	}
	j, err := s.repo.FindByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	s.snap[id] = j.Clone()
	return j, nil
}

// Reload drops the snapshot entry and reads the record again.
func (s *JobStore) Reload(ctx context.Context, id string) (*model.Job, error) {
	s.mu.Lock()
	delete(s.snap, id)
	s.mu.Unlock()
	return s.Get(ctx, id)
}

// Update merges patch into the stored job. The snapshot only changes after
// the backend accepted the write.
func (s *JobStore) Update(ctx context.Context, id string, patch model.JobPatch) (*model.Job, error) {
	if patch.IsEmpty() {
		return s.Get(ctx, id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	updated, err := s.repo.Update(ctx, nil, id, patch)
	metrics.IncJobStoreOp("update", err)
	if err != nil {
		return nil, fmt.Errorf("update job %s: %w", id, err)
	}
	if cur, ok := s.snap[id]; ok && updated.UpdatedAt.Before(cur.UpdatedAt) {
		// backend clock skew; keep ordering monotone for readers
		updated.UpdatedAt = time.Now().UTC()
	}
	s.snap[id] = updated.Clone()
	return updated, nil
}

func (s *JobStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.repo.Delete(ctx, nil, id)
	metrics.IncJobStoreOp("delete", err)
	if err != nil {
		return err
	}
	delete(s.snap, id)
	return nil
}

// List always reads the backend and refreshes the snapshot of returned jobs.
func (s *JobStore) List(ctx context.Context, f repository.JobFilter) ([]*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	jobs, err := s.repo.List(ctx, nil, f)
	if err != nil {
		return nil, err
	}
	for _, j := range jobs {
		s.snap[j.ID] = j.Clone()
	}
	return jobs, nil
}

// NextPending claims the oldest PENDING job, or returns ErrNotFound.
func (s *JobStore) NextPending(ctx context.Context) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, err := s.repo.NextPending(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	metrics.IncJobStoreOp("next_pending", err)
	if err != nil {
		return nil, err
	}
	if j == nil {
		return nil, domain.ErrNotFound
	}
	s.snap[j.ID] = j.Clone()
	s.log.Debug().Str("job_id", j.ID).Msg("claimed pending job")
	return j, nil
}
