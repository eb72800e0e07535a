package repository

import (
	"context"
	"time"
)

// RunProgress is the read-only view of a running pipeline.
type RunProgress struct {
	JobID         string    `json:"job_id"`
	Stage         string    `json:"stage"`
	State         string    `json:"state"`
	CurrentTask   string    `json:"current_task"`
	WordsWritten  int       `json:"words_written"`
	TotalWords    int       `json:"total_words"`
	ChaptersDone  int       `json:"chapters_done"`
	ChaptersTotal int       `json:"chapters_total"`
	HookDone      bool      `json:"hook_done"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ProgressCache publishes run progress for readers outside the running process.
type ProgressCache interface {
	Put(ctx context.Context, p RunProgress) error
	Get(ctx context.Context, jobID string) (*RunProgress, error)
	Delete(ctx context.Context, jobID string) error
}
