// File: internal/usecase/progress.go
package usecase

import (
	"strings"
	"sync"
	"time"

	"longform-scriptgen/internal/domain/model"
	"longform-scriptgen/internal/domain/ports/repository"
)

const (
	StageOutline    = "outline"
	StageHook       = "hook"
	StageChapters   = "chapters"
	StageCompletion = "completion"
)

// CountWords counts whitespace separated tokens.
func CountWords(s string) int {
	return len(strings.Fields(s))
}

// TotalWords is the advisory progress target of a job.
func TotalWords(outlines []model.ChapterOutline, hookBudget int) int {
	total := hookBudget
	for _, o := range outlines {
		if o.ID > model.HookOutlineID {
			total += o.TargetWordCount
		}
	}
	return total
}

// WrittenWords counts words already persisted on the job.
func WrittenWords(j *model.Job) int {
	n := CountWords(j.Hook)
	for _, c := range j.ChaptersContent {
		n += CountWords(c)
	}
	return n
}

// progressTracker is the live view of one run. Word counts only grow.
type progressTracker struct {
	mu sync.Mutex
	p  repository.RunProgress
}

func newProgressTracker(jobID string) *progressTracker {
	t := &progressTracker{}
	t.p.JobID = jobID
	t.p.State = string(model.JobStatusWriting)
	t.p.UpdatedAt = time.Now().UTC()
	return t
}

// refresh reseeds counters from persisted job state without ever going backwards.
func (t *progressTracker) refresh(j *model.Job, hookBudget int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if w := WrittenWords(j); w > t.p.WordsWritten {
		t.p.WordsWritten = w
	}
	if len(j.Outlines) > 0 {
		t.p.TotalWords = TotalWords(j.Outlines, hookBudget)
	}
	t.p.ChaptersDone = len(j.ChaptersContent)
	t.p.ChaptersTotal = j.ChapterCount()
	t.p.HookDone = j.Hook != ""
	t.p.UpdatedAt = time.Now().UTC()
}

func (t *progressTracker) add(texts ...string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range texts {
		t.p.WordsWritten += CountWords(s)
	}
	t.p.UpdatedAt = time.Now().UTC()
	return t.p.WordsWritten
}

func (t *progressTracker) set(stage, task string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if stage != "" {
		t.p.Stage = stage
	}
	t.p.CurrentTask = task
	t.p.UpdatedAt = time.Now().UTC()
}

func (t *progressTracker) setState(s model.JobStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.p.State = string(s)
	t.p.UpdatedAt = time.Now().UTC()
}

func (t *progressTracker) words() (written, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.p.WordsWritten, t.p.TotalWords
}

func (t *progressTracker) snapshot() repository.RunProgress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.p
}

// ProgressFromJob derives a progress view from a persisted job.
func ProgressFromJob(j *model.Job) repository.RunProgress {
	return repository.RunProgress{
		JobID:         j.ID,
		State:         string(j.Status),
		CurrentTask:   j.CurrentTask,
		WordsWritten:  j.WordsWritten,
		TotalWords:    j.TotalWords,
		ChaptersDone:  len(j.ChaptersContent),
		ChaptersTotal: j.ChapterCount(),
		HookDone:      j.Hook != "",
		UpdatedAt:     j.UpdatedAt,
	}
}
