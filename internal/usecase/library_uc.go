// File: internal/usecase/library_uc.go
package usecase

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/rs/zerolog"

	"longform-scriptgen/internal/domain"
	"longform-scriptgen/internal/domain/model"
	"longform-scriptgen/internal/domain/ports/repository"
	"longform-scriptgen/internal/infra/logging"
)

// Compile-time check
var _ LibraryUseCase = (*libraryUC)(nil)

type LibraryUseCase interface {
	List(ctx context.Context, f repository.JobFilter) ([]*model.Job, error)
	Get(ctx context.Context, id string) (*model.Job, error)
	// Enqueue adds a PENDING job for the queue runner.
	Enqueue(ctx context.Context, in model.JobInput, source model.JobSource) (*model.Job, error)
	Archive(ctx context.Context, id string) (*model.Job, error)
	Restore(ctx context.Context, id string) (*model.Job, error)
	// Delete removes an archived job that is not being generated.
	Delete(ctx context.Context, id string) error
	// Retry puts a FAILED job back in the queue.
	Retry(ctx context.Context, id string) (*model.Job, error)
	Export(ctx context.Context, id string, sectionChars int) (*ScriptExport, error)
}

// RunChecker reports whether a job is owned by a live pipeline run.
type RunChecker interface {
	IsRunning(jobID string) bool
}

type ScriptExport struct {
	JobID    string   `json:"job_id"`
	Title    string   `json:"title"`
	Script   string   `json:"script"`
	Words    int      `json:"words"`
	Chapters int      `json:"chapters"`
	Sections []string `json:"sections,omitempty"`
}

type libraryUC struct {
	store *JobStore
	runs  RunChecker
	log   *zerolog.Logger
}

func NewLibraryUseCase(store *JobStore, runs RunChecker, logger *zerolog.Logger) *libraryUC {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "library").Logger()
	return &libraryUC{store: store, runs: runs, log: &l}
}

func (l *libraryUC) List(ctx context.Context, f repository.JobFilter) ([]*model.Job, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, fmt.Errorf("%w: status %q", domain.ErrInvalidArgument, f.Status)
	}
	if f.LibraryStatus != "" && !f.LibraryStatus.Valid() {
		return nil, fmt.Errorf("%w: library status %q", domain.ErrInvalidArgument, f.LibraryStatus)
	}
	if f.Limit < 0 || f.Offset < 0 {
		return nil, domain.ErrInvalidArgument
	}
	return l.store.List(ctx, f)
}

func (l *libraryUC) Get(ctx context.Context, id string) (*model.Job, error) {
	return l.store.Get(ctx, id)
}

func (l *libraryUC) Enqueue(ctx context.Context, in model.JobInput, source model.JobSource) (*model.Job, error) {
	defer logging.TraceDuration(l.log, "Library.Enqueue")()
	if source == "" {
		source = model.SourceAutomation
	}
	job, err := model.NewJob(in, source, model.JobStatusPending)
	if err != nil {
		return nil, err
	}
	job.CurrentTask = "Waiting in queue"
	if err := l.store.Create(ctx, job); err != nil {
		return nil, err
	}
	l.log.Info().Str("job_id", job.ID).Str("source", string(source)).Msg("job enqueued")
	return job, nil
}

func (l *libraryUC) Archive(ctx context.Context, id string) (*model.Job, error) {
	return l.setLibraryStatus(ctx, id, model.LibraryArchived)
}

func (l *libraryUC) Restore(ctx context.Context, id string) (*model.Job, error) {
	return l.setLibraryStatus(ctx, id, model.LibraryAvailable)
}

func (l *libraryUC) setLibraryStatus(ctx context.Context, id string, s model.LibraryStatus) (*model.Job, error) {
	if _, err := l.store.Get(ctx, id); err != nil {
		return nil, err
	}
	return l.store.Update(ctx, id, model.JobPatch{LibraryStatus: model.Ptr(s)})
}

func (l *libraryUC) Delete(ctx context.Context, id string) error {
	defer logging.TraceDuration(l.log, "Library.Delete")()
	job, err := l.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if l.busy(job) {
		return domain.ErrJobBusy
	}
	if job.LibraryStatus != model.LibraryArchived {
		return domain.ErrNotArchived
	}
	if err := l.store.Delete(ctx, id); err != nil {
		return err
	}
	l.log.Info().Str("job_id", id).Msg("job deleted")
	return nil
}

func (l *libraryUC) Retry(ctx context.Context, id string) (*model.Job, error) {
	defer logging.TraceDuration(l.log, "Library.Retry")()
	job, err := l.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if l.busy(job) {
		return nil, domain.ErrJobBusy
	}
	if job.Status != model.JobStatusFailed {
		return nil, fmt.Errorf("%w: only failed jobs can be retried, job is %s", domain.ErrInvalidArgument, job.Status)
	}
	return l.store.Update(ctx, id, model.JobPatch{
		Status:      model.Ptr(model.JobStatusPending),
		Error:       model.Ptr(""),
		CurrentTask: model.Ptr("Queued for retry"),
	})
}

func (l *libraryUC) Export(ctx context.Context, id string, sectionChars int) (*ScriptExport, error) {
	defer logging.TraceDuration(l.log, "Library.Export")()
	job, err := l.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Hook == "" {
		return nil, domain.ErrJobNotReady
	}
	script := job.FullScript()
	out := &ScriptExport{
		JobID:    job.ID,
		Title:    job.DisplayTitle(),
		Script:   script,
		Words:    CountWords(script),
		Chapters: len(job.ChaptersContent),
	}
	if sectionChars > 0 {
		out.Sections = SplitScript(script, sectionChars)
	}
	return out, nil
}

func (l *libraryUC) busy(job *model.Job) bool {
	if l.runs != nil && l.runs.IsRunning(job.ID) {
		return true
	}
	return job.Status == model.JobStatusWriting
}

// SplitScript cuts text into sections of at most maxChars runes. A section
// ends at the last sentence end that fits, else at the last space, else at
// exactly maxChars.
func SplitScript(text string, maxChars int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if maxChars <= 0 {
		return []string{text}
	}
	var out []string
	r := []rune(text)
	for len(r) > maxChars {
		cut := lastSentenceEnd(r, maxChars)
		if cut <= 0 {
			cut = lastSpace(r[:maxChars])
		}
		if cut <= 0 {
			cut = maxChars
		}
		if piece := strings.TrimSpace(string(r[:cut])); piece != "" {
			out = append(out, piece)
		}
		r = trimLeftSpace(r[cut:])
	}
	if rest := strings.TrimSpace(string(r)); rest != "" {
		out = append(out, rest)
	}
	return out
}

// lastSentenceEnd finds a terminator within r[:limit] that is followed by
// whitespace. Callers guarantee len(r) > limit.
func lastSentenceEnd(r []rune, limit int) int {
	for i := limit - 1; i >= 0; i-- {
		switch r[i] {
		case '.', '!', '?':
			if unicode.IsSpace(r[i+1]) {
				return i + 1
			}
		}
	}
	return 0
}

func lastSpace(r []rune) int {
	for i := len(r) - 1; i > 0; i-- {
		if unicode.IsSpace(r[i]) {
			return i
		}
	}
	return 0
}

func trimLeftSpace(r []rune) []rune {
	for len(r) > 0 && unicode.IsSpace(r[0]) {
		r = r[1:]
	}
	return r
}
