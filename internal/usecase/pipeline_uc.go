// File: internal/usecase/pipeline_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"longform-scriptgen/internal/domain"
	"longform-scriptgen/internal/domain/model"
	"longform-scriptgen/internal/domain/outline"
	"longform-scriptgen/internal/domain/ports/adapter"
	"longform-scriptgen/internal/domain/ports/repository"
	"longform-scriptgen/internal/infra/logging"
	"longform-scriptgen/internal/infra/metrics"
)

// Compile-time check
var _ Orchestrator = (*Pipeline)(nil)

// Orchestrator drives one job at a time through outline, hook and chapters.
type Orchestrator interface {
	// Start creates a WRITING job and runs it in the background.
	Start(ctx context.Context, in model.JobInput) (*model.Job, error)
	// Resume continues an existing job in the background from its first missing stage.
	Resume(ctx context.Context, jobID string) (*model.Job, error)
	// Run executes a job synchronously under ctrl.
	Run(ctx context.Context, jobID string, ctrl *RunControl) error
	Pause() error
	ResumeFromPause() error
	Stop() error
	// Wait blocks until the current run, if any, has finished.
	Wait() error
	Current() *repository.RunProgress
	Progress(ctx context.Context, jobID string) (*repository.RunProgress, error)
	IsRunning(jobID string) bool
}

type PipelineConfig struct {
	BatchSize      int
	HookWordBudget int
	LockTTL        time.Duration
}

func (c PipelineConfig) withDefaults() PipelineConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = 3
	}
	if c.HookWordBudget <= 0 {
		c.HookWordBudget = 150
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 10 * time.Minute
	}
	return c
}

const (
	taskStopped   = "Stopped by user"
	taskPaused    = "Paused"
	taskCompleted = "Completed"
	taskFailed    = "Failed"
)

type activeRun struct {
	jobID    string
	ctrl     *RunControl
	progress *progressTracker
	unlock   func()
	done     chan struct{}
	err      error
}

type Pipeline struct {
	store    *JobStore
	gen      adapter.ContentGenerator
	parser   *outline.Parser
	locker   repository.RunLocker    // optional
	cache    repository.ProgressCache // optional
	notifier adapter.Notifier         // optional
	cfg      PipelineConfig
	log      *zerolog.Logger

	root   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	current *activeRun
	last    *activeRun
}

func NewPipeline(
	store *JobStore,
	gen adapter.ContentGenerator,
	locker repository.RunLocker,
	cache repository.ProgressCache,
	notifier adapter.Notifier,
	cfg PipelineConfig,
	logger *zerolog.Logger,
) *Pipeline {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "pipeline").Logger()
	root, cancel := context.WithCancel(context.Background())
	return &Pipeline{
		store:    store,
		gen:      gen,
		parser:   outline.NewParser(&l),
		locker:   locker,
		cache:    cache,
		notifier: notifier,
		cfg:      cfg.withDefaults(),
		log:      &l,
		root:     root,
		cancel:   cancel,
	}
}

func (p *Pipeline) Start(ctx context.Context, in model.JobInput) (*model.Job, error) {
	job, err := model.NewJob(in, model.SourceManual, model.JobStatusWriting)
	if err != nil {
		return nil, err
	}
	job.CurrentTask = "Queued for generation"
	run, err := p.claim(job.ID, NewRunControl())
	if err != nil {
		return nil, err
	}
	if err := p.store.Create(ctx, job); err != nil {
		p.release(run, err)
		return nil, err
	}
	if err := p.lock(p.root, run); err != nil {
		p.release(run, err)
		return nil, err
	}
	p.launch(run)
	return job, nil
}

func (p *Pipeline) Resume(ctx context.Context, jobID string) (*model.Job, error) {
	job, err := p.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	run, err := p.claim(jobID, NewRunControl())
	if err != nil {
		return nil, err
	}
	if err := p.lock(p.root, run); err != nil {
		p.release(run, err)
		return nil, err
	}
	p.launch(run)
	return job, nil
}

func (p *Pipeline) Run(ctx context.Context, jobID string, ctrl *RunControl) error {
	if ctrl == nil {
		ctrl = NewRunControl()
	}
	run, err := p.claim(jobID, ctrl)
	if err != nil {
		return err
	}
	if err := p.lock(ctx, run); err != nil {
		p.release(run, err)
		return err
	}
	err = p.execute(ctx, run)
	p.release(run, err)
	return err
}

func (p *Pipeline) Pause() error           { return p.signal(RunPaused) }
func (p *Pipeline) ResumeFromPause() error { return p.signal(RunRunning) }
func (p *Pipeline) Stop() error            { return p.signal(RunStopped) }

func (p *Pipeline) signal(s RunState) error {
	p.mu.Lock()
	run := p.current
	p.mu.Unlock()
	if run == nil {
		return domain.ErrNoActiveRun
	}
	p.log.Info().Str("job_id", run.jobID).Str("state", s.String()).Msg("run control signal")
	run.ctrl.Set(s)
	return nil
}

// Without an active run it reports the outcome of the previous one.
func (p *Pipeline) Wait() error {
	p.mu.Lock()
	run := p.current
	if run == nil {
		run = p.last
	}
	p.mu.Unlock()
	if run == nil {
		return nil
	}
	<-run.done
	return run.err
}

// Close stops any background run and waits for it to persist its state.
func (p *Pipeline) Close() {
	p.cancel()
	p.wg.Wait()
}

func (p *Pipeline) Current() *repository.RunProgress {
	p.mu.Lock()
	run := p.current
	p.mu.Unlock()
	if run == nil {
		return nil
	}
	snap := run.progress.snapshot()
	return &snap
}

func (p *Pipeline) IsRunning(jobID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current != nil && p.current.jobID == jobID
}

// Progress prefers the live run, then the shared cache, then the stored job.
func (p *Pipeline) Progress(ctx context.Context, jobID string) (*repository.RunProgress, error) {
	if cur := p.Current(); cur != nil && cur.JobID == jobID {
		return cur, nil
	}
	if p.cache != nil {
		if pr, err := p.cache.Get(ctx, jobID); err == nil && pr != nil {
			return pr, nil
		}
	}
	job, err := p.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	pr := ProgressFromJob(job)
	return &pr, nil
}

func (p *Pipeline) claim(jobID string, ctrl *RunControl) (*activeRun, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current != nil {
		return nil, domain.ErrRunInProgress
	}
	run := &activeRun{
		jobID:    jobID,
		ctrl:     ctrl,
		progress: newProgressTracker(jobID),
		unlock:   func() {},
		done:     make(chan struct{}),
	}
	p.current = run
	return run, nil
}

func (p *Pipeline) release(run *activeRun, err error) {
	run.unlock()
	run.err = err
	p.mu.Lock()
	if p.current == run {
		p.current = nil
	}
	p.last = run
	p.mu.Unlock()
	close(run.done)
}

func (p *Pipeline) launch(run *activeRun) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		err := p.execute(p.root, run)
		if err != nil && !errors.Is(err, domain.ErrStoppedByUser) {
			p.log.Error().Err(err).Str("job_id", run.jobID).Msg("generation run failed")
		}
		p.release(run, err)
	}()
}

// lock takes the cross-process run lock and keeps it alive until run.unlock.
func (p *Pipeline) lock(ctx context.Context, run *activeRun) error {
	if p.locker == nil {
		return nil
	}
	key := "run_lock:" + run.jobID
	token, err := p.locker.TryLock(ctx, key, p.cfg.LockTTL)
	if err != nil {
		return err
	}
	stop := make(chan struct{})
	go func() {
		t := time.NewTicker(p.cfg.LockTTL / 2)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				if err := p.locker.Refresh(context.WithoutCancel(ctx), key, token, p.cfg.LockTTL); err != nil {
					p.log.Warn().Err(err).Str("job_id", run.jobID).Msg("run lock refresh failed")
				}
			}
		}
	}()
	var once sync.Once
	run.unlock = func() {
		once.Do(func() {
			close(stop)
			if err := p.locker.Unlock(context.WithoutCancel(ctx), key, token); err != nil {
				p.log.Warn().Err(err).Str("job_id", run.jobID).Msg("run lock release failed")
			}
		})
	}
	return nil
}

func (p *Pipeline) execute(ctx context.Context, run *activeRun) error {
	ctx = logging.WithJobID(ctx, run.jobID)
	log := *logging.With(ctx, p.log)
	defer logging.TraceDuration(&log, "Pipeline.execute")()
	metrics.RunStarted()
	defer metrics.RunFinished()

	job, err := p.store.Reload(ctx, run.jobID)
	if err != nil {
		return err
	}
	run.progress.refresh(job, p.cfg.HookWordBudget)
	written, total := run.progress.words()
	log.Info().Str("status", string(job.Status)).Int("chapters_done", len(job.ChaptersContent)).Msg("generation run started")

	start := model.JobPatch{
		Status:       model.Ptr(model.JobStatusWriting),
		Error:        model.Ptr(""),
		CurrentTask:  model.Ptr("Starting generation"),
		WordsWritten: model.Ptr(written),
	}
	if total > 0 {
		start.TotalWords = model.Ptr(total)
	}
	if _, err := p.store.Update(ctx, run.jobID, start); err != nil {
		return err
	}

	runErr := p.runStages(ctx, run, &log)
	return p.finish(ctx, run, runErr, &log)
}

func (p *Pipeline) runStages(ctx context.Context, run *activeRun, log *zerolog.Logger) error {
	job, err := p.store.Get(ctx, run.jobID)
	if err != nil {
		return err
	}
	if job.RawOutlineText == "" {
		if job, err = p.outlineStage(ctx, run, job); err != nil {
			return err
		}
	}
	run.progress.refresh(job, p.cfg.HookWordBudget)

	if err := p.checkpoint(ctx, run); err != nil {
		return err
	}
	if job, err = p.store.Get(ctx, run.jobID); err != nil {
		return err
	}
	if job.Hook == "" {
		if err := p.hookStage(ctx, run, job); err != nil {
			return err
		}
	}

	if err := p.chapterStage(ctx, run, log); err != nil {
		return err
	}

	if job, err = p.store.Get(ctx, run.jobID); err != nil {
		return err
	}
	run.progress.set(StageCompletion, "Finalizing")
	if !job.IsComplete() {
		return &domain.IncompleteCompletionError{Written: len(job.ChaptersContent), Expected: job.ChapterCount()}
	}
	return nil
}

func (p *Pipeline) outlineStage(ctx context.Context, run *activeRun, job *model.Job) (*model.Job, error) {
	start := time.Now()
	defer func() { metrics.ObserveStage(StageOutline, time.Since(start)) }()

	if err := p.setTask(ctx, run, StageOutline, "Generating outline"); err != nil {
		return nil, err
	}
	raw, err := p.gen.GenerateOutline(ctx, job.Title, job.Concept, job.DurationMinutes)
	if err != nil {
		return nil, fmt.Errorf("generate outline: %w", err)
	}
	res, err := p.parser.Parse(raw)
	if err != nil {
		return nil, err
	}
	if len(res.Outlines) == 0 {
		return nil, &domain.EmptyGenerationError{Stage: StageOutline}
	}
	if err := model.CheckChapterIDs(res.Outlines); err != nil {
		return nil, &domain.ParseError{Reason: err.Error()}
	}
	refined := res.RefinedTitle
	if refined == "" {
		refined = job.Title
	}
	return p.store.Update(ctx, run.jobID, model.JobPatch{
		RawOutlineText: model.Ptr(strings.TrimSpace(raw)),
		RefinedTitle:   model.Ptr(refined),
		Outlines:       res.Outlines,
		TotalWords:     model.Ptr(TotalWords(res.Outlines, p.cfg.HookWordBudget)),
		CurrentTask:    model.Ptr(fmt.Sprintf("Outline ready: %d chapters", len(res.Outlines)-countHooks(res.Outlines))),
	})
}

func (p *Pipeline) hookStage(ctx context.Context, run *activeRun, job *model.Job) error {
	start := time.Now()
	defer func() { metrics.ObserveStage(StageHook, time.Since(start)) }()

	if err := p.setTask(ctx, run, StageHook, "Writing hook"); err != nil {
		return err
	}
	hook, err := p.gen.GenerateHook(ctx, job.RawOutlineText)
	if err != nil {
		return fmt.Errorf("generate hook: %w", err)
	}
	hook = strings.TrimSpace(hook)
	if hook == "" {
		return &domain.EmptyGenerationError{Stage: StageHook}
	}
	written := run.progress.add(hook)
	updated, err := p.store.Update(ctx, run.jobID, model.JobPatch{
		Hook:         model.Ptr(hook),
		WordsWritten: model.Ptr(written),
	})
	if err != nil {
		return err
	}
	run.progress.refresh(updated, p.cfg.HookWordBudget)
	p.publish(ctx, run)
	return nil
}

// chapterStage plans its batch calls once; every batch starts at the current
// chapter count, so a short answer never shifts positions.
func (p *Pipeline) chapterStage(ctx context.Context, run *activeRun, log *zerolog.Logger) error {
	job, err := p.store.Get(ctx, run.jobID)
	if err != nil {
		return err
	}
	total := job.ChapterCount()
	remaining := len(job.RemainingChapters())
	if remaining == 0 {
		return nil
	}
	size := p.cfg.BatchSize
	calls := (remaining + size - 1) / size

	for i := 0; i < calls; i++ {
		if err := p.checkpoint(ctx, run); err != nil {
			return err
		}
		if job, err = p.store.Get(ctx, run.jobID); err != nil {
			return err
		}
		batch := job.RemainingChapters()
		if len(batch) == 0 {
			return nil
		}
		batch = batch[:min(size, len(batch))]
		if err := p.writeBatch(ctx, run, job.RawOutlineText, batch, total, log); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) writeBatch(ctx context.Context, run *activeRun, rawOutline string, batch []model.ChapterOutline, total int, log *zerolog.Logger) error {
	start := time.Now()
	defer func() { metrics.ObserveStage(StageChapters, time.Since(start)) }()

	first, last := batch[0].ID, batch[len(batch)-1].ID
	task := fmt.Sprintf("Writing chapter %d of %d", first, total)
	if last != first {
		task = fmt.Sprintf("Writing chapters %d-%d of %d", first, last, total)
	}
	if err := p.setTask(ctx, run, StageChapters, task); err != nil {
		return err
	}

	text, err := p.gen.GenerateChapterBatch(ctx, rawOutline, batch)
	if err != nil {
		return fmt.Errorf("generate chapters %d-%d: %w", first, last, err)
	}
	pieces := SplitChapterBatch(text)
	if len(pieces) == 0 {
		return &domain.EmptyGenerationError{Stage: "chapter batch"}
	}
	if len(pieces) != len(batch) {
		mismatch := &domain.BatchMismatchError{Requested: len(batch), Received: len(pieces)}
		log.Warn().Err(mismatch).Int("first_chapter", first).Msg("keeping the chapters that arrived")
		metrics.IncBatchMismatch()
		if len(pieces) > len(batch) {
			pieces = pieces[:len(batch)]
		}
	}

	written := run.progress.add(pieces...)
	updated, err := p.store.Update(ctx, run.jobID, model.JobPatch{
		AppendChapters: pieces,
		WordsWritten:   model.Ptr(written),
	})
	if err != nil {
		return err
	}
	metrics.AddChaptersWritten(len(pieces))
	run.progress.refresh(updated, p.cfg.HookWordBudget)
	p.publish(ctx, run)
	return nil
}

// SplitChapterBatch splits a batch response on the chapter delimiter and
// drops empty pieces.
func SplitChapterBatch(text string) []string {
	parts := strings.Split(text, adapter.ChapterDelimiter)
	out := make([]string, 0, len(parts))
	for _, s := range parts {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (p *Pipeline) checkpoint(ctx context.Context, run *activeRun) error {
	return run.ctrl.Checkpoint(ctx,
		func() {
			run.progress.setState(model.JobStatusPaused)
			p.persistState(ctx, run, model.JobStatusPaused, taskPaused)
		},
		func() {
			run.progress.setState(model.JobStatusWriting)
			p.persistState(ctx, run, model.JobStatusWriting, "Resuming")
		},
	)
}

func (p *Pipeline) persistState(ctx context.Context, run *activeRun, status model.JobStatus, task string) {
	run.progress.set("", task)
	if _, err := p.store.Update(context.WithoutCancel(ctx), run.jobID, model.JobPatch{
		Status:      model.Ptr(status),
		CurrentTask: model.Ptr(task),
	}); err != nil {
		p.log.Error().Err(err).Str("job_id", run.jobID).Str("status", string(status)).Msg("persist run state")
	}
	p.publish(ctx, run)
}

func (p *Pipeline) setTask(ctx context.Context, run *activeRun, stage, task string) error {
	run.progress.set(stage, task)
	if _, err := p.store.Update(ctx, run.jobID, model.JobPatch{CurrentTask: model.Ptr(task)}); err != nil {
		return err
	}
	p.publish(ctx, run)
	return nil
}

func (p *Pipeline) publish(ctx context.Context, run *activeRun) {
	if p.cache == nil {
		return
	}
	if err := p.cache.Put(context.WithoutCancel(ctx), run.progress.snapshot()); err != nil {
		p.log.Debug().Err(err).Str("job_id", run.jobID).Msg("progress cache put")
	}
}

// finish persists the terminal state of a run. A stop or a cancelled context
// puts the job back to PENDING; anything else is a failure.
func (p *Pipeline) finish(ctx context.Context, run *activeRun, runErr error, log *zerolog.Logger) error {
	wctx := context.WithoutCancel(ctx)
	written, total := run.progress.words()

	var status model.JobStatus
	patch := model.JobPatch{WordsWritten: model.Ptr(written)}
	if total > 0 {
		patch.TotalWords = model.Ptr(total)
	}
	switch {
	case runErr == nil:
		status = model.JobStatusDone
		patch.CurrentTask = model.Ptr(taskCompleted)
		patch.Error = model.Ptr("")
	case errors.Is(runErr, domain.ErrStoppedByUser) || ctx.Err() != nil:
		if !errors.Is(runErr, domain.ErrStoppedByUser) {
			runErr = fmt.Errorf("%w: %v", domain.ErrStoppedByUser, runErr)
		}
		status = model.JobStatusPending
		patch.CurrentTask = model.Ptr(taskStopped)
		patch.Error = model.Ptr("")
	default:
		status = model.JobStatusFailed
		patch.CurrentTask = model.Ptr(taskFailed)
		patch.Error = model.Ptr(runErr.Error())
	}
	patch.Status = model.Ptr(status)

	job, err := p.store.Update(wctx, run.jobID, patch)
	if err != nil {
		log.Error().Err(err).Str("status", string(status)).Msg("persist final job state")
		if runErr == nil {
			runErr = err
		}
	}
	metrics.IncJobFinished(string(status))
	run.progress.set(StageCompletion, *patch.CurrentTask)
	run.progress.setState(status)
	p.publish(wctx, run)

	ev := log.Info()
	if status == model.JobStatusFailed {
		ev = log.Warn().Err(runErr)
	}
	ev.Str("status", string(status)).Int("words", written).Msg("generation run finished")

	if job != nil && p.notifier != nil && (status == model.JobStatusDone || status == model.JobStatusFailed) {
		if err := p.notifier.NotifyJob(wctx, job); err != nil {
			log.Warn().Err(err).Msg("job notification failed")
		}
	}
	return runErr
}

func countHooks(outlines []model.ChapterOutline) int {
	n := 0
	for _, o := range outlines {
		if o.ID == model.HookOutlineID {
			n++
		}
	}
	return n
}
