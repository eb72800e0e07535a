package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"longform-scriptgen/internal/domain"
	"longform-scriptgen/internal/domain/model"
	"longform-scriptgen/internal/usecase"
)

// JobQueue is the part of the job store the runner needs.
type JobQueue interface {
	NextPending(ctx context.Context) (*model.Job, error)
	Update(ctx context.Context, id string, patch model.JobPatch) (*model.Job, error)
}

// JobRunner executes one job synchronously.
type JobRunner interface {
	Run(ctx context.Context, jobID string, ctrl *usecase.RunControl) error
	Wait() error
}

type QueueState string

const (
	QueueIdle    QueueState = "idle"
	QueueRunning QueueState = "running"
	QueuePaused  QueueState = "paused"
	QueueStopped QueueState = "stopping"
)

type QueueStatus struct {
	State        QueueState `json:"state"`
	CurrentJobID string     `json:"current_job_id,omitempty"`
	Processed    int        `json:"processed"`
	Failed       int        `json:"failed"`
	LastError    string     `json:"last_error,omitempty"`
	StartedAt    time.Time  `json:"started_at,omitempty"`
}

// QueueRunner drains PENDING jobs one at a time until the queue is empty or
// it is stopped. A failed job does not halt the queue.
type QueueRunner struct {
	jobs   JobQueue
	runner JobRunner
	log    *zerolog.Logger

	root   context.Context
	cancel context.CancelFunc

	// lockBackoff is how long the loop waits after handing back a job whose
	// run lock is held elsewhere.
	lockBackoff time.Duration

	mu     sync.Mutex
	ctrl   *usecase.RunControl
	done   chan struct{}
	status QueueStatus
}

func NewQueueRunner(jobs JobQueue, runner JobRunner, logger *zerolog.Logger) *QueueRunner {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "queue_runner").Logger()
	root, cancel := context.WithCancel(context.Background())
	return &QueueRunner{
		jobs:   jobs,
		runner: runner,
		log:    &l,
		root:        root,
		cancel:      cancel,
		lockBackoff: 5 * time.Second,
		status:      QueueStatus{State: QueueIdle},
	}
}

// Start launches the loop and reports whether a new loop was started.
func (q *QueueRunner) Start() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.done != nil {
		return false
	}
	q.ctrl = usecase.NewRunControl()
	q.done = make(chan struct{})
	q.status = QueueStatus{State: QueueRunning, StartedAt: time.Now().UTC()}
	go q.loop(q.root, q.ctrl, q.done)
	q.log.Info().Msg("queue started")
	return true
}

func (q *QueueRunner) Pause() error  { return q.signal(usecase.RunPaused, QueuePaused) }
func (q *QueueRunner) Resume() error { return q.signal(usecase.RunRunning, QueueRunning) }

// Stop ends the loop. A job in flight goes back to PENDING.
func (q *QueueRunner) Stop() error { return q.signal(usecase.RunStopped, QueueStopped) }

func (q *QueueRunner) signal(s usecase.RunState, state QueueState) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.done == nil {
		return domain.ErrNoActiveRun
	}
	if q.status.State == QueueStopped {
		return nil
	}
	q.ctrl.Set(s)
	q.status.State = state
	q.log.Info().Str("state", string(state)).Msg("queue control signal")
	return nil
}

func (q *QueueRunner) Status() QueueStatus {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.status
}

// Close cancels the loop, which resets an in-flight job to PENDING, and
// waits for it to exit.
func (q *QueueRunner) Close() {
	q.cancel()
	q.Wait()
}

// Wait blocks until the active loop, if any, has exited.
func (q *QueueRunner) Wait() {
	q.mu.Lock()
	done := q.done
	q.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (q *QueueRunner) loop(ctx context.Context, ctrl *usecase.RunControl, done chan struct{}) {
	defer func() {
		q.mu.Lock()
		q.status.State = QueueIdle
		q.status.CurrentJobID = ""
		q.done = nil
		q.mu.Unlock()
		close(done)
	}()

	for {
		if err := ctrl.Checkpoint(ctx, nil, nil); err != nil {
			q.log.Info().Msg("queue stopped")
			return
		}
		job, err := q.jobs.NextPending(ctx)
		if errors.Is(err, domain.ErrNotFound) {
			q.log.Info().Msg("queue drained")
			return
		}
		if err != nil {
			q.log.Error().Err(err).Msg("fetch next pending job")
			q.record("", err)
			return
		}

		q.setCurrent(job.ID)
		log := q.log.With().Str("job_id", job.ID).Logger()
		log.Info().Str("title", job.Title).Msg("queue picked job")

		err = q.runner.Run(ctx, job.ID, ctrl)
		switch {
		case err == nil:
			q.markAvailable(ctx, job.ID, &log)
			q.record(job.ID, nil)
		case errors.Is(err, domain.ErrStoppedByUser):
			q.setCurrent("")
			return
		case errors.Is(err, domain.ErrRunInProgress):
			// an interactive run owns the orchestrator; hand the job back and wait for it
			q.requeue(ctx, job.ID, "Waiting in queue", &log)
			_ = q.runner.Wait()
		case errors.Is(err, domain.ErrJobLocked):
			log.Warn().Dur("backoff", q.lockBackoff).Msg("job locked by another process, handing it back")
			q.requeue(ctx, job.ID, "Waiting for run lock", &log)
			select {
			case <-ctx.Done():
			case <-time.After(q.lockBackoff):
			}
		default:
			log.Warn().Err(err).Msg("queued job failed")
			q.markFailed(ctx, job.ID, err, &log)
			q.record(job.ID, err)
		}
	}
}

func (q *QueueRunner) requeue(ctx context.Context, jobID, task string, log *zerolog.Logger) {
	_, err := q.jobs.Update(context.WithoutCancel(ctx), jobID, model.JobPatch{
		Status:      model.Ptr(model.JobStatusPending),
		CurrentTask: model.Ptr(task),
	})
	if err != nil {
		log.Error().Err(err).Msg("requeue job")
	}
	q.setCurrent("")
}

// markFailed covers runs that ended before the orchestrator persisted a
// terminal state, e.g. a lock backend error.
func (q *QueueRunner) markFailed(ctx context.Context, jobID string, runErr error, log *zerolog.Logger) {
	_, err := q.jobs.Update(context.WithoutCancel(ctx), jobID, model.JobPatch{
		Status:      model.Ptr(model.JobStatusFailed),
		Error:       model.Ptr(runErr.Error()),
		CurrentTask: model.Ptr("Failed"),
	})
	if err != nil {
		log.Error().Err(err).Msg("mark queued job failed")
	}
}

// markAvailable publishes a job the queue finished to the library.
func (q *QueueRunner) markAvailable(ctx context.Context, jobID string, log *zerolog.Logger) {
	_, err := q.jobs.Update(context.WithoutCancel(ctx), jobID, model.JobPatch{
		LibraryStatus: model.Ptr(model.LibraryAvailable),
	})
	if err != nil {
		log.Error().Err(err).Msg("publish finished job to library")
	}
}

func (q *QueueRunner) setCurrent(jobID string) {
	q.mu.Lock()
	q.status.CurrentJobID = jobID
	q.mu.Unlock()
}

func (q *QueueRunner) record(jobID string, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.status.CurrentJobID = ""
	if jobID != "" {
		q.status.Processed++
	}
	if err != nil {
		if jobID != "" {
			q.status.Failed++
		}
		q.status.LastError = err.Error()
	}
}
