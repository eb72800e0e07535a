package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		jobsFinishedTotal,
		stageDurationSeconds,
		chaptersWrittenTotal,
		batchMismatchTotal,
		activeRuns,
	)
}

var (
	jobsFinishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "script_jobs_finished_total",
			Help: "Pipeline runs by final status.",
		},
		[]string{"status"}, // done, failed, pending (stopped)
	)

	stageDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "script_stage_duration_seconds",
			Help:    "Wall time spent per pipeline stage.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
		[]string{"stage"},
	)

	chaptersWrittenTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "script_chapters_written_total",
			Help: "Chapters appended to jobs.",
		},
	)

	batchMismatchTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "script_chapter_batch_mismatch_total",
			Help: "Chapter batches whose piece count differed from the request.",
		},
	)

	activeRuns = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "script_active_runs",
			Help: "Pipeline runs currently in progress.",
		},
	)
)

func IncJobFinished(status string) {
	jobsFinishedTotal.WithLabelValues(norm(status)).Inc()
}

func ObserveStage(stage string, d time.Duration) {
	stageDurationSeconds.WithLabelValues(norm(stage)).Observe(d.Seconds())
}

func AddChaptersWritten(n int) {
	chaptersWrittenTotal.Add(float64(n))
}

func IncBatchMismatch() {
	batchMismatchTotal.Inc()
}

func RunStarted()  { activeRuns.Inc() }
func RunFinished() { activeRuns.Dec() }
