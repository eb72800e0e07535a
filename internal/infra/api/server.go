package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"longform-scriptgen/internal/infra/worker"
	"longform-scriptgen/internal/usecase"
)

// QueueController is the automation queue as seen by the API.
type QueueController interface {
	Start() bool
	Pause() error
	Resume() error
	Stop() error
	Status() worker.QueueStatus
}

// LoginLimiter throttles password attempts per client address.
type LoginLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type Server struct {
	pipeline usecase.Orchestrator
	library  usecase.LibraryUseCase
	assets   usecase.AssetsUseCase
	queue    QueueController
	auth     *AuthManager
	limiter  LoginLimiter
	log      *zerolog.Logger

	// RequestTimeout bounds ordinary handlers; asset generation gets AssetTimeout.
	RequestTimeout time.Duration
	AssetTimeout   time.Duration
}

func NewServer(
	pipeline usecase.Orchestrator,
	library usecase.LibraryUseCase,
	assets usecase.AssetsUseCase,
	queue QueueController,
	auth *AuthManager,
	limiter LoginLimiter,
	logger *zerolog.Logger,
) *Server {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "api").Logger()
	return &Server{
		pipeline:       pipeline,
		library:        library,
		assets:         assets,
		queue:          queue,
		auth:           auth,
		limiter:        limiter,
		log:            &l,
		RequestTimeout: 15 * time.Second,
		AssetTimeout:   3 * time.Minute,
	}
}

// Router builds the HTTP handler tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID(), RequestLog(s.log), Recover(s.log))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/logout", s.handleLogout)

		r.Group(func(r chi.Router) {
			r.Use(RequireAuth(s.auth))

			r.Group(func(r chi.Router) {
				r.Use(Timeout(s.RequestTimeout))

				r.Post("/jobs", s.handleStartJob)
				r.Get("/jobs", s.handleListJobs)
				r.Get("/jobs/{id}", s.handleGetJob)
				r.Delete("/jobs/{id}", s.handleDeleteJob)
				r.Get("/jobs/{id}/progress", s.handleJobProgress)
				r.Get("/jobs/{id}/export", s.handleExport)
				r.Post("/jobs/{id}/resume", s.handleResumeJob)
				r.Post("/jobs/{id}/archive", s.handleArchive)
				r.Post("/jobs/{id}/restore", s.handleRestore)
				r.Post("/jobs/{id}/retry", s.handleRetry)
				r.Put("/jobs/{id}/title-packages/{pkg}", s.handleSetPackageStatus)

				r.Get("/run", s.handleCurrentRun)
				r.Post("/run/pause", s.handleRunSignal(s.pipeline.Pause))
				r.Post("/run/resume", s.handleRunSignal(s.pipeline.ResumeFromPause))
				r.Post("/run/stop", s.handleRunSignal(s.pipeline.Stop))

				r.Get("/queue", s.handleQueueStatus)
				r.Post("/queue/jobs", s.handleEnqueue)
				r.Post("/queue/start", s.handleQueueStart)
				r.Post("/queue/pause", s.handleQueueSignal(func() error { return s.queue.Pause() }))
				r.Post("/queue/resume", s.handleQueueSignal(func() error { return s.queue.Resume() }))
				r.Post("/queue/stop", s.handleQueueSignal(func() error { return s.queue.Stop() }))
			})

			r.Group(func(r chi.Router) {
				r.Use(Timeout(s.AssetTimeout))

				r.Post("/jobs/{id}/thumbnail-ideas", s.handleThumbnailIdeas)
				r.Post("/jobs/{id}/thumbnails", s.handleThumbnailImage)
				r.Post("/jobs/{id}/title-packages", s.handleTitlePackages)
			})
		})
	})
	return r
}
