package api

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"longform-scriptgen/internal/domain"
	"longform-scriptgen/internal/domain/model"
	"longform-scriptgen/internal/domain/ports/adapter"
	"longform-scriptgen/internal/domain/ports/repository"
	"longform-scriptgen/internal/infra/logging"
	red "longform-scriptgen/internal/infra/redis"
)

const (
	loginAttempts = 10
	loginWindow   = 15 * time.Minute
)

// ---- helpers ----

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var (
		parseErr *domain.ParseError
		emptyErr *domain.EmptyGenerationError
	)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrUnsupportedEdit):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrAlreadyExists),
		errors.Is(err, domain.ErrRunInProgress),
		errors.Is(err, domain.ErrNoActiveRun),
		errors.Is(err, domain.ErrJobLocked),
		errors.Is(err, domain.ErrJobBusy),
		errors.Is(err, domain.ErrJobNotReady),
		errors.Is(err, domain.ErrNotArchived):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrNoImageReturned), errors.As(err, &emptyErr), errors.As(err, &parseErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		l := logging.With(r.Context(), s.log)
		l.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		msg = "internal error"
	}
	writeJSONError(w, code, msg)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return errors.New("missing request body")
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 8<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ---- auth ----

type loginRequest struct {
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.auth.Enabled() {
		writeJSON(w, http.StatusOK, map[string]any{"auth": "disabled"})
		return
	}
	if s.limiter != nil {
		ok, err := s.limiter.Allow(r.Context(), red.LoginAttemptKey(clientIP(r)), loginAttempts, loginWindow)
		if err != nil {
			s.log.Warn().Err(err).Msg("login rate limiter unavailable")
		} else if !ok {
			writeJSONError(w, http.StatusTooManyRequests, "too many login attempts")
			return
		}
	}
	var req loginRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !s.auth.CheckPassword(req.Password) {
		writeJSONError(w, http.StatusUnauthorized, "invalid password")
		return
	}
	token, exp, err := s.auth.Mint(w)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": token, "expires_at": exp.UTC()})
}

func (s *Server) handleLogout(w http.ResponseWriter, _ *http.Request) {
	if s.auth.Enabled() {
		s.auth.Clear(w)
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- jobs ----

func (s *Server) handleStartJob(w http.ResponseWriter, r *http.Request) {
	var in model.JobInput
	if err := decodeBody(w, r, &in); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	job, err := s.pipeline.Start(r.Context(), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := repository.JobFilter{
		Status:        model.JobStatus(strings.ToUpper(q.Get("status"))),
		LibraryStatus: model.LibraryStatus(strings.ToUpper(q.Get("library_status"))),
	}
	var err error
	if f.Limit, err = intParam(q.Get("limit")); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	if f.Offset, err = intParam(q.Get("offset")); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid offset")
		return
	}
	jobs, err := s.library.List(r.Context(), f)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New("invalid")
	}
	return n, nil
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.library.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	if err := s.library.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleJobProgress(w http.ResponseWriter, r *http.Request) {
	pr, err := s.pipeline.Progress(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pr)
}

func (s *Server) handleResumeJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.pipeline.Resume(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	s.respondJob(w, r)(s.library.Archive(r.Context(), chi.URLParam(r, "id")))
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	s.respondJob(w, r)(s.library.Restore(r.Context(), chi.URLParam(r, "id")))
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	s.respondJob(w, r)(s.library.Retry(r.Context(), chi.URLParam(r, "id")))
}

func (s *Server) respondJob(w http.ResponseWriter, r *http.Request) func(*model.Job, error) {
	return func(job *model.Job, err error) {
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, job)
	}
}

// handleExport returns the full script as JSON, or as plain text with
// ?format=text. section_chars splits it into pieces of at most that size.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	sectionChars, err := intParam(r.URL.Query().Get("section_chars"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid section_chars")
		return
	}
	exp, err := s.library.Export(r.Context(), chi.URLParam(r, "id"), sectionChars)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="`+exp.JobID+`.txt"`)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(exp.Script))
		return
	}
	writeJSON(w, http.StatusOK, exp)
}

// ---- assets ----

func (s *Server) handleThumbnailIdeas(w http.ResponseWriter, r *http.Request) {
	ideas, err := s.assets.GenerateThumbnailIdeas(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ideas)
}

func (s *Server) handleThumbnailImage(w http.ResponseWriter, r *http.Request) {
	var req adapter.ThumbnailImageRequest
	if r.Body != nil && r.Body != http.NoBody {
		if err := decodeBody(w, r, &req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	uri, err := s.assets.GenerateThumbnailImage(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"data_uri": uri})
}

func (s *Server) handleTitlePackages(w http.ResponseWriter, r *http.Request) {
	pkgs, err := s.assets.GenerateTitlePackages(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pkgs)
}

type packageStatusRequest struct {
	Status model.PackageStatus `json:"status"`
}

func (s *Server) handleSetPackageStatus(w http.ResponseWriter, r *http.Request) {
	pkgID, err := strconv.Atoi(chi.URLParam(r, "pkg"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid package id")
		return
	}
	var req packageStatusRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	status := model.PackageStatus(strings.ToUpper(string(req.Status)))
	s.respondJob(w, r)(s.assets.SetPackageStatus(r.Context(), chi.URLParam(r, "id"), pkgID, status))
}

// ---- run control ----

func (s *Server) handleCurrentRun(w http.ResponseWriter, _ *http.Request) {
	cur := s.pipeline.Current()
	if cur == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, cur)
}

func (s *Server) handleRunSignal(fn func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(); err != nil {
			s.fail(w, r, err)
			return
		}
		cur := s.pipeline.Current()
		if cur == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusAccepted, cur)
	}
}

// ---- queue ----

func (s *Server) handleQueueStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.queue.Status())
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var in model.JobInput
	if err := decodeBody(w, r, &in); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	job, err := s.library.Enqueue(r.Context(), in, model.SourceAutomation)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

func (s *Server) handleQueueStart(w http.ResponseWriter, _ *http.Request) {
	started := s.queue.Start()
	code := http.StatusAccepted
	if !started {
		code = http.StatusOK
	}
	writeJSON(w, code, s.queue.Status())
}

func (s *Server) handleQueueSignal(fn func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(); err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, s.queue.Status())
	}
}
