// File: internal/usecase/assets_uc.go
package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"longform-scriptgen/internal/domain"
	"longform-scriptgen/internal/domain/model"
	"longform-scriptgen/internal/domain/ports/adapter"
	"longform-scriptgen/internal/infra/logging"
)

// Compile-time check
var _ AssetsUseCase = (*assetsUC)(nil)

// AssetsUseCase produces marketing assets for a written script. Failures here
// never touch the job's generation status.
type AssetsUseCase interface {
	GenerateThumbnailIdeas(ctx context.Context, jobID string) (*model.ThumbnailIdeas, error)
	GenerateThumbnailImage(ctx context.Context, jobID string, req adapter.ThumbnailImageRequest) (string, error)
	GenerateTitlePackages(ctx context.Context, jobID string) ([]model.TitleDescriptionPackage, error)
	SetPackageStatus(ctx context.Context, jobID string, packageID int, status model.PackageStatus) (*model.Job, error)
}

type assetsUC struct {
	store *JobStore
	gen   adapter.AssetGenerator
	log   *zerolog.Logger

	// serialises read-modify-write of title packages
	mu sync.Mutex
}

func NewAssetsUseCase(store *JobStore, gen adapter.AssetGenerator, logger *zerolog.Logger) *assetsUC {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "assets").Logger()
	return &assetsUC{store: store, gen: gen, log: &l}
}

func (a *assetsUC) readyJob(ctx context.Context, jobID string) (*model.Job, error) {
	job, err := a.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(job.Hook) == "" {
		return nil, domain.ErrJobNotReady
	}
	return job, nil
}

func (a *assetsUC) GenerateThumbnailIdeas(ctx context.Context, jobID string) (*model.ThumbnailIdeas, error) {
	defer logging.TraceDuration(a.log, "Assets.GenerateThumbnailIdeas")()
	job, err := a.readyJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	ideas, err := a.gen.GenerateThumbnailIdeas(ctx, job.DisplayTitle(), job.Hook)
	if err != nil {
		a.log.Warn().Err(err).Str("job_id", jobID).Msg("thumbnail ideas failed")
		return nil, fmt.Errorf("thumbnail ideas: %w", err)
	}
	if _, err := a.store.Update(ctx, jobID, model.JobPatch{ThumbnailIdeas: ideas}); err != nil {
		return nil, err
	}
	return ideas, nil
}

// GenerateThumbnailImage falls back to the stored thumbnail ideas for an
// empty prompt or overlay text.
func (a *assetsUC) GenerateThumbnailImage(ctx context.Context, jobID string, req adapter.ThumbnailImageRequest) (string, error) {
	defer logging.TraceDuration(a.log, "Assets.GenerateThumbnailImage")()
	job, err := a.readyJob(ctx, jobID)
	if err != nil {
		return "", err
	}
	if job.ThumbnailIdeas != nil {
		if strings.TrimSpace(req.Prompt) == "" {
			req.Prompt = job.ThumbnailIdeas.ImageGenerationPrompt
		}
		if req.AddTextOverlay && strings.TrimSpace(req.TextOverlay) == "" {
			req.TextOverlay = job.ThumbnailIdeas.TextOnThumbnail
		}
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return "", fmt.Errorf("%w: image prompt is required", domain.ErrInvalidArgument)
	}
	uri, err := a.gen.GenerateThumbnailImage(ctx, req)
	if err != nil {
		a.log.Warn().Err(err).Str("job_id", jobID).Str("model", req.Model).Msg("thumbnail image failed")
		return "", err
	}
	if _, err := a.store.Update(ctx, jobID, model.JobPatch{AppendThumbnailURLs: []string{uri}}); err != nil {
		return "", err
	}
	return uri, nil
}

func (a *assetsUC) GenerateTitlePackages(ctx context.Context, jobID string) ([]model.TitleDescriptionPackage, error) {
	defer logging.TraceDuration(a.log, "Assets.GenerateTitlePackages")()
	job, err := a.readyJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	pkgs, err := a.gen.GenerateTitlePackages(ctx, job.Title, job.FullScript())
	if err != nil {
		a.log.Warn().Err(err).Str("job_id", jobID).Msg("title packages failed")
		return nil, fmt.Errorf("title packages: %w", err)
	}
	for i := range pkgs {
		pkgs[i].ID = i + 1
		pkgs[i].Status = model.PackageUnused
		if pkgs[i].Hashtags == nil {
			pkgs[i].Hashtags = []string{}
		}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := a.store.Update(ctx, jobID, model.JobPatch{TitlePackages: pkgs}); err != nil {
		return nil, err
	}
	return pkgs, nil
}

func (a *assetsUC) SetPackageStatus(ctx context.Context, jobID string, packageID int, status model.PackageStatus) (*model.Job, error) {
	if status != model.PackageUsed && status != model.PackageUnused {
		return nil, fmt.Errorf("%w: package status %q", domain.ErrInvalidArgument, status)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	job, err := a.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	pkgs := job.TitlePackages
	found := false
	for i := range pkgs {
		if pkgs[i].ID == packageID {
			pkgs[i].Status = status
			found = true
			break
		}
	}
	if !found {
		return nil, domain.ErrNotFound
	}
	return a.store.Update(ctx, jobID, model.JobPatch{TitlePackages: pkgs})
}
