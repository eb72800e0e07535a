package usecase

import (
	"context"
	"errors"
	"testing"

	"longform-scriptgen/internal/domain"
	"longform-scriptgen/internal/domain/model"
	"longform-scriptgen/internal/domain/ports/adapter"
)

func newAssetsFixture(t *testing.T, withHook bool) (*assetsUC, *fakeAssets, *JobStore, string) {
	t.Helper()
	store := NewJobStore(newMemJobRepo(), nil)
	ctx := context.Background()
	j, _ := model.NewJob(input(), model.SourceManual, model.JobStatusFailed)
	j.Error = "chapter batch failed"
	if withHook {
		j.Outlines = []model.ChapterOutline{{ID: 1, Title: "a"}}
		j.Hook = "A hook."
	}
	if err := store.Create(ctx, j); err != nil {
		t.Fatal(err)
	}
	gen := &fakeAssets{
		ideas: &model.ThumbnailIdeas{ImageGenerationPrompt: "a cabin at dusk", TextOnThumbnail: "SHE LEFT"},
		pkgs: []model.TitleDescriptionPackage{
			{ID: 7, Title: "One", Status: model.PackageUsed},
			{Title: "Two", Hashtags: []string{"#x"}},
		},
	}
	return NewAssetsUseCase(store, gen, nil), gen, store, j.ID
}

func TestAssets_RequireHook(t *testing.T) {
	uc, _, _, id := newAssetsFixture(t, false)
	ctx := context.Background()
	if _, err := uc.GenerateThumbnailIdeas(ctx, id); !errors.Is(err, domain.ErrJobNotReady) {
		t.Errorf("ideas: %v", err)
	}
	if _, err := uc.GenerateTitlePackages(ctx, id); !errors.Is(err, domain.ErrJobNotReady) {
		t.Errorf("packages: %v", err)
	}
	if _, err := uc.GenerateThumbnailImage(ctx, id, adapter.ThumbnailImageRequest{Prompt: "x"}); !errors.Is(err, domain.ErrJobNotReady) {
		t.Errorf("image: %v", err)
	}
}

func TestAssets_IdeasThenImageUsesStoredPrompt(t *testing.T) {
	uc, gen, store, id := newAssetsFixture(t, true)
	ctx := context.Background()
	if _, err := uc.GenerateThumbnailImage(ctx, id, adapter.ThumbnailImageRequest{}); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("image without prompt: %v", err)
	}
	if _, err := uc.GenerateThumbnailIdeas(ctx, id); err != nil {
		t.Fatal(err)
	}
	uri, err := uc.GenerateThumbnailImage(ctx, id, adapter.ThumbnailImageRequest{AddTextOverlay: true})
	if err != nil {
		t.Fatal(err)
	}
	if gen.imageReq.Prompt != "a cabin at dusk" || gen.imageReq.TextOverlay != "SHE LEFT" {
		t.Errorf("request = %+v", gen.imageReq)
	}
	job, _ := store.Get(ctx, id)
	if len(job.ThumbnailImageURLs) != 1 || job.ThumbnailImageURLs[0] != uri || job.ThumbnailIdeas == nil {
		t.Fatalf("job assets = %+v", job)
	}
	if job.Status != model.JobStatusFailed {
		t.Errorf("asset generation changed status to %s", job.Status)
	}
}

func TestAssets_ErrorsKeepStatus(t *testing.T) {
	uc, gen, store, id := newAssetsFixture(t, true)
	gen.err = domain.ErrUnsupportedEdit
	ctx := context.Background()
	_, err := uc.GenerateThumbnailImage(ctx, id, adapter.ThumbnailImageRequest{Prompt: "p", BaseImage: "data:image/png;base64,AA=="})
	if !errors.Is(err, domain.ErrUnsupportedEdit) {
		t.Fatalf("want ErrUnsupportedEdit, got %v", err)
	}
	job, _ := store.Get(ctx, id)
	if job.Status != model.JobStatusFailed || job.Error != "chapter batch failed" {
		t.Errorf("status = %s, error = %q", job.Status, job.Error)
	}
}

func TestAssets_TitlePackagesAndToggle(t *testing.T) {
	uc, _, _, id := newAssetsFixture(t, true)
	ctx := context.Background()
	pkgs, err := uc.GenerateTitlePackages(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	for i, p := range pkgs {
		if p.ID != i+1 || p.Status != model.PackageUnused || p.Hashtags == nil {
			t.Errorf("package %d = %+v", i, p)
		}
	}

	job, err := uc.SetPackageStatus(ctx, id, 2, model.PackageUsed)
	if err != nil {
		t.Fatal(err)
	}
	if job.TitlePackages[1].Status != model.PackageUsed || job.TitlePackages[0].Status != model.PackageUnused {
		t.Fatalf("packages = %+v", job.TitlePackages)
	}
	if _, err := uc.SetPackageStatus(ctx, id, 9, model.PackageUsed); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown package: %v", err)
	}
	if _, err := uc.SetPackageStatus(ctx, id, 1, "MAYBE"); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("bad status: %v", err)
	}
}
