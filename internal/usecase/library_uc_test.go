package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"longform-scriptgen/internal/domain"
	"longform-scriptgen/internal/domain/model"
	"longform-scriptgen/internal/domain/ports/repository"
)

type stubRuns map[string]bool

func (s stubRuns) IsRunning(id string) bool { return s[id] }

func newLibrary(t *testing.T, runs RunChecker) (*libraryUC, *JobStore) {
	t.Helper()
	store := NewJobStore(newMemJobRepo(), nil)
	return NewLibraryUseCase(store, runs, nil), store
}

func TestLibrary_EnqueueAndList(t *testing.T) {
	lib, _ := newLibrary(t, nil)
	ctx := context.Background()
	j, err := lib.Enqueue(ctx, input(), "")
	if err != nil {
		t.Fatal(err)
	}
	if j.Status != model.JobStatusPending || j.Source != model.SourceAutomation {
		t.Fatalf("enqueued = %+v", j)
	}
	if _, err := lib.Enqueue(ctx, model.JobInput{Title: " "}, model.SourceManual); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("blank input: %v", err)
	}
	list, err := lib.List(ctx, repository.JobFilter{LibraryStatus: model.LibraryAvailable})
	if err != nil || len(list) != 1 {
		t.Fatalf("list = %v, err = %v", list, err)
	}
	if _, err := lib.List(ctx, repository.JobFilter{Status: "BOGUS"}); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("bad filter: %v", err)
	}
}

func TestLibrary_ArchiveRestoreDelete(t *testing.T) {
	lib, _ := newLibrary(t, nil)
	ctx := context.Background()
	j, _ := lib.Enqueue(ctx, input(), model.SourceManual)

	if err := lib.Delete(ctx, j.ID); !errors.Is(err, domain.ErrNotArchived) {
		t.Fatalf("delete available: %v", err)
	}
	if got, err := lib.Archive(ctx, j.ID); err != nil || got.LibraryStatus != model.LibraryArchived {
		t.Fatalf("archive: %+v %v", got, err)
	}
	if got, err := lib.Restore(ctx, j.ID); err != nil || got.LibraryStatus != model.LibraryAvailable {
		t.Fatalf("restore: %+v %v", got, err)
	}
	_, _ = lib.Archive(ctx, j.ID)
	if err := lib.Delete(ctx, j.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := lib.Get(ctx, j.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("get after delete: %v", err)
	}
	if _, err := lib.Archive(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("archive missing: %v", err)
	}
}

func TestLibrary_DeleteRefusesRunningJob(t *testing.T) {
	runs := stubRuns{}
	lib, _ := newLibrary(t, runs)
	ctx := context.Background()
	j, _ := lib.Enqueue(ctx, input(), model.SourceManual)
	_, _ = lib.Archive(ctx, j.ID)
	runs[j.ID] = true
	if err := lib.Delete(ctx, j.ID); !errors.Is(err, domain.ErrJobBusy) {
		t.Fatalf("want ErrJobBusy, got %v", err)
	}
}

func TestLibrary_Retry(t *testing.T) {
	lib, store := newLibrary(t, nil)
	ctx := context.Background()
	j, _ := lib.Enqueue(ctx, input(), model.SourceManual)
	if _, err := lib.Retry(ctx, j.ID); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("retry pending: %v", err)
	}
	_, _ = store.Update(ctx, j.ID, model.JobPatch{Status: model.Ptr(model.JobStatusFailed), Error: model.Ptr("boom")})
	got, err := lib.Retry(ctx, j.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != model.JobStatusPending || got.Error != "" {
		t.Fatalf("after retry: %+v", got)
	}
}

func TestLibrary_Export(t *testing.T) {
	lib, store := newLibrary(t, nil)
	ctx := context.Background()
	j, _ := lib.Enqueue(ctx, input(), model.SourceManual)
	if _, err := lib.Export(ctx, j.ID, 0); !errors.Is(err, domain.ErrJobNotReady) {
		t.Fatalf("export without hook: %v", err)
	}
	_, _ = store.Update(ctx, j.ID, model.JobPatch{
		Outlines:       []model.ChapterOutline{{ID: 1, Title: "a", TargetWordCount: 10}},
		Hook:           model.Ptr("Hook here."),
		AppendChapters: []string{"Chapter one text."},
		RefinedTitle:   model.Ptr("Better Title"),
	})
	exp, err := lib.Export(ctx, j.ID, 12)
	if err != nil {
		t.Fatal(err)
	}
	if exp.Script != "Hook here.\n\nChapter one text." || exp.Words != 5 || exp.Title != "Better Title" {
		t.Fatalf("export = %+v", exp)
	}
	if len(exp.Sections) < 2 {
		t.Errorf("sections = %q", exp.Sections)
	}
}

func TestSplitScript(t *testing.T) {
	tests := []struct {
		name string
		text string
		max  int
		want []string
	}{
		{"fits", "One. Two.", 50, []string{"One. Two."}},
		{"sentence end", "First sentence. Second sentence here.", 20, []string{"First sentence.", "Second sentence", "here."}},
		{"word break", "alpha beta gamma delta", 11, []string{"alpha beta", "gamma delta"}},
		{"hard cut", "abcdefghij", 4, []string{"abcd", "efgh", "ij"}},
		{"empty", "   ", 10, nil},
		{"no limit", "keep all", 0, []string{"keep all"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitScript(tt.text, tt.max)
			if strings.Join(got, "|") != strings.Join(tt.want, "|") || len(got) != len(tt.want) {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
			for _, s := range got {
				if tt.max > 0 && len([]rune(s)) > tt.max {
					t.Errorf("section %q exceeds %d", s, tt.max)
				}
			}
		})
	}
}
