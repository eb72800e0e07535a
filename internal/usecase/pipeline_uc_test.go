package usecase

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"longform-scriptgen/internal/domain"
	"longform-scriptgen/internal/domain/model"
	"longform-scriptgen/internal/domain/ports/adapter"
)

type pipelineFixture struct {
	p        *Pipeline
	repo     *memJobRepo
	store    *JobStore
	gen      *fakeGen
	locker   *fakeLocker
	cache    *memProgressCache
	notifier *recordingNotifier
}

func newPipelineFixture(t *testing.T, gen *fakeGen) *pipelineFixture {
	t.Helper()
	logger := zerolog.Nop()
	f := &pipelineFixture{
		repo:     newMemJobRepo(),
		gen:      gen,
		locker:   newFakeLocker(),
		cache:    newMemProgressCache(),
		notifier: &recordingNotifier{},
	}
	f.store = NewJobStore(f.repo, &logger)
	f.p = NewPipeline(f.store, gen, f.locker, f.cache, f.notifier, PipelineConfig{BatchSize: 3}, &logger)
	t.Cleanup(f.p.Close)
	return f
}

func input() model.JobInput {
	return model.JobInput{Title: "The Cabin", Concept: "A woman rebuilds her life.", DurationMinutes: 30}
}

// seedJob stores a job at an arbitrary point of its lifecycle.
func (f *pipelineFixture) seedJob(t *testing.T, mutate func(j *model.Job)) *model.Job {
	t.Helper()
	j, err := model.NewJob(input(), model.SourceManual, model.JobStatusPending)
	if err != nil {
		t.Fatal(err)
	}
	mutate(j)
	if err := f.repo.Create(context.Background(), nil, j); err != nil {
		t.Fatal(err)
	}
	return j
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPipeline_HappyPath(t *testing.T) {
	gen := &fakeGen{outline: outlineText(5), hook: "A gripping opening line."}
	f := newPipelineFixture(t, gen)

	job, err := f.p.Start(context.Background(), input())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := f.p.Wait(); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	got := f.repo.raw(job.ID)
	if got.Status != model.JobStatusDone {
		t.Fatalf("status = %s (%s)", got.Status, got.Error)
	}
	if len(got.Outlines) != 6 || got.Outlines[0].ID != model.HookOutlineID {
		t.Fatalf("outlines = %+v", got.Outlines)
	}
	if got.RefinedTitle != "Refined Story" {
		t.Errorf("refined title = %q", got.RefinedTitle)
	}
	if len(got.ChaptersContent) != 5 {
		t.Fatalf("chapters = %d", len(got.ChaptersContent))
	}
	for i, c := range got.ChaptersContent {
		if !strings.HasPrefix(c, "Chapter "+string(rune('1'+i))+" ") {
			t.Errorf("chapter %d misaligned: %q", i, c)
		}
	}
	_, _, batches := gen.counts()
	if want := [][]int{{1, 2, 3}, {4, 5}}; !reflect.DeepEqual(batches, want) {
		t.Errorf("batches = %v, want %v", batches, want)
	}
	if got.TotalWords != 650 {
		t.Errorf("total words = %d, want 650", got.TotalWords)
	}
	if got.WordsWritten != WrittenWords(got) {
		t.Errorf("words written = %d, want %d", got.WordsWritten, WrittenWords(got))
	}
	if err := got.Validate(); err != nil {
		t.Errorf("invariants: %v", err)
	}
	if len(f.locker.held) != 0 || f.locker.unlock != 1 {
		t.Errorf("run lock not released: held=%v unlocks=%d", f.locker.held, f.locker.unlock)
	}
	if pr, _ := f.cache.Get(context.Background(), job.ID); pr == nil || pr.State != string(model.JobStatusDone) {
		t.Errorf("progress cache = %+v", pr)
	}
	if !reflect.DeepEqual(f.notifier.jobs, []model.JobStatus{model.JobStatusDone}) {
		t.Errorf("notifications = %v", f.notifier.jobs)
	}
}

func TestPipeline_ResumeAfterFailure(t *testing.T) {
	gen := &fakeGen{outline: outlineText(5), hook: "unused"}
	f := newPipelineFixture(t, gen)
	outlines := []model.ChapterOutline{{ID: 0, Title: "Hook"}}
	for i := 1; i <= 5; i++ {
		outlines = append(outlines, model.ChapterOutline{ID: i, Title: "c", TargetWordCount: 100})
	}
	seeded := f.seedJob(t, func(j *model.Job) {
		j.Status = model.JobStatusFailed
		j.Error = "provider timeout"
		j.RawOutlineText = outlineText(5)
		j.Outlines = outlines
		j.Hook = "Existing hook"
		j.ChaptersContent = []string{"one", "two"}
	})

	if err := f.p.Run(context.Background(), seeded.ID, nil); err != nil {
		t.Fatalf("run: %v", err)
	}

	got := f.repo.raw(seeded.ID)
	if got.Status != model.JobStatusDone || got.Error != "" {
		t.Fatalf("status = %s, error = %q", got.Status, got.Error)
	}
	nOutlines, nHooks, batches := gen.counts()
	if nOutlines != 0 || nHooks != 0 {
		t.Errorf("outline calls = %d, hook calls = %d, want 0", nOutlines, nHooks)
	}
	if want := [][]int{{3, 4, 5}}; !reflect.DeepEqual(batches, want) {
		t.Errorf("batches = %v, want %v", batches, want)
	}
	if got.ChaptersContent[0] != "one" || got.ChaptersContent[1] != "two" {
		t.Errorf("existing chapters changed: %v", got.ChaptersContent[:2])
	}
}

func TestPipeline_CompleteJobIsIdempotent(t *testing.T) {
	gen := &fakeGen{outline: outlineText(2), hook: "h"}
	f := newPipelineFixture(t, gen)
	job, _ := f.p.Start(context.Background(), input())
	if err := f.p.Wait(); err != nil {
		t.Fatal(err)
	}
	before := f.repo.raw(job.ID)

	if err := f.p.Run(context.Background(), job.ID, nil); err != nil {
		t.Fatalf("second run: %v", err)
	}
	after := f.repo.raw(job.ID)
	nOutlines, nHooks, batches := gen.counts()
	if nOutlines != 1 || nHooks != 1 || len(batches) != 1 {
		t.Errorf("calls after rerun: outline=%d hook=%d batches=%d", nOutlines, nHooks, len(batches))
	}
	if after.Status != model.JobStatusDone || !reflect.DeepEqual(before.ChaptersContent, after.ChaptersContent) {
		t.Errorf("rerun changed the job: %+v", after)
	}
}

func TestPipeline_BatchMismatchKeepsAlignment(t *testing.T) {
	gen := &fakeGen{outline: outlineText(5), hook: "h"}
	gen.batch = func(call int, chapters []model.ChapterOutline) (string, error) {
		if call == 0 {
			return chapterText(chapters[:2]), nil
		}
		return chapterText(chapters), nil
	}
	f := newPipelineFixture(t, gen)

	job, _ := f.p.Start(context.Background(), input())
	if err := f.p.Wait(); err != nil {
		t.Fatalf("run: %v", err)
	}

	_, _, batches := gen.counts()
	if want := [][]int{{1, 2, 3}, {3, 4, 5}}; !reflect.DeepEqual(batches, want) {
		t.Fatalf("batches = %v, want %v", batches, want)
	}
	got := f.repo.raw(job.ID)
	if got.Status != model.JobStatusDone || len(got.ChaptersContent) != 5 {
		t.Fatalf("status = %s, chapters = %d", got.Status, len(got.ChaptersContent))
	}
	if !strings.HasPrefix(got.ChaptersContent[2], "Chapter 3 ") {
		t.Errorf("chapter 3 misaligned: %q", got.ChaptersContent[2])
	}
}

func TestPipeline_ShortRunEndsIncomplete(t *testing.T) {
	gen := &fakeGen{outline: outlineText(6), hook: "h"}
	gen.batch = func(call int, chapters []model.ChapterOutline) (string, error) {
		if call == 0 {
			// two pieces plus trailing delimiters and blanks
			return chapterText(chapters[:2]) + "\n" + adapter.ChapterDelimiter + "\n  \n", nil
		}
		return chapterText(chapters), nil
	}
	f := newPipelineFixture(t, gen)

	job, _ := f.p.Start(context.Background(), input())
	err := f.p.Wait()
	var incomplete *domain.IncompleteCompletionError
	if !errors.As(err, &incomplete) {
		t.Fatalf("want IncompleteCompletionError, got %v", err)
	}
	if incomplete.Written != 5 || incomplete.Expected != 6 {
		t.Errorf("incomplete = %+v", incomplete)
	}
	got := f.repo.raw(job.ID)
	if got.Status != model.JobStatusFailed || got.Error == "" {
		t.Fatalf("status = %s, error = %q", got.Status, got.Error)
	}
	if len(got.ChaptersContent) != 5 {
		t.Errorf("chapters = %d", len(got.ChaptersContent))
	}

	// resuming picks up the missing chapter only
	if err := f.p.Run(context.Background(), job.ID, nil); err != nil {
		t.Fatalf("resume: %v", err)
	}
	_, _, batches := gen.counts()
	if last := batches[len(batches)-1]; !reflect.DeepEqual(last, []int{6}) {
		t.Errorf("resume batch = %v", last)
	}
	if got := f.repo.raw(job.ID); got.Status != model.JobStatusDone {
		t.Errorf("status after resume = %s", got.Status)
	}
}

func TestPipeline_ExtraPiecesAreDiscarded(t *testing.T) {
	gen := &fakeGen{outline: outlineText(3), hook: "h"}
	gen.batch = func(call int, chapters []model.ChapterOutline) (string, error) {
		extra := append(append([]model.ChapterOutline(nil), chapters...), model.ChapterOutline{ID: 99})
		return chapterText(extra), nil
	}
	f := newPipelineFixture(t, gen)

	job, _ := f.p.Start(context.Background(), input())
	if err := f.p.Wait(); err != nil {
		t.Fatalf("run: %v", err)
	}
	got := f.repo.raw(job.ID)
	if len(got.ChaptersContent) != 3 || got.Status != model.JobStatusDone {
		t.Fatalf("chapters = %d, status = %s", len(got.ChaptersContent), got.Status)
	}
}

func TestPipeline_PauseThenResume(t *testing.T) {
	gen := &fakeGen{outline: outlineText(5), hook: "h"}
	f := newPipelineFixture(t, gen)
	gen.onBatch = func(call int) {
		if call == 0 {
			if err := f.p.Pause(); err != nil {
				t.Errorf("pause: %v", err)
			}
		}
	}

	job, err := f.p.Start(context.Background(), input())
	if err != nil {
		t.Fatal(err)
	}
	waitFor(t, "paused status", func() bool { return f.repo.raw(job.ID).Status == model.JobStatusPaused })

	paused := f.repo.raw(job.ID)
	if len(paused.ChaptersContent) != 3 {
		t.Fatalf("chapters while paused = %d, want 3", len(paused.ChaptersContent))
	}
	if cur := f.p.Current(); cur == nil || cur.State != string(model.JobStatusPaused) {
		t.Errorf("current progress = %+v", cur)
	}
	if _, err := f.p.Start(context.Background(), input()); !errors.Is(err, domain.ErrRunInProgress) {
		t.Errorf("second start: want ErrRunInProgress, got %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, _, batches := gen.counts(); len(batches) != 1 {
		t.Fatalf("batch calls while paused = %d", len(batches))
	}

	if err := f.p.ResumeFromPause(); err != nil {
		t.Fatal(err)
	}
	if err := f.p.Wait(); err != nil {
		t.Fatalf("run: %v", err)
	}
	nOutlines, nHooks, batches := gen.counts()
	if nOutlines != 1 || nHooks != 1 || len(batches) != 2 {
		t.Errorf("calls: outline=%d hook=%d batches=%v", nOutlines, nHooks, batches)
	}
	if got := f.repo.raw(job.ID); got.Status != model.JobStatusDone || len(got.ChaptersContent) != 5 {
		t.Errorf("final status = %s, chapters = %d", got.Status, len(got.ChaptersContent))
	}
}

func TestPipeline_StopResetsToPending(t *testing.T) {
	gen := &fakeGen{outline: outlineText(5), hook: "h"}
	f := newPipelineFixture(t, gen)
	gen.onBatch = func(call int) {
		if call == 0 {
			_ = f.p.Stop()
		}
	}

	job, _ := f.p.Start(context.Background(), input())
	err := f.p.Wait()
	if !errors.Is(err, domain.ErrStoppedByUser) {
		t.Fatalf("want ErrStoppedByUser, got %v", err)
	}
	got := f.repo.raw(job.ID)
	if got.Status != model.JobStatusPending || got.Error != "" || got.CurrentTask != "Stopped by user" {
		t.Fatalf("after stop: status=%s error=%q task=%q", got.Status, got.Error, got.CurrentTask)
	}
	if len(got.ChaptersContent) != 3 {
		t.Errorf("in-flight batch not kept: %d chapters", len(got.ChaptersContent))
	}
	if len(f.notifier.jobs) != 0 {
		t.Errorf("stop must not notify, got %v", f.notifier.jobs)
	}

	gen.onBatch = nil
	if _, err := f.p.Resume(context.Background(), job.ID); err != nil {
		t.Fatal(err)
	}
	if err := f.p.Wait(); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if got := f.repo.raw(job.ID); got.Status != model.JobStatusDone {
		t.Errorf("status = %s", got.Status)
	}
}

func TestPipeline_ContextCancelIsStop(t *testing.T) {
	gen := &fakeGen{outline: outlineText(5), hook: "h"}
	f := newPipelineFixture(t, gen)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	gen.onBatch = func(call int) { cancel() }
	seeded := f.seedJob(t, func(j *model.Job) {})

	err := f.p.Run(ctx, seeded.ID, nil)
	if !errors.Is(err, domain.ErrStoppedByUser) {
		t.Fatalf("want ErrStoppedByUser, got %v", err)
	}
	if got := f.repo.raw(seeded.ID); got.Status != model.JobStatusPending {
		t.Errorf("status = %s", got.Status)
	}
}

func TestPipeline_OutlineParseFailure(t *testing.T) {
	gen := &fakeGen{outline: "I cannot help with that.", hook: "h"}
	f := newPipelineFixture(t, gen)

	job, _ := f.p.Start(context.Background(), input())
	err := f.p.Wait()
	var perr *domain.ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("want ParseError, got %v", err)
	}
	got := f.repo.raw(job.ID)
	if got.Status != model.JobStatusFailed || got.Error == "" {
		t.Fatalf("status = %s, error = %q", got.Status, got.Error)
	}
	if got.RawOutlineText != "" || len(got.Outlines) != 0 {
		t.Errorf("partial outline persisted: %q %v", got.RawOutlineText, got.Outlines)
	}
	if !reflect.DeepEqual(f.notifier.jobs, []model.JobStatus{model.JobStatusFailed}) {
		t.Errorf("notifications = %v", f.notifier.jobs)
	}
}

func TestPipeline_OutlineGapFails(t *testing.T) {
	gapped := strings.Replace(outlineText(3), "Chapter 2: Part 2", "Chapter 4: Part 2", 1)
	gen := &fakeGen{outline: gapped, hook: "h"}
	f := newPipelineFixture(t, gen)

	job, _ := f.p.Start(context.Background(), input())
	err := f.p.Wait()
	var perr *domain.ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("want ParseError, got %v", err)
	}
	got := f.repo.raw(job.ID)
	if got.Status != model.JobStatusFailed {
		t.Fatalf("status = %s", got.Status)
	}
	if got.RawOutlineText != "" || len(got.Outlines) != 0 || got.Hook != "" {
		t.Errorf("outline persisted: %q %v hook=%q", got.RawOutlineText, got.Outlines, got.Hook)
	}
	if _, hooks, _ := gen.counts(); hooks != 0 {
		t.Errorf("hook generated %d times after a bad outline", hooks)
	}
}

func TestPipeline_ArchivedDuringRunStaysArchived(t *testing.T) {
	gen := &fakeGen{outline: outlineText(4), hook: "h"}
	f := newPipelineFixture(t, gen)
	gen.onBatch = func(call int) {
		if call != 0 {
			return
		}
		cur := f.p.Current()
		if cur == nil {
			t.Error("no current run during batch")
			return
		}
		if _, err := f.store.Update(context.Background(), cur.JobID, model.JobPatch{LibraryStatus: model.Ptr(model.LibraryArchived)}); err != nil {
			t.Errorf("archive: %v", err)
		}
	}

	job, _ := f.p.Start(context.Background(), input())
	if err := f.p.Wait(); err != nil {
		t.Fatal(err)
	}
	got := f.repo.raw(job.ID)
	if got.Status != model.JobStatusDone {
		t.Fatalf("status = %s", got.Status)
	}
	if got.LibraryStatus != model.LibraryArchived {
		t.Errorf("library status = %s, want archived", got.LibraryStatus)
	}
}

func TestPipeline_EmptyHookFails(t *testing.T) {
	gen := &fakeGen{outline: outlineText(2), hook: "   "}
	f := newPipelineFixture(t, gen)

	job, _ := f.p.Start(context.Background(), input())
	err := f.p.Wait()
	var empty *domain.EmptyGenerationError
	if !errors.As(err, &empty) || empty.Stage != StageHook {
		t.Fatalf("want EmptyGenerationError(hook), got %v", err)
	}
	got := f.repo.raw(job.ID)
	if got.Status != model.JobStatusFailed || got.RawOutlineText == "" || got.Hook != "" {
		t.Fatalf("unexpected job state: status=%s outline=%t hook=%q", got.Status, got.RawOutlineText != "", got.Hook)
	}
}

func TestPipeline_EmptyBatchFails(t *testing.T) {
	gen := &fakeGen{outline: outlineText(2), hook: "h"}
	gen.batch = func(int, []model.ChapterOutline) (string, error) {
		return "\n" + adapter.ChapterDelimiter + "\n", nil
	}
	f := newPipelineFixture(t, gen)
	job, _ := f.p.Start(context.Background(), input())
	var empty *domain.EmptyGenerationError
	if err := f.p.Wait(); !errors.As(err, &empty) {
		t.Fatalf("want EmptyGenerationError, got %v", err)
	}
	if got := f.repo.raw(job.ID); len(got.ChaptersContent) != 0 || got.Status != model.JobStatusFailed {
		t.Errorf("status = %s chapters = %d", got.Status, len(got.ChaptersContent))
	}
}

func TestPipeline_ProviderErrorKeepsPriorWork(t *testing.T) {
	gen := &fakeGen{outline: outlineText(5), hook: "h"}
	gen.batch = func(call int, chapters []model.ChapterOutline) (string, error) {
		if call == 1 {
			return "", errors.New("quota exceeded")
		}
		return chapterText(chapters), nil
	}
	f := newPipelineFixture(t, gen)
	job, _ := f.p.Start(context.Background(), input())
	if err := f.p.Wait(); err == nil || !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("unexpected error: %v", err)
	}
	got := f.repo.raw(job.ID)
	if got.Status != model.JobStatusFailed || len(got.ChaptersContent) != 3 || got.Hook == "" {
		t.Fatalf("status=%s chapters=%d hook=%q", got.Status, len(got.ChaptersContent), got.Hook)
	}
	if !strings.Contains(got.Error, "quota exceeded") {
		t.Errorf("error = %q", got.Error)
	}
}

func TestPipeline_FailedAppendPersistsNothing(t *testing.T) {
	gen := &fakeGen{outline: outlineText(3), hook: "h"}
	f := newPipelineFixture(t, gen)
	f.repo.updateErr = func(p model.JobPatch) error {
		if len(p.AppendChapters) > 0 {
			return errors.New("disk full")
		}
		return nil
	}
	job, _ := f.p.Start(context.Background(), input())
	if err := f.p.Wait(); err == nil {
		t.Fatal("expected failure")
	}
	got := f.repo.raw(job.ID)
	if got.Status != model.JobStatusFailed || len(got.ChaptersContent) != 0 {
		t.Fatalf("status=%s chapters=%d", got.Status, len(got.ChaptersContent))
	}
}

func TestPipeline_ProgressIsMonotone(t *testing.T) {
	gen := &fakeGen{outline: outlineText(7), hook: "one two three"}
	f := newPipelineFixture(t, gen)
	f.p.cfg.BatchSize = 2
	var seen []int
	gen.onBatch = func(int) {
		if cur := f.p.Current(); cur != nil {
			seen = append(seen, cur.WordsWritten)
		}
	}
	job, _ := f.p.Start(context.Background(), input())
	if err := f.p.Wait(); err != nil {
		t.Fatal(err)
	}
	if len(seen) != 4 {
		t.Fatalf("samples = %v", seen)
	}
	for i := 1; i < len(seen); i++ {
		if seen[i] < seen[i-1] {
			t.Fatalf("progress went backwards: %v", seen)
		}
	}
	got := f.repo.raw(job.ID)
	if got.WordsWritten != WrittenWords(got) || got.WordsWritten <= seen[len(seen)-1] {
		t.Errorf("final words = %d, samples = %v", got.WordsWritten, seen)
	}
	pr, err := f.p.Progress(context.Background(), job.ID)
	if err != nil || pr.ChaptersDone != 7 {
		t.Errorf("progress = %+v, err = %v", pr, err)
	}
}

func TestPipeline_LockedJobIsUntouched(t *testing.T) {
	gen := &fakeGen{outline: outlineText(2), hook: "h"}
	f := newPipelineFixture(t, gen)
	seeded := f.seedJob(t, func(j *model.Job) {})
	if _, err := f.locker.TryLock(context.Background(), "run_lock:"+seeded.ID, time.Minute); err != nil {
		t.Fatal(err)
	}

	if err := f.p.Run(context.Background(), seeded.ID, nil); !errors.Is(err, domain.ErrJobLocked) {
		t.Fatalf("want ErrJobLocked, got %v", err)
	}
	if got := f.repo.raw(seeded.ID); got.Status != model.JobStatusPending {
		t.Errorf("status = %s", got.Status)
	}
	if f.p.Current() != nil {
		t.Error("run slot not released")
	}
}

func TestPipeline_ControlWithoutRun(t *testing.T) {
	f := newPipelineFixture(t, &fakeGen{})
	for name, fn := range map[string]func() error{
		"pause":  f.p.Pause,
		"resume": f.p.ResumeFromPause,
		"stop":   f.p.Stop,
	} {
		if err := fn(); !errors.Is(err, domain.ErrNoActiveRun) {
			t.Errorf("%s: want ErrNoActiveRun, got %v", name, err)
		}
	}
	if err := f.p.Wait(); err != nil {
		t.Errorf("wait without run: %v", err)
	}
	if _, err := f.p.Start(context.Background(), model.JobInput{}); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("empty input: %v", err)
	}
}

func TestSplitChapterBatch(t *testing.T) {
	d := adapter.ChapterDelimiter
	got := SplitChapterBatch("  first \n" + d + "\n\n" + d + "second\n" + d)
	if !reflect.DeepEqual(got, []string{"first", "second"}) {
		t.Fatalf("got %q", got)
	}
	if got := SplitChapterBatch(""); len(got) != 0 {
		t.Fatalf("empty input gave %q", got)
	}
}
