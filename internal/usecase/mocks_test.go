// File: internal/usecase/mocks_test.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"longform-scriptgen/internal/domain"
	"longform-scriptgen/internal/domain/model"
	"longform-scriptgen/internal/domain/ports/adapter"
	"longform-scriptgen/internal/domain/ports/repository"
)

// memJobRepo is a small in-memory JobRepository used by unit tests.
type memJobRepo struct {
	mu        sync.Mutex
	store     map[string]*model.Job
	updates   int
	updateErr func(patch model.JobPatch) error // used by tests to simulate write failures
}

func newMemJobRepo() *memJobRepo {
	return &memJobRepo{store: make(map[string]*model.Job)}
}

func (m *memJobRepo) Create(ctx context.Context, tx repository.Tx, job *model.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[job.ID]; ok {
		return domain.ErrAlreadyExists
	}
	m.store[job.ID] = job.Clone()
	return nil
}

func (m *memJobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return j.Clone(), nil
}

func (m *memJobRepo) List(ctx context.Context, tx repository.Tx, f repository.JobFilter) ([]*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Job
	for _, j := range m.store {
		if f.Status != "" && j.Status != f.Status {
			continue
		}
		if f.LibraryStatus != "" && j.LibraryStatus != f.LibraryStatus {
			continue
		}
		out = append(out, j.Clone())
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

func (m *memJobRepo) Update(ctx context.Context, tx repository.Tx, id string, patch model.JobPatch) (*model.Job, error) {
	if m.updateErr != nil {
		if err := m.updateErr(patch); err != nil {
			return nil, err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	patch.Apply(j, time.Now().UTC())
	m.updates++
	return j.Clone(), nil
}

func (m *memJobRepo) Delete(ctx context.Context, tx repository.Tx, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.store, id)
	return nil
}

func (m *memJobRepo) NextPending(ctx context.Context) (*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var next *model.Job
	for _, j := range m.store {
		if j.Status == model.JobStatusPending && (next == nil || j.ID < next.ID) {
			next = j
		}
	}
	if next == nil {
		return nil, domain.ErrNotFound
	}
	next.Status = model.JobStatusWriting
	return next.Clone(), nil
}

// raw reads the persisted record, bypassing the JobStore snapshot.
func (m *memJobRepo) raw(id string) *model.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store[id].Clone()
}

// fakeGen scripts ContentGenerator responses and records calls.
type fakeGen struct {
	mu sync.Mutex

	outline    string
	outlineErr error
	hook       string
	hookErr    error
	// batch builds the response for a requested batch; nil writes every chapter.
	batch    func(call int, chapters []model.ChapterOutline) (string, error)
	onBatch  func(call int) // invoked while the call is in flight
	outlines int
	hooks    int
	batches  [][]int // requested chapter ids per call
}

func (f *fakeGen) GenerateOutline(ctx context.Context, title, concept string, durationMinutes int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outlines++
	return f.outline, f.outlineErr
}

func (f *fakeGen) GenerateHook(ctx context.Context, rawOutline string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hooks++
	return f.hook, f.hookErr
}

func (f *fakeGen) GenerateChapterBatch(ctx context.Context, rawOutline string, chapters []model.ChapterOutline) (string, error) {
	f.mu.Lock()
	call := len(f.batches)
	ids := make([]int, 0, len(chapters))
	for _, c := range chapters {
		ids = append(ids, c.ID)
	}
	f.batches = append(f.batches, ids)
	onBatch, batch := f.onBatch, f.batch
	f.mu.Unlock()

	if onBatch != nil {
		onBatch(call)
	}
	if batch != nil {
		return batch(call, chapters)
	}
	return chapterText(chapters), nil
}

func (f *fakeGen) counts() (outlines, hooks int, batches [][]int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.outlines, f.hooks, append([][]int(nil), f.batches...)
}

func chapterText(chapters []model.ChapterOutline) string {
	parts := make([]string, 0, len(chapters))
	for _, c := range chapters {
		parts = append(parts, fmt.Sprintf("Chapter %d body with five words", c.ID))
	}
	return strings.Join(parts, "\n"+adapter.ChapterDelimiter+"\n")
}

// outlineText renders a parseable outline with a Chapter 0 placeholder and n chapters.
func outlineText(n int) string {
	var b strings.Builder
	b.WriteString("---\nTitle: Refined Story\n\nChapter 0: The Hook\n(Word Count: 150 words)\nConcept: Opening hook.\n\n")
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, "Chapter %d: Part %d\n(Word Count: 100 words)\nConcept: What happens in part %d.\n\n", i, i, i)
	}
	b.WriteString("---")
	return b.String()
}

type fakeAssets struct {
	ideas    *model.ThumbnailIdeas
	pkgs     []model.TitleDescriptionPackage
	err      error
	imageReq adapter.ThumbnailImageRequest
}

func (f *fakeAssets) GenerateThumbnailIdeas(ctx context.Context, title, hook string) (*model.ThumbnailIdeas, error) {
	if f.err != nil {
		return nil, f.err
	}
	ideas := *f.ideas
	return &ideas, nil
}

func (f *fakeAssets) GenerateTitlePackages(ctx context.Context, originalTitle, fullScript string) ([]model.TitleDescriptionPackage, error) {
	if f.err != nil {
		return nil, f.err
	}
	return append([]model.TitleDescriptionPackage(nil), f.pkgs...), nil
}

func (f *fakeAssets) GenerateThumbnailImage(ctx context.Context, req adapter.ThumbnailImageRequest) (string, error) {
	f.imageReq = req
	if f.err != nil {
		return "", f.err
	}
	return "data:image/png;base64,AAAA", nil
}

type fakeLocker struct {
	mu     sync.Mutex
	held   map[string]string
	unlock int
}

func newFakeLocker() *fakeLocker { return &fakeLocker{held: map[string]string{}} }

func (l *fakeLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return "", domain.ErrJobLocked
	}
	tok := fmt.Sprintf("tok-%d", len(l.held)+1)
	l.held[key] = tok
	return tok, nil
}

func (l *fakeLocker) Refresh(ctx context.Context, key, token string, ttl time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] != token {
		return errors.New("lock lost")
	}
	return nil
}

func (l *fakeLocker) Unlock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
		l.unlock++
	}
	return nil
}

type memProgressCache struct {
	mu sync.Mutex
	m  map[string]repository.RunProgress
}

func newMemProgressCache() *memProgressCache {
	return &memProgressCache{m: map[string]repository.RunProgress{}}
}

func (c *memProgressCache) Put(ctx context.Context, p repository.RunProgress) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[p.JobID] = p
	return nil
}

func (c *memProgressCache) Get(ctx context.Context, jobID string) (*repository.RunProgress, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.m[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

func (c *memProgressCache) Delete(ctx context.Context, jobID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, jobID)
	return nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	jobs []model.JobStatus
}

func (n *recordingNotifier) NotifyJob(ctx context.Context, job *model.Job) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.jobs = append(n.jobs, job.Status)
	return nil
}
