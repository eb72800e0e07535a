package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"longform-scriptgen/internal/domain"
)

type JobStatus string

const (
	JobStatusPending JobStatus = "PENDING"
	JobStatusWriting JobStatus = "WRITING"
	JobStatusPaused  JobStatus = "PAUSED"
	JobStatusDone    JobStatus = "DONE"
	JobStatusFailed  JobStatus = "FAILED"
)

func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusWriting, JobStatusPaused, JobStatusDone, JobStatusFailed:
		return true
	}
	return false
}

// Active reports whether a pipeline currently owns the job.
func (s JobStatus) Active() bool {
	return s == JobStatusWriting || s == JobStatusPaused
}

type LibraryStatus string

const (
	LibraryAvailable LibraryStatus = "AVAILABLE"
	LibraryArchived  LibraryStatus = "ARCHIVED"
)

func (s LibraryStatus) Valid() bool {
	return s == LibraryAvailable || s == LibraryArchived
}

type JobSource string

const (
	SourceManual     JobSource = "MANUAL"
	SourceAutomation JobSource = "AUTOMATION"
)

// HookOutlineID is the reserved outline id standing in for the hook.
const HookOutlineID = 0

// ChapterOutline is one planned narrative unit.
type ChapterOutline struct {
	ID              int    `json:"id"`
	Title           string `json:"title"`
	ConceptSummary  string `json:"concept_summary"`
	TargetWordCount int    `json:"target_word_count"`
}

type ThumbnailIdeas struct {
	ImageGenerationPrompt string `json:"image_generation_prompt"`
	TextOnThumbnail       string `json:"text_on_thumbnail"`
}

type PackageStatus string

const (
	PackageUnused PackageStatus = "UNUSED"
	PackageUsed   PackageStatus = "USED"
)

type TitleDescriptionPackage struct {
	ID          int           `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Hashtags    []string      `json:"hashtags"`
	Status      PackageStatus `json:"status"`
}

// Job is one end-to-end script generation task. Pipeline-owned fields are
// written only by the orchestrator; LibraryStatus and the post-generation
// assets belong to the user.
type Job struct {
	ID              string    `json:"id"`
	Source          JobSource `json:"source"`
	Title           string    `json:"title"`
	Concept         string    `json:"concept"`
	DurationMinutes int       `json:"duration_minutes"`

	Status        JobStatus     `json:"status"`
	LibraryStatus LibraryStatus `json:"library_status"`
	CurrentTask   string        `json:"current_task,omitempty"`
	Error         string        `json:"error,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`

	RawOutlineText  string           `json:"raw_outline_text"`
	RefinedTitle    string           `json:"refined_title"`
	Outlines        []ChapterOutline `json:"outlines"`
	Hook            string           `json:"hook"`
	ChaptersContent []string         `json:"chapters_content"`

	WordsWritten int `json:"words_written"`
	TotalWords   int `json:"total_words"`

	ThumbnailIdeas     *ThumbnailIdeas           `json:"thumbnail_ideas,omitempty"`
	ThumbnailImageURLs []string                  `json:"thumbnail_image_urls,omitempty"`
	TitlePackages      []TitleDescriptionPackage `json:"title_packages,omitempty"`
}

// JobInput holds the user-supplied, immutable part of a job.
type JobInput struct {
	Title           string `json:"title" yaml:"title"`
	Concept         string `json:"concept" yaml:"concept"`
	DurationMinutes int    `json:"duration_minutes" yaml:"duration_minutes"`
}

func (in JobInput) Normalize() (JobInput, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Concept = strings.TrimSpace(in.Concept)
	if in.Title == "" || in.Concept == "" || in.DurationMinutes <= 0 {
		return in, fmt.Errorf("%w: title, concept and a positive duration are required", domain.ErrInvalidArgument)
	}
	return in, nil
}

// NewJob validates the input and returns a fresh job in the given status.
func NewJob(in JobInput, source JobSource, status JobStatus) (*Job, error) {
	in, err := in.Normalize()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &Job{
		ID:              NewJobID(now),
		Source:          source,
		Title:           in.Title,
		Concept:         in.Concept,
		DurationMinutes: in.DurationMinutes,
		Status:          status,
		LibraryStatus:   LibraryAvailable,
		CreatedAt:       now,
		UpdatedAt:       now,
		Outlines:        []ChapterOutline{},
		ChaptersContent: []string{},
	}, nil
}

// NewJobID returns a lexically time-ordered id.
func NewJobID(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), ulid.DefaultEntropy()).String()
}

// Chapters returns the real chapters (id > 0) in narrative order.
func (j *Job) Chapters() []ChapterOutline {
	out := make([]ChapterOutline, 0, len(j.Outlines))
	for _, o := range j.Outlines {
		if o.ID > HookOutlineID {
			out = append(out, o)
		}
	}
	return out
}

func (j *Job) ChapterCount() int {
	return len(j.Chapters())
}

// RemainingChapters returns the chapters that have no content yet.
func (j *Job) RemainingChapters() []ChapterOutline {
	ch := j.Chapters()
	if len(j.ChaptersContent) >= len(ch) {
		return nil
	}
	return ch[len(j.ChaptersContent):]
}

// IsComplete reports whether every chapter has content.
func (j *Job) IsComplete() bool {
	n := j.ChapterCount()
	return n > 0 && len(j.ChaptersContent) == n
}

// DisplayTitle prefers the refined title.
func (j *Job) DisplayTitle() string {
	if j.RefinedTitle != "" {
		return j.RefinedTitle
	}
	return j.Title
}

// FullScript joins hook and chapters with blank lines.
func (j *Job) FullScript() string {
	parts := make([]string, 0, len(j.ChaptersContent)+1)
	if j.Hook != "" {
		parts = append(parts, j.Hook)
	}
	parts = append(parts, j.ChaptersContent...)
	return strings.Join(parts, "\n\n")
}

// CheckChapterIDs requires the chapters (id > 0) to run 1..N in order, so
// ChaptersContent[i] always belongs to id i+1.
func CheckChapterIDs(outlines []ChapterOutline) error {
	n := 0
	for _, o := range outlines {
		if o.ID <= HookOutlineID {
			continue
		}
		n++
		if o.ID != n {
			return fmt.Errorf("chapter ids must be contiguous from 1, got %d at position %d", o.ID, n-1)
		}
	}
	return nil
}

// Validate checks the structural invariants of a persisted job.
func (j *Job) Validate() error {
	if err := CheckChapterIDs(j.Outlines); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	chapters := j.Chapters()
	switch {
	case len(j.ChaptersContent) > len(chapters):
		return fmt.Errorf("%w: %d chapters written for %d outlines", domain.ErrInvalidArgument, len(j.ChaptersContent), len(chapters))
	case j.Hook != "" && len(j.Outlines) == 0:
		return fmt.Errorf("%w: hook without outline", domain.ErrInvalidArgument)
	case len(j.ChaptersContent) > 0 && j.Hook == "":
		return fmt.Errorf("%w: chapters without hook", domain.ErrInvalidArgument)
	case j.Status == JobStatusDone && !j.IsComplete():
		return fmt.Errorf("%w: job marked done with %d of %d chapters", domain.ErrInvalidArgument, len(j.ChaptersContent), len(chapters))
	case j.Status == JobStatusFailed && j.Error == "":
		return fmt.Errorf("%w: failed job without error", domain.ErrInvalidArgument)
	}
	return nil
}

// Clone returns a deep copy so callers never share slices with the store.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	cp := *j
	cp.Outlines = append([]ChapterOutline(nil), j.Outlines...)
	cp.ChaptersContent = append([]string(nil), j.ChaptersContent...)
	cp.ThumbnailImageURLs = append([]string(nil), j.ThumbnailImageURLs...)
	if j.ThumbnailIdeas != nil {
		ideas := *j.ThumbnailIdeas
		cp.ThumbnailIdeas = &ideas
	}
	if j.TitlePackages != nil {
		cp.TitlePackages = make([]TitleDescriptionPackage, len(j.TitlePackages))
		for i, p := range j.TitlePackages {
			p.Hashtags = append([]string(nil), p.Hashtags...)
			cp.TitlePackages[i] = p
		}
	}
	if cp.Outlines == nil {
		cp.Outlines = []ChapterOutline{}
	}
	if cp.ChaptersContent == nil {
		cp.ChaptersContent = []string{}
	}
	return &cp
}
