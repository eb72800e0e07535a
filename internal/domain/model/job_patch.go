package model

import "time"

// JobPatch is a partial update. Nil fields are left untouched so concurrent
// writers of unrelated fields never clobber each other.
type JobPatch struct {
	Status        *JobStatus
	LibraryStatus *LibraryStatus
	CurrentTask   *string
	Error         *string

	RawOutlineText *string
	RefinedTitle   *string
	Outlines       []ChapterOutline
	Hook           *string
	// AppendChapters is appended to ChaptersContent, never replacing it.
	AppendChapters []string

	WordsWritten *int
	TotalWords   *int

	ThumbnailIdeas      *ThumbnailIdeas
	AppendThumbnailURLs []string
	TitlePackages       []TitleDescriptionPackage
}

func (p JobPatch) IsEmpty() bool {
	return p.Status == nil && p.LibraryStatus == nil && p.CurrentTask == nil && p.Error == nil &&
		p.RawOutlineText == nil && p.RefinedTitle == nil && p.Outlines == nil && p.Hook == nil &&
		len(p.AppendChapters) == 0 && p.WordsWritten == nil && p.TotalWords == nil &&
		p.ThumbnailIdeas == nil && len(p.AppendThumbnailURLs) == 0 && p.TitlePackages == nil
}

// Apply merges the patch into j.
func (p JobPatch) Apply(j *Job, now time.Time) {
	if p.Status != nil {
		j.Status = *p.Status
	}
	if p.LibraryStatus != nil {
		j.LibraryStatus = *p.LibraryStatus
	}
	if p.CurrentTask != nil {
		j.CurrentTask = *p.CurrentTask
	}
	if p.Error != nil {
		j.Error = *p.Error
	}
	if p.RawOutlineText != nil {
		j.RawOutlineText = *p.RawOutlineText
	}
	if p.RefinedTitle != nil {
		j.RefinedTitle = *p.RefinedTitle
	}
	if p.Outlines != nil {
		j.Outlines = append([]ChapterOutline(nil), p.Outlines...)
	}
	if p.Hook != nil {
		j.Hook = *p.Hook
	}
	if len(p.AppendChapters) > 0 {
		j.ChaptersContent = append(j.ChaptersContent, p.AppendChapters...)
	}
	if p.WordsWritten != nil {
		j.WordsWritten = *p.WordsWritten
	}
	if p.TotalWords != nil {
		j.TotalWords = *p.TotalWords
	}
	if p.ThumbnailIdeas != nil {
		ideas := *p.ThumbnailIdeas
		j.ThumbnailIdeas = &ideas
	}
	if len(p.AppendThumbnailURLs) > 0 {
		j.ThumbnailImageURLs = append(j.ThumbnailImageURLs, p.AppendThumbnailURLs...)
	}
	if p.TitlePackages != nil {
		j.TitlePackages = append([]TitleDescriptionPackage(nil), p.TitlePackages...)
	}
	j.UpdatedAt = now
}

// Ptr is a small helper for building patches.
func Ptr[T any](v T) *T { return &v }
