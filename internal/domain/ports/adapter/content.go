package adapter

import (
	"context"

	"longform-scriptgen/internal/domain/model"
)

// ChapterDelimiter separates chapters in a batch response. It appears between
// entries, never around them.
const ChapterDelimiter = "---CHAPTER-BREAK---"

// ContentGenerator is the boundary the pipeline talks to. Implementations own
// prompt wording and provider selection.
type ContentGenerator interface {
	GenerateOutline(ctx context.Context, title, concept string, durationMinutes int) (string, error)
	GenerateHook(ctx context.Context, rawOutline string) (string, error)
	// GenerateChapterBatch returns the raw batch text; splitting on
	// ChapterDelimiter is up to the caller.
	GenerateChapterBatch(ctx context.Context, rawOutline string, chapters []model.ChapterOutline) (string, error)
}

// ThumbnailImageRequest configures one thumbnail generation. BaseImage is a
// data URI of a previous result to iterate on.
type ThumbnailImageRequest struct {
	Prompt         string `json:"prompt"`
	TextOverlay    string `json:"text"`
	AddTextOverlay bool   `json:"add_text"`
	Model          string `json:"model"`
	BaseImage      string `json:"base_image,omitempty"`
}

// AssetGenerator produces post-generation marketing assets.
type AssetGenerator interface {
	GenerateThumbnailIdeas(ctx context.Context, title, hook string) (*model.ThumbnailIdeas, error)
	GenerateTitlePackages(ctx context.Context, originalTitle, fullScript string) ([]model.TitleDescriptionPackage, error)
	// GenerateThumbnailImage returns the image as a data URI.
	GenerateThumbnailImage(ctx context.Context, req ThumbnailImageRequest) (string, error)
}
