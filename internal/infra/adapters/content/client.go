// File: internal/infra/adapters/content/client.go
package content

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"longform-scriptgen/internal/domain"
	"longform-scriptgen/internal/domain/model"
	"longform-scriptgen/internal/domain/ports/adapter"
	"longform-scriptgen/internal/infra/metrics"
)

var (
	_ adapter.ContentGenerator = (*Client)(nil)
	_ adapter.AssetGenerator   = (*Client)(nil)
)

type Config struct {
	TextModel      string
	ImageModel     string
	HookWordBudget int
	Timeout        time.Duration
	// Provider names the backend of a model for metric labels.
	Provider func(model string) string
}

// Client turns pipeline requests into prompts for an AIServiceAdapter.
type Client struct {
	ai  adapter.AIServiceAdapter
	cfg Config
	log *zerolog.Logger
}

func NewClient(ai adapter.AIServiceAdapter, cfg Config, logger *zerolog.Logger) *Client {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if cfg.HookWordBudget <= 0 {
		cfg.HookWordBudget = 150
	}
	if cfg.Provider == nil {
		cfg.Provider = func(string) string { return "default" }
	}
	l := logger.With().Str("component", "content_client").Logger()
	return &Client{ai: ai, cfg: cfg, log: &l}
}

func (c *Client) GenerateOutline(ctx context.Context, title, concept string, durationMinutes int) (string, error) {
	return c.text(ctx, "outline", outlinePrompt(title, concept, durationMinutes))
}

func (c *Client) GenerateHook(ctx context.Context, rawOutline string) (string, error) {
	return c.text(ctx, "hook", hookPrompt(rawOutline, c.cfg.HookWordBudget))
}

func (c *Client) GenerateChapterBatch(ctx context.Context, rawOutline string, chapters []model.ChapterOutline) (string, error) {
	if len(chapters) == 0 {
		return "", fmt.Errorf("%w: empty chapter batch", domain.ErrInvalidArgument)
	}
	return c.text(ctx, "chapters", chapterPrompt(rawOutline, chapters))
}

func (c *Client) GenerateThumbnailIdeas(ctx context.Context, title, hook string) (*model.ThumbnailIdeas, error) {
	raw, err := c.json(ctx, "thumbnail_ideas", thumbnailIdeasPrompt(title, hook), thumbnailIdeasSchema)
	if err != nil {
		return nil, err
	}
	var ideas model.ThumbnailIdeas
	if err := json.Unmarshal([]byte(raw), &ideas); err != nil {
		return nil, fmt.Errorf("decode thumbnail ideas: %w", err)
	}
	if strings.TrimSpace(ideas.ImageGenerationPrompt) == "" {
		return nil, &domain.EmptyGenerationError{Stage: "thumbnail ideas"}
	}
	return &ideas, nil
}

func (c *Client) GenerateTitlePackages(ctx context.Context, originalTitle, fullScript string) ([]model.TitleDescriptionPackage, error) {
	raw, err := c.json(ctx, "title_packages", titlePackagesPrompt(originalTitle, fullScript), titlePackagesSchema)
	if err != nil {
		return nil, err
	}
	var items []struct {
		Title       string   `json:"title"`
		Description string   `json:"description"`
		Hashtags    []string `json:"hashtags"`
	}
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		// some providers wrap the array in an object
		var wrapped map[string]json.RawMessage
		if json.Unmarshal([]byte(raw), &wrapped) != nil {
			return nil, fmt.Errorf("decode title packages: %w", err)
		}
		for _, v := range wrapped {
			if json.Unmarshal(v, &items) == nil {
				break
			}
		}
	}
	out := make([]model.TitleDescriptionPackage, 0, len(items))
	for _, it := range items {
		if strings.TrimSpace(it.Title) == "" {
			continue
		}
		if it.Hashtags == nil {
			it.Hashtags = []string{}
		}
		out = append(out, model.TitleDescriptionPackage{
			ID:          len(out) + 1,
			Title:       strings.TrimSpace(it.Title),
			Description: strings.TrimSpace(it.Description),
			Hashtags:    it.Hashtags,
			Status:      model.PackageUnused,
		})
	}
	if len(out) == 0 {
		return nil, &domain.EmptyGenerationError{Stage: "title packages"}
	}
	return out, nil
}

func (c *Client) GenerateThumbnailImage(ctx context.Context, req adapter.ThumbnailImageRequest) (string, error) {
	imgReq := adapter.ImageRequest{
		Model:       req.Model,
		Prompt:      thumbnailImagePrompt(req),
		AspectRatio: "16:9",
	}
	if imgReq.Model == "" {
		imgReq.Model = c.cfg.ImageModel
	}
	if req.BaseImage != "" {
		base, err := adapter.ParseDataURI(req.BaseImage)
		if err != nil {
			return "", err
		}
		imgReq.BaseImage = base
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	start := time.Now()
	img, err := c.ai.GenerateImage(ctx, imgReq)
	metrics.ObserveAICall(c.cfg.Provider(imgReq.Model), imgReq.Model, "image", 0, 0, time.Since(start), err == nil)
	if err != nil {
		return "", err
	}
	if img == nil || len(img.Data) == 0 {
		return "", domain.ErrNoImageReturned
	}
	return img.DataURI(), nil
}

// --- internal ---

func (c *Client) messages(prompt string) []adapter.Message {
	return []adapter.Message{
		{Role: "system", Content: systemWriter},
		{Role: "user", Content: prompt},
	}
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.cfg.Timeout)
}

func (c *Client) text(ctx context.Context, op, prompt string) (string, error) {
	msgs := c.messages(prompt)
	c.logPromptSize(ctx, op, msgs)

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	start := time.Now()
	reply, usage, err := c.ai.ChatWithUsage(ctx, c.cfg.TextModel, msgs)
	metrics.ObserveAICall(c.cfg.Provider(c.cfg.TextModel), c.cfg.TextModel, op, usage.PromptTokens, usage.CompletionTokens, time.Since(start), err == nil)
	if err != nil {
		return "", err
	}
	c.log.Debug().Str("op", op).Int("tokens_in", usage.PromptTokens).Int("tokens_out", usage.CompletionTokens).
		Dur("duration", time.Since(start)).Msg("generation finished")
	return reply, nil
}

func (c *Client) json(ctx context.Context, op, prompt string, schema *adapter.Schema) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	start := time.Now()
	raw, usage, err := c.ai.GenerateJSON(ctx, c.cfg.TextModel, c.messages(prompt), schema)
	metrics.ObserveAICall(c.cfg.Provider(c.cfg.TextModel), c.cfg.TextModel, op, usage.PromptTokens, usage.CompletionTokens, time.Since(start), err == nil)
	if err != nil {
		return "", err
	}
	raw = stripCodeFence(raw)
	if raw == "" {
		return "", &domain.EmptyGenerationError{Stage: strings.ReplaceAll(op, "_", " ")}
	}
	return raw, nil
}

// logPromptSize reports the prompt token count at debug level only.
func (c *Client) logPromptSize(ctx context.Context, op string, msgs []adapter.Message) {
	if zerolog.GlobalLevel() > zerolog.DebugLevel || c.log.GetLevel() > zerolog.DebugLevel {
		return
	}
	n, err := c.ai.CountTokens(ctx, c.cfg.TextModel, msgs)
	if err != nil {
		c.log.Debug().Err(err).Str("op", op).Msg("count tokens")
		return
	}
	c.log.Debug().Str("op", op).Int("prompt_tokens", n).Msg("sending prompt")
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
