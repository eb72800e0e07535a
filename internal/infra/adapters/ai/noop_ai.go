package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"longform-scriptgen/internal/domain/ports/adapter"
)

var _ adapter.AIServiceAdapter = (*NoopAIAdapter)(nil)

// onePixelPNG is a valid 1x1 transparent PNG.
var onePixelPNG = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d, 0x49, 0x48, 0x44, 0x52,
	0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01, 0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4,
	0x89, 0x00, 0x00, 0x00, 0x0d, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00, 0x00, 0x00, 0x00, 0x49, 0x45, 0x4e, 0x44, 0xae,
	0x42, 0x60, 0x82,
}

var requestedChapterRe = regexp.MustCompile(`(?m)^- Chapter (\d+):`)

// NoopAIAdapter answers locally with canned, well-formed content so the whole
// pipeline can run in dev mode without a provider.
type NoopAIAdapter struct {
	delay time.Duration
	log   *zerolog.Logger
}

func NewNoopAIAdapter(delay time.Duration, logger *zerolog.Logger) *NoopAIAdapter {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &NoopAIAdapter{delay: delay, log: logger}
}

func (a *NoopAIAdapter) wait(ctx context.Context) error {
	select {
	case <-time.After(a.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *NoopAIAdapter) ListModels(ctx context.Context) ([]string, error) {
	return []string{"noop-text", "noop-image"}, nil
}

func (a *NoopAIAdapter) GetModelInfo(model string) (adapter.ModelInfo, error) {
	return adapter.ModelInfo{
		Name:        "noop-text",
		Description: "Local canned responses for development",
		MaxTokens:   8192,
		Supports:    []string{"text", "json", "image"},
	}, nil
}

func (a *NoopAIAdapter) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	n := 0
	for _, m := range messages {
		n += len(strings.Fields(m.Content))
	}
	return n, nil
}

func (a *NoopAIAdapter) Chat(ctx context.Context, model string, messages []adapter.Message) (string, error) {
	reply, _, err := a.ChatWithUsage(ctx, model, messages)
	return reply, err
}

func (a *NoopAIAdapter) ChatWithUsage(ctx context.Context, model string, messages []adapter.Message) (string, adapter.Usage, error) {
	if err := a.wait(ctx); err != nil {
		return "", adapter.Usage{}, err
	}
	prompt := ""
	if len(messages) > 0 {
		prompt = messages[len(messages)-1].Content
	}
	var reply string
	switch {
	case strings.Contains(prompt, adapter.ChapterDelimiter):
		reply = noopChapters(prompt)
	case strings.Contains(prompt, "## Task: outline"):
		reply = noopOutline
	default:
		reply = "You think you know how this story ends. You don't. Stay with me, because what happened next changed everything."
	}
	a.log.Debug().Int("prompt_chars", len(prompt)).Int("reply_chars", len(reply)).Msg("noop ai reply")
	words := len(strings.Fields(reply))
	return reply, adapter.Usage{PromptTokens: len(strings.Fields(prompt)), CompletionTokens: words, TotalTokens: words}, nil
}

func (a *NoopAIAdapter) GenerateJSON(ctx context.Context, model string, messages []adapter.Message, schema *adapter.Schema) (string, adapter.Usage, error) {
	if err := a.wait(ctx); err != nil {
		return "", adapter.Usage{}, err
	}
	b, err := json.Marshal(sampleFor(schema, "value"))
	if err != nil {
		return "", adapter.Usage{}, err
	}
	return string(b), adapter.Usage{}, nil
}

func (a *NoopAIAdapter) GenerateImage(ctx context.Context, req adapter.ImageRequest) (*adapter.InlineImage, error) {
	if err := a.wait(ctx); err != nil {
		return nil, err
	}
	return &adapter.InlineImage{MIMEType: "image/png", Data: onePixelPNG}, nil
}

const noopOutline = `---
Title: A Sample Story From The Noop Provider
Chapter 0: The Hook
(Word Count: 150 words)
Concept: Open on the moment everything broke.

Chapter 1: Before
(Word Count: 300 words)
Concept: Everyday life and what was at stake.

Chapter 2: The Crack
(Word Count: 300 words)
Concept: The first sign something was wrong.

Chapter 3: The Fall
(Word Count: 300 words)
Concept: Everything comes apart.

Chapter 4: After
(Word Count: 300 words)
Concept: Picking up the pieces.
---`

func noopChapters(prompt string) string {
	ids := requestedChapterRe.FindAllStringSubmatch(prompt, -1)
	if len(ids) == 0 {
		ids = [][]string{{"", "1"}}
	}
	parts := make([]string, 0, len(ids))
	for _, m := range ids {
		parts = append(parts, fmt.Sprintf("This is the body of chapter %s. It moves the story forward one step at a time.", m[1]))
	}
	return strings.Join(parts, "\n"+adapter.ChapterDelimiter+"\n")
}

// sampleFor builds a value that satisfies s.
func sampleFor(s *adapter.Schema, name string) any {
	if s == nil {
		return map[string]any{}
	}
	switch strings.ToLower(s.Type) {
	case "object":
		out := make(map[string]any, len(s.Properties))
		for k, v := range s.Properties {
			out[k] = sampleFor(v, k)
		}
		return out
	case "array":
		items := make([]any, 0, 3)
		for i := 1; i <= 3; i++ {
			items = append(items, sampleFor(s.Items, fmt.Sprintf("%s %d", name, i)))
		}
		return items
	case "integer", "number":
		return 1
	case "boolean":
		return false
	default:
		return "sample " + name
	}
}
