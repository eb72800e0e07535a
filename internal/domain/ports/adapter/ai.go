package adapter

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"longform-scriptgen/internal/domain"
)

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

// ModelInfo describes a model.
type ModelInfo struct {
	Name        string
	Description string
	MaxTokens   int
	Supports    []string
}

// Usage for a single generation call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Schema is a provider-neutral subset of JSON schema used for structured output.
type Schema struct {
	Type        string             `json:"type"` // object | array | string
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
}

// InlineImage is raw image bytes with their mime type.
type InlineImage struct {
	MIMEType string
	Data     []byte
}

// DataURI renders the image as data:<mime>;base64,<payload>.
func (i InlineImage) DataURI() string {
	return "data:" + i.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}

// ParseDataURI is the inverse of DataURI.
func ParseDataURI(uri string) (*InlineImage, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return nil, fmt.Errorf("%w: invalid data URL format", domain.ErrInvalidArgument)
	}
	meta, payload, ok := strings.Cut(rest, ",")
	mime, isB64 := strings.CutSuffix(meta, ";base64")
	if !ok || !isB64 || mime == "" {
		return nil, fmt.Errorf("%w: invalid data URL format", domain.ErrInvalidArgument)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	return &InlineImage{MIMEType: mime, Data: data}, nil
}

// ImageRequest asks a provider for a single image. BaseImage, when set, turns
// the call into an edit of that image.
type ImageRequest struct {
	Model       string
	Prompt      string
	AspectRatio string
	BaseImage   *InlineImage
}

// AIServiceAdapter is the port for the generative backends.
type AIServiceAdapter interface {
	ListModels(ctx context.Context) ([]string, error)
	GetModelInfo(model string) (ModelInfo, error)

	// CountTokens must return prompt tokens for the provided messages
	// (provider-specific counting; best-effort when exact isn't available).
	CountTokens(ctx context.Context, model string, messages []Message) (int, error)

	// Chat returns only the assistant text
	Chat(ctx context.Context, model string, messages []Message) (string, error)

	// ChatWithUsage returns assistant text + usage as reported by the provider.
	ChatWithUsage(ctx context.Context, model string, messages []Message) (string, Usage, error)

	// GenerateJSON asks for a JSON document matching schema and returns it verbatim.
	GenerateJSON(ctx context.Context, model string, messages []Message, schema *Schema) (string, Usage, error)

	GenerateImage(ctx context.Context, req ImageRequest) (*InlineImage, error)
}
