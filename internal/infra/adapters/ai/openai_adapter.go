// File: internal/infra/adapters/ai/openai_adapter.go
package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"
	"github.com/pkoukk/tiktoken-go"

	"longform-scriptgen/internal/domain"
	"longform-scriptgen/internal/domain/ports/adapter"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.AIServiceAdapter = (*OpenAIAdapter)(nil)

// OpenAIAdapter implements adapter.AIServiceAdapter on the Chat Completions
// and Images APIs.
type OpenAIAdapter struct {
	client     openai.Client
	model      string
	imageModel string
	maxOut     int

	encMu sync.Mutex
	encs  map[string]*tiktoken.Tiktoken
}

func NewOpenAIAdapter(apiKey, baseURL, model, imageModel string, maxOut int) (*OpenAIAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key empty")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	if imageModel == "" {
		imageModel = "dall-e-3"
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(baseURL, "/")+"/"))
	}
	return &OpenAIAdapter{
		client:     openai.NewClient(opts...),
		model:      model,
		imageModel: imageModel,
		maxOut:     maxOut,
		encs:       make(map[string]*tiktoken.Tiktoken),
	}, nil
}

func (o *OpenAIAdapter) ListModels(ctx context.Context) ([]string, error) {
	page, err := o.client.Models.List(ctx)
	if err != nil || page == nil || len(page.Data) == 0 {
		return []string{o.model}, nil
	}
	out := make([]string, 0, len(page.Data))
	for _, m := range page.Data {
		out = append(out, m.ID)
	}
	return out, nil
}

func (o *OpenAIAdapter) GetModelInfo(model string) (adapter.ModelInfo, error) {
	if model == "" {
		model = o.model
	}
	return adapter.ModelInfo{
		Name:        model,
		Description: "OpenAI Chat Completions model",
		MaxTokens:   o.maxOut,
		Supports:    []string{"text", "json"},
	}, nil
}

// CountTokens uses the model's BPE, falling back to cl100k_base, then to a
// 4-chars-per-token estimate when no encoding can be loaded.
func (o *OpenAIAdapter) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	if model == "" {
		model = o.model
	}
	enc := o.encoding(model)
	n := 0
	for _, m := range messages {
		// role and framing overhead per message
		n += 4
		if enc != nil {
			n += len(enc.Encode(m.Content, nil, nil))
		} else {
			n += (len(m.Content) + 3) / 4
		}
	}
	return n + 3, nil
}

func (o *OpenAIAdapter) encoding(model string) *tiktoken.Tiktoken {
	o.encMu.Lock()
	defer o.encMu.Unlock()
	if enc, ok := o.encs[model]; ok {
		return enc
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
	}
	if err != nil {
		enc = nil
	}
	o.encs[model] = enc
	return enc
}

func (o *OpenAIAdapter) Chat(ctx context.Context, model string, messages []adapter.Message) (string, error) {
	reply, _, err := o.ChatWithUsage(ctx, model, messages)
	return reply, err
}

func (o *OpenAIAdapter) ChatWithUsage(ctx context.Context, model string, messages []adapter.Message) (string, adapter.Usage, error) {
	return o.complete(ctx, o.params(model, messages))
}

// GenerateJSON uses JSON mode; the schema travels as a system instruction.
func (o *OpenAIAdapter) GenerateJSON(ctx context.Context, model string, messages []adapter.Message, schema *adapter.Schema) (string, adapter.Usage, error) {
	if schema != nil {
		b, err := json.Marshal(schema)
		if err != nil {
			return "", adapter.Usage{}, err
		}
		messages = append([]adapter.Message{{
			Role:    "system",
			Content: "Respond with a single JSON document that matches this JSON schema:\n" + string(b),
		}}, messages...)
	}
	p := o.params(model, messages)
	p.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
		OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
	}
	return o.complete(ctx, p)
}

func (o *OpenAIAdapter) GenerateImage(ctx context.Context, req adapter.ImageRequest) (*adapter.InlineImage, error) {
	if req.BaseImage != nil {
		return nil, domain.ErrUnsupportedEdit
	}
	model := req.Model
	if model == "" {
		model = o.imageModel
	}
	resp, err := o.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt:         req.Prompt,
		Model:          openai.ImageModel(model),
		N:              openai.Int(1),
		Size:           openai.ImageGenerateParamsSize(imageSize(req.AspectRatio)),
		ResponseFormat: openai.ImageGenerateParamsResponseFormat("b64_json"),
	})
	if err != nil {
		return nil, fmt.Errorf("openai image: %w", err)
	}
	if resp == nil || len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, domain.ErrNoImageReturned
	}
	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("openai image decode: %w", err)
	}
	return &adapter.InlineImage{MIMEType: "image/png", Data: data}, nil
}

// --- internal ---

func (o *OpenAIAdapter) params(model string, messages []adapter.Message) openai.ChatCompletionNewParams {
	if model == "" {
		model = o.model
	}
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch strings.ToLower(m.Role) {
		case "system":
			msgs = append(msgs, openai.SystemMessage(m.Content))
		case "assistant", "model":
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		default:
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}
	p := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: msgs,
	}
	if o.maxOut > 0 {
		p.MaxCompletionTokens = openai.Int(int64(o.maxOut))
	}
	return p
}

func (o *OpenAIAdapter) complete(ctx context.Context, p openai.ChatCompletionNewParams) (string, adapter.Usage, error) {
	if len(p.Messages) == 0 {
		return "", adapter.Usage{}, errors.New("openai: no messages")
	}
	resp, err := o.client.Chat.Completions.New(ctx, p)
	if err != nil {
		return "", adapter.Usage{}, err
	}
	u := adapter.Usage{
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
	}
	for _, c := range resp.Choices {
		if c.Message.Content != "" {
			return c.Message.Content, u, nil
		}
	}
	return "", u, errors.New("no choice content")
}

func imageSize(aspect string) string {
	switch aspect {
	case "1:1":
		return "1024x1024"
	case "9:16":
		return "1024x1792"
	default:
		return "1792x1024"
	}
}
