package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// openaiProvider implements the synchronous Provider over the official
// OpenAI SDK. It deliberately does not implement BatchProvider: OpenAI's
// batch endpoint requires a JSONL file upload/download lifecycle that the
// async path here has no use for while Anthropic covers batching.
type openaiProvider struct {
	client        openai.Client
	model         string
	contextWindow int
	maxTokens     int64
	temperature   float64
}

const defaultOpenAIModel = "gpt-4o"

// openaiContextWindow returns the context window for known model families.
func openaiContextWindow(model string) int {
	switch {
	case strings.HasPrefix(model, "gpt-4o"), strings.HasPrefix(model, "gpt-4-turbo"):
		return 128_000
	case strings.HasPrefix(model, "o1"), strings.HasPrefix(model, "o3"):
		return 200_000
	case strings.HasPrefix(model, "gpt-4.1"):
		return 1_000_000
	default:
		return 128_000
	}
}

func newOpenAIProvider(cfg Config) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}

	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}

	window := cfg.ContextWindow
	if window == 0 {
		window = openaiContextWindow(model)
	}

	maxTokens := int64(cfg.MaxTokens)
	if maxTokens == 0 {
		maxTokens = outputReserveTokens
	}

	return &openaiProvider{
		client:        openai.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:         model,
		contextWindow: window,
		maxTokens:     maxTokens,
		temperature:   cfg.Temperature,
	}, nil
}

func (p *openaiProvider) ModelName() string {
	return p.model
}

func (p *openaiProvider) ContextWindow() int {
	return p.contextWindow
}

// InvokeStructured performs one synchronous structured call using the
// JSON-object response format.
func (p *openaiProvider) InvokeStructured(ctx context.Context, prompt string, shape Shape) (json.RawMessage, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(structuredInstructions(shape)),
			openai.UserMessage(prompt),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
		MaxCompletionTokens: openai.Int(p.maxTokens),
	}
	if p.temperature > 0 {
		params.Temperature = openai.Float(p.temperature)
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai request failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("empty response from openai")
	}
	return extractJSON(completion.Choices[0].Message.Content)
}
