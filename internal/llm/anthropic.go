package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// anthropicProvider implements Provider and BatchProvider over the official
// Anthropic SDK. The Message Batches API carries the async path; custom_id
// on each request is the cache key, so results map straight onto cache
// entries.
type anthropicProvider struct {
	client        anthropic.Client
	model         string
	contextWindow int
	maxTokens     int64
	temperature   float64
}

const defaultAnthropicModel = "claude-sonnet-4-5-20250929"

// anthropicContextWindow returns the context window for known Claude
// models. Current Claude generations all expose 200k.
func anthropicContextWindow(model string) int {
	if strings.HasPrefix(model, "claude-") {
		return 200_000
	}
	return 100_000
}

func newAnthropicProvider(cfg Config) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}

	model := cfg.Model
	if model == "" {
		model = defaultAnthropicModel
	}

	window := cfg.ContextWindow
	if window == 0 {
		window = anthropicContextWindow(model)
	}

	maxTokens := int64(cfg.MaxTokens)
	if maxTokens == 0 {
		maxTokens = outputReserveTokens
	}

	return &anthropicProvider{
		client:        anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:         model,
		contextWindow: window,
		maxTokens:     maxTokens,
		temperature:   cfg.Temperature,
	}, nil
}

func (p *anthropicProvider) ModelName() string {
	return p.model
}

func (p *anthropicProvider) ContextWindow() int {
	return p.contextWindow
}

func (p *anthropicProvider) messageParams(prompt string, shape Shape) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: p.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: structuredInstructions(shape)},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if p.temperature > 0 {
		params.Temperature = anthropic.Float(p.temperature)
	}
	return params
}

// InvokeStructured performs one synchronous structured call.
func (p *anthropicProvider) InvokeStructured(ctx context.Context, prompt string, shape Shape) (json.RawMessage, error) {
	message, err := p.client.Messages.New(ctx, p.messageParams(prompt, shape))
	if err != nil {
		return nil, fmt.Errorf("anthropic request failed: %w", err)
	}
	return decodeAnthropicMessage(message)
}

func decodeAnthropicMessage(message *anthropic.Message) (json.RawMessage, error) {
	var text strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, fmt.Errorf("empty response from anthropic")
	}
	return extractJSON(text.String())
}

// SubmitBatch submits all requests as one Message Batch.
func (p *anthropicProvider) SubmitBatch(ctx context.Context, requests []BatchRequest) (*BatchSubmission, error) {
	if len(requests) == 0 {
		return nil, fmt.Errorf("batch submission requires at least one request")
	}

	batchRequests := make([]anthropic.MessageBatchNewParamsRequest, 0, len(requests))
	for _, req := range requests {
		params := p.messageParams(req.Prompt, req.Shape)
		batchRequests = append(batchRequests, anthropic.MessageBatchNewParamsRequest{
			CustomID: req.CustomID,
			Params: anthropic.MessageBatchNewParamsRequestParams{
				Model:       params.Model,
				MaxTokens:   params.MaxTokens,
				System:      params.System,
				Messages:    params.Messages,
				Temperature: params.Temperature,
			},
		})
	}

	batch, err := p.client.Messages.Batches.New(ctx, anthropic.MessageBatchNewParams{
		Requests: batchRequests,
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic batch submission failed: %w", err)
	}

	return &BatchSubmission{
		BatchID:      batch.ID,
		RequestCount: len(requests),
	}, nil
}

// PollBatch queries the batch's processing status without fetching results.
func (p *anthropicProvider) PollBatch(ctx context.Context, batchID string) (*BatchStatus, error) {
	batch, err := p.client.Messages.Batches.Get(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("anthropic batch status failed: %w", err)
	}

	counts := batch.RequestCounts
	status := &BatchStatus{
		CompletedCount: int(counts.Succeeded),
		FailedCount:    int(counts.Errored + counts.Canceled + counts.Expired),
		TotalCount:     int(counts.Processing + counts.Succeeded + counts.Errored + counts.Canceled + counts.Expired),
	}

	switch batch.ProcessingStatus {
	case "ended":
		// Per-request outcomes are resolved from the results stream; a
		// batch where every request errored still "completes" here.
		status.Status = JobCompleted
	case "canceling":
		status.Status = JobCancelled
	default:
		status.Status = JobInProgress
	}
	return status, nil
}

// FetchBatchResults streams the JSONL results of an ended batch.
func (p *anthropicProvider) FetchBatchResults(ctx context.Context, batchID string) ([]BatchResult, error) {
	stream := p.client.Messages.Batches.ResultsStreaming(ctx, batchID)
	defer func() { _ = stream.Close() }()

	var results []BatchResult
	for stream.Next() {
		entry := stream.Current()
		result := BatchResult{CustomID: entry.CustomID}

		switch entry.Result.Type {
		case "succeeded":
			payload, err := decodeAnthropicMessage(&entry.Result.Message)
			if err != nil {
				result.Status = StatusFailed
				result.Err = err.Error()
			} else {
				result.Status = StatusCompleted
				result.Response = payload
			}
		case "errored":
			result.Status = StatusFailed
			result.Err = entry.Result.Error.RawJSON()
		default:
			// canceled or expired
			result.Status = StatusFailed
			result.Err = fmt.Sprintf("request %s", entry.Result.Type)
		}
		results = append(results, result)
	}
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("anthropic batch results failed: %w", err)
	}
	return results, nil
}
