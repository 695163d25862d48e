package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Provider is the narrow capability the service needs from any LLM backend:
// identify the model, bound its context window, and answer one prompt with
// structured output.
type Provider interface {
	ModelName() string
	ContextWindow() int
	InvokeStructured(ctx context.Context, prompt string, shape Shape) (json.RawMessage, error)
}

// BatchProvider extends Provider with asynchronous batch operations.
// Implementing it is optional; providers without it always use the sync
// path. Results map back to cache entries through BatchRequest.CustomID,
// which the service sets to the cache key.
type BatchProvider interface {
	Provider
	SubmitBatch(ctx context.Context, requests []BatchRequest) (*BatchSubmission, error)
	PollBatch(ctx context.Context, batchID string) (*BatchStatus, error)
	FetchBatchResults(ctx context.Context, batchID string) ([]BatchResult, error)
}

// BatchRequest is one prompt within a batch submission.
type BatchRequest struct {
	CustomID string
	Prompt   string
	Shape    Shape
}

// BatchSubmission confirms a batch was accepted by the provider.
type BatchSubmission struct {
	BatchID      string
	RequestCount int
}

// BatchStatus is a point-in-time view of a batch's progress.
type BatchStatus struct {
	Status         JobStatus
	CompletedCount int
	FailedCount    int
	TotalCount     int
}

// BatchResult is one request's outcome within a completed batch.
type BatchResult struct {
	CustomID string
	Status   EntryStatus
	Response json.RawMessage
	Err      string
}

// Config holds provider construction settings. Invalid configuration is
// fatal at construction and never retried.
type Config struct {
	Provider      string
	APIKey        string
	Model         string
	ContextWindow int // 0 means derive from the model name
	MaxTokens     int
	Temperature   float64
	MaxRetries    int
	RetryDelay    time.Duration
	RateLimit     int // requests per minute for the sync path
}

// NewProvider creates a provider from configuration.
func NewProvider(cfg Config) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "anthropic":
		return newAnthropicProvider(cfg)
	case "openai":
		return newOpenAIProvider(cfg)
	case "mock":
		return NewMockProvider(cfg.Model), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}

// structuredInstructions frames a prompt so the model answers with a single
// JSON object matching the shape. Kept identical across providers so cache
// keys stay portable between sync retries.
func structuredInstructions(shape Shape) string {
	var b strings.Builder
	b.WriteString("Respond with a single JSON object")
	if shape.Name != "" {
		fmt.Fprintf(&b, " of type %q", shape.Name)
	}
	b.WriteString(". Do not include any text outside the JSON object.")
	if len(shape.Schema) > 0 {
		b.WriteString("\nThe object must conform to this JSON schema:\n")
		b.Write(shape.Schema)
	}
	return b.String()
}

// extractJSON trims code fences and surrounding prose that models sometimes
// wrap around a JSON payload.
func extractJSON(text string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(text)

	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
			trimmed = trimmed[:idx]
		}
		trimmed = strings.TrimSpace(trimmed)
	}

	// Fall back to the outermost braces when prose surrounds the object.
	if !strings.HasPrefix(trimmed, "{") {
		start := strings.Index(trimmed, "{")
		end := strings.LastIndex(trimmed, "}")
		if start < 0 || end <= start {
			return nil, fmt.Errorf("response contains no JSON object")
		}
		trimmed = trimmed[start : end+1]
	}

	var check json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &check); err != nil {
		return nil, fmt.Errorf("response is not valid JSON: %w", err)
	}
	return json.RawMessage(trimmed), nil
}
