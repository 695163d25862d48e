package llm

import (
	"encoding/json"
	"fmt"
)

// Item is one unit of work to validate. Data carries the caller's payload
// and is opaque to this package; prompt builders decide how to render it.
type Item struct {
	ID       string          `json:"id"`
	SourceID string          `json:"source_id,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// ItemGroup groups items with optional shared content. Callers group by
// domain logic (e.g. by source file); the service decides how to batch.
// Content is attached at the group level so items from the same source
// don't duplicate it.
type ItemGroup struct {
	Items   []Item
	Content string
	GroupID string
}

// BatchingMode selects how groups are split into provider requests.
type BatchingMode string

const (
	// ModeCountBased flattens all items and splits by count. Use when
	// items are independent of their source content.
	ModeCountBased BatchingMode = "count_based"

	// ModeExtendedContext keeps groups intact and bin-packs by estimated
	// tokens, sending shared content alongside the items.
	ModeExtendedContext BatchingMode = "extended_context"
)

// SkipReason explains why an item was excluded from processing. Skips are
// reported alongside successes so callers can fall back or report gaps;
// input is never silently dropped.
type SkipReason string

const (
	// SkipOversized marks items whose group exceeds the payload budget
	// even when batched alone.
	SkipOversized SkipReason = "oversized_source"

	// SkipMissingContent marks items whose group has no shared content in
	// extended-context mode.
	SkipMissingContent SkipReason = "missing_content"

	// SkipNoSource marks items with no resolvable source reference.
	SkipNoSource SkipReason = "no_source"

	// SkipBatchError marks items whose provider call failed.
	SkipBatchError SkipReason = "batch_error"
)

// SkippedItem pairs an excluded item with its reason. The batch/group
// structure is internal; callers receive a flat list.
type SkippedItem struct {
	Item   Item
	Reason SkipReason
}

// PromptBuilder builds a complete prompt for a batch of items. Content is
// empty outside extended-context mode. Implementations must be pure and
// deterministic: the cache key is derived from the output.
type PromptBuilder interface {
	BuildPrompt(items []Item, content string) string
}

// PromptBuilderFunc adapts a function to the PromptBuilder interface.
type PromptBuilderFunc func(items []Item, content string) string

// BuildPrompt calls the wrapped function.
func (f PromptBuilderFunc) BuildPrompt(items []Item, content string) string {
	return f(items, content)
}

// Shape names the expected response structure. Name feeds the cache key so
// the same prompt with a different shape caches separately; Schema, when
// set, is embedded in the provider instructions.
type Shape struct {
	Name   string
	Schema json.RawMessage
}

// CompletionResult is the outcome of one Complete call: one raw response
// per processed batch, in batch-plan order, plus the flat skip list.
type CompletionResult struct {
	Responses []json.RawMessage
	Skipped   []SkippedItem
}

// DecodeResponses unmarshals every raw response into R.
func DecodeResponses[R any](responses []json.RawMessage) ([]R, error) {
	out := make([]R, 0, len(responses))
	for i, raw := range responses {
		var r R
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, fmt.Errorf("failed to decode response %d: %w", i, err)
		}
		out = append(out, r)
	}
	return out, nil
}
