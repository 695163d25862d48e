package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider(t *testing.T) {
	t.Run("mock", func(t *testing.T) {
		provider, err := NewProvider(Config{Provider: "mock", Model: "test-model"})
		require.NoError(t, err)
		assert.Equal(t, "test-model", provider.ModelName())
	})

	t.Run("provider name is case-insensitive", func(t *testing.T) {
		_, err := NewProvider(Config{Provider: "Mock"})
		assert.NoError(t, err)
	})

	t.Run("unsupported provider", func(t *testing.T) {
		_, err := NewProvider(Config{Provider: "grok"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported LLM provider")
	})

	t.Run("anthropic requires an API key", func(t *testing.T) {
		_, err := NewProvider(Config{Provider: "anthropic"})
		assert.Error(t, err)
	})

	t.Run("openai requires an API key", func(t *testing.T) {
		_, err := NewProvider(Config{Provider: "openai"})
		assert.Error(t, err)
	})
}

func TestStructuredInstructions(t *testing.T) {
	t.Run("includes shape name and schema", func(t *testing.T) {
		got := structuredInstructions(Shape{
			Name:   "findings",
			Schema: []byte(`{"type":"object"}`),
		})
		assert.Contains(t, got, `"findings"`)
		assert.Contains(t, got, `{"type":"object"}`)
	})

	t.Run("bare shape still demands JSON-only output", func(t *testing.T) {
		got := structuredInstructions(Shape{})
		assert.Contains(t, got, "single JSON object")
		assert.NotContains(t, got, "schema")
	})

	t.Run("identical shapes produce identical instructions", func(t *testing.T) {
		shape := Shape{Name: "findings"}
		assert.Equal(t, structuredInstructions(shape), structuredInstructions(shape))
	})
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{
			name:  "bare object",
			input: `{"verdict":"compliant"}`,
			want:  `{"verdict":"compliant"}`,
		},
		{
			name:  "fenced with language tag",
			input: "```json\n{\"verdict\":\"compliant\"}\n```",
			want:  `{"verdict":"compliant"}`,
		},
		{
			name:  "fenced without language tag",
			input: "```\n{\"a\":1}\n```",
			want:  `{"a":1}`,
		},
		{
			name:  "prose around the object",
			input: `Here is the result: {"a":1} hope that helps`,
			want:  `{"a":1}`,
		},
		{
			name:  "leading and trailing whitespace",
			input: "  \n {\"a\":1} \n",
			want:  `{"a":1}`,
		},
		{
			name:    "no object at all",
			input:   "I cannot answer that.",
			wantErr: true,
		},
		{
			name:    "malformed JSON",
			input:   `{"a":`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractJSON(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
		})
	}
}
