package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, estimateTokens(""))
	assert.Equal(t, 1, estimateTokens("abc"))
	assert.Equal(t, 1, estimateTokens("abcd"))
	assert.Equal(t, 2, estimateTokens("abcde"))
}

func TestMaxPayloadTokens(t *testing.T) {
	tests := []struct {
		name          string
		contextWindow int
		want          int
	}{
		{name: "200k window", contextWindow: 200_000, want: 134_880},
		{name: "128k window", contextWindow: 128_000, want: 84_480},
		{name: "window smaller than reservations floors at zero", contextWindow: 1_000, want: 0},
		{name: "zero window", contextWindow: 0, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MaxPayloadTokens(tt.contextWindow)
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, got, tt.contextWindow*7/10)
		})
	}
}
