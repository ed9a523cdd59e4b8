package billing

import (
	"testing"

	"github.com/stretchr/testify/require"

	relaymodel "github.com/apimirror/gateway/relay/model"
)

func TestNormalizeUsage(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		raw  map[string]any
		want *relaymodel.Usage
		ok   bool
	}{
		{
			name: "complete usage",
			raw: map[string]any{
				"prompt_tokens":     float64(10),
				"completion_tokens": float64(20),
				"total_tokens":      float64(30),
			},
			want: &relaymodel.Usage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30},
			ok:   true,
		},
		{
			name: "total derived from sum",
			raw: map[string]any{
				"prompt_tokens":     float64(3),
				"completion_tokens": float64(4),
			},
			want: &relaymodel.Usage{PromptTokens: 3, CompletionTokens: 4, TotalTokens: 7},
			ok:   true,
		},
		{
			name: "cached from top-level field",
			raw: map[string]any{
				"prompt_tokens":     float64(10),
				"completion_tokens": float64(1),
				"cached_tokens":     float64(8),
			},
			want: &relaymodel.Usage{PromptTokens: 10, CompletionTokens: 1, TotalTokens: 11, CachedTokens: 8},
			ok:   true,
		},
		{
			name: "cached from prompt_tokens_details",
			raw: map[string]any{
				"prompt_tokens":         float64(10),
				"completion_tokens":     float64(1),
				"prompt_tokens_details": map[string]any{"cached_tokens": float64(6)},
			},
			want: &relaymodel.Usage{PromptTokens: 10, CompletionTokens: 1, TotalTokens: 11, CachedTokens: 6},
			ok:   true,
		},
		{
			name: "cached from deepseek cache hit field",
			raw: map[string]any{
				"prompt_tokens":          float64(10),
				"completion_tokens":      float64(1),
				"prompt_cache_hit_tokens": float64(4),
			},
			want: &relaymodel.Usage{PromptTokens: 10, CompletionTokens: 1, TotalTokens: 11, CachedTokens: 4},
			ok:   true,
		},
		{
			name: "top-level cached wins over details",
			raw: map[string]any{
				"prompt_tokens":         float64(10),
				"completion_tokens":     float64(1),
				"cached_tokens":         float64(9),
				"prompt_tokens_details": map[string]any{"cached_tokens": float64(2)},
			},
			want: &relaymodel.Usage{PromptTokens: 10, CompletionTokens: 1, TotalTokens: 11, CachedTokens: 9},
			ok:   true,
		},
		{name: "nil map", raw: nil, ok: false},
		{name: "missing prompt", raw: map[string]any{"completion_tokens": float64(2)}, ok: false},
		{name: "missing completion", raw: map[string]any{"prompt_tokens": float64(2)}, ok: false},
		{
			name: "non-numeric fields",
			raw:  map[string]any{"prompt_tokens": "ten", "completion_tokens": float64(2)},
			ok:   false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NormalizeUsage(tt.raw)
			require.Equal(t, tt.ok, ok)
			if tt.ok {
				require.Equal(t, tt.want, got)
			}
		})
	}
}

func TestEstimateTokensFromChars(t *testing.T) {
	t.Parallel()
	tests := []struct {
		chars int
		want  int
	}{
		{0, 1},
		{1, 1},
		{2, 1},
		{3, 2},
		{60, 30},
		{61, 31},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, EstimateTokensFromChars(tt.chars), "chars=%d", tt.chars)
	}
}

func TestEstimatePromptTokens(t *testing.T) {
	t.Parallel()
	messages := []map[string]any{
		// "abcd" serializes to 6 chars with quotes.
		{"role": "user", "content": "abcd"},
		{"role": "assistant"},
	}
	require.Equal(t, 3, EstimatePromptTokens(messages))
}

func TestEstimateUsage(t *testing.T) {
	t.Parallel()
	messages := []map[string]any{{"role": "user", "content": "ab"}}
	choice := map[string]any{
		"message": map[string]any{"role": "assistant", "content": "hello"},
	}
	usage := EstimateUsage(messages, choice)
	require.Equal(t, 2, usage.PromptTokens)
	require.Positive(t, usage.CompletionTokens)
	require.Equal(t, usage.PromptTokens+usage.CompletionTokens, usage.TotalTokens)
	require.Zero(t, usage.CachedTokens)
}
