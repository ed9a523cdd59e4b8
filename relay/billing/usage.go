// Package billing owns token usage accounting: normalization of upstream
// usage shapes, character-based estimation when the upstream stays
// silent, per-stream tracking, and delivery of usage log entries to the
// settlement queue.
package billing

import (
	"encoding/json"

	relaymodel "github.com/apimirror/gateway/relay/model"
)

// NormalizeUsage maps the upstream usage object onto the canonical four
// fields. Upstreams disagree on where cached token counts live, so the
// first present source wins. Returns ok=false when prompt or completion
// is missing; callers then fall back to estimation.
func NormalizeUsage(raw map[string]any) (*relaymodel.Usage, bool) {
	if raw == nil {
		return nil, false
	}
	prompt, promptOK := intField(raw, "prompt_tokens")
	completion, completionOK := intField(raw, "completion_tokens")
	if !promptOK || !completionOK {
		return nil, false
	}
	total, totalOK := intField(raw, "total_tokens")
	if !totalOK {
		total = prompt + completion
	}

	cached, ok := intField(raw, "cached_tokens")
	if !ok {
		if details, detailsOK := raw["prompt_tokens_details"].(map[string]any); detailsOK {
			cached, ok = intField(details, "cached_tokens")
		}
	}
	if !ok {
		cached, _ = intField(raw, "prompt_cache_hit_tokens")
	}

	return &relaymodel.Usage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      total,
		CachedTokens:     cached,
	}, true
}

// EstimateTokensFromChars applies the settlement contract's estimation
// rule: one token per two characters, at least one token.
func EstimateTokensFromChars(chars int) int {
	tokens := (chars + 1) / 2
	if tokens < 1 {
		return 1
	}
	return tokens
}

// EstimatePromptTokens estimates from the serialized content of each
// message.
func EstimatePromptTokens(messages []map[string]any) int {
	return EstimateTokensFromChars(contentChars(messages))
}

// EstimateUsage estimates full usage from the prompt messages and the
// first response choice, used when a non-streaming upstream returned no
// parsable usage.
func EstimateUsage(messages []map[string]any, choice map[string]any) relaymodel.Usage {
	prompt := EstimateTokensFromChars(contentChars(messages))
	completion := EstimateTokensFromChars(serializedLen(choice))
	return relaymodel.Usage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
		CachedTokens:     0,
	}
}

func contentChars(messages []map[string]any) int {
	chars := 0
	for _, m := range messages {
		chars += serializedLen(m["content"])
	}
	return chars
}

func serializedLen(v any) int {
	if v == nil {
		return 0
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return len(raw)
}

func intField(m map[string]any, key string) (int, bool) {
	switch v := m[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}
