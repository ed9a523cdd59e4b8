package billing

import (
	relaymodel "github.com/apimirror/gateway/relay/model"
)

// StreamTracker accumulates per-stream accounting state: the characters
// emitted downstream and, when the upstream provides one, the actual
// usage. It lives for the duration of one stream and is only touched
// from that stream's pump, so it needs no locking.
type StreamTracker struct {
	sentChars   int
	hasUsage    bool
	actualUsage relaymodel.Usage
}

// NewStreamTracker returns a zeroed tracker.
func NewStreamTracker() *StreamTracker {
	return &StreamTracker{}
}

// TrackContent adds the emitted characters of one delta field.
func (t *StreamTracker) TrackContent(s string) {
	t.sentChars += len(s)
}

// RecordActualUsage latches upstream-provided usage. The last observed
// value wins; providers send it once on the final tick.
func (t *StreamTracker) RecordActualUsage(usage relaymodel.Usage) {
	t.actualUsage = usage
	t.hasUsage = true
}

// HasReceivedUsage reports whether actual usage was latched.
func (t *StreamTracker) HasReceivedUsage() bool {
	return t.hasUsage
}

// SentChars returns the accumulated character count.
func (t *StreamTracker) SentChars() int {
	return t.sentChars
}

// BuildUsage returns the latched actual usage when present, otherwise an
// estimate from the tracked characters. estimated reports which path was
// taken.
func (t *StreamTracker) BuildUsage(promptTokens, cachedTokens int) (usage relaymodel.Usage, estimated bool) {
	if t.hasUsage {
		return t.actualUsage, false
	}
	completion := EstimateTokensFromChars(t.sentChars)
	return relaymodel.Usage{
		PromptTokens:     promptTokens,
		CompletionTokens: completion,
		TotalTokens:      promptTokens + completion,
		CachedTokens:     cachedTokens,
	}, true
}
