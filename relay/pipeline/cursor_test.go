package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"

	relaymodel "github.com/apimirror/gateway/relay/model"
)

func TestCursorPreprocessSplitsThinkBlock(t *testing.T) {
	t.Parallel()
	payload := relaymodel.Payload{
		"model": "deepseek-chat",
		"messages": []any{
			map[string]any{"role": "user", "content": "question"},
			map[string]any{
				"role": "assistant",
				"content": []any{
					map[string]any{"type": "text", "text": "<think>\nreasoning here\n</think>the answer"},
				},
			},
		},
	}

	out := (&Cursor{}).PreprocessRequest(&Context{}, payload)
	messages := out.Messages()
	require.Len(t, messages, 2)

	assistant := messages[1]
	require.Equal(t, "reasoning here", assistant["reasoning_content"])
	parts, ok := assistant["content"].([]any)
	require.True(t, ok)
	require.Len(t, parts, 1)
	require.Equal(t, map[string]any{"type": "text", "text": "the answer"}, parts[0])
}

func TestCursorPreprocessEmptyAnswerBecomesEmptyPartList(t *testing.T) {
	t.Parallel()
	payload := relaymodel.Payload{
		"messages": []any{
			map[string]any{
				"role": "assistant",
				"content": []any{
					map[string]any{"type": "text", "text": "<think>\nonly reasoning\n</think>"},
				},
			},
		},
	}

	out := (&Cursor{}).PreprocessRequest(&Context{}, payload)
	assistant := out.Messages()[0]
	require.Equal(t, "only reasoning", assistant["reasoning_content"])
	require.Equal(t, []any{}, assistant["content"])
}

func TestCursorPreprocessLeavesOtherMessagesAlone(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		msg  map[string]any
	}{
		{"user message", map[string]any{"role": "user", "content": "<think>\nx\n</think>"}},
		{"string content", map[string]any{"role": "assistant", "content": "<think>\nx\n</think>y"}},
		{"no think marker", map[string]any{
			"role":    "assistant",
			"content": []any{map[string]any{"type": "text", "text": "plain"}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := relaymodel.Payload{"messages": []any{tt.msg}}
			out := (&Cursor{}).PreprocessRequest(&Context{}, payload)
			got := out.Messages()[0]
			_, hasReasoning := got["reasoning_content"]
			require.False(t, hasReasoning)
			require.Equal(t, tt.msg["content"], got["content"])
		})
	}
}

func TestCursorPostprocessFoldsReasoningIntoContent(t *testing.T) {
	t.Parallel()
	raw := relaymodel.Payload{
		"choices": []any{
			map[string]any{
				"message": map[string]any{
					"role":              "assistant",
					"content":           "the answer",
					"reasoning_content": "the reasoning",
				},
			},
		},
	}

	out := (&Cursor{}).PostprocessResponse(&Context{}, raw)
	message := out.FirstChoice()["message"].(map[string]any)
	require.Equal(t, "<think>\nthe reasoning\n</think>the answer", message["content"])
	_, hasReasoning := message["reasoning_content"]
	require.False(t, hasReasoning)
}

func TestCursorPostprocessNoReasoningIsIdentity(t *testing.T) {
	t.Parallel()
	raw := relaymodel.Payload{
		"choices": []any{
			map[string]any{
				"message": map[string]any{"role": "assistant", "content": "plain"},
			},
		},
	}
	out := (&Cursor{}).PostprocessResponse(&Context{}, raw)
	require.Equal(t, "plain", out.FirstChoice()["message"].(map[string]any)["content"])
}

func chunk(delta map[string]any, finish any) relaymodel.Payload {
	return relaymodel.Payload{
		"id": "evt",
		"choices": []any{
			map[string]any{"index": float64(0), "delta": delta, "finish_reason": finish},
		},
	}
}

func deltaContent(t *testing.T, event relaymodel.Payload) string {
	t.Helper()
	delta := event.Delta()
	require.NotNil(t, delta)
	s, _ := delta["content"].(string)
	return s
}

func TestCursorTransformerRewritesReasoningRun(t *testing.T) {
	t.Parallel()
	tr := (&Cursor{}).NewTransformer(&Context{})

	// First reasoning delta opens the think block.
	out := tr.Transform(chunk(map[string]any{"reasoning_content": "step one"}, nil))
	require.Len(t, out, 2)
	require.Equal(t, "<think>\n", deltaContent(t, out[0]))
	require.Nil(t, out[0].FirstChoice()["finish_reason"])
	require.Equal(t, "step one", deltaContent(t, out[1]))

	// Subsequent reasoning deltas pass as content only.
	out = tr.Transform(chunk(map[string]any{"reasoning_content": " step two"}, nil))
	require.Len(t, out, 1)
	require.Equal(t, " step two", deltaContent(t, out[0]))

	// First content delta closes the block then emits the original event.
	out = tr.Transform(chunk(map[string]any{"content": "answer"}, nil))
	require.Len(t, out, 2)
	require.Equal(t, "\n</think>", deltaContent(t, out[0]))
	require.Nil(t, out[0].FirstChoice()["finish_reason"])
	require.Equal(t, "answer", deltaContent(t, out[1]))

	// Plain content after the block is untouched.
	out = tr.Transform(chunk(map[string]any{"content": " more"}, "stop"))
	require.Len(t, out, 1)
	require.Equal(t, " more", deltaContent(t, out[0]))
	require.Equal(t, "stop", out[0].FirstChoice()["finish_reason"])
}

func TestCursorTransformerMarkerEventsDoNotAliasOriginal(t *testing.T) {
	t.Parallel()
	tr := (&Cursor{}).NewTransformer(&Context{})
	original := chunk(map[string]any{"reasoning_content": "r"}, nil)

	out := tr.Transform(original)
	require.Len(t, out, 2)
	out[0].FirstChoice()["delta"].(map[string]any)["content"] = "mutated"
	require.Equal(t, "r", original.Delta()["reasoning_content"])
}

func TestCursorTransformerBareFinishClosesReasoningRun(t *testing.T) {
	t.Parallel()
	tr := (&Cursor{}).NewTransformer(&Context{})

	out := tr.Transform(chunk(map[string]any{"reasoning_content": "thinking"}, nil))
	require.Len(t, out, 2)

	// A choice carrying only finish_reason, no delta at all.
	event := relaymodel.Payload{
		"id": "evt",
		"choices": []any{
			map[string]any{"index": float64(0), "finish_reason": "stop"},
		},
	}
	out = tr.Transform(event)
	require.Len(t, out, 2)
	require.Equal(t, "\n</think>", deltaContent(t, out[0]))
	require.Nil(t, out[0].FirstChoice()["finish_reason"])
	require.Equal(t, event, out[1])
}

func TestCursorTransformerPassesEventsWithoutDelta(t *testing.T) {
	t.Parallel()
	tr := (&Cursor{}).NewTransformer(&Context{})
	event := relaymodel.Payload{"id": "evt", "usage": map[string]any{"total_tokens": float64(5)}}
	out := tr.Transform(event)
	require.Len(t, out, 1)
	require.Equal(t, event, out[0])
}

func TestForPurpose(t *testing.T) {
	t.Parallel()
	require.IsType(t, &Cursor{}, ForPurpose("cursor"))
	require.IsType(t, &Base{}, ForPurpose("default"))
	require.IsType(t, &Base{}, ForPurpose(""))
}
