package pipeline

import (
	"strings"

	relaymodel "github.com/apimirror/gateway/relay/model"
)

const (
	thinkBOS = "<think>\n"
	thinkEOS = "\n</think>"
)

// Cursor serves clients that only understand the standard `content`
// field. Reasoning text is moved between `reasoning_content` and inline
// <think> markers in both directions: extracted from assistant history
// on the way in, folded back into content on the way out.
type Cursor struct{}

// PreprocessRequest splits <think> blocks out of assistant messages
// whose content is a typed-part list, assigning the reasoning text to
// reasoning_content and keeping the remainder as the sole text part.
func (*Cursor) PreprocessRequest(_ *Context, payload relaymodel.Payload) relaymodel.Payload {
	messages := payload.Messages()
	changed := false
	for i, msg := range messages {
		if msg["role"] != "assistant" {
			continue
		}
		parts, ok := msg["content"].([]any)
		if !ok || len(parts) == 0 {
			continue
		}
		first, ok := parts[0].(map[string]any)
		if !ok {
			continue
		}
		text, _ := first["text"].(string)
		think, answer, found := extractThinkAndAnswer(text)
		if !found {
			continue
		}

		rewritten := make(map[string]any, len(msg)+1)
		for k, v := range msg {
			rewritten[k] = v
		}
		rewritten["reasoning_content"] = think
		if answer != "" {
			rewritten["content"] = []any{map[string]any{"type": "text", "text": answer}}
		} else {
			rewritten["content"] = []any{}
		}
		messages[i] = rewritten
		changed = true
	}
	if !changed {
		return payload
	}
	out := make(relaymodel.Payload, len(payload))
	for k, v := range payload {
		out[k] = v
	}
	out.SetMessages(messages)
	return out
}

// PostprocessResponse folds a non-empty reasoning_content into the
// message content, wrapped in <think> markers, and drops the field.
func (*Cursor) PostprocessResponse(_ *Context, raw relaymodel.Payload) relaymodel.Payload {
	choice := raw.FirstChoice()
	if choice == nil {
		return raw
	}
	message, ok := choice["message"].(map[string]any)
	if !ok {
		return raw
	}
	reasoning, _ := message["reasoning_content"].(string)
	if reasoning == "" {
		return raw
	}
	content, _ := message["content"].(string)
	message["content"] = thinkBOS + reasoning + thinkEOS + content
	delete(message, "reasoning_content")
	return raw
}

func (*Cursor) NewTransformer(_ *Context) Transformer {
	return &cursorTransformer{}
}

// extractThinkAndAnswer splits "<think>\n...\n</think>rest" into the
// reasoning text and the remainder. found is false when either marker
// is missing.
func extractThinkAndAnswer(text string) (think, answer string, found bool) {
	start := strings.Index(text, thinkBOS)
	if start < 0 {
		return "", text, false
	}
	rest := text[start+len(thinkBOS):]
	end := strings.Index(rest, thinkEOS)
	if end < 0 {
		return "", text, false
	}
	think = rest[:end]
	answer = strings.Replace(text, thinkBOS+think+thinkEOS, "", 1)
	return think, answer, true
}

// cursorTransformer rewrites reasoning_content deltas into content
// deltas bracketed by <think> markers. reasoning tracks whether the
// stream is currently inside a reasoning run.
type cursorTransformer struct {
	reasoning bool
}

func (t *cursorTransformer) Transform(event relaymodel.Payload) []relaymodel.Payload {
	delta := event.Delta()
	if delta == nil {
		if event.FirstChoice() == nil {
			return []relaymodel.Payload{event}
		}
		// A choice without a delta (bare finish_reason event) still ends
		// any open reasoning run.
		delta = map[string]any{}
	}
	_, hasReasoning := delta["reasoning_content"]

	switch {
	case hasReasoning && !t.reasoning:
		t.reasoning = true
		return []relaymodel.Payload{
			deriveContentEvent(event, thinkBOS, true),
			deriveContentEvent(event, stringValue(delta["reasoning_content"]), false),
		}
	case hasReasoning && t.reasoning:
		return []relaymodel.Payload{
			deriveContentEvent(event, stringValue(delta["reasoning_content"]), false),
		}
	case !hasReasoning && t.reasoning:
		t.reasoning = false
		return []relaymodel.Payload{
			deriveContentEvent(event, thinkEOS, true),
			event,
		}
	default:
		return []relaymodel.Payload{event}
	}
}

// deriveContentEvent clones the event and replaces the first choice's
// delta with a bare content delta. Synthesized marker events must not
// carry the upstream finish_reason.
func deriveContentEvent(event relaymodel.Payload, content string, marker bool) relaymodel.Payload {
	derived := event.Clone()
	choice := derived.FirstChoice()
	if choice != nil {
		choice["delta"] = map[string]any{"content": content}
		if marker {
			choice["finish_reason"] = nil
		}
	}
	return derived
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}
