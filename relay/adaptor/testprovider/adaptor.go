// Package testprovider is a synthetic upstream for exercising the
// gateway without paid providers. Responses are fixed or tailored to
// keywords in the last user message, with configurable stream chunking
// and inter-chunk delay.
package testprovider

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/apimirror/gateway/relay/adaptor"
	relaymodel "github.com/apimirror/gateway/relay/model"
)

const defaultResponse = "This is a test response from the test provider."

// Options tune the synthetic responses.
type Options struct {
	// FixedResponse overrides the default completion text.
	FixedResponse string
	// StreamChunkCount splits the streamed completion into this many
	// content deltas. Defaults to 10.
	StreamChunkCount int
	// StreamChunkDelay sleeps between streamed chunks, for latency
	// simulation in benchmarks.
	StreamChunkDelay time.Duration
}

type Adaptor struct {
	opts Options
}

// New builds the synthetic adaptor.
func New(opts Options) *Adaptor {
	if opts.FixedResponse == "" {
		opts.FixedResponse = defaultResponse
	}
	if opts.StreamChunkCount <= 0 {
		opts.StreamChunkCount = 10
	}
	return &Adaptor{opts: opts}
}

func (a *Adaptor) Name() string {
	return "test"
}

func (a *Adaptor) ListModels(context.Context) ([]relaymodel.ModelInfo, error) {
	created := time.Now().Unix()
	var models []relaymodel.ModelInfo
	for _, id := range []string{"test-fast", "test-slow", "test-stream"} {
		models = append(models, relaymodel.ModelInfo{
			Id:      id,
			Object:  "model",
			Created: created,
			OwnedBy: "test-provider",
		})
	}
	return models, nil
}

func (a *Adaptor) ChatCompletions(_ context.Context, payload relaymodel.Payload) (relaymodel.Payload, error) {
	userMessage := lastUserMessage(payload)
	content := a.tailorResponse(userMessage)

	promptTokens := len(strings.Fields(userMessage)) * 2
	completionTokens := len(strings.Fields(content))
	return relaymodel.Payload{
		"id":      "test-" + time.Now().Format("20060102150405.000"),
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   payload.Model(),
		"choices": []any{
			map[string]any{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": content},
				"finish_reason": "stop",
			},
		},
		"usage": map[string]any{
			"prompt_tokens":     promptTokens,
			"completion_tokens": completionTokens,
			"total_tokens":      promptTokens + completionTokens,
		},
	}, nil
}

func (a *Adaptor) ChatCompletionsStream(_ context.Context, payload relaymodel.Payload) (adaptor.LineStream, error) {
	content := a.tailorResponse(lastUserMessage(payload))
	chunks := splitContent(content, a.opts.StreamChunkCount)

	id := "test-" + time.Now().Format("20060102150405.000")
	created := time.Now().Unix()
	lines := make([]string, 0, len(chunks)+1)
	for i, chunk := range chunks {
		if i < len(chunks)-1 {
			chunk += " "
		}
		var finish any
		if i == len(chunks)-1 {
			finish = "stop"
		}
		event := map[string]any{
			"id":      id,
			"object":  "chat.completion.chunk",
			"created": created,
			"model":   payload.Model(),
			"choices": []any{
				map[string]any{
					"index":         0,
					"delta":         map[string]any{"content": chunk},
					"finish_reason": finish,
				},
			},
		}
		raw, err := json.Marshal(event)
		if err != nil {
			return nil, err
		}
		lines = append(lines, "data: "+string(raw))
	}
	lines = append(lines, "data: [DONE]")
	return &sliceLineStream{lines: lines, delay: a.opts.StreamChunkDelay}, nil
}

func (a *Adaptor) tailorResponse(userMessage string) string {
	lowered := strings.ToLower(userMessage)
	switch {
	case strings.Contains(lowered, "hello") || strings.Contains(lowered, "hi"):
		return "Hello! This is the test provider speaking."
	case strings.Contains(lowered, "long") || strings.Contains(lowered, "paragraph"):
		return strings.TrimSpace(strings.Repeat("This is a longer response for testing purposes. ", 5))
	default:
		return a.opts.FixedResponse
	}
}

func lastUserMessage(payload relaymodel.Payload) string {
	messages := payload.Messages()
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i]["role"] == "user" {
			content, _ := messages[i]["content"].(string)
			return content
		}
	}
	return ""
}

func splitContent(content string, chunks int) []string {
	words := strings.Fields(content)
	if len(words) == 0 {
		return []string{content}
	}
	if chunks >= len(words) {
		return words
	}
	size := len(words) / chunks
	out := make([]string, 0, chunks)
	for i := 0; i < chunks; i++ {
		start := i * size
		end := (i + 1) * size
		if i == chunks-1 {
			end = len(words)
		}
		out = append(out, strings.Join(words[start:end], " "))
	}
	return out
}

type sliceLineStream struct {
	lines []string
	idx   int
	delay time.Duration
}

func (s *sliceLineStream) Next() (string, bool, error) {
	if s.idx >= len(s.lines) {
		return "", false, nil
	}
	if s.delay > 0 && s.idx > 0 {
		time.Sleep(s.delay)
	}
	line := s.lines[s.idx]
	s.idx++
	return line, true, nil
}

func (s *sliceLineStream) Close() error {
	return nil
}
