// Package deepseek adapts the DeepSeek upstream. DeepSeek rejects typed
// content parts on role=tool messages, so those are flattened to plain
// strings before dispatch.
package deepseek

import (
	"context"
	"fmt"

	relaymodel "github.com/apimirror/gateway/relay/model"
	"github.com/apimirror/gateway/relay/adaptor"
	"github.com/apimirror/gateway/relay/adaptor/openai_compatible"
)

type Adaptor struct {
	client *openai_compatible.Client
}

// New builds the DeepSeek adaptor.
func New(baseURL, apiKey string) *Adaptor {
	return &Adaptor{client: openai_compatible.NewClient("deepseek", baseURL, apiKey)}
}

func (a *Adaptor) Name() string {
	return "deepseek"
}

func (a *Adaptor) ListModels(ctx context.Context) ([]relaymodel.ModelInfo, error) {
	return a.client.ListModels(ctx)
}

func (a *Adaptor) ChatCompletions(ctx context.Context, payload relaymodel.Payload) (relaymodel.Payload, error) {
	return a.client.ChatCompletions(ctx, flattenToolMessages(payload))
}

func (a *Adaptor) ChatCompletionsStream(ctx context.Context, payload relaymodel.Payload) (adaptor.LineStream, error) {
	return a.client.ChatCompletionsStream(ctx, flattenToolMessages(payload))
}

// flattenToolMessages rewrites role=tool messages whose content is a
// typed-part list into single strings. Other messages pass through
// unchanged; the original payload is not mutated.
func flattenToolMessages(payload relaymodel.Payload) relaymodel.Payload {
	messages := payload.Messages()
	changed := false
	for i, msg := range messages {
		role, _ := msg["role"].(string)
		if role != "tool" {
			continue
		}
		parts, ok := msg["content"].([]any)
		if !ok {
			continue
		}
		merged := make(map[string]any, len(msg))
		for k, v := range msg {
			merged[k] = v
		}
		merged["content"] = mergeContentParts(parts)
		messages[i] = merged
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

func mergeContentParts(parts []any) string {
	var merged string
	for _, part := range parts {
		switch p := part.(type) {
		case string:
			merged += p
		case map[string]any:
			switch p["type"] {
			case "text":
				text, _ := p["text"].(string)
				merged += text
			case "image_url":
				url := ""
				if img, ok := p["image_url"].(map[string]any); ok {
					url, _ = img["url"].(string)
				}
				merged += fmt.Sprintf("\n[Attached Image: %s]\n", url)
			default:
				merged += fmt.Sprintf("\n[Unsupported Multimodal Block: %v]\n", p["type"])
			}
		default:
			merged += fmt.Sprintf("\n[Unknown Content Block: %v]\n", part)
		}
	}
	return merged
}
