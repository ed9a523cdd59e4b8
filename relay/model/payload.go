// Package model defines the wire-level payload types shared by adaptors,
// pipelines and the chat orchestrator.
package model

import "encoding/json"

// Payload is a chat request, response or stream event body. It stays a
// JSON map rather than a closed struct so opaque client fields
// (temperature, tools, vendor extensions) pass through the gateway
// untouched.
type Payload map[string]any

// ParsePayload decodes a JSON body into a Payload.
func ParsePayload(raw []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	return p, nil
}

// Model returns the "model" field, or "".
func (p Payload) Model() string {
	s, _ := p["model"].(string)
	return s
}

// SetModel overwrites the "model" field.
func (p Payload) SetModel(model string) {
	p["model"] = model
}

// Stream reports whether the request asked for a streaming response.
func (p Payload) Stream() bool {
	b, _ := p["stream"].(bool)
	return b
}

// Messages returns the "messages" list, with each element that is an
// object projected to a map. Non-object elements are skipped.
func (p Payload) Messages() []map[string]any {
	raw, _ := p["messages"].([]any)
	if raw == nil {
		return nil
	}
	out := make([]map[string]any, 0, len(raw))
	for _, m := range raw {
		if msg, ok := m.(map[string]any); ok {
			out = append(out, msg)
		}
	}
	return out
}

// SetMessages replaces the "messages" list.
func (p Payload) SetMessages(messages []map[string]any) {
	raw := make([]any, len(messages))
	for i, m := range messages {
		raw[i] = m
	}
	p["messages"] = raw
}

// FirstChoice returns choices[0] as a map, or nil.
func (p Payload) FirstChoice() map[string]any {
	choices, _ := p["choices"].([]any)
	if len(choices) == 0 {
		return nil
	}
	choice, _ := choices[0].(map[string]any)
	return choice
}

// Delta returns choices[0].delta as a map, or nil.
func (p Payload) Delta() map[string]any {
	choice := p.FirstChoice()
	if choice == nil {
		return nil
	}
	delta, _ := choice["delta"].(map[string]any)
	return delta
}

// UsageMap returns the "usage" field as a map, or nil.
func (p Payload) UsageMap() map[string]any {
	u, _ := p["usage"].(map[string]any)
	return u
}

// Clone returns a deep copy. Stream transformers fan one event out into
// several derived events and must not alias the original maps.
func (p Payload) Clone() Payload {
	return Payload(deepCopyMap(p))
}

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = deepCopyValue(item)
		}
		return out
	default:
		return v
	}
}
