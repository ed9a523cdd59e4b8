// Package pipeline applies purpose-specific transformations at request
// entry, non-stream exit, and per streamed SSE event. The purpose comes
// from the API key record and selects the variant.
package pipeline

import (
	"github.com/apimirror/gateway/model"
	relaymodel "github.com/apimirror/gateway/relay/model"
)

// Context carries per-request state through the pipeline hooks.
type Context struct {
	RequestId    string
	ModelName    string // public provider/model form
	ProviderName string
	RealModel    string
	UserId       int64
	Purpose      string
	ChatHistory  []map[string]any
}

// Transformer rewrites one upstream stream event into zero or more
// downstream events. Implementations may be stateful; a fresh one is
// created per stream.
type Transformer interface {
	Transform(event relaymodel.Payload) []relaymodel.Payload
}

// Pipeline is one purpose-specific transformation set.
type Pipeline interface {
	PreprocessRequest(ctx *Context, payload relaymodel.Payload) relaymodel.Payload
	PostprocessResponse(ctx *Context, raw relaymodel.Payload) relaymodel.Payload
	NewTransformer(ctx *Context) Transformer
}

// ForPurpose selects the pipeline for an API key purpose.
func ForPurpose(purpose string) Pipeline {
	if purpose == model.PurposeCursor {
		return &Cursor{}
	}
	return &Base{}
}

// Base is the identity pipeline.
type Base struct{}

func (*Base) PreprocessRequest(_ *Context, payload relaymodel.Payload) relaymodel.Payload {
	return payload
}

func (*Base) PostprocessResponse(_ *Context, raw relaymodel.Payload) relaymodel.Payload {
	return raw
}

func (*Base) NewTransformer(_ *Context) Transformer {
	return identityTransformer{}
}

type identityTransformer struct{}

func (identityTransformer) Transform(event relaymodel.Payload) []relaymodel.Payload {
	return []relaymodel.Payload{event}
}
