// Package adaptor defines the per-upstream provider contract.
package adaptor

import (
	"context"
	"fmt"

	relaymodel "github.com/apimirror/gateway/relay/model"
)

// LineStream is a lazy sequence of SSE text lines read from an upstream.
// Next blocks on upstream I/O, which is what gives the relay pump its
// back-pressure: the next line is only pulled after the previous one was
// written downstream.
type LineStream interface {
	// Next returns the next non-blank line. ok is false at end of
	// stream; err is non-nil when the upstream connection failed
	// mid-stream.
	Next() (line string, ok bool, err error)
	Close() error
}

// Adaptor is one upstream provider client.
type Adaptor interface {
	Name() string
	ListModels(ctx context.Context) ([]relaymodel.ModelInfo, error)
	ChatCompletions(ctx context.Context, payload relaymodel.Payload) (relaymodel.Payload, error)
	ChatCompletionsStream(ctx context.Context, payload relaymodel.Payload) (LineStream, error)
}

// StatusError reports a non-2xx upstream answer. The orchestrator maps
// it to a 500 toward the client without recording usage.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned %d: %s", e.StatusCode, e.Body)
}
