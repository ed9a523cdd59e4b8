// Package moonshot adapts the Moonshot upstream, which accepts the
// OpenAI wire format without payload quirks.
package moonshot

import (
	"github.com/apimirror/gateway/relay/adaptor/openai_compatible"
)

type Adaptor struct {
	*openai_compatible.Client
}

// New builds the Moonshot adaptor.
func New(baseURL, apiKey string) *Adaptor {
	return &Adaptor{Client: openai_compatible.NewClient("moonshot", baseURL, apiKey)}
}
