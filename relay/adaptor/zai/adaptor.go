// Package zai adapts the Zai upstream, which accepts the OpenAI wire
// format without payload quirks.
package zai

import (
	"github.com/apimirror/gateway/relay/adaptor/openai_compatible"
)

type Adaptor struct {
	*openai_compatible.Client
}

// New builds the Zai adaptor.
func New(baseURL, apiKey string) *Adaptor {
	return &Adaptor{Client: openai_compatible.NewClient("zai", baseURL, apiKey)}
}
