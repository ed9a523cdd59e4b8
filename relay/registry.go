// Package relay wires provider adaptors into a registry keyed by the
// provider prefix of public model names.
package relay

import (
	"github.com/apimirror/gateway/common/config"
	"github.com/apimirror/gateway/relay/adaptor"
	"github.com/apimirror/gateway/relay/adaptor/deepseek"
	"github.com/apimirror/gateway/relay/adaptor/moonshot"
	"github.com/apimirror/gateway/relay/adaptor/testprovider"
	"github.com/apimirror/gateway/relay/adaptor/zai"
)

// Provider pairs an adaptor with its model allow-list. An empty
// allow-list leaves the provider unrestricted.
type Provider struct {
	Adaptor       adaptor.Adaptor
	AllowedModels []string
}

// ModelAllowed reports whether a real (unprefixed) model name may be
// served by this provider.
func (p *Provider) ModelAllowed(model string) bool {
	if len(p.AllowedModels) == 0 {
		return true
	}
	for _, allowed := range p.AllowedModels {
		if allowed == model {
			return true
		}
	}
	return false
}

var providers = map[string]*Provider{}

// InitProviders builds the registry from configuration. Providers
// without credentials are absent, which surfaces as 404 on dispatch.
func InitProviders() {
	providers = map[string]*Provider{}
	for _, cfg := range config.Providers() {
		var a adaptor.Adaptor
		switch cfg.Name {
		case "deepseek":
			a = deepseek.New(cfg.BaseURL, cfg.APIKey)
		case "moonshot":
			a = moonshot.New(cfg.BaseURL, cfg.APIKey)
		case "zai":
			a = zai.New(cfg.BaseURL, cfg.APIKey)
		default:
			continue
		}
		providers[cfg.Name] = &Provider{Adaptor: a, AllowedModels: cfg.AllowedModels}
	}
	if config.TestProviderEnabled {
		providers["test"] = &Provider{
			Adaptor:       testprovider.New(testprovider.Options{}),
			AllowedModels: config.TestProviderAllowedModels(),
		}
	}
}

// RegisterProvider installs a provider, replacing any with the same
// name. Exposed for tests.
func RegisterProvider(name string, p *Provider) {
	providers[name] = p
}

// GetProvider resolves a provider prefix.
func GetProvider(name string) (*Provider, bool) {
	p, ok := providers[name]
	return p, ok
}

// Providers returns the live registry for iteration.
func Providers() map[string]*Provider {
	return providers
}
