// Package client provides the shared outbound HTTP clients.
package client

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/apimirror/gateway/common/config"
	"github.com/apimirror/gateway/common/logger"
)

// HTTPClient is the default outbound client for chat completions. It has
// no overall timeout unless RELAY_TIMEOUT is set, since LLM responses can
// stream for minutes.
var HTTPClient *http.Client

// ImpatientHTTPClient is a short-timeout client for authority calls and
// model catalog requests.
var ImpatientHTTPClient *http.Client

// Init builds the shared HTTP clients with proxy and timeout settings
// derived from configuration.
func Init() {
	createTransport := func(proxyURL *url.URL) *http.Transport {
		dialer := &net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}
		transport := &http.Transport{
			DialContext: dialer.DialContext,
			// Disable HTTP/2; some upstream proxies mishandle streamed h2 bodies.
			TLSNextProto: make(map[string]func(authority string, c *tls.Conn) http.RoundTripper),
		}
		if proxyURL != nil {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
		return transport
	}

	var transport http.RoundTripper
	if config.RelayProxy != "" {
		proxyURL, err := url.Parse(config.RelayProxy)
		if err != nil {
			logger.Logger.Fatal(fmt.Sprintf("RELAY_PROXY set but invalid: %s", config.RelayProxy))
		}
		transport = createTransport(proxyURL)
	} else {
		transport = createTransport(nil)
	}

	HTTPClient = &http.Client{Transport: transport}
	if config.RelayTimeout > 0 {
		HTTPClient.Timeout = time.Duration(config.RelayTimeout) * time.Second
	}

	ImpatientHTTPClient = &http.Client{
		Timeout:   5 * time.Second,
		Transport: transport,
	}
}
