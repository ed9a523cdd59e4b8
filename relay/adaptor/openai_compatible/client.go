// Package openai_compatible implements the shared HTTP client for
// upstreams that speak the OpenAI Chat Completions wire protocol.
package openai_compatible

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/Laisky/errors/v2"

	"github.com/apimirror/gateway/common/client"
	"github.com/apimirror/gateway/relay/adaptor"
	relaymodel "github.com/apimirror/gateway/relay/model"
)

// Client talks to one OpenAI-compatible upstream. Provider adaptors
// embed it and layer payload quirks on top.
type Client struct {
	name    string
	baseURL string
	apiKey  string
}

// NewClient builds a Client for one upstream. baseURL may carry a
// trailing slash; it is normalized away.
func NewClient(name, baseURL, apiKey string) *Client {
	return &Client{
		name:    name,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
	}
}

// Name returns the provider name used in public model ids.
func (c *Client) Name() string {
	return c.name
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
}

// ChatCompletions dispatches a non-streaming chat completion.
func (c *Client) ChatCompletions(ctx context.Context, payload relaymodel.Payload) (relaymodel.Payload, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "marshal chat payload")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build chat request")
	}
	c.setHeaders(req)

	resp, err := client.HTTPClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "call %s chat completions", c.name)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, readStatusError(resp)
	}

	var out relaymodel.Payload
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errors.Wrapf(err, "decode %s chat response", c.name)
	}
	return out, nil
}

// ChatCompletionsStream opens a streaming chat completion and returns
// the upstream SSE lines. A non-2xx answer is returned as a StatusError
// before any line is produced.
func (c *Client) ChatCompletionsStream(ctx context.Context, payload relaymodel.Payload) (adaptor.LineStream, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "marshal chat payload")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build chat stream request")
	}
	c.setHeaders(req)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := client.HTTPClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s chat stream", c.name)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := readStatusError(resp)
		_ = resp.Body.Close()
		return nil, err
	}
	return NewLineStream(resp.Body), nil
}

// ListModels fetches the upstream model catalog.
func (c *Client) ListModels(ctx context.Context) ([]relaymodel.ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return nil, errors.Wrap(err, "build models request")
	}
	c.setHeaders(req)

	resp, err := client.ImpatientHTTPClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "call %s models", c.name)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, readStatusError(resp)
	}

	var out relaymodel.ModelList
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errors.Wrapf(err, "decode %s models response", c.name)
	}
	return out.Data, nil
}

func readStatusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &adaptor.StatusError{
		StatusCode: resp.StatusCode,
		Body:       string(body),
	}
}
