package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
	glog "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"

	"github.com/apimirror/gateway/common/helper"
	relaymodel "github.com/apimirror/gateway/relay/model"
)

type smokeConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

// runSmoke runs every check in order and fails fast: later checks are
// meaningless when an earlier layer is broken.
func runSmoke(ctx context.Context, logger glog.Logger, cfg smokeConfig) error {
	client := &http.Client{Timeout: 2 * time.Minute}

	for _, check := range []struct {
		name string
		fn   func(context.Context, *http.Client, smokeConfig) error
	}{
		{"health", checkHealth},
		{"ping", checkPing},
		{"models", checkModels},
		{"chat", checkChat},
		{"chat-stream", checkChatStream},
	} {
		start := time.Now()
		if err := check.fn(ctx, client, cfg); err != nil {
			return errors.Wrapf(err, "check %s", check.name)
		}
		logger.Info("check passed",
			zap.String("check", check.name),
			zap.Duration("duration", time.Since(start)))
	}
	return nil
}

func checkHealth(ctx context.Context, client *http.Client, cfg smokeConfig) error {
	resp, err := doRequest(ctx, client, http.MethodGet, cfg.BaseURL+"/internal/health", "", nil)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	return expectStatus(resp, http.StatusOK)
}

func checkPing(ctx context.Context, client *http.Client, cfg smokeConfig) error {
	resp, err := doRequest(ctx, client, http.MethodGet, cfg.BaseURL+"/v1/ping", cfg.APIKey, nil)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if err := expectStatus(resp, http.StatusOK); err != nil {
		return err
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64))
	if strings.TrimSpace(string(body)) != "OK" {
		return errors.Errorf("unexpected ping body %q", body)
	}
	return nil
}

func checkModels(ctx context.Context, client *http.Client, cfg smokeConfig) error {
	resp, err := doRequest(ctx, client, http.MethodGet, cfg.BaseURL+"/v1/models", cfg.APIKey, nil)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if err := expectStatus(resp, http.StatusOK); err != nil {
		return err
	}
	var list relaymodel.ModelList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return errors.Wrap(err, "decode model list")
	}
	for _, m := range list.Data {
		if m.Id == cfg.Model {
			return nil
		}
	}
	return errors.Errorf("model %q not in catalog (%d models)", cfg.Model, len(list.Data))
}

func checkChat(ctx context.Context, client *http.Client, cfg smokeConfig) error {
	resp, err := doRequest(ctx, client, http.MethodPost, cfg.BaseURL+"/v1/chat/completions", cfg.APIKey,
		chatBody(cfg.Model, false))
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if err := expectStatus(resp, http.StatusOK); err != nil {
		return err
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "read chat response")
	}
	payload, err := relaymodel.ParsePayload(raw)
	if err != nil {
		return errors.Wrap(err, "parse chat response")
	}
	if !strings.HasPrefix(stringField(payload, "id"), "chatcmpl-") {
		return errors.Errorf("unexpected response id %q", payload["id"])
	}
	if payload.Model() != cfg.Model {
		return errors.Errorf("response model %q, want %q", payload.Model(), cfg.Model)
	}
	if payload.FirstChoice() == nil {
		return errors.New("response has no choices")
	}
	return nil
}

func checkChatStream(ctx context.Context, client *http.Client, cfg smokeConfig) error {
	resp, err := doRequest(ctx, client, http.MethodPost, cfg.BaseURL+"/v1/chat/completions", cfg.APIKey,
		chatBody(cfg.Model, true))
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if err := expectStatus(resp, http.StatusOK); err != nil {
		return err
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		return errors.Errorf("unexpected stream content type %q", ct)
	}

	scanner := bufio.NewScanner(resp.Body)
	helper.ConfigureScannerBuffer(scanner)
	events, sawDone := 0, false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
		case line == "data: [DONE]":
			sawDone = true
		case strings.HasPrefix(line, "data: "):
			events++
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "read stream")
	}
	if events == 0 {
		return errors.New("stream produced no data events")
	}
	if !sawDone {
		return errors.New("stream ended without [DONE]")
	}
	return nil
}

func chatBody(model string, stream bool) []byte {
	raw, _ := json.Marshal(map[string]any{
		"model":  model,
		"stream": stream,
		"messages": []map[string]any{
			{"role": "user", "content": "hello"},
		},
	})
	return raw
}

func doRequest(ctx context.Context, client *http.Client, method, url, apiKey string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, errors.Wrapf(err, "build %s %s", method, url)
	}
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := client.Do(req)
	return resp, errors.Wrapf(err, "%s %s", method, url)
}

func expectStatus(resp *http.Response, want int) error {
	if resp.StatusCode != want {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Errorf("%s returned %d (want %d): %s",
			resp.Request.URL.Path, resp.StatusCode, want, body)
	}
	return nil
}

func stringField(p relaymodel.Payload, key string) string {
	s, _ := p[key].(string)
	return s
}
