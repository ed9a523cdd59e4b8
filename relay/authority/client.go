// Package authority is the HTTP client for the out-of-process key and
// billing service reachable at BACKEND_URL.
package authority

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/Laisky/errors/v2"

	"github.com/apimirror/gateway/common/client"
	"github.com/apimirror/gateway/common/config"
)

// ErrNotConfigured is returned when BACKEND_URL or INTERNAL_SECRET is
// missing. Callers must treat it as an operational failure, never as an
// empty success.
var ErrNotConfigured = errors.New("authority not configured: BACKEND_URL and INTERNAL_SECRET are required")

// VerifyStatus classifies the authority's answer for a key.
type VerifyStatus int

const (
	// VerifyOK means the key exists and is active.
	VerifyOK VerifyStatus = iota
	// VerifyRevoked means the authority answered 403.
	VerifyRevoked
	// VerifyNotFound means the authority answered 404.
	VerifyNotFound
	// VerifyError covers transport failures and unexpected statuses.
	VerifyError
)

// KeyVerification is the authority's answer for a valid key.
type KeyVerification struct {
	KeyValue string `json:"key_value"`
	UserId   int64  `json:"user_id"`
	IsActive bool   `json:"is_active"`
	Purpose  string `json:"purpose"`
}

// VerifyKey asks the authority whether an API key is valid. The error is
// only populated for VerifyError results, for logging; callers decide
// caching policy from the status alone.
func VerifyKey(ctx context.Context, key string) (*KeyVerification, VerifyStatus, error) {
	if config.BackendURL == "" || config.InternalSecret == "" {
		return nil, VerifyError, ErrNotConfigured
	}

	body, err := json.Marshal(map[string]string{"key": key})
	if err != nil {
		return nil, VerifyError, errors.Wrap(err, "marshal verify request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		config.BackendURL+"/internal/keys/verify", bytes.NewReader(body))
	if err != nil {
		return nil, VerifyError, errors.Wrap(err, "build verify request")
	}
	setInternalHeaders(req)

	resp, err := client.ImpatientHTTPClient.Do(req)
	if err != nil {
		return nil, VerifyError, errors.Wrap(err, "call authority verify")
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var v KeyVerification
		if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
			return nil, VerifyError, errors.Wrap(err, "decode verify response")
		}
		return &v, VerifyOK, nil
	case resp.StatusCode == http.StatusForbidden:
		return nil, VerifyRevoked, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, VerifyNotFound, nil
	default:
		return nil, VerifyError, errors.Errorf("authority verify returned %d", resp.StatusCode)
	}
}

// SettleResponse is the authority's acknowledgment of a usage batch.
type SettleResponse struct {
	Success        bool `json:"success"`
	ProcessedCount int  `json:"processedCount"`
}

// SettleUsage posts a batch of usage log entries for settlement. Any
// non-2xx answer is an error so the caller nacks the batch.
func SettleUsage(ctx context.Context, entries any) (*SettleResponse, error) {
	if config.BackendURL == "" || config.InternalSecret == "" {
		return nil, ErrNotConfigured
	}

	body, err := json.Marshal(map[string]any{"entries": entries})
	if err != nil {
		return nil, errors.Wrap(err, "marshal settle request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		config.BackendURL+"/internal/usage/settle", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build settle request")
	}
	setInternalHeaders(req)

	resp, err := client.ImpatientHTTPClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "call authority settle")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, errors.Errorf("authority settle returned %d: %s", resp.StatusCode, payload)
	}
	var out SettleResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errors.Wrap(err, "decode settle response")
	}
	return &out, nil
}

func setInternalHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+config.InternalSecret)
	req.Header.Set("Content-Type", "application/json")
}
