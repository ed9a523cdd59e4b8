// Package model implements the cache-aside API key store. Key records
// are owned by the authority; the edge only caches them, with tagged
// negative entries for absent, revoked and transiently failing lookups.
package model

import (
	"context"
	"encoding/json"
	"time"

	gmw "github.com/Laisky/gin-middlewares/v7"
	"github.com/Laisky/zap"

	"github.com/apimirror/gateway/common/config"
	"github.com/apimirror/gateway/common/helper"
	"github.com/apimirror/gateway/common/kv"
	"github.com/apimirror/gateway/relay/authority"
)

// PurposeDefault and PurposeCursor steer pipeline selection.
const (
	PurposeDefault = "default"
	PurposeCursor  = "cursor"
)

// Negative cache tags. A tagged entry maps the key to null; the tag says
// why, so a cached null is never confused with a cache miss.
const (
	TagRevoked  = "revoked"
	TagNotFound = "not_found"
	TagError    = "error"
)

const apiKeyCachePrefix = "apikey:"

// APIKeyRecord is the edge-cached view of an API key.
type APIKeyRecord struct {
	UserId  int64  `json:"user_id"`
	Active  bool   `json:"active"`
	Purpose string `json:"purpose"`
}

// GetAPIKey resolves an API key to its record, reading the edge KV first
// and falling back to the authority on a miss. Returns (nil, nil) for
// any key that must not authorize a request: revoked, absent, or
// unverifiable while the authority is unhealthy.
func GetAPIKey(ctx context.Context, key string) (*APIKeyRecord, error) {
	lg := gmw.GetLogger(ctx)
	cacheKey := apiKeyCachePrefix + key

	entry, found, err := kv.Shared.Get(ctx, cacheKey)
	if err != nil {
		// A broken cache must not take authorization down; fall through
		// to the authority.
		lg.Warn("api key cache read failed", zap.Error(err))
	} else if found {
		if entry.Tag != "" {
			return nil, nil
		}
		var record APIKeyRecord
		if err := json.Unmarshal(entry.Value, &record); err == nil {
			return &record, nil
		}
		lg.Warn("api key cache entry corrupt, refreshing", zap.Error(err))
	}

	verification, status, verifyErr := authority.VerifyKey(ctx, key)
	switch status {
	case authority.VerifyOK:
		record := &APIKeyRecord{
			UserId:  verification.UserId,
			Active:  verification.IsActive,
			Purpose: verification.Purpose,
		}
		if record.Purpose == "" {
			record.Purpose = PurposeDefault
		}
		if !record.Active {
			// The authority signals revocation with 403, but guard the
			// flag anyway.
			cacheNegative(ctx, cacheKey, TagRevoked)
			return nil, nil
		}
		if raw, err := json.Marshal(record); err == nil {
			if err := kv.Shared.Set(ctx, cacheKey, kv.Entry{Value: raw}, config.APIKeyValidTTL); err != nil {
				lg.Warn("api key cache write failed", zap.Error(err))
			}
		}
		return record, nil
	case authority.VerifyRevoked:
		cacheNegative(ctx, cacheKey, TagRevoked)
		return nil, nil
	case authority.VerifyNotFound:
		cacheNegative(ctx, cacheKey, TagNotFound)
		return nil, nil
	default:
		lg.Warn("api key verification failed",
			zap.String("key", helper.MaskAPIKey(key)),
			zap.Error(verifyErr),
		)
		cacheNegativeTTL(ctx, cacheKey, TagError, config.APIKeyErrorTTL)
		return nil, nil
	}
}

// InvalidateAPIKey drops the cached entry for a key so an authority-side
// change propagates immediately instead of waiting out the TTL. The
// authority triggers it through POST /internal/keys/invalidate.
func InvalidateAPIKey(ctx context.Context, key string) error {
	return kv.Shared.Delete(ctx, apiKeyCachePrefix+key)
}

func cacheNegative(ctx context.Context, cacheKey, tag string) {
	cacheNegativeTTL(ctx, cacheKey, tag, config.APIKeyNegativeTTL)
}

func cacheNegativeTTL(ctx context.Context, cacheKey, tag string, ttl time.Duration) {
	if err := kv.Shared.Set(ctx, cacheKey, kv.Entry{Tag: tag}, ttl); err != nil {
		gmw.GetLogger(ctx).Warn("api key negative cache write failed", zap.Error(err))
	}
}
