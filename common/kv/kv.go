// Package kv provides the edge key-value cache with per-entry TTL and a
// metadata tag side-channel. The tag distinguishes a cached null (absent,
// revoked, transient error) from a plain cache miss, which is the entire
// defense against invalid-key floods.
package kv

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/go-redis/redis/v8"
	gocache "github.com/patrickmn/go-cache"

	"github.com/apimirror/gateway/common"
)

// Entry is one cached value plus its metadata tag. A non-empty Tag marks
// a negative entry whose Value is meaningless.
type Entry struct {
	Value []byte `json:"value,omitempty"`
	Tag   string `json:"tag,omitempty"`
}

// Store is the edge KV contract. All writes are idempotent with matching
// TTLs, so concurrent writers for the same key are tolerated.
type Store interface {
	Get(ctx context.Context, key string) (*Entry, bool, error)
	Set(ctx context.Context, key string, entry Entry, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Shared is the process-wide store, selected by Init.
var Shared Store = NewMemoryStore()

// Init selects the redis-backed store when redis is configured.
func Init() {
	if common.IsRedisEnabled() {
		Shared = NewRedisStore(common.RDB)
	}
}

type redisStore struct {
	rdb *redis.Client
}

// NewRedisStore returns a Store backed by redis. Entries are stored as
// JSON envelopes so the tag travels with the value under a single key.
func NewRedisStore(rdb *redis.Client) Store {
	return &redisStore{rdb: rdb}
}

func (s *redisStore) Get(ctx context.Context, key string) (*Entry, bool, error) {
	raw, err := s.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "kv get %q", key)
	}
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, false, errors.Wrapf(err, "decode kv entry %q", key)
	}
	return &entry, true, nil
}

func (s *redisStore) Set(ctx context.Context, key string, entry Entry, ttl time.Duration) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrapf(err, "encode kv entry %q", key)
	}
	if err := s.rdb.Set(ctx, key, raw, ttl).Err(); err != nil {
		return errors.Wrapf(err, "kv set %q", key)
	}
	return nil
}

func (s *redisStore) Delete(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		return errors.Wrapf(err, "kv delete %q", key)
	}
	return nil
}

type memoryStore struct {
	cache *gocache.Cache
}

// NewMemoryStore returns an in-process Store with the same contract as
// the redis one, used when no redis connection is configured.
func NewMemoryStore() Store {
	return &memoryStore{cache: gocache.New(gocache.NoExpiration, time.Minute)}
}

func (s *memoryStore) Get(_ context.Context, key string) (*Entry, bool, error) {
	v, ok := s.cache.Get(key)
	if !ok {
		return nil, false, nil
	}
	entry := v.(Entry)
	return &entry, true, nil
}

func (s *memoryStore) Set(_ context.Context, key string, entry Entry, ttl time.Duration) error {
	s.cache.Set(key, entry, ttl)
	return nil
}

func (s *memoryStore) Delete(_ context.Context, key string) error {
	s.cache.Delete(key)
	return nil
}
