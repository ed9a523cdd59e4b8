// Package config holds process-wide configuration loaded from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

var (
	// Port is the listen port for the client-facing HTTP server.
	Port = "3000"
	// DebugEnabled toggles debug logging and gin debug mode.
	DebugEnabled bool

	// BackendURL is the base URL of the key/billing authority.
	BackendURL string
	// InternalSecret authenticates calls to the authority's internal endpoints.
	InternalSecret string

	// RedisConnString enables the redis-backed KV cache and usage queue when set.
	RedisConnString string

	// RelayProxy optionally routes upstream provider traffic through a proxy.
	RelayProxy string
	// RelayTimeout bounds non-streaming upstream requests, in seconds. 0 means no limit.
	RelayTimeout int

	// Settlement consumer tuning.
	SettleBatchSize     = 100
	SettleFlushInterval = 30 * time.Second
	SettleMaxDeliveries = 3

	// TestProviderEnabled registers the synthetic test provider.
	TestProviderEnabled bool
)

// API key cache TTLs. Revoked and absent keys are billing-sensitive and
// cached long; transient authority errors are cached short so a dead
// authority does not lock out valid keys for an hour.
const (
	APIKeyValidTTL    = 600 * time.Second
	APIKeyNegativeTTL = 3600 * time.Second
	APIKeyErrorTTL    = 60 * time.Second

	ModelsListTTL = 300 * time.Second
)

// ProviderConfig describes one upstream provider resolved from the environment.
type ProviderConfig struct {
	Name          string
	BaseURL       string
	APIKey        string
	AllowedModels []string
}

// Load reads configuration from the environment. Call once at startup
// before any other package init that depends on configuration.
func Load() {
	Port = envString("PORT", Port)
	DebugEnabled = envBool("DEBUG", false)
	BackendURL = strings.TrimSuffix(os.Getenv("BACKEND_URL"), "/")
	InternalSecret = os.Getenv("INTERNAL_SECRET")
	RedisConnString = os.Getenv("REDIS_CONN_STRING")
	RelayProxy = os.Getenv("RELAY_PROXY")
	RelayTimeout = envInt("RELAY_TIMEOUT", 0)
	SettleBatchSize = envInt("SETTLE_BATCH_SIZE", 100)
	SettleFlushInterval = time.Duration(envInt("SETTLE_FLUSH_SECONDS", 30)) * time.Second
	SettleMaxDeliveries = envInt("SETTLE_MAX_DELIVERIES", 3)
	TestProviderEnabled = envBool("TEST_PROVIDER_ENABLED", false)
}

// Providers returns the upstream providers that have credentials configured.
func Providers() []ProviderConfig {
	var out []ProviderConfig
	for _, p := range []struct {
		name        string
		defaultBase string
	}{
		{"deepseek", "https://api.deepseek.com"},
		{"moonshot", "https://api.moonshot.cn/v1"},
		{"zai", "https://api.z.ai/api/paas/v4"},
	} {
		upper := strings.ToUpper(p.name)
		apiKey := os.Getenv(upper + "_API_KEY")
		if apiKey == "" {
			continue
		}
		out = append(out, ProviderConfig{
			Name:          p.name,
			BaseURL:       envString(upper+"_BASE_URL", p.defaultBase),
			APIKey:        apiKey,
			AllowedModels: splitModels(os.Getenv(upper + "_ALLOWED_MODELS")),
		})
	}
	return out
}

// TestProviderAllowedModels returns the allow-list for the synthetic provider.
func TestProviderAllowedModels() []string {
	return splitModels(os.Getenv("TEST_ALLOWED_MODELS"))
}

func splitModels(raw string) []string {
	if raw == "" {
		return nil
	}
	var models []string
	for _, m := range strings.Split(raw, ",") {
		if m = strings.TrimSpace(m); m != "" {
			models = append(models, m)
		}
	}
	return models
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
