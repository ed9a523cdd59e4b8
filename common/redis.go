package common

import (
	"context"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
	"github.com/go-redis/redis/v8"

	"github.com/apimirror/gateway/common/config"
	"github.com/apimirror/gateway/common/logger"
)

// RDB is the shared redis client, nil unless RedisEnabled.
var RDB *redis.Client

var redisEnabled bool

// IsRedisEnabled reports whether a redis connection was configured and
// reachable at startup.
func IsRedisEnabled() bool {
	return redisEnabled
}

// SetRedisEnabled overrides the redis flag, for tests.
func SetRedisEnabled(enabled bool) {
	redisEnabled = enabled
}

// SetRedisClient installs a redis client, for tests.
func SetRedisClient(client *redis.Client) {
	RDB = client
	redisEnabled = client != nil
}

// InitRedisClient connects to redis when REDIS_CONN_STRING is set. The
// gateway falls back to in-process storage when redis is unavailable, so
// a missing connection string is not an error.
func InitRedisClient() error {
	if config.RedisConnString == "" {
		logger.Logger.Info("REDIS_CONN_STRING not set, using in-process cache and queue")
		return nil
	}
	opt, err := redis.ParseURL(config.RedisConnString)
	if err != nil {
		return errors.Wrap(err, "parse REDIS_CONN_STRING")
	}
	RDB = redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := RDB.Ping(ctx).Err(); err != nil {
		return errors.Wrap(err, "ping redis")
	}
	redisEnabled = true
	logger.Logger.Info("redis connected", zap.String("addr", opt.Addr))
	return nil
}
