// Package main implements gateway-test, a smoke-test client that runs
// the core request paths against a live gateway: health, ping, the model
// catalog, and one streaming plus one non-streaming chat completion.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	glog "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	_ "github.com/joho/godotenv/autoload"
)

func main() {
	logger, err := glog.NewConsoleWithName("gateway-test", glog.LevelInfo)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %+v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := smokeConfig{
		BaseURL: envDefault("GATEWAY_BASE_URL", "http://localhost:3000"),
		APIKey:  os.Getenv("GATEWAY_API_KEY"),
		Model:   envDefault("GATEWAY_MODEL", "test/test-model"),
	}
	if cfg.APIKey == "" {
		logger.Error("GATEWAY_API_KEY is required")
		os.Exit(1)
	}

	if err := runSmoke(ctx, logger, cfg); err != nil {
		logger.Error("smoke test failed", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("smoke test passed")
}

func envDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
