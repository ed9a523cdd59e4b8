package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gmw "github.com/Laisky/gin-middlewares/v7"
	glog "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/apimirror/gateway/common"
	"github.com/apimirror/gateway/common/client"
	"github.com/apimirror/gateway/common/config"
	"github.com/apimirror/gateway/common/kv"
	"github.com/apimirror/gateway/common/logger"
	"github.com/apimirror/gateway/relay"
	"github.com/apimirror/gateway/relay/billing"
	"github.com/apimirror/gateway/router"
)

func main() {
	_ = godotenv.Load()
	config.Load()
	logger.SetupLogger()

	if config.DebugEnabled {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	client.Init()
	if err := common.InitRedisClient(); err != nil {
		logger.Logger.Fatal("initialize redis", zap.Error(err))
	}
	kv.Init()
	billing.InitQueue()
	relay.InitProviders()

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(gmw.NewLoggerMiddleware(
		gmw.WithLevel(glog.LevelInfo.String()),
		gmw.WithLogger(logger.Logger.Named("gin")),
	))
	router.SetRouter(engine)

	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		billing.RunSettlementConsumer(consumerCtx, logger.Logger.Named("settlement"))
	}()

	srv := &http.Server{
		Addr:    ":" + config.Port,
		Handler: engine,
	}
	go func() {
		logger.Logger.Info("gateway listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Logger.Error("http shutdown failed", zap.Error(err))
	}

	// Stop the consumer after the server so in-flight requests can still
	// enqueue usage; the consumer flushes its last batch before exiting.
	stopConsumer()
	select {
	case <-consumerDone:
	case <-time.After(35 * time.Second):
		logger.Logger.Error("settlement consumer did not drain in time")
	}
	logger.Logger.Info("gateway stopped")
}
