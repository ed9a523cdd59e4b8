// Package router wires the HTTP surface onto a gin engine.
package router

import (
	"net/http"
	"strconv"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"

	"github.com/apimirror/gateway/common/metrics"
	"github.com/apimirror/gateway/middleware"
	"github.com/apimirror/gateway/relay/controller"
)

// SetRouter registers every route. The /v1 surface sits behind API key
// authentication; /internal/health and /metrics do not.
func SetRouter(engine *gin.Engine) {
	engine.Use(cors.Default())
	engine.Use(func(c *gin.Context) {
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.RecordRequest(path, strconv.Itoa(c.Writer.Status()))
	})

	engine.GET("/internal/health", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	engine.GET("/metrics", metrics.Handler())

	// Chat completions stay uncompressed: streamed events must reach the
	// client as they are flushed, and gzip buffers across writes.
	compress := gzip.Gzip(gzip.DefaultCompression)

	v1 := engine.Group("/v1")
	v1.Use(middleware.TokenAuth())
	{
		v1.GET("/ping", compress, controller.Ping)
		v1.POST("/ping", compress, controller.Ping)
		v1.GET("/models", compress, controller.ListModels)
		v1.POST("/chat/completions", controller.RelayChat)
	}

	engine.POST("/internal/keys/invalidate", controller.InvalidateKey)
}
