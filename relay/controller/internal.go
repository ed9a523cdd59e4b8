package controller

import (
	"net/http"
	"strings"

	gmw "github.com/Laisky/gin-middlewares/v7"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/apimirror/gateway/common/config"
	"github.com/apimirror/gateway/common/helper"
	"github.com/apimirror/gateway/model"
)

// InvalidateKey handles POST /internal/keys/invalidate, the authority's
// push path for key changes: dropping the cached record makes a
// revocation take effect immediately instead of waiting out the TTL.
// Authenticated with the same internal secret the edge presents to the
// authority.
func InvalidateKey(c *gin.Context) {
	lg := gmw.GetLogger(c)

	presented := strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "))
	if config.InternalSecret == "" || presented != config.InternalSecret {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req struct {
		Key string `json:"key"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid Body"})
		return
	}

	if err := model.InvalidateAPIKey(gmw.Ctx(c), req.Key); err != nil {
		lg.Error("api key cache invalidation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
		return
	}
	lg.Info("api key cache invalidated", zap.String("key", helper.MaskAPIKey(req.Key)))
	c.Status(http.StatusNoContent)
}
