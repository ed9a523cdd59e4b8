// Package middleware holds the gin middleware chain: API key
// authentication and shared request plumbing.
package middleware

import (
	"net/http"
	"strings"

	gmw "github.com/Laisky/gin-middlewares/v7"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/apimirror/gateway/common/ctxkey"
	"github.com/apimirror/gateway/common/helper"
	"github.com/apimirror/gateway/model"
)

// TokenAuth authenticates the bearer API key against the cache-aside key
// store and stashes the resolved identity on the gin context. Every
// rejection is a uniform 401; the reason only shows up in logs.
func TokenAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		lg := gmw.GetLogger(c)

		key := strings.TrimPrefix(c.Request.Header.Get("Authorization"), "Bearer ")
		key = strings.TrimSpace(key)
		if key == "" {
			abortUnauthorized(c)
			return
		}

		record, err := model.GetAPIKey(gmw.Ctx(c), key)
		if err != nil {
			lg.Error("api key lookup failed",
				zap.String("key", helper.MaskAPIKey(key)), zap.Error(err))
			abortUnauthorized(c)
			return
		}
		if record == nil || !record.Active {
			lg.Debug("rejected api key",
				zap.String("key", helper.MaskAPIKey(key)))
			abortUnauthorized(c)
			return
		}

		c.Set(ctxkey.UserId, record.UserId)
		c.Set(ctxkey.Purpose, record.Purpose)
		c.Set(ctxkey.TokenKey, key)
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context) {
	c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
	c.Abort()
}
