package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Ping answers liveness probes behind authentication, so clients can
// check both reachability and their credentials in one call.
func Ping(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}
