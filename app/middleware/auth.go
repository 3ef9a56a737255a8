package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"slumber/pkg/logger"

	"github.com/gin-gonic/gin"
)

// BearerAuth checks the Authorization header against token. An empty token
// disables the check.
func BearerAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}

		presented := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			logger.WarnCtx(c.Request.Context(), "unauthorized request to %s from %s", c.FullPath(), c.ClientIP())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		c.Next()
	}
}
