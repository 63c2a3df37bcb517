package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// APIKeyHeader carries the control API key
const APIKeyHeader = "X-Nosleep-Key"

// APIKey validates the control API key from the X-Nosleep-Key header or an
// Authorization Bearer token. An empty key disables the check.
func APIKey(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey == "" {
			c.Next()
			return
		}

		provided := c.GetHeader(APIKeyHeader)
		if provided == "" {
			const bearerPrefix = "Bearer "
			if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, bearerPrefix) {
				provided = strings.TrimPrefix(auth, bearerPrefix)
			}
		}

		if provided == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "API key required",
				"code":  "AUTH_REQUIRED",
			})
			c.Abort()
			return
		}

		if subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Unauthorized",
				"code":  "UNAUTHORIZED",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
