package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

// quietKey marks requests that are logged at debug level
const quietKey = "quiet_logging"

// Logging logs HTTP requests with structured fields
func Logging(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		// Process request
		c.Next()

		// Log after request
		latency := time.Since(start)
		statusCode := c.Writer.Status()
		errorMessage := c.Errors.ByType(gin.ErrorTypePrivate).String()

		if raw != "" {
			path = path + "?" + raw
		}

		level := slog.LevelInfo
		if c.GetBool(quietKey) && statusCode < 400 {
			level = slog.LevelDebug
		}

		logger.Log(context.Background(), level, "HTTP request",
			"component", "api",
			"request_id", c.GetString(RequestIDKey),
			"method", c.Request.Method,
			"path", path,
			"status", statusCode,
			"latency", latency.String(),
			"client_ip", c.ClientIP(),
			"error", errorMessage,
		)
	}
}

// Quiet demotes successful request logs to debug. Used on polling endpoints
// so a status watcher does not flood the debug log.
func Quiet() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(quietKey, true)
		c.Next()
	}
}
