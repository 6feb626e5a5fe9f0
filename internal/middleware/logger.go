package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// CallerIDHeader carries the caller identity recorded on generation
// audit rows; logging it here lets request logs join against them.
const CallerIDHeader = "X-Caller-Id"

// RequestLogger returns a Gin middleware that logs one line per request,
// carrying the same caller metadata the generation audit trail stores.
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	log = log.Named("HTTP")
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path += "?" + raw
		}

		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
			zap.String("user_agent", c.Request.UserAgent()),
		}
		if callerID := c.GetHeader(CallerIDHeader); callerID != "" {
			fields = append(fields, zap.String("caller_id", callerID))
		}

		if len(c.Errors) > 0 {
			log.Warn("request", append(fields, zap.String("errors", c.Errors.String()))...)
			return
		}
		log.Info("request", fields...)
	}
}
