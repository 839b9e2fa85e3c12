package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/summithq/summithq-security/internal/requestmeta"
)

// RequestLogger logs each request and stashes caller metadata (client IP,
// user agent) into the request context for the audit trail.
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		ctx := requestmeta.WithClientIP(c.Request.Context(), c.ClientIP())
		ctx = requestmeta.WithUserAgent(ctx, c.Request.UserAgent())
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		log := logger
		if log == nil {
			log = zap.L()
		}
		log.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
