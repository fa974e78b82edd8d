package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/orbitcrm/backend/internal/reqctx"
)

// Logger returns a zap-based request logging middleware. When an identity is
// bound by the time the handler returns, the log line carries it.
func Logger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		clientIP := c.ClientIP()
		method := c.Request.Method

		c.Next()

		fields := []zap.Field{
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("method", method),
			zap.String("path", path),
			zap.String("client_ip", clientIP),
		}
		if userID, ok := reqctx.UserID(c.Request.Context()); ok {
			fields = append(fields, zap.String("user_id", userID.String()))
		}
		if tenantID, ok := reqctx.TenantID(c.Request.Context()); ok {
			fields = append(fields, zap.String("tenant_id", tenantID.String()))
		}
		logger.Info("request", fields...)
	}
}
