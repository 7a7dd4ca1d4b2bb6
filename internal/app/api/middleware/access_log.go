package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fatflowers/scentbox/pkg/logctx"
)

// AccessLogMiddleware logs HTTP access using the request-scoped logger
// previously attached by RequestLoggerMiddleware.
func AccessLogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)

		l, ok := c.Get(string(logctx.LoggerKey))
		if !ok {
			return
		}
		log, ok := l.(*zap.SugaredLogger)
		if !ok || log == nil {
			return
		}
		fields := []interface{}{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency_ms", latency.Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if uid := c.GetString(string(logctx.UserIDKey)); uid != "" {
			fields = append(fields, "user_id", uid)
		}
		log.Infow("http_access", fields...)
	}
}
