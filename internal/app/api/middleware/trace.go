package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/fatflowers/scentbox/pkg/logctx"
)

// TraceHeader carries the request trace ID in both directions.
const TraceHeader = "X-Request-ID"

// TraceMiddleware adds a trace ID to the request context.
// It reads X-Request-ID if provided by the client; otherwise generates a UUID.
// The trace ID is stored in both gin.Context (key: "traceID") and the request's context.Context.
func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(TraceHeader)
		if traceID == "" {
			traceID = uuid.New().String()
		}

		c.Set(string(logctx.TraceIDKey), traceID)
		c.Request = c.Request.WithContext(logctx.WithTraceID(c.Request.Context(), traceID))
		c.Next()
	}
}
