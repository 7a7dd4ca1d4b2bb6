package logctx

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ctxKey string

const (
	// Keys shared with the HTTP middleware; gin.Context uses the plain string form.
	LoggerKey  ctxKey = "logger"
	TraceIDKey ctxKey = "traceID"
	UserIDKey  ctxKey = "user_id"
)

// FromGin returns a request-scoped logger from gin.Context if present,
// otherwise returns the provided base logger.
func FromGin(c *gin.Context, base *zap.SugaredLogger) *zap.SugaredLogger {
	if c == nil {
		return base
	}
	if l, ok := c.Get(string(LoggerKey)); ok {
		if lg, ok := l.(*zap.SugaredLogger); ok && lg != nil {
			return lg
		}
	}
	return FromCtx(c.Request.Context(), base)
}

// FromCtx returns a logger from context if set, otherwise attempts to enrich
// base with trace_id/user_id from context values.
func FromCtx(ctx context.Context, base *zap.SugaredLogger) *zap.SugaredLogger {
	if ctx == nil {
		return base
	}
	if lg, ok := ctx.Value(LoggerKey).(*zap.SugaredLogger); ok && lg != nil {
		return lg
	}
	var fields []interface{}
	if tid, ok := ctx.Value(TraceIDKey).(string); ok && tid != "" {
		fields = append(fields, "trace_id", tid)
	}
	if uid, ok := ctx.Value(UserIDKey).(string); ok && uid != "" {
		fields = append(fields, "user_id", uid)
	}
	if len(fields) > 0 {
		return base.With(fields...)
	}
	return base
}

// WithLogger stores a request-scoped logger on ctx.
func WithLogger(ctx context.Context, l *zap.SugaredLogger) context.Context {
	return context.WithValue(ctx, LoggerKey, l)
}

// WithTraceID stores the request trace id on ctx.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithUserID stores the authenticated user id on ctx.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// UserID returns the authenticated user id stored by WithUserID.
func UserID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	uid, _ := ctx.Value(UserIDKey).(string)
	return uid
}

// TraceID returns the trace id stored by WithTraceID.
func TraceID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	tid, _ := ctx.Value(TraceIDKey).(string)
	return tid
}
