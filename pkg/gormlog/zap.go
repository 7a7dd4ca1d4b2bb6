package gormlog

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/gorm/utils"

	"github.com/fatflowers/scentbox/pkg/logctx"
)

// ZapLogger implements gorm.io/gorm/logger.Interface on top of zap. Every line
// carries trace_id/user_id from ctx via logctx.FromCtx.
type ZapLogger struct {
	base   *zap.SugaredLogger
	config gormlogger.Config
}

type Option func(*gormlogger.Config)

// WithSlowThreshold overrides the slow query threshold (default 500ms).
func WithSlowThreshold(d time.Duration) Option {
	return func(c *gormlogger.Config) { c.SlowThreshold = d }
}

// WithLogLevel overrides the initial level (default Warn).
func WithLogLevel(level gormlogger.LogLevel) Option {
	return func(c *gormlogger.Config) { c.LogLevel = level }
}

func New(base *zap.SugaredLogger, opts ...Option) *ZapLogger {
	cfg := gormlogger.Config{
		SlowThreshold:             500 * time.Millisecond,
		LogLevel:                  gormlogger.Warn,
		IgnoreRecordNotFoundError: true,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &ZapLogger{base: base.With("component", "gorm"), config: cfg}
}

func (z *ZapLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	cfg := z.config
	cfg.LogLevel = level
	return &ZapLogger{base: z.base, config: cfg}
}

func (z *ZapLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if z.config.LogLevel >= gormlogger.Info {
		logctx.FromCtx(ctx, z.base).Infow(msg, "args", data)
	}
}

func (z *ZapLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if z.config.LogLevel >= gormlogger.Warn {
		logctx.FromCtx(ctx, z.base).Warnw(msg, "args", data)
	}
}

func (z *ZapLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if z.config.LogLevel >= gormlogger.Error {
		logctx.FromCtx(ctx, z.base).Errorw(msg, "args", data)
	}
}

func (z *ZapLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if z.config.LogLevel == gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	lg := logctx.FromCtx(ctx, z.base)

	switch {
	case err != nil && z.config.LogLevel >= gormlogger.Error &&
		!(z.config.IgnoreRecordNotFoundError && errors.Is(err, gorm.ErrRecordNotFound)):
		sql, rows := fc()
		lg.Errorw("gorm_trace", z.fields(sql, rows, elapsed, "err", err)...)
	case z.config.SlowThreshold > 0 && elapsed > z.config.SlowThreshold && z.config.LogLevel >= gormlogger.Warn:
		sql, rows := fc()
		lg.Warnw("gorm_slow", z.fields(sql, rows, elapsed, "threshold_ms", z.config.SlowThreshold.Milliseconds())...)
	case z.config.LogLevel >= gormlogger.Info:
		sql, rows := fc()
		lg.Debugw("gorm", z.fields(sql, rows, elapsed)...)
	}
}

func (z *ZapLogger) fields(sql string, rows int64, elapsed time.Duration, extra ...interface{}) []interface{} {
	fields := []interface{}{
		"sql", sql,
		"rows", rows,
		"elapsed_ms", elapsed.Milliseconds(),
		"caller", shortCaller(utils.FileWithLineNum()),
	}
	return append(fields, extra...)
}

// shortCaller trims absolute build paths to repo-relative where possible:
// /home/ci/scentbox/internal/platform/db/postgres.go:38 -> internal/platform/db/postgres.go:38
func shortCaller(s string) string {
	if s == "" {
		return s
	}
	pathPart, linePart := s, ""
	if idx := strings.LastIndex(s, ":"); idx >= 0 {
		pathPart, linePart = s[:idx], s[idx:]
	}
	p := filepath.ToSlash(pathPart)
	for _, marker := range []string{"/internal/", "/pkg/", "/cmd/"} {
		if i := strings.Index(p, marker); i >= 0 {
			return p[i+1:] + linePart
		}
	}
	parts := strings.Split(strings.TrimPrefix(p, "/"), "/")
	if n := len(parts); n > 3 {
		parts = parts[n-3:]
	}
	return strings.Join(parts, "/") + linePart
}
