package logger

import (
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fatflowers/scentbox/pkg/config"
)

// New builds the process logger. Dev environments get a console encoder at debug level.
func New(cfg *config.Config) (*zap.SugaredLogger, error) {
	zc := zap.NewProductionConfig()
	if cfg != nil && cfg.Env == config.EnvDev {
		zc = zap.NewDevelopmentConfig()
	}
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zc.EncoderConfig.TimeKey = "time"
	l, err := zc.Build()
	if err != nil {
		return nil, err
	}
	return l.Sugar().With("service", "scentbox"), nil
}

var Module = fx.Options(
	fx.Provide(New),
)
