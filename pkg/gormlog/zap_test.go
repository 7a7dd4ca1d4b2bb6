package gormlog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func TestShortCaller(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{in: "", want: ""},
		{in: "/home/ci/scentbox/internal/platform/db/pg.go:38", want: "internal/platform/db/pg.go:38"},
		{in: "/src/scentbox/pkg/config/config.go:12", want: "pkg/config/config.go:12"},
		{in: "/a/b/c/d/e.go:5", want: "c/d/e.go:5"},
		{in: "/x/y.go:1", want: "x/y.go:1"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, shortCaller(tc.in), tc.in)
	}
}

func TestTrace_LevelsAndNotFound(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	lg := New(zap.New(core).Sugar(), WithSlowThreshold(100*time.Millisecond))

	sql := func() (string, int64) { return "SELECT 1", 1 }

	lg.Trace(context.Background(), time.Now(), sql, gorm.ErrRecordNotFound)
	require.Equal(t, 0, logs.Len())

	lg.Trace(context.Background(), time.Now(), sql, errors.New("boom"))
	require.Equal(t, 1, logs.FilterMessage("gorm_trace").Len())

	lg.Trace(context.Background(), time.Now().Add(-time.Second), sql, nil)
	require.Equal(t, 1, logs.FilterMessage("gorm_slow").Len())

	silent := lg.LogMode(gormlogger.Silent)
	silent.Trace(context.Background(), time.Now(), sql, errors.New("ignored"))
	require.Equal(t, 2, logs.Len())
}
