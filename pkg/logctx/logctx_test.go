package logctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFromCtx_PrefersAttachedLogger(t *testing.T) {
	base := zap.NewNop().Sugar()
	attached := zap.NewNop().Sugar().With("k", "v")

	ctx := WithLogger(context.Background(), attached)
	require.Same(t, attached, FromCtx(ctx, base))
}

func TestFromCtx_FallsBackToBase(t *testing.T) {
	base := zap.NewNop().Sugar()
	require.Same(t, base, FromCtx(context.Background(), base))
}

func TestUserIDAndTraceID(t *testing.T) {
	ctx := WithUserID(WithTraceID(context.Background(), "trace-1"), "user-1")
	require.Equal(t, "user-1", UserID(ctx))
	require.Equal(t, "trace-1", TraceID(ctx))
	require.Empty(t, UserID(context.Background()))
}
