package lock

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestLocalLocker(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewLocalLocker()
	l.nowFn = func() time.Time { return now }

	release, err := l.Acquire(ctx, "scan", time.Minute)
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "scan", time.Minute)
	require.ErrorIs(t, err, ErrNotAcquired)

	_, err = l.Acquire(ctx, "other", time.Minute)
	require.NoError(t, err)

	require.NoError(t, release(ctx))
	release2, err := l.Acquire(ctx, "scan", time.Minute)
	require.NoError(t, err)

	// an expired holder's release must not drop the new holder
	now = now.Add(2 * time.Minute)
	release3, err := l.Acquire(ctx, "scan", time.Minute)
	require.NoError(t, err)
	require.NoError(t, release2(ctx))
	_, err = l.Acquire(ctx, "scan", time.Minute)
	require.ErrorIs(t, err, ErrNotAcquired)
	require.NoError(t, release3(ctx))
}

func TestRedisLocker(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping redis-backed test in short mode")
	}
	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("docker unavailable: %v", err)
	}
	if err := pool.Client.Ping(); err != nil {
		t.Skipf("docker unavailable: %v", err)
	}
	resource, err := pool.Run("redis", "7-alpine", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Purge(resource) })

	client := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("localhost:%s", resource.GetPort("6379/tcp"))})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, pool.Retry(func() error { return client.Ping(context.Background()).Err() }))

	ctx := context.Background()
	l := NewRedisLocker(client, "test:")

	release, err := l.Acquire(ctx, "scan", time.Minute)
	require.NoError(t, err)
	_, err = l.Acquire(ctx, "scan", time.Minute)
	require.ErrorIs(t, err, ErrNotAcquired)

	require.NoError(t, release(ctx))
	release, err = l.Acquire(ctx, "scan", time.Minute)
	require.NoError(t, err)
	require.NoError(t, release(ctx))
}
