// Package lock provides the mutual exclusion used around fulfillment scans.
package lock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/scentbox/pkg/config"
	"github.com/fatflowers/scentbox/pkg/tool"
)

// ErrNotAcquired is returned when another holder owns the key.
var ErrNotAcquired = errors.New("lock: already held")

// ReleaseFunc gives up a held lock. Releasing an expired lock is a no-op.
type ReleaseFunc func(ctx context.Context) error

type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (ReleaseFunc, error)
}

// releaseScript deletes the key only when it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements Locker with SET NX PX, shared by every replica.
type RedisLocker struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisLocker(client redis.UniversalClient, prefix string) *RedisLocker {
	trimmed := strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if trimmed == "" {
		trimmed = "scentbox:lock"
	}
	return &RedisLocker{client: client, prefix: trimmed}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (ReleaseFunc, error) {
	fullKey := fmt.Sprintf("%s:%s", l.prefix, key)
	token := tool.GenerateUUIDV7()

	ok, err := l.client.SetNX(ctx, fullKey, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", fullKey, err)
	}
	if !ok {
		return nil, ErrNotAcquired
	}
	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{fullKey}, token).Err(); err != nil {
			return fmt.Errorf("failed to release lock %s: %w", fullKey, err)
		}
		return nil
	}, nil
}

// LocalLocker is an in-process Locker for single-replica deployments and tests.
type LocalLocker struct {
	mu    sync.Mutex
	held  map[string]localEntry
	nowFn func() time.Time
}

type localEntry struct {
	token     string
	expiresAt time.Time
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]localEntry), nowFn: time.Now}
}

func (l *LocalLocker) Acquire(_ context.Context, key string, ttl time.Duration) (ReleaseFunc, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFn()
	if e, ok := l.held[key]; ok && now.Before(e.expiresAt) {
		return nil, ErrNotAcquired
	}
	token := tool.GenerateUUIDV7()
	l.held[key] = localEntry{token: token, expiresAt: now.Add(ttl)}

	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if e, ok := l.held[key]; ok && e.token == token {
			delete(l.held, key)
		}
		return nil
	}, nil
}

// NewLocker uses redis when an address is configured.
func NewLocker(lc fx.Lifecycle, cfg *config.Config, log *zap.SugaredLogger) Locker {
	if cfg.Redis.Addr == "" {
		log.Infow("redis addr is empty; using in-process scan lock")
		return NewLocalLocker()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("failed to ping redis: %w", err)
			}
			return nil
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return NewRedisLocker(client, "scentbox:lock")
}

var Module = fx.Options(
	fx.Provide(NewLocker),
)
