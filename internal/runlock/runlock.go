package runlock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/carebase/planmart/internal/config"
)

const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// RunLock serializes pipeline runs across replicas. The coordinator already
// guarantees at-most-one run in-process; the lock extends that to deployments
// where several loaders share one warehouse.
type RunLock interface {
	TryAcquire(ctx context.Context) (token string, ok bool, err error)
	Release(ctx context.Context, token string) error
}

type noopLock struct{}

func (noopLock) TryAcquire(context.Context) (string, bool, error) { return "", true, nil }
func (noopLock) Release(context.Context, string) error            { return nil }

type redisLock struct {
	client *redis.Client
	script *redis.Script
	key    string
	ttl    time.Duration
}

// New returns the configured run lock. With RUN_LOCK_ENABLED=false every
// acquire succeeds locally.
func New(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (RunLock, error) {
	if !cfg.RunLock.Enabled {
		return noopLock{}, nil
	}
	if cfg.RunLock.Key == "" {
		return nil, errors.New("run lock key is empty")
	}
	if cfg.RunLock.TTL <= 0 {
		return nil, errors.New("run lock ttl must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RunLock.RedisAddr,
		Password: cfg.RunLock.RedisPassword,
		DB:       cfg.RunLock.RedisDB,
	})

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})

	log.Info("runlock.enabled",
		zap.String("key", cfg.RunLock.Key),
		zap.Duration("ttl", cfg.RunLock.TTL),
	)

	return &redisLock{
		client: client,
		script: redis.NewScript(releaseScript),
		key:    cfg.RunLock.Key,
		ttl:    cfg.RunLock.TTL,
	}, nil
}

func (l *redisLock) TryAcquire(ctx context.Context) (string, bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Release only deletes the key when the token still matches, so a lock that
// expired and was re-acquired elsewhere is never stolen back.
func (l *redisLock) Release(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return l.script.Run(ctx, l.client, []string{l.key}, token).Err()
}

var Module = fx.Module("runlock",
	fx.Provide(New),
)
