package redis

import (
	"context"
	"time"

	"taskmarket-ledger/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("redis",
	fx.Provide(New),
)

const pingAttempts = 5

// New builds the shared client. Reachability is probed on start; an
// unreachable server is logged and the process keeps running.
func New(lc fx.Lifecycle, c *config.Config) *redis.Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:        c.Redis.Addr,
		Password:    c.Redis.Password,
		DB:          c.Redis.DB,
		PoolSize:    c.Redis.PoolSize,
		PoolTimeout: c.Redis.PoolTimeout,
	})

	log := zap.L().With(zap.String("addr", c.Redis.Addr), zap.Int("db", c.Redis.DB))

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := ping(ctx, rdb, 2*time.Second); err != nil {
				log.Error("redis unreachable, cache and queue degraded", zap.Error(err))
				return nil
			}
			log.Info("redis connected", zap.Int("pool_size", c.Redis.PoolSize))
			return nil
		},
		OnStop: func(context.Context) error {
			return rdb.Close()
		},
	})

	return rdb
}

func ping(ctx context.Context, rdb *redis.Client, backoff time.Duration) error {
	var err error
	for attempt := 1; attempt <= pingAttempts; attempt++ {
		if err = rdb.Ping(ctx).Err(); err == nil {
			return nil
		}
		zap.L().Warn("redis not ready", zap.Int("attempt", attempt), zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return err
}
