package task

import (
	"context"

	"taskmarket-ledger/pkg/config"
	"taskmarket-ledger/pkg/taskname"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Client shares the process redis connection with asynq.
var Client = fx.Module("asynq:client",
	fx.Provide(registerClient, NewEnqueuer),
)

func registerClient(lc fx.Lifecycle, rdb *redis.Client) *asynq.Client {
	client := asynq.NewClientFromRedisClient(rdb)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})

	return client
}

// Server runs the asynq consumer against the mux the service Worker modules
// register their handlers on.
var Server = fx.Module("asynq:server",
	fx.Provide(asynq.NewServeMux),
	fx.Invoke(runServer),
)

func serverConfig(cfg *config.Config) asynq.Config {
	concurrency := cfg.Worker.Concurrency
	if concurrency <= 0 {
		concurrency = 10
	}
	return asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			taskname.QueueCritical: 6,
			taskname.QueueDefault:  3,
			taskname.QueueLow:      1,
		},
		ShutdownTimeout: cfg.Worker.ShutdownTimeout,
		ErrorHandler:    asynq.ErrorHandlerFunc(reportFailure),
	}
}

// reportFailure only escalates to error level once asynq has given up on the task.
func reportFailure(ctx context.Context, t *asynq.Task, err error) {
	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	fields := []zap.Field{
		zap.String("task_type", t.Type()),
		zap.Int("retried", retried),
		zap.Error(err),
	}
	if id, ok := asynq.GetTaskID(ctx); ok {
		fields = append(fields, zap.String("task_id", id))
	}
	if retried >= maxRetry {
		zap.L().Error("task exhausted its retries", fields...)
		return
	}
	zap.L().Warn("task failed, retry scheduled", fields...)
}

func runServer(lc fx.Lifecycle, cfg *config.Config, mux *asynq.ServeMux) {
	srv := asynq.NewServer(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, serverConfig(cfg))

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			if err := srv.Start(mux); err != nil {
				return err
			}
			zap.L().Info("worker started",
				zap.String("redis", cfg.Redis.Addr),
				zap.Int("concurrency", cfg.Worker.Concurrency))
			return nil
		},
		OnStop: func(context.Context) error {
			srv.Shutdown()
			return nil
		},
	})
}
