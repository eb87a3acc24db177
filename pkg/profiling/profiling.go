package profiling

import (
	"context"

	"taskmarket-ledger/pkg/config"

	"github.com/grafana/pyroscope-go"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module starts continuous profiling when PYROSCOPE.ADDR is set.
var Module = fx.Module("profiling", fx.Invoke(Start))

func profilerConfig(c *config.Config) pyroscope.Config {
	return pyroscope.Config{
		ApplicationName: c.AppName,
		ServerAddress:   c.Pyroscope.Addr,
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
			pyroscope.ProfileGoroutines,
			// row locks and the unit of work show up as mutex/block contention
			pyroscope.ProfileMutexDuration,
			pyroscope.ProfileBlockDuration,
		},
		Tags: map[string]string{
			"service_name": c.AppName,
			"env":          c.AppEnv,
			"version":      c.AppVersion,
		},
	}
}

func Start(lc fx.Lifecycle, c *config.Config) (*pyroscope.Profiler, error) {
	if c.Pyroscope.Addr == "" {
		return nil, nil
	}

	profiler, err := pyroscope.Start(profilerConfig(c))
	if err != nil {
		return nil, err
	}
	zap.L().Info("pyroscope profiling started", zap.String("addr", c.Pyroscope.Addr))

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return profiler.Stop()
		},
	})
	return profiler, nil
}
