package ledger

import (
	"context"
	"time"

	"taskmarket-ledger/pkg/health"

	"go.uber.org/fx"
	"go.uber.org/zap"
	grpchealth "google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

const ServiceName = "taskmarket.ledger"

const probeInterval = 10 * time.Second

// registerHealthProbe keeps the grpc.health.v1 status of the ledger in step
// with the database: SERVING while it answers, NOT_SERVING otherwise.
func registerHealthProbe(lc fx.Lifecycle, hs *grpchealth.Server, checker health.HealthService) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	probe := func() {
		status := grpc_health_v1.HealthCheckResponse_SERVING
		if res := checker.Check(ctx); res.Status != health.StatusHealthy {
			status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
			zap.L().Warn("ledger not ready", zap.String("reason", res.Message))
		}
		hs.SetServingStatus(ServiceName, status)
		hs.SetServingStatus("", status)
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			probe()
			go func() {
				defer close(done)
				ticker := time.NewTicker(probeInterval)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						probe()
					}
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			<-done
			return nil
		},
	})
}
