package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"taskmarket-ledger/pkg/config"
	"taskmarket-ledger/pkg/db"
	"taskmarket-ledger/pkg/gen"
	"taskmarket-ledger/pkg/logger"
	"taskmarket-ledger/pkg/otelcol"
	"taskmarket-ledger/pkg/profiling"
	"taskmarket-ledger/pkg/redis"
	"taskmarket-ledger/pkg/task"
	"taskmarket-ledger/services/ledger"
	"taskmarket-ledger/services/payment"
	"taskmarket-ledger/services/settings"
	"taskmarket-ledger/services/withdrawal"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		otelcol.Module,
		profiling.Module,
		db.Module,
		redis.Module,
		gen.Module,
		task.Client,
		task.Server,

		ledger.Module,
		ledger.Worker,
		settings.Module,
		payment.Module,
		payment.Worker,
		withdrawal.Module,
		withdrawal.Worker,

		fx.WithLogger(func() fxevent.Logger { return fxevent.NopLogger }),
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	fx.New(opts...).Run()
}
