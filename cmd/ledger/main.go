package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"taskmarket-ledger/pkg/config"
	"taskmarket-ledger/pkg/db"
	"taskmarket-ledger/pkg/gen"
	"taskmarket-ledger/pkg/health"
	"taskmarket-ledger/pkg/httpapi"
	"taskmarket-ledger/pkg/logger"
	"taskmarket-ledger/pkg/otelcol"
	"taskmarket-ledger/pkg/profiling"
	"taskmarket-ledger/pkg/redis"
	"taskmarket-ledger/pkg/sequence"
	"taskmarket-ledger/pkg/server"
	"taskmarket-ledger/pkg/task"
	"taskmarket-ledger/services/campaign"
	"taskmarket-ledger/services/ledger"
	"taskmarket-ledger/services/payment"
	"taskmarket-ledger/services/settings"
	"taskmarket-ledger/services/submission"
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
		task.Client,
		sequence.Module,
		gen.Module,
		health.Module,
		httpapi.Module,

		ledger.Module,
		ledger.HTTP,
		ledger.GRPC,
		settings.Module,
		settings.HTTP,
		campaign.Module,
		campaign.HTTP,
		submission.Module,
		submission.HTTP,
		payment.Module,
		payment.HTTP,
		withdrawal.Module,
		withdrawal.HTTP,

		server.TLS,
		server.ProvideGRPCServer,
		server.ProvideHTTPServer,
		fx.WithLogger(func() fxevent.Logger { return fxevent.NopLogger }),
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	fx.New(opts...).Run()
}
