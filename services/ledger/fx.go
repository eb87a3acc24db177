package ledger

import (
	"taskmarket-ledger/pkg/config"
	"taskmarket-ledger/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("ledger.service",
	fx.Provide(NewStore, NewUnitOfWork),
	fx.Invoke(migrate),
)

var HTTP = fx.Module("ledger.http",
	fx.Provide(NewHandler),
	fx.Invoke(registerRoutes),
)

var GRPC = fx.Module("ledger.grpc",
	fx.Invoke(registerHealthProbe),
)

var Worker = fx.Module("ledger.worker",
	fx.Invoke(func(mux *asynq.ServeMux) {
		mux.HandleFunc(taskname.TransactionApproved, HandleTransactionApproved)
	}),
)

func migrate(cfg *config.Config, db *gorm.DB) error {
	if !cfg.Database.AutoMigrate {
		return nil
	}
	return db.AutoMigrate(&Account{}, &Transaction{})
}
