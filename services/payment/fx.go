package payment

import (
	"taskmarket-ledger/pkg/config"
	"taskmarket-ledger/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("payment.service",
	fx.Provide(
		fx.Annotate(NewHTTPProvider, fx.As(new(Provider))),
		NewService,
	),
	fx.Invoke(migrate),
)

var HTTP = fx.Module("payment.http",
	fx.Provide(NewHandler),
	fx.Invoke(registerRoutes),
)

var Worker = fx.Module("payment.worker",
	fx.Invoke(registerTasks),
)

func registerTasks(mux *asynq.ServeMux, s *Service) {
	mux.HandleFunc(taskname.DepositReconcile, s.HandleReconcileTask)
}

func migrate(cfg *config.Config, db *gorm.DB) error {
	if !cfg.Database.AutoMigrate {
		return nil
	}
	return db.AutoMigrate(&PaymentLog{})
}
