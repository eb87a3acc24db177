package withdrawal

import (
	"taskmarket-ledger/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
)

var Module = fx.Module("withdrawal.service",
	fx.Provide(NewService),
)

var HTTP = fx.Module("withdrawal.http",
	fx.Provide(NewHandler),
	fx.Invoke(registerRoutes),
)

var Worker = fx.Module("withdrawal.worker",
	fx.Invoke(func(mux *asynq.ServeMux, s *Service) {
		mux.HandleFunc(taskname.WithdrawalSettle, s.HandleSettleTask)
	}),
)
