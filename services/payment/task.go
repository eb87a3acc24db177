package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"taskmarket-ledger/pkg/logger"
	"taskmarket-ledger/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

type ReconcilePayload struct {
	TransactionID string `json:"transaction_id"`
	ProviderTxID  string `json:"provider_tx_id"`
}

// NewReconcileTask keys the task on the transaction so repeated webhook
// deliveries schedule one reconcile.
func NewReconcileTask(transactionID, providerTxID string) (*asynq.Task, error) {
	payload, err := json.Marshal(ReconcilePayload{TransactionID: transactionID, ProviderTxID: providerTxID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskname.DepositReconcile, payload,
		asynq.Queue(taskname.QueueCritical),
		asynq.TaskID("reconcile:"+transactionID),
		asynq.MaxRetry(10),
	), nil
}

func (s *Service) scheduleReconcile(ctx context.Context, transactionID, providerTxID string) {
	if s.enqueuer == nil {
		return
	}
	t, err := NewReconcileTask(transactionID, providerTxID)
	if err == nil {
		_, err = s.enqueuer.Enqueue(ctx, t, asynq.ProcessIn(s.reconcileDelay))
	}
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return
	}
	if err != nil {
		logger.FromContext(ctx).Error("failed to schedule deposit reconcile",
			zap.String("transaction_id", transactionID), zap.Error(err))
	}
}

// HandleReconcileTask consumes payment:deposit:reconcile on the worker.
func (s *Service) HandleReconcileTask(ctx context.Context, t *asynq.Task) error {
	var p ReconcilePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode %s: %v: %w", t.Type(), err, asynq.SkipRetry)
	}

	outcome, err := s.Reconcile(ctx, p.TransactionID, p.ProviderTxID)
	if err != nil {
		return err
	}
	logger.FromContext(ctx).Info("deposit reconciled",
		zap.String("transaction_id", p.TransactionID),
		zap.String("outcome", string(outcome)),
	)
	return nil
}
