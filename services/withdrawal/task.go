package withdrawal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"taskmarket-ledger/pkg/errutil"
	"taskmarket-ledger/pkg/logger"
	"taskmarket-ledger/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// NewSettleTask is what a payout processor enqueues once money has left
// (or failed to leave) the platform.
func NewSettleTask(req SettleRequest) (*asynq.Task, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskname.WithdrawalSettle, payload,
		asynq.Queue(taskname.QueueCritical),
		asynq.TaskID("settle:"+req.TransactionID),
		asynq.MaxRetry(8),
	), nil
}

// HandleSettleTask consumes withdrawal:settle. Client-side failures
// (already settled, not a withdrawal, unfunded) are not retried.
func (s *Service) HandleSettleTask(ctx context.Context, t *asynq.Task) error {
	var p settlePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode %s: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	if p.Approve == nil {
		return fmt.Errorf("%s for %q carries no approve decision: %w", t.Type(), p.TransactionID, asynq.SkipRetry)
	}
	req := SettleRequest{TransactionID: p.TransactionID, Approve: *p.Approve, Note: p.Note}

	out, err := s.SettleWithdrawal(ctx, req)
	if err != nil {
		if errutil.StatusOf(err).HTTPStatus() < http.StatusInternalServerError {
			logger.FromContext(ctx).Warn("withdrawal settlement refused",
				zap.String("transaction_id", req.TransactionID), zap.Error(err))
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}

	logger.FromContext(ctx).Info("withdrawal settlement applied",
		zap.String("transaction_id", out.ID), zap.String("status", string(out.Status)))
	return nil
}
