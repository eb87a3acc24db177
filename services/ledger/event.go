package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"taskmarket-ledger/pkg/logger"
	"taskmarket-ledger/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

type TransactionApprovedPayload struct {
	TransactionID string          `json:"transaction_id"`
	UserID        string          `json:"user_id"`
	Type          TransactionType `json:"type"`
	Amount        int64           `json:"amount"`
	Delta         int64           `json:"delta"`
	CampaignID    *string         `json:"campaign_id,omitempty"`
	ApprovedAt    time.Time       `json:"approved_at"`
}

func NewTransactionApprovedTask(t *Transaction) (*asynq.Task, error) {
	payload, err := json.Marshal(TransactionApprovedPayload{
		TransactionID: t.ID,
		UserID:        t.UserID,
		Type:          t.Type,
		Amount:        t.Amount,
		Delta:         t.BalanceEffect(),
		CampaignID:    t.CampaignID,
		ApprovedAt:    t.UpdatedAt,
	})
	if err != nil {
		return nil, err
	}
	// The transaction id makes redelivery of the same approval a no-op.
	return asynq.NewTask(taskname.TransactionApproved, payload,
		asynq.Queue(taskname.QueueDefault),
		asynq.TaskID("approved:"+t.ID),
		asynq.MaxRetry(5),
	), nil
}

// publishApproved enqueues the approval event once the unit commits. The
// event is informational; failing to enqueue never undoes a settlement.
func (tx *Tx) publishApproved(t *Transaction) {
	if tx.enqueuer == nil {
		return
	}
	enqueuer := tx.enqueuer
	tx.AfterCommit(func(ctx context.Context) {
		task, err := NewTransactionApprovedTask(t)
		if err == nil {
			_, err = enqueuer.Enqueue(ctx, task)
		}
		if err != nil {
			logger.FromContext(ctx).Warn("failed to publish transaction approval",
				zap.String("transaction_id", t.ID), zap.Error(err))
		}
	})
}

// HandleTransactionApproved consumes ledger:transaction:approved on the
// worker and writes the audit line downstream consumers key off.
func HandleTransactionApproved(ctx context.Context, t *asynq.Task) error {
	var p TransactionApprovedPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode %s: %v: %w", t.Type(), err, asynq.SkipRetry)
	}

	eventsConsumed.WithLabelValues(string(p.Type)).Inc()
	logger.FromContext(ctx).Info("ledger audit",
		zap.String("transaction_id", p.TransactionID),
		zap.String("user_id", p.UserID),
		zap.String("type", string(p.Type)),
		zap.Int64("amount", p.Amount),
		zap.Int64("delta", p.Delta),
		zap.Time("approved_at", p.ApprovedAt),
	)
	return nil
}
