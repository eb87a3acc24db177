package ledger

import (
	"context"
	"time"

	"taskmarket-ledger/pkg/db/option"
	"taskmarket-ledger/pkg/errutil"
	"taskmarket-ledger/pkg/logger"
	"taskmarket-ledger/pkg/task"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// UnitOfWork runs fn inside one database transaction. Every balance
// mutation happens through the *Tx handed to fn, so a status flip and its
// balance delta commit or roll back together.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) error
}

// Tx is a Store bound to an open unit of work plus the operations that are
// only legal inside one.
type Tx struct {
	*Store
	hooks    *[]func(context.Context)
	enqueuer task.Enqueuer
}

type unitOfWork struct {
	store    *Store
	enqueuer task.Enqueuer
}

type UnitOfWorkParams struct {
	fx.In
	Store    *Store
	Enqueuer task.Enqueuer `optional:"true"`
}

func NewUnitOfWork(p UnitOfWorkParams) UnitOfWork {
	return &unitOfWork{store: p.Store, enqueuer: p.Enqueuer}
}

func (u *unitOfWork) Do(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) error {
	var hooks []func(context.Context)

	err := u.store.db.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
		return fn(ctx, &Tx{Store: u.store.bind(gtx), hooks: &hooks, enqueuer: u.enqueuer})
	})
	if err != nil {
		return err
	}

	for _, h := range hooks {
		h(ctx)
	}
	return nil
}

// DB exposes the open database transaction so sibling stores can join it.
func (tx *Tx) DB() *gorm.DB {
	return tx.db
}

// AfterCommit registers fn to run once the unit commits. It never runs on
// rollback.
func (tx *Tx) AfterCommit(fn func(ctx context.Context)) {
	*tx.hooks = append(*tx.hooks, fn)
}

// LockAccount reads the account row with SELECT ... FOR UPDATE.
func (tx *Tx) LockAccount(ctx context.Context, userID string) (*Account, error) {
	acc, err := tx.accounts.FindOne(ctx, &Account{ID: userID}, option.WithLockingUpdate())
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return nil, errutil.NotFound("account not found", nil)
	}
	return acc, nil
}

// LockTransaction reads the transaction row with SELECT ... FOR UPDATE.
func (tx *Tx) LockTransaction(ctx context.Context, id string) (*Transaction, error) {
	t, err := tx.transactions.FindOne(ctx, &Transaction{ID: id}, option.WithLockingUpdate())
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, errutil.NotFound("transaction not found", nil)
	}
	return t, nil
}

// IncrementBalance adds delta to the wallet. Debits are conditional on
// wallet_balance >= -delta, so the balance can never go negative no matter
// how callers interleave.
func (tx *Tx) IncrementBalance(ctx context.Context, userID string, delta int64) error {
	if delta == 0 {
		return nil
	}

	q := tx.db.WithContext(ctx).Model(&Account{}).Where("id = ?", userID)
	if delta < 0 {
		q = q.Where("wallet_balance >= ?", -delta)
	}

	res := q.Updates(map[string]any{
		"wallet_balance": gorm.Expr("wallet_balance + ?", delta),
		"updated_at":     time.Now(),
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}

	if _, err := tx.GetAccount(ctx, userID); err != nil {
		return err
	}
	return errutil.InsufficientBalance("insufficient balance", ErrInsufficientBalance)
}

func (tx *Tx) LinkCampaign(ctx context.Context, transactionID, campaignID string) error {
	return tx.transactions.Update(ctx, transactionID, map[string]any{"campaign_id": campaignID})
}

// Settle finalizes a pending transaction. Approval flips the status and
// applies BalanceEffect in this unit; rejection only flips the status.
// Settling an already settled transaction fails with Conflict wrapping
// ErrTransactionSettled and changes nothing.
func (tx *Tx) Settle(ctx context.Context, id string, approve bool) (*Transaction, error) {
	if !approve {
		t, err := tx.setStatus(ctx, id, StatusRejected)
		if err != nil {
			return t, err
		}
		tx.AfterCommit(func(context.Context) { observeSettlement(t) })
		return t, nil
	}

	t, err := tx.setStatus(ctx, id, StatusApproved)
	if err != nil {
		return t, err
	}

	if err := tx.IncrementBalance(ctx, t.UserID, t.BalanceEffect()); err != nil {
		return nil, err
	}

	tx.AfterCommit(func(ctx context.Context) {
		observeSettlement(t)
		logger.FromContext(ctx).Info("transaction settled",
			zap.String("transaction_id", t.ID),
			zap.String("user_id", t.UserID),
			zap.String("type", string(t.Type)),
			zap.Int64("delta", t.BalanceEffect()),
		)
	})
	tx.publishApproved(t)

	return t, nil
}
