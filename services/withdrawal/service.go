package withdrawal

import (
	"context"
	"errors"
	"fmt"

	"taskmarket-ledger/pkg/auth"
	"taskmarket-ledger/pkg/errutil"
	"taskmarket-ledger/pkg/logger"
	"taskmarket-ledger/pkg/validation"
	"taskmarket-ledger/services/ledger"
	"taskmarket-ledger/services/settings"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrNotWithdrawal = errors.New("transaction is not a withdrawal")

// Service handles the two phases of a withdrawal: the user's request,
// which only records a pending transaction, and the external settlement
// that debits the wallet.
type Service struct {
	ledger   *ledger.Store
	uow      ledger.UnitOfWork
	settings settings.Reader
}

type ServiceParams struct {
	fx.In

	Ledger   *ledger.Store
	UoW      ledger.UnitOfWork
	Settings settings.Reader
}

func NewService(p ServiceParams) *Service {
	return &Service{ledger: p.Ledger, uow: p.UoW, settings: p.Settings}
}

func amountDetail(msg string) errutil.Option {
	return errutil.WithDetails(errutil.Detail{Field: "amount", Message: msg})
}

// RequestWithdrawal records a pending withdrawal. The wallet must keep
// minimum_withdrawal on top of the requested amount.
func (s *Service) RequestWithdrawal(ctx context.Context, actor *auth.Actor, req WithdrawalRequest) (*WithdrawalResponse, error) {
	if err := auth.Require(actor); err != nil {
		return nil, err
	}
	if !actor.KYCVerified {
		return nil, errutil.Forbidden("identity verification is required before withdrawing", nil)
	}
	if err := validation.Struct(&req); err != nil {
		return nil, err
	}

	ps, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	if req.Amount < ps.MinimumWithdrawal {
		return nil, errutil.BadRequest("amount is below the minimum withdrawal", nil,
			amountDetail(fmt.Sprintf("amount must be at least %d", ps.MinimumWithdrawal)))
	}
	if req.Amount > ps.MaximumWithdrawal {
		return nil, errutil.BadRequest("amount is above the maximum withdrawal", nil,
			amountDetail(fmt.Sprintf("amount must be at most %d", ps.MaximumWithdrawal)))
	}

	acc, err := s.ledger.GetAccount(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	if acc.WalletBalance < ps.MinimumWithdrawal+req.Amount {
		return nil, errutil.InsufficientBalance("insufficient balance", ledger.ErrInsufficientBalance,
			amountDetail(fmt.Sprintf("wallet must hold at least %d to withdraw %d", ps.MinimumWithdrawal+req.Amount, req.Amount)))
	}

	t, err := s.ledger.CreateTransaction(ctx, ledger.CreateTransactionParams{
		UserID:      actor.ID,
		Amount:      req.Amount,
		Type:        ledger.TypeWithdrawal,
		Description: fmt.Sprintf("Withdrawal request (fee %d)", ps.WithdrawalFee),
	})
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Info("withdrawal requested",
		zap.String("transaction_id", t.ID),
		zap.String("user_id", actor.ID),
		zap.Int64("amount", req.Amount),
	)
	return &WithdrawalResponse{
		Transaction:   t,
		WithdrawalFee: ps.WithdrawalFee,
		NetPayout:     req.Amount - ps.WithdrawalFee,
	}, nil
}

// SettleWithdrawal is the external settlement trigger. Approval debits the
// wallet and approves the transaction in one unit; a wallet that can no
// longer cover the amount gets the withdrawal rejected.
func (s *Service) SettleWithdrawal(ctx context.Context, req SettleRequest) (*ledger.Transaction, error) {
	if err := validation.Struct(&req); err != nil {
		return nil, err
	}

	t, err := s.ledger.GetTransactionByID(ctx, req.TransactionID)
	if err != nil {
		return nil, err
	}
	if t.Type != ledger.TypeWithdrawal {
		return nil, errutil.BadRequest("transaction is not a withdrawal", ErrNotWithdrawal)
	}
	if !t.IsPending() {
		return nil, errutil.Conflict("transaction is already "+string(t.Status), ledger.ErrTransactionSettled)
	}

	log := logger.FromContext(ctx).With(zap.String("transaction_id", t.ID), zap.String("note", req.Note))

	if !req.Approve {
		out, err := s.ledger.UpdateTransactionStatus(ctx, t.ID, ledger.StatusRejected)
		if err != nil {
			return nil, err
		}
		log.Info("withdrawal rejected")
		return out, nil
	}

	var out *ledger.Transaction
	err = s.uow.Do(ctx, func(ctx context.Context, tx *ledger.Tx) error {
		var err error
		out, err = tx.Settle(ctx, t.ID, true)
		return err
	})
	if errors.Is(err, ledger.ErrInsufficientBalance) {
		if _, rerr := s.ledger.UpdateTransactionStatus(ctx, t.ID, ledger.StatusRejected); rerr != nil {
			log.Error("failed to reject unfunded withdrawal", zap.Error(rerr))
		}
		log.Warn("withdrawal rejected for insufficient balance")
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	log.Info("withdrawal settled", zap.Int64("amount", out.Amount))
	return out, nil
}
