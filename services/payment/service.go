package payment

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"taskmarket-ledger/pkg/auth"
	"taskmarket-ledger/pkg/config"
	"taskmarket-ledger/pkg/errutil"
	"taskmarket-ledger/pkg/logger"
	"taskmarket-ledger/pkg/repository"
	"taskmarket-ledger/pkg/task"
	"taskmarket-ledger/pkg/validation"
	"taskmarket-ledger/services/ledger"
	"taskmarket-ledger/services/settings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrStillProcessing is returned by Reconcile while the provider reports the
// charge as not yet final.
var ErrStillProcessing = errors.New("payment still processing at provider")

// Service is the payment reconciliation gateway. Deposits are created
// pending and only a provider-verified charge approves them.
type Service struct {
	ledger   *ledger.Store
	uow      ledger.UnitOfWork
	settings settings.Reader
	provider Provider
	enqueuer task.Enqueuer
	logs     repository.Repository[PaymentLog]

	webhookHash    string
	currency       string
	reconcileDelay time.Duration
}

type ServiceParams struct {
	fx.In

	Config   *config.Config
	DB       *gorm.DB
	Ledger   *ledger.Store
	UoW      ledger.UnitOfWork
	Settings settings.Reader
	Provider Provider
	Enqueuer task.Enqueuer `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	return &Service{
		ledger:         p.Ledger,
		uow:            p.UoW,
		settings:       p.Settings,
		provider:       p.Provider,
		enqueuer:       p.Enqueuer,
		logs:           repository.ProvideStore[PaymentLog](p.DB),
		webhookHash:    p.Config.Payment.WebhookHash,
		currency:       p.Config.Payment.Currency,
		reconcileDelay: p.Config.Payment.ReconcileDelay,
	}
}

// InitiateDeposit opens a pending deposit and asks the provider for a
// checkout link. The transaction id doubles as the provider tx_ref.
func (s *Service) InitiateDeposit(ctx context.Context, actor *auth.Actor, req DepositRequest) (*DepositResponse, error) {
	if err := auth.Require(actor); err != nil {
		return nil, err
	}
	if err := validation.Struct(&req); err != nil {
		return nil, err
	}

	ps, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	if req.Amount < ps.MinimumDeposit {
		return nil, errutil.BadRequest("amount is below the minimum deposit", nil, errutil.WithDetails(
			errutil.Detail{Field: "amount", Message: fmt.Sprintf("amount must be at least %d", ps.MinimumDeposit)},
		))
	}

	t, err := s.ledger.CreateTransaction(ctx, ledger.CreateTransactionParams{
		UserID:      actor.ID,
		Amount:      req.Amount,
		Type:        ledger.TypeDeposit,
		Description: "Wallet deposit",
	})
	if err != nil {
		return nil, err
	}

	link, err := s.provider.InitiatePayment(ctx, InitiatePaymentRequest{
		Amount:     decimal.NewFromInt(req.Amount),
		Currency:   s.currency,
		PayerName:  actor.Name,
		PayerEmail: actor.Email,
		TxRef:      t.ID,
	})
	if err != nil {
		if _, rerr := s.ledger.UpdateTransactionStatus(ctx, t.ID, ledger.StatusRejected); rerr != nil {
			logger.FromContext(ctx).Error("failed to reject deposit after provider failure",
				zap.String("transaction_id", t.ID), zap.Error(rerr))
		}
		return nil, err
	}

	return &DepositResponse{Transaction: t, RedirectLink: link.RedirectLink}, nil
}

func (s *Service) validSignature(signature string) bool {
	if s.webhookHash == "" || signature == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(signature), []byte(s.webhookHash)) == 1
}

// HandleWebhook processes one provider delivery. Only a malformed body is
// returned as an error; business non-confirmation is reported through the
// Outcome and leaves the deposit pending.
func (s *Service) HandleWebhook(ctx context.Context, signature string, body []byte) (Outcome, error) {
	log := logger.FromContext(ctx)

	if !s.validSignature(signature) {
		log.Warn("payment webhook signature mismatch")
		observe("webhook", OutcomeInvalidSignature)
		return OutcomeInvalidSignature, nil
	}

	var ev WebhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return "", errutil.BadRequest("malformed webhook payload", err)
	}
	if ev.Data.ID == "" || ev.Data.TxRef == "" {
		return "", errutil.BadRequest("webhook payload is missing data.id or data.tx_ref", nil)
	}

	providerTxID := string(ev.Data.ID)
	txRef := string(ev.Data.TxRef)

	t, err := s.ledger.GetTransactionByID(ctx, txRef)
	if err != nil && !errutil.Is(err, errutil.StatusNotFound) {
		return "", err
	}

	entry := &PaymentLog{
		ID:           uuid.NewString(),
		Event:        ev.Event,
		ProviderTxID: providerTxID,
		TxRef:        txRef,
		Payload:      datatypes.JSON(body),
	}
	if t != nil {
		entry.TransactionID = &t.ID
	}
	if err := s.logs.Create(ctx, entry); err != nil {
		return "", err
	}

	log = log.With(zap.String("tx_ref", txRef), zap.String("provider_tx_id", providerTxID))

	if outcome := s.gate(t); outcome != "" {
		log.Info("payment webhook ignored", zap.String("outcome", string(outcome)))
		observe("webhook", outcome)
		return outcome, nil
	}

	v, err := s.provider.VerifyTransaction(ctx, providerTxID)
	if err != nil {
		log.Warn("payment verification failed, scheduling reconcile", zap.Error(err))
		s.scheduleReconcile(ctx, t.ID, providerTxID)
		observe("webhook", OutcomeVerificationFailed)
		return OutcomeVerificationFailed, nil
	}

	outcome, err := s.settle(ctx, t, v)
	if err != nil {
		return "", err
	}
	if outcome == OutcomeProcessing {
		s.scheduleReconcile(ctx, t.ID, providerTxID)
	}
	log.Info("payment webhook processed", zap.String("outcome", string(outcome)))
	observe("webhook", outcome)
	return outcome, nil
}

// Reconcile re-runs verification and settlement for a deposit whose
// webhook could not be verified or whose charge was still in flight. Both
// cases return an error so the worker retries.
func (s *Service) Reconcile(ctx context.Context, transactionID, providerTxID string) (Outcome, error) {
	t, err := s.ledger.GetTransactionByID(ctx, transactionID)
	if err != nil && !errutil.Is(err, errutil.StatusNotFound) {
		return "", err
	}
	if outcome := s.gate(t); outcome != "" {
		observe("reconcile", outcome)
		return outcome, nil
	}

	v, err := s.provider.VerifyTransaction(ctx, providerTxID)
	if err != nil {
		observe("reconcile", OutcomeVerificationFailed)
		return OutcomeVerificationFailed, err
	}

	outcome, err := s.settle(ctx, t, v)
	if err != nil {
		return "", err
	}
	observe("reconcile", outcome)
	if outcome == OutcomeProcessing {
		return outcome, ErrStillProcessing
	}
	return outcome, nil
}

// gate returns a terminal outcome when t must not be settled.
func (s *Service) gate(t *ledger.Transaction) Outcome {
	switch {
	case t == nil:
		return OutcomeUnknownReference
	case !t.IsPending():
		return OutcomeAlreadySettled
	case t.Type != ledger.TypeDeposit:
		return OutcomeNotDeposit
	}
	return ""
}

func (s *Service) confirmed(t *ledger.Transaction, v *Verification) bool {
	return v.Succeeded() &&
		v.ChargedAmount.GreaterThanOrEqual(decimal.NewFromInt(t.Amount)) &&
		strings.EqualFold(v.Currency, s.currency) &&
		v.TxRef == t.ID
}

func (s *Service) settle(ctx context.Context, t *ledger.Transaction, v *Verification) (Outcome, error) {
	if v.InFlight() {
		logger.FromContext(ctx).Info("payment still processing at provider",
			zap.String("transaction_id", t.ID), zap.String("status", v.Status))
		return OutcomeProcessing, nil
	}
	if !s.confirmed(t, v) {
		logger.FromContext(ctx).Warn("payment not confirmed by provider",
			zap.String("transaction_id", t.ID),
			zap.String("status", v.Status),
			zap.String("charged_amount", v.ChargedAmount.String()),
			zap.String("currency", v.Currency),
			zap.String("echoed_tx_ref", v.TxRef),
		)
		return OutcomeUnconfirmed, nil
	}

	err := s.uow.Do(ctx, func(ctx context.Context, tx *ledger.Tx) error {
		_, err := tx.Settle(ctx, t.ID, true)
		return err
	})
	if errors.Is(err, ledger.ErrTransactionSettled) {
		return OutcomeAlreadySettled, nil
	}
	if err != nil {
		return "", err
	}
	return OutcomeSettled, nil
}
