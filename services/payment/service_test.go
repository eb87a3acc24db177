package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"taskmarket-ledger/pkg/auth"
	"taskmarket-ledger/pkg/config"
	"taskmarket-ledger/pkg/errutil"
	"taskmarket-ledger/pkg/taskname"
	"taskmarket-ledger/services/ledger"
	"taskmarket-ledger/services/settings"
	"taskmarket-ledger/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

const secret = "s3cret"

type fakeProvider struct {
	mu          sync.Mutex
	verifyCalls int
	initiate    func(ctx context.Context, req InitiatePaymentRequest) (*InitiatePaymentResponse, error)
	verify      func(ctx context.Context, providerTxID string) (*Verification, error)
}

func (p *fakeProvider) InitiatePayment(ctx context.Context, req InitiatePaymentRequest) (*InitiatePaymentResponse, error) {
	if p.initiate == nil {
		return &InitiatePaymentResponse{RedirectLink: "https://checkout.example/" + req.TxRef}, nil
	}
	return p.initiate(ctx, req)
}

func (p *fakeProvider) VerifyTransaction(ctx context.Context, providerTxID string) (*Verification, error) {
	p.mu.Lock()
	p.verifyCalls++
	p.mu.Unlock()
	return p.verify(ctx, providerTxID)
}

// confirms returns a verify func that echoes a successful charge for txRef.
func confirms(txRef string, amount int64) func(context.Context, string) (*Verification, error) {
	return func(context.Context, string) (*Verification, error) {
		return &Verification{Status: "successful", ChargedAmount: decimal.NewFromInt(amount), Currency: "NGN", TxRef: txRef}, nil
	}
}

type fixture struct {
	db       *gorm.DB
	ledger   *ledger.Store
	provider *fakeProvider
	enqueuer *testutil.Enqueuer
	svc      *Service
}

func newFixture(t *testing.T) *fixture {
	db := testutil.NewTestDB(t, &ledger.Account{}, &ledger.Transaction{}, &PaymentLog{})
	store := ledger.NewStore(ledger.StoreParams{DB: db, Node: testutil.NewNode(t)})
	uow := ledger.NewUnitOfWork(ledger.UnitOfWorkParams{Store: store})

	cfg := &config.Config{}
	cfg.Payment.WebhookHash = secret
	cfg.Payment.Currency = "NGN"
	cfg.Payment.ReconcileDelay = time.Minute

	fees := settings.ReaderFunc(func(context.Context) (*settings.PlatformSettings, error) {
		return &settings.PlatformSettings{PlatformFee: 500, MinimumDeposit: 1000, MinimumWithdrawal: 1000, MaximumWithdrawal: 100000, WithdrawalFee: 100}, nil
	})

	f := &fixture{db: db, ledger: store, provider: &fakeProvider{}, enqueuer: &testutil.Enqueuer{}}
	f.svc = NewService(ServiceParams{
		Config:   cfg,
		DB:       db,
		Ledger:   store,
		UoW:      uow,
		Settings: fees,
		Provider: f.provider,
		Enqueuer: f.enqueuer,
	})
	return f
}

var depositor = &auth.Actor{ID: "adv", Role: auth.RoleAdvertiser, Name: "Ada", Email: "ada@example.com"}

func (f *fixture) deposit(t *testing.T, amount int64) *ledger.Transaction {
	ctx := context.Background()
	_, err := f.ledger.OpenAccount(ctx, depositor.ID)
	require.NoError(t, err)
	out, err := f.svc.InitiateDeposit(ctx, depositor, DepositRequest{Amount: amount})
	require.NoError(t, err)
	return out.Transaction
}

func (f *fixture) balance(t *testing.T) int64 {
	acc, err := f.ledger.GetAccount(context.Background(), depositor.ID)
	require.NoError(t, err)
	return acc.WalletBalance
}

func (f *fixture) status(t *testing.T, id string) ledger.TransactionStatus {
	tx, err := f.ledger.GetTransactionByID(context.Background(), id)
	require.NoError(t, err)
	return tx.Status
}

func (f *fixture) logs(t *testing.T) int64 {
	var n int64
	require.NoError(t, f.db.Model(&PaymentLog{}).Count(&n).Error)
	return n
}

func body(txRef string, amount int64) []byte {
	return []byte(fmt.Sprintf(`{"event":"charge.completed","data":{"id":9001,"tx_ref":"%s","amount":%d,"currency":"NGN","status":"successful"}}`, txRef, amount))
}

func TestSuccessfulDeposit(t *testing.T) {
	f := newFixture(t)
	var sent InitiatePaymentRequest
	f.provider.initiate = func(_ context.Context, req InitiatePaymentRequest) (*InitiatePaymentResponse, error) {
		sent = req
		return &InitiatePaymentResponse{RedirectLink: "https://checkout.example/x"}, nil
	}

	tx := f.deposit(t, 5000)
	require.Equal(t, ledger.StatusPending, tx.Status)
	require.Equal(t, tx.ID, sent.TxRef)
	require.True(t, sent.Amount.Equal(decimal.NewFromInt(5000)))
	require.Equal(t, "ada@example.com", sent.PayerEmail)
	require.Zero(t, f.balance(t))

	var verified string
	f.provider.verify = func(ctx context.Context, id string) (*Verification, error) {
		verified = id
		return confirms(tx.ID, 5000)(ctx, id)
	}

	outcome, err := f.svc.HandleWebhook(context.Background(), secret, body(tx.ID, 5000))
	require.NoError(t, err)
	require.Equal(t, OutcomeSettled, outcome)
	require.Equal(t, "9001", verified)
	require.Equal(t, int64(5000), f.balance(t))
	require.Equal(t, ledger.StatusApproved, f.status(t, tx.ID))
}

func TestDuplicateWebhookAppliesOnce(t *testing.T) {
	f := newFixture(t)
	tx := f.deposit(t, 5000)
	f.provider.verify = confirms(tx.ID, 5000)

	var got []Outcome
	for i := 0; i < 3; i++ {
		outcome, err := f.svc.HandleWebhook(context.Background(), secret, body(tx.ID, 5000))
		require.NoError(t, err)
		got = append(got, outcome)
	}

	require.Equal(t, []Outcome{OutcomeSettled, OutcomeAlreadySettled, OutcomeAlreadySettled}, got)
	require.Equal(t, int64(5000), f.balance(t))
	require.Equal(t, int64(3), f.logs(t))
	require.Equal(t, 1, f.provider.verifyCalls)
}

func TestWebhookSignatureMismatch(t *testing.T) {
	f := newFixture(t)
	tx := f.deposit(t, 5000)

	for _, sig := range []string{"", "wrong", secret + "x"} {
		outcome, err := f.svc.HandleWebhook(context.Background(), sig, body(tx.ID, 5000))
		require.NoError(t, err)
		require.Equal(t, OutcomeInvalidSignature, outcome)
	}
	require.Zero(t, f.logs(t))
	require.Equal(t, ledger.StatusPending, f.status(t, tx.ID))
}

func TestWebhookMalformed(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.HandleWebhook(context.Background(), secret, []byte(`{"data":`))
	require.True(t, errutil.Is(err, errutil.StatusBadRequest))

	_, err = f.svc.HandleWebhook(context.Background(), secret, []byte(`{"event":"charge.completed","data":{"id":1}}`))
	require.True(t, errutil.Is(err, errutil.StatusBadRequest))
	require.Zero(t, f.logs(t))
}

func TestWebhookUnknownReference(t *testing.T) {
	f := newFixture(t)

	outcome, err := f.svc.HandleWebhook(context.Background(), secret, body("404", 5000))
	require.NoError(t, err)
	require.Equal(t, OutcomeUnknownReference, outcome)

	var entry PaymentLog
	require.NoError(t, f.db.First(&entry).Error)
	require.Nil(t, entry.TransactionID)
	require.Equal(t, "404", entry.TxRef)
	require.Equal(t, "9001", entry.ProviderTxID)

	var n int64
	require.NoError(t, f.db.Model(&ledger.Transaction{}).Count(&n).Error)
	require.Zero(t, n)
}

func TestWebhookUnconfirmedLeavesPending(t *testing.T) {
	cases := map[string]func(txRef string) *Verification{
		"short charge": func(ref string) *Verification {
			return &Verification{Status: "successful", ChargedAmount: decimal.NewFromInt(4999), Currency: "NGN", TxRef: ref}
		},
		"currency": func(ref string) *Verification {
			return &Verification{Status: "successful", ChargedAmount: decimal.NewFromInt(5000), Currency: "USD", TxRef: ref}
		},
		"replayed reference": func(string) *Verification {
			return &Verification{Status: "successful", ChargedAmount: decimal.NewFromInt(5000), Currency: "NGN", TxRef: "other"}
		},
		"failed charge": func(ref string) *Verification {
			return &Verification{Status: "failed", ChargedAmount: decimal.NewFromInt(5000), Currency: "NGN", TxRef: ref}
		},
	}

	for name, verification := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			tx := f.deposit(t, 5000)
			f.provider.verify = func(context.Context, string) (*Verification, error) {
				return verification(tx.ID), nil
			}

			outcome, err := f.svc.HandleWebhook(context.Background(), secret, body(tx.ID, 5000))
			require.NoError(t, err)
			require.Equal(t, OutcomeUnconfirmed, outcome)
			require.Equal(t, ledger.StatusPending, f.status(t, tx.ID))
			require.Zero(t, f.balance(t))
		})
	}
}

func TestWebhookOverchargeSettlesRequestedAmount(t *testing.T) {
	f := newFixture(t)
	tx := f.deposit(t, 5000)
	f.provider.verify = confirms(tx.ID, 5100)

	outcome, err := f.svc.HandleWebhook(context.Background(), secret, body(tx.ID, 5100))
	require.NoError(t, err)
	require.Equal(t, OutcomeSettled, outcome)
	require.Equal(t, int64(5000), f.balance(t))
}

func TestWebhookIgnoresNonDeposits(t *testing.T) {
	f := newFixture(t)
	f.deposit(t, 5000)
	w, err := f.ledger.CreateTransaction(context.Background(), ledger.CreateTransactionParams{UserID: depositor.ID, Amount: 100, Type: ledger.TypeWithdrawal})
	require.NoError(t, err)

	outcome, err := f.svc.HandleWebhook(context.Background(), secret, body(w.ID, 100))
	require.NoError(t, err)
	require.Equal(t, OutcomeNotDeposit, outcome)
	require.Equal(t, ledger.StatusPending, f.status(t, w.ID))
	require.Zero(t, f.provider.verifyCalls)
}

func TestVerificationErrorSchedulesReconcile(t *testing.T) {
	f := newFixture(t)
	tx := f.deposit(t, 5000)
	f.provider.verify = func(context.Context, string) (*Verification, error) {
		return nil, errutil.BadGateway("payment provider returned 503", nil)
	}

	outcome, err := f.svc.HandleWebhook(context.Background(), secret, body(tx.ID, 5000))
	require.NoError(t, err)
	require.Equal(t, OutcomeVerificationFailed, outcome)
	require.Equal(t, ledger.StatusPending, f.status(t, tx.ID))
	require.Equal(t, []string{taskname.DepositReconcile}, f.enqueuer.Types())

	outcome, err = f.svc.Reconcile(context.Background(), tx.ID, "9001")
	require.Error(t, err)
	require.Equal(t, OutcomeVerificationFailed, outcome)

	f.provider.verify = confirms(tx.ID, 5000)
	require.NoError(t, f.svc.HandleReconcileTask(context.Background(), f.enqueuer.Tasks[0]))
	require.Equal(t, ledger.StatusApproved, f.status(t, tx.ID))
	require.Equal(t, int64(5000), f.balance(t))

	outcome, err = f.svc.Reconcile(context.Background(), tx.ID, "9001")
	require.NoError(t, err)
	require.Equal(t, OutcomeAlreadySettled, outcome)
}

func TestInFlightChargeIsReconciledLater(t *testing.T) {
	f := newFixture(t)
	tx := f.deposit(t, 5000)
	f.provider.verify = func(context.Context, string) (*Verification, error) {
		return &Verification{Status: "pending", ChargedAmount: decimal.NewFromInt(5000), Currency: "NGN", TxRef: tx.ID}, nil
	}

	outcome, err := f.svc.HandleWebhook(context.Background(), secret, body(tx.ID, 5000))
	require.NoError(t, err)
	require.Equal(t, OutcomeProcessing, outcome)
	require.Equal(t, ledger.StatusPending, f.status(t, tx.ID))
	require.Equal(t, []string{taskname.DepositReconcile}, f.enqueuer.Types())

	err = f.svc.HandleReconcileTask(context.Background(), f.enqueuer.Tasks[0])
	require.ErrorIs(t, err, ErrStillProcessing)
	require.False(t, errors.Is(err, asynq.SkipRetry))
	require.Equal(t, ledger.StatusPending, f.status(t, tx.ID))

	f.provider.verify = confirms(tx.ID, 5000)
	require.NoError(t, f.svc.HandleReconcileTask(context.Background(), f.enqueuer.Tasks[0]))
	require.Equal(t, ledger.StatusApproved, f.status(t, tx.ID))
	require.Equal(t, int64(5000), f.balance(t))
}

func TestUnconfirmedChargeIsNotRetried(t *testing.T) {
	f := newFixture(t)
	tx := f.deposit(t, 5000)
	f.provider.verify = func(context.Context, string) (*Verification, error) {
		return &Verification{Status: "successful", ChargedAmount: decimal.NewFromInt(4000), Currency: "NGN", TxRef: tx.ID}, nil
	}

	outcome, err := f.svc.HandleWebhook(context.Background(), secret, body(tx.ID, 4000))
	require.NoError(t, err)
	require.Equal(t, OutcomeUnconfirmed, outcome)
	require.Empty(t, f.enqueuer.Types())

	outcome, err = f.svc.Reconcile(context.Background(), tx.ID, "9001")
	require.NoError(t, err)
	require.Equal(t, OutcomeUnconfirmed, outcome)
}

func TestInitiateDepositValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.ledger.OpenAccount(ctx, depositor.ID)
	require.NoError(t, err)

	_, err = f.svc.InitiateDeposit(ctx, depositor, DepositRequest{Amount: 999})
	require.True(t, errutil.Is(err, errutil.StatusBadRequest))

	_, err = f.svc.InitiateDeposit(ctx, nil, DepositRequest{Amount: 5000})
	require.True(t, errutil.Is(err, errutil.StatusUnauthorized))

	var n int64
	require.NoError(t, f.db.Model(&ledger.Transaction{}).Count(&n).Error)
	require.Zero(t, n)
}

func TestInitiateDepositProviderFailureRejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.ledger.OpenAccount(ctx, depositor.ID)
	require.NoError(t, err)
	f.provider.initiate = func(context.Context, InitiatePaymentRequest) (*InitiatePaymentResponse, error) {
		return nil, errutil.BadGateway("payment provider unreachable", errors.New("dial tcp: timeout"))
	}

	_, err = f.svc.InitiateDeposit(ctx, depositor, DepositRequest{Amount: 5000})
	require.True(t, errutil.Is(err, errutil.StatusBadGateway))

	var tx ledger.Transaction
	require.NoError(t, f.db.First(&tx).Error)
	require.Equal(t, ledger.StatusRejected, tx.Status)
	require.Zero(t, f.balance(t))
}
