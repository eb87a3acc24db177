package withdrawal

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"taskmarket-ledger/pkg/auth"
	"taskmarket-ledger/pkg/errutil"
	"taskmarket-ledger/pkg/middleware"
	"taskmarket-ledger/services/ledger"
	"taskmarket-ledger/services/settings"
	"taskmarket-ledger/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
	gin.SetMode(gin.TestMode)
}

type fixture struct {
	ledger *ledger.Store
	uow    ledger.UnitOfWork
	svc    *Service
}

func newFixture(t *testing.T) *fixture {
	db := testutil.NewTestDB(t, &ledger.Account{}, &ledger.Transaction{})
	store := ledger.NewStore(ledger.StoreParams{DB: db, Node: testutil.NewNode(t)})
	uow := ledger.NewUnitOfWork(ledger.UnitOfWorkParams{Store: store})
	fees := settings.ReaderFunc(func(context.Context) (*settings.PlatformSettings, error) {
		return &settings.PlatformSettings{PlatformFee: 500, MinimumDeposit: 1000, MinimumWithdrawal: 1000, MaximumWithdrawal: 10000, WithdrawalFee: 100}, nil
	})
	return &fixture{ledger: store, uow: uow, svc: NewService(ServiceParams{Ledger: store, UoW: uow, Settings: fees})}
}

var verified = &auth.Actor{ID: "t1", Role: auth.RoleTasker, KYCVerified: true}

func (f *fixture) credit(t *testing.T, userID string, amount int64) {
	ctx := context.Background()
	_, err := f.ledger.OpenAccount(ctx, userID)
	require.NoError(t, err)
	dep, err := f.ledger.CreateTransaction(ctx, ledger.CreateTransactionParams{UserID: userID, Amount: amount, Type: ledger.TypeEarning})
	require.NoError(t, err)
	require.NoError(t, f.uow.Do(ctx, func(ctx context.Context, tx *ledger.Tx) error {
		_, err := tx.Settle(ctx, dep.ID, true)
		return err
	}))
}

func (f *fixture) balance(t *testing.T, userID string) int64 {
	acc, err := f.ledger.GetAccount(context.Background(), userID)
	require.NoError(t, err)
	return acc.WalletBalance
}

func TestRequestWithdrawal(t *testing.T) {
	f := newFixture(t)
	f.credit(t, "t1", 5000)

	out, err := f.svc.RequestWithdrawal(context.Background(), verified, WithdrawalRequest{Amount: 4000})
	require.NoError(t, err)
	require.Equal(t, ledger.StatusPending, out.Transaction.Status)
	require.Equal(t, ledger.TypeWithdrawal, out.Transaction.Type)
	require.Equal(t, int64(100), out.WithdrawalFee)
	require.Equal(t, int64(3900), out.NetPayout)
	require.Equal(t, int64(5000), f.balance(t, "t1"))
}

func TestRequestWithdrawalPreconditions(t *testing.T) {
	f := newFixture(t)
	f.credit(t, "t1", 5000)
	ctx := context.Background()

	_, err := f.svc.RequestWithdrawal(ctx, &auth.Actor{ID: "t1", Role: auth.RoleTasker}, WithdrawalRequest{Amount: 2000})
	require.True(t, errutil.Is(err, errutil.StatusForbidden))

	_, err = f.svc.RequestWithdrawal(ctx, verified, WithdrawalRequest{Amount: 0})
	require.True(t, errutil.Is(err, errutil.StatusBadRequest))

	_, err = f.svc.RequestWithdrawal(ctx, verified, WithdrawalRequest{Amount: 999})
	require.True(t, errutil.Is(err, errutil.StatusBadRequest))

	_, err = f.svc.RequestWithdrawal(ctx, verified, WithdrawalRequest{Amount: 10001})
	require.True(t, errutil.Is(err, errutil.StatusBadRequest))

	// 4001 + the 1000 floor exceeds the 5000 balance.
	_, err = f.svc.RequestWithdrawal(ctx, verified, WithdrawalRequest{Amount: 4001})
	require.True(t, errutil.Is(err, errutil.StatusInsufficientBalance))
	require.ErrorIs(t, err, ledger.ErrInsufficientBalance)
}

func TestSettleWithdrawal(t *testing.T) {
	f := newFixture(t)
	f.credit(t, "t1", 5000)
	ctx := context.Background()
	req, err := f.svc.RequestWithdrawal(ctx, verified, WithdrawalRequest{Amount: 3000})
	require.NoError(t, err)

	out, err := f.svc.SettleWithdrawal(ctx, SettleRequest{TransactionID: req.Transaction.ID, Approve: true, Note: "paid out"})
	require.NoError(t, err)
	require.Equal(t, ledger.StatusApproved, out.Status)
	require.Equal(t, int64(2000), f.balance(t, "t1"))

	_, err = f.svc.SettleWithdrawal(ctx, SettleRequest{TransactionID: req.Transaction.ID, Approve: true})
	require.ErrorIs(t, err, ledger.ErrTransactionSettled)
	require.Equal(t, int64(2000), f.balance(t, "t1"))
}

func TestSettleWithdrawalRejectsWhenUnfunded(t *testing.T) {
	f := newFixture(t)
	f.credit(t, "t1", 5000)
	ctx := context.Background()
	a, err := f.svc.RequestWithdrawal(ctx, verified, WithdrawalRequest{Amount: 3000})
	require.NoError(t, err)
	b, err := f.svc.RequestWithdrawal(ctx, verified, WithdrawalRequest{Amount: 3000})
	require.NoError(t, err)

	_, err = f.svc.SettleWithdrawal(ctx, SettleRequest{TransactionID: a.Transaction.ID, Approve: true})
	require.NoError(t, err)

	_, err = f.svc.SettleWithdrawal(ctx, SettleRequest{TransactionID: b.Transaction.ID, Approve: true})
	require.True(t, errutil.Is(err, errutil.StatusInsufficientBalance))

	got, err := f.ledger.GetTransactionByID(ctx, b.Transaction.ID)
	require.NoError(t, err)
	require.Equal(t, ledger.StatusRejected, got.Status)
	require.Equal(t, int64(2000), f.balance(t, "t1"))
}

func TestSettleWithdrawalReject(t *testing.T) {
	f := newFixture(t)
	f.credit(t, "t1", 5000)
	ctx := context.Background()
	req, err := f.svc.RequestWithdrawal(ctx, verified, WithdrawalRequest{Amount: 3000})
	require.NoError(t, err)

	out, err := f.svc.SettleWithdrawal(ctx, SettleRequest{TransactionID: req.Transaction.ID, Approve: false, Note: "bank details invalid"})
	require.NoError(t, err)
	require.Equal(t, ledger.StatusRejected, out.Status)
	require.Equal(t, int64(5000), f.balance(t, "t1"))
}

func TestSettleRefusesOtherTransactions(t *testing.T) {
	f := newFixture(t)
	f.credit(t, "t1", 5000)
	ctx := context.Background()
	dep, err := f.ledger.CreateTransaction(ctx, ledger.CreateTransactionParams{UserID: "t1", Amount: 100, Type: ledger.TypeDeposit})
	require.NoError(t, err)

	_, err = f.svc.SettleWithdrawal(ctx, SettleRequest{TransactionID: dep.ID, Approve: true})
	require.ErrorIs(t, err, ErrNotWithdrawal)

	_, err = f.svc.SettleWithdrawal(ctx, SettleRequest{TransactionID: "missing", Approve: true})
	require.True(t, errutil.Is(err, errutil.StatusNotFound))
}

func TestHandleSettleTask(t *testing.T) {
	f := newFixture(t)
	f.credit(t, "t1", 5000)
	ctx := context.Background()
	req, err := f.svc.RequestWithdrawal(ctx, verified, WithdrawalRequest{Amount: 1500})
	require.NoError(t, err)

	task, err := NewSettleTask(SettleRequest{TransactionID: req.Transaction.ID, Approve: true})
	require.NoError(t, err)
	require.NoError(t, f.svc.HandleSettleTask(ctx, task))
	require.Equal(t, int64(3500), f.balance(t, "t1"))

	// Redelivery after success is refused without retry.
	require.True(t, errors.Is(f.svc.HandleSettleTask(ctx, task), asynq.SkipRetry))
	require.True(t, errors.Is(f.svc.HandleSettleTask(ctx, asynq.NewTask("withdrawal:settle", []byte("{"))), asynq.SkipRetry))
}

func TestSettleTaskRequiresDecision(t *testing.T) {
	f := newFixture(t)
	f.credit(t, "t1", 5000)
	ctx := context.Background()
	req, err := f.svc.RequestWithdrawal(ctx, verified, WithdrawalRequest{Amount: 1500})
	require.NoError(t, err)

	payload := []byte(`{"transaction_id":"` + req.Transaction.ID + `"}`)
	err = f.svc.HandleSettleTask(ctx, asynq.NewTask("withdrawal:settle", payload))
	require.True(t, errors.Is(err, asynq.SkipRetry))

	tx, err := f.ledger.GetTransactionByID(ctx, req.Transaction.ID)
	require.NoError(t, err)
	require.Equal(t, ledger.StatusPending, tx.Status)
	require.Equal(t, int64(5000), f.balance(t, "t1"))
}

func TestSettleHandlerRequiresDecision(t *testing.T) {
	f := newFixture(t)
	f.credit(t, "t1", 5000)
	req, err := f.svc.RequestWithdrawal(context.Background(), verified, WithdrawalRequest{Amount: 1500})
	require.NoError(t, err)

	r := gin.New()
	r.Use(middleware.Error())
	r.POST("/v1/admin/withdrawals/:id/settle", NewHandler(f.svc).Settle)

	do := func(payload string) int {
		w := httptest.NewRecorder()
		hr := httptest.NewRequest(http.MethodPost, "/v1/admin/withdrawals/"+req.Transaction.ID+"/settle", strings.NewReader(payload))
		hr.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, hr)
		return w.Code
	}

	require.Equal(t, http.StatusBadRequest, do(`{"note":"x"}`))
	require.Equal(t, http.StatusOK, do(`{"approve":false}`))
	require.Equal(t, http.StatusConflict, do(`{"approve":true}`))
	require.Equal(t, int64(5000), f.balance(t, "t1"))
}
