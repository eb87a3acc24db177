package campaign

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"taskmarket-ledger/pkg/auth"
	"taskmarket-ledger/pkg/errutil"
	"taskmarket-ledger/services/ledger"
	"taskmarket-ledger/services/settings"
	"taskmarket-ledger/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fixture struct {
	db     *gorm.DB
	ledger *ledger.Store
	uow    ledger.UnitOfWork
	svc    *Service
}

func newFixture(t *testing.T) *fixture {
	db := testutil.NewTestDB(t, &ledger.Account{}, &ledger.Transaction{}, &Campaign{})
	store := ledger.NewStore(ledger.StoreParams{DB: db, Node: testutil.NewNode(t)})
	uow := ledger.NewUnitOfWork(ledger.UnitOfWorkParams{Store: store})
	fees := settings.ReaderFunc(func(context.Context) (*settings.PlatformSettings, error) {
		return &settings.PlatformSettings{PlatformFee: 500, MinimumDeposit: 1000, MinimumWithdrawal: 1000, MaximumWithdrawal: 100000, WithdrawalFee: 100}, nil
	})
	return &fixture{
		db:     db,
		ledger: store,
		uow:    uow,
		svc:    NewService(ServiceParams{DB: db, Ledger: store, UoW: uow, Settings: fees}),
	}
}

func (f *fixture) fund(t *testing.T, userID string, amount int64) {
	ctx := context.Background()
	_, err := f.ledger.OpenAccount(ctx, userID)
	require.NoError(t, err)
	if amount == 0 {
		return
	}
	dep, err := f.ledger.CreateTransaction(ctx, ledger.CreateTransactionParams{UserID: userID, Amount: amount, Type: ledger.TypeDeposit})
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

func (f *fixture) countTx(t *testing.T, status ledger.TransactionStatus) int64 {
	var n int64
	require.NoError(t, f.db.Model(&ledger.Transaction{}).
		Where("type = ? AND status = ?", ledger.TypeCampaignCreation, status).Count(&n).Error)
	return n
}

func (f *fixture) countCampaigns(t *testing.T) int64 {
	var n int64
	require.NoError(t, f.db.Model(&Campaign{}).Count(&n).Error)
	return n
}

func advertiser(id string) *auth.Actor {
	return &auth.Actor{ID: id, Role: auth.RoleAdvertiser, AdvertiserApprovalStatus: auth.AdvertiserApproved}
}

var admin = &auth.Actor{ID: "ops", Role: auth.RoleAdmin}

func TestComputeCost(t *testing.T) {
	cost, err := ComputeCost(100, 10, 500)
	require.NoError(t, err)
	require.Equal(t, int64(1500), cost)

	_, err = ComputeCost(1<<40, 1<<30, 0)
	require.True(t, errutil.Is(err, errutil.StatusBadRequest))

	_, err = ComputeCost(0, 10, 500)
	require.Error(t, err)
}

func TestCreateCampaignEscrowsCost(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "adv", 5000)

	c, err := f.svc.CreateCampaign(context.Background(), advertiser("adv"), CreateCampaignRequest{PayoutPerUser: 100, MaxUsers: 10})
	require.NoError(t, err)
	require.Equal(t, int64(1500), c.TotalCost)
	require.Equal(t, StatusPending, c.Status)
	require.Equal(t, ActivityActive, c.Activity)
	require.Equal(t, int64(3500), f.balance(t, "adv"))

	funding, err := f.ledger.GetTransactionByID(context.Background(), c.FundingTransactionID)
	require.NoError(t, err)
	require.Equal(t, ledger.StatusApproved, funding.Status)
	require.NotNil(t, funding.CampaignID)
	require.Equal(t, c.ID, *funding.CampaignID)
}

func TestCreateCampaignUnderfunded(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "adv", 1000)

	_, err := f.svc.CreateCampaign(context.Background(), advertiser("adv"), CreateCampaignRequest{PayoutPerUser: 100, MaxUsers: 10})
	require.True(t, errutil.Is(err, errutil.StatusInsufficientBalance))
	require.Equal(t, int64(1000), f.balance(t, "adv"))
	require.Zero(t, f.countTx(t, ledger.StatusPending)+f.countTx(t, ledger.StatusRejected)+f.countTx(t, ledger.StatusApproved))
	require.Zero(t, f.countCampaigns(t))
}

func TestCreateCampaignFailureRejectsFunding(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "adv", 5000)

	require.NoError(t, f.db.Callback().Create().Before("gorm:create").Register("test:fail_campaigns", func(d *gorm.DB) {
		if d.Statement.Table == "campaigns" {
			_ = d.AddError(errors.New("disk full"))
		}
	}))

	_, err := f.svc.CreateCampaign(context.Background(), advertiser("adv"), CreateCampaignRequest{PayoutPerUser: 100, MaxUsers: 10})
	require.Error(t, err)

	require.Equal(t, int64(5000), f.balance(t, "adv"))
	require.Equal(t, int64(1), f.countTx(t, ledger.StatusRejected))
	require.Zero(t, f.countTx(t, ledger.StatusPending))
	require.Zero(t, f.countCampaigns(t))
}

func TestCreateCampaignRequiresApprovedAdvertiser(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "adv", 5000)

	pending := &auth.Actor{ID: "adv", Role: auth.RoleAdvertiser, AdvertiserApprovalStatus: "pending"}
	_, err := f.svc.CreateCampaign(context.Background(), pending, CreateCampaignRequest{PayoutPerUser: 100, MaxUsers: 10})
	require.True(t, errutil.Is(err, errutil.StatusForbidden))

	_, err = f.svc.CreateCampaign(context.Background(), &auth.Actor{ID: "t", Role: auth.RoleTasker}, CreateCampaignRequest{PayoutPerUser: 100, MaxUsers: 10})
	require.True(t, errutil.Is(err, errutil.StatusForbidden))

	_, err = f.svc.CreateCampaign(context.Background(), advertiser("adv"), CreateCampaignRequest{PayoutPerUser: 100})
	require.True(t, errutil.Is(err, errutil.StatusBadRequest))
}

func TestConcurrentCreateOnlyOneAffordable(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "adv", 2000)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.CreateCampaign(context.Background(), advertiser("adv"), CreateCampaignRequest{PayoutPerUser: 100, MaxUsers: 10})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		require.True(t, errutil.Is(err, errutil.StatusInsufficientBalance))
	}
	require.Equal(t, 1, succeeded)
	require.Equal(t, int64(500), f.balance(t, "adv"))
	require.Equal(t, int64(1), f.countTx(t, ledger.StatusApproved))
	require.Zero(t, f.countTx(t, ledger.StatusPending))
	require.Equal(t, int64(1), f.countCampaigns(t))
}

func TestModerateCampaign(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "adv", 5000)
	ctx := context.Background()
	c, err := f.svc.CreateCampaign(ctx, advertiser("adv"), CreateCampaignRequest{PayoutPerUser: 100, MaxUsers: 10})
	require.NoError(t, err)

	_, err = f.svc.GetCampaign(ctx, &auth.Actor{ID: "t1", Role: auth.RoleTasker}, c.ID)
	require.True(t, errutil.Is(err, errutil.StatusNotFound), "unmoderated campaigns are hidden from taskers")

	_, err = f.svc.ModerateCampaign(ctx, advertiser("adv"), c.ID, ModerationRequest{Status: StatusApproved})
	require.True(t, errutil.Is(err, errutil.StatusForbidden))

	got, err := f.svc.ModerateCampaign(ctx, admin, c.ID, ModerationRequest{Status: StatusApproved})
	require.NoError(t, err)
	require.True(t, got.IsOpen())

	_, err = f.svc.ModerateCampaign(ctx, admin, c.ID, ModerationRequest{Status: StatusRejected})
	require.True(t, errutil.Is(err, errutil.StatusConflict))

	_, err = f.svc.GetCampaign(ctx, &auth.Actor{ID: "t1", Role: auth.RoleTasker}, c.ID)
	require.NoError(t, err)
}

func TestSetActivity(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "adv", 5000)
	ctx := context.Background()
	c, err := f.svc.CreateCampaign(ctx, advertiser("adv"), CreateCampaignRequest{PayoutPerUser: 100, MaxUsers: 10})
	require.NoError(t, err)

	_, err = f.svc.SetActivity(ctx, advertiser("other"), c.ID, ActivityRequest{Activity: ActivityPaused})
	require.True(t, errutil.Is(err, errutil.StatusForbidden))

	got, err := f.svc.SetActivity(ctx, advertiser("adv"), c.ID, ActivityRequest{Activity: ActivityPaused})
	require.NoError(t, err)
	require.Equal(t, ActivityPaused, got.Activity)

	got, err = f.svc.SetActivity(ctx, advertiser("adv"), c.ID, ActivityRequest{Activity: ActivityActive})
	require.NoError(t, err)
	require.Equal(t, ActivityActive, got.Activity)

	_, err = f.svc.SetActivity(ctx, advertiser("adv"), c.ID, ActivityRequest{Activity: ActivityEnded})
	require.NoError(t, err)

	_, err = f.svc.SetActivity(ctx, advertiser("adv"), c.ID, ActivityRequest{Activity: ActivityActive})
	require.True(t, errutil.Is(err, errutil.StatusBadRequest))
}

func TestConsumeSlotEndsCampaignAtCapacity(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "adv", 5000)
	ctx := context.Background()
	c, err := f.svc.CreateCampaign(ctx, advertiser("adv"), CreateCampaignRequest{PayoutPerUser: 100, MaxUsers: 2})
	require.NoError(t, err)

	consume := func() error {
		return f.uow.Do(ctx, func(ctx context.Context, tx *ledger.Tx) error {
			return f.svc.ConsumeSlot(ctx, tx, c.ID)
		})
	}

	require.NoError(t, consume())
	got, err := f.svc.Find(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, ActivityActive, got.Activity)

	require.NoError(t, consume())
	got, err = f.svc.Find(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, int64(2), got.ApprovedCount)
	require.Equal(t, ActivityEnded, got.Activity)

	require.ErrorIs(t, consume(), ErrCampaignFull)
}
