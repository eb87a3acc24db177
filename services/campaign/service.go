package campaign

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"taskmarket-ledger/pkg/auth"
	"taskmarket-ledger/pkg/db/option"
	"taskmarket-ledger/pkg/errutil"
	"taskmarket-ledger/pkg/logger"
	"taskmarket-ledger/pkg/repository"
	"taskmarket-ledger/pkg/sequence"
	"taskmarket-ledger/pkg/validation"
	"taskmarket-ledger/services/ledger"
	"taskmarket-ledger/services/settings"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrCampaignFull = errors.New("campaign has no remaining slots")

// Service is the escrow coordinator: it funds campaigns out of the
// advertiser wallet and owns the campaign lifecycle afterwards.
type Service struct {
	db       *gorm.DB
	ledger   *ledger.Store
	uow      ledger.UnitOfWork
	settings settings.Reader
	seq      sequence.Generator

	campaigns repository.Repository[Campaign]
}

type ServiceParams struct {
	fx.In

	DB       *gorm.DB
	Ledger   *ledger.Store
	UoW      ledger.UnitOfWork
	Settings settings.Reader
	Seq      sequence.Generator `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:        p.DB,
		ledger:    p.Ledger,
		uow:       p.UoW,
		settings:  p.Settings,
		seq:       p.Seq,
		campaigns: repository.ProvideStore[Campaign](p.DB),
	}
}

// ComputeCost returns payoutPerUser*maxUsers + platformFee, refusing values
// that do not fit in an int64.
func ComputeCost(payoutPerUser, maxUsers, platformFee int64) (int64, error) {
	if payoutPerUser <= 0 || maxUsers <= 0 || platformFee < 0 {
		return 0, errutil.BadRequest("payout_per_user and max_users must be positive", nil)
	}
	if payoutPerUser > (math.MaxInt64-platformFee)/maxUsers {
		return 0, errutil.BadRequest("campaign cost is too large", nil)
	}
	return payoutPerUser*maxUsers + platformFee, nil
}

// CreateCampaign escrows the campaign cost from the advertiser's wallet.
//
// The funding transaction is created pending, then the campaign row, the
// link and the settlement (approve + debit) commit as one unit with the
// balance re-checked under a row lock. Any failure after the pending
// transaction exists rejects it before returning.
func (s *Service) CreateCampaign(ctx context.Context, actor *auth.Actor, req CreateCampaignRequest) (*Campaign, error) {
	if err := auth.RequireApprovedAdvertiser(actor); err != nil {
		return nil, err
	}
	if err := validation.Struct(&req); err != nil {
		return nil, err
	}

	ps, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}

	cost, err := ComputeCost(req.PayoutPerUser, req.MaxUsers, ps.PlatformFee)
	if err != nil {
		return nil, err
	}

	acc, err := s.ledger.GetAccount(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	if acc.WalletBalance < cost {
		return nil, insufficient(acc.WalletBalance, cost)
	}

	id := s.ledger.NextID()
	code := s.nextCode(ctx, id)

	funding, err := s.ledger.CreateTransaction(ctx, ledger.CreateTransactionParams{
		UserID:      actor.ID,
		Amount:      cost,
		Type:        ledger.TypeCampaignCreation,
		Description: fmt.Sprintf("Campaign funding %s", code),
	})
	if err != nil {
		return nil, err
	}

	c := &Campaign{
		ID:                   id,
		Code:                 code,
		AdvertiserID:         actor.ID,
		PayoutPerUser:        req.PayoutPerUser,
		MaxUsers:             req.MaxUsers,
		PlatformFee:          ps.PlatformFee,
		TotalCost:            cost,
		Status:               StatusPending,
		Activity:             ActivityActive,
		FundingTransactionID: funding.ID,
		ContentRef:           req.ContentRef,
	}

	err = s.uow.Do(ctx, func(ctx context.Context, tx *ledger.Tx) error {
		acc, err := tx.LockAccount(ctx, actor.ID)
		if err != nil {
			return err
		}
		if acc.WalletBalance < cost {
			return insufficient(acc.WalletBalance, cost)
		}
		if err := s.campaigns.WithTrx(tx.DB()).Create(ctx, c); err != nil {
			return err
		}
		if err := tx.LinkCampaign(ctx, funding.ID, c.ID); err != nil {
			return err
		}
		_, err = tx.Settle(ctx, funding.ID, true)
		return err
	})
	if err != nil {
		s.rejectFunding(ctx, funding.ID, err)
		return nil, err
	}

	logger.FromContext(ctx).Info("campaign funded",
		zap.String("campaign_id", c.ID),
		zap.String("advertiser_id", actor.ID),
		zap.Int64("total_cost", cost),
	)
	return c, nil
}

func (s *Service) rejectFunding(ctx context.Context, transactionID string, cause error) {
	if _, err := s.ledger.UpdateTransactionStatus(ctx, transactionID, ledger.StatusRejected); err != nil {
		logger.FromContext(ctx).Error("failed to reject campaign funding transaction",
			zap.String("transaction_id", transactionID), zap.NamedError("cause", cause), zap.Error(err))
		return
	}
	logger.FromContext(ctx).Warn("campaign funding rejected",
		zap.String("transaction_id", transactionID), zap.Error(cause))
}

func (s *Service) nextCode(ctx context.Context, id string) string {
	if s.seq != nil {
		code, err := s.seq.NextCampaignCode(ctx)
		if err == nil {
			return code
		}
		logger.FromContext(ctx).Warn("campaign code sequence unavailable", zap.Error(err))
	}
	return "CMP-" + id
}

func insufficient(balance, cost int64) error {
	return errutil.InsufficientBalance("insufficient balance", ledger.ErrInsufficientBalance, errutil.WithDetails(
		errutil.Detail{Field: "total_cost", Message: fmt.Sprintf("campaign costs %d, wallet holds %d", cost, balance)},
	))
}

// Find loads a campaign regardless of who is asking.
func (s *Service) Find(ctx context.Context, id string) (*Campaign, error) {
	c, err := s.campaigns.FindOne(ctx, &Campaign{ID: id})
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, errutil.NotFound("campaign not found", nil)
	}
	return c, nil
}

// GetCampaign returns a campaign. Campaigns that have not passed moderation
// are only visible to their owner and admins.
func (s *Service) GetCampaign(ctx context.Context, actor *auth.Actor, id string) (*Campaign, error) {
	if err := auth.Require(actor); err != nil {
		return nil, err
	}
	c, err := s.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status != StatusApproved && c.AdvertiserID != actor.ID && !actor.IsAdmin() {
		return nil, errutil.NotFound("campaign not found", nil)
	}
	return c, nil
}

// ModerateCampaign settles the moderation status of a pending campaign.
// The escrow is not returned on rejection.
func (s *Service) ModerateCampaign(ctx context.Context, actor *auth.Actor, id string, req ModerationRequest) (*Campaign, error) {
	if err := auth.Require(actor, auth.RoleAdmin); err != nil {
		return nil, err
	}
	if err := validation.Struct(&req); err != nil {
		return nil, err
	}

	res := s.db.WithContext(ctx).Model(&Campaign{}).
		Where("id = ? AND status = ?", id, StatusPending).
		Updates(map[string]any{"status": req.Status, "updated_at": time.Now()})
	if res.Error != nil {
		return nil, res.Error
	}

	c, err := s.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.RowsAffected == 0 {
		return nil, errutil.Conflict("campaign is already "+string(c.Status), nil)
	}
	return c, nil
}

var activityMoves = map[Activity]map[Activity]bool{
	ActivityActive: {ActivityPaused: true, ActivityEnded: true},
	ActivityPaused: {ActivityActive: true, ActivityEnded: true},
}

// SetActivity lets the owner pause, resume or end a campaign. Ended is
// terminal.
func (s *Service) SetActivity(ctx context.Context, actor *auth.Actor, id string, req ActivityRequest) (*Campaign, error) {
	if err := auth.Require(actor, auth.RoleAdvertiser); err != nil {
		return nil, err
	}
	if err := validation.Struct(&req); err != nil {
		return nil, err
	}

	c, err := s.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.AdvertiserID != actor.ID {
		return nil, errutil.Forbidden("campaign belongs to another advertiser", nil)
	}
	if c.Activity == req.Activity {
		return c, nil
	}
	if !activityMoves[c.Activity][req.Activity] {
		return nil, errutil.BadRequest(fmt.Sprintf("cannot move campaign from %s to %s", c.Activity, req.Activity), nil)
	}
	if req.Activity == ActivityActive && c.RemainingSlots() <= 0 {
		return nil, errutil.BadRequest("campaign has no remaining slots", ErrCampaignFull)
	}

	res := s.db.WithContext(ctx).Model(&Campaign{}).
		Where("id = ? AND activity = ?", id, c.Activity).
		Updates(map[string]any{"activity": req.Activity, "updated_at": time.Now()})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, errutil.Conflict("campaign activity changed concurrently", nil)
	}

	return s.Find(ctx, id)
}

// LockCampaign reads a campaign with SELECT ... FOR UPDATE inside tx.
func (s *Service) LockCampaign(ctx context.Context, tx *ledger.Tx, id string) (*Campaign, error) {
	c, err := s.campaigns.WithTrx(tx.DB()).FindOne(ctx, &Campaign{ID: id}, option.WithLockingUpdate())
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, errutil.NotFound("campaign not found", nil)
	}
	return c, nil
}

// ConsumeSlot counts one approved submission against the campaign inside
// tx. It is conditional on approved_count < max_users and ends the campaign
// when the last slot is taken.
func (s *Service) ConsumeSlot(ctx context.Context, tx *ledger.Tx, id string) error {
	res := tx.DB().WithContext(ctx).Model(&Campaign{}).
		Where("id = ? AND approved_count < max_users", id).
		Updates(map[string]any{
			"approved_count": gorm.Expr("approved_count + 1"),
			"activity":       gorm.Expr("CASE WHEN approved_count + 1 >= max_users THEN ? ELSE activity END", ActivityEnded),
			"updated_at":     time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := s.LockCampaign(ctx, tx, id); err != nil {
			return err
		}
		return errutil.BadRequest("campaign has no remaining slots", ErrCampaignFull)
	}
	return nil
}
