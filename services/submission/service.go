package submission

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"taskmarket-ledger/pkg/auth"
	"taskmarket-ledger/pkg/db/option"
	"taskmarket-ledger/pkg/db/pagination"
	"taskmarket-ledger/pkg/errutil"
	"taskmarket-ledger/pkg/logger"
	"taskmarket-ledger/pkg/repository"
	"taskmarket-ledger/pkg/validation"
	"taskmarket-ledger/services/campaign"
	"taskmarket-ledger/services/ledger"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrActiveSubmission = errors.New("an active submission already exists")
	ErrAlreadyReviewed  = errors.New("submission already reviewed")
	ErrAlreadyRated     = errors.New("campaign already rated")
)

var activeStatuses = []any{StatusPending, StatusApproved}

// Service drives submissions through pending -> approved|rejected and
// pays taskers out of the campaign escrow on approval.
type Service struct {
	db        *gorm.DB
	ledger    *ledger.Store
	uow       ledger.UnitOfWork
	campaigns *campaign.Service

	submissions repository.Repository[Submission]
	ratings     repository.Repository[CampaignRating]
}

type ServiceParams struct {
	fx.In

	DB        *gorm.DB
	Ledger    *ledger.Store
	UoW       ledger.UnitOfWork
	Campaigns *campaign.Service
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:          p.DB,
		ledger:      p.Ledger,
		uow:         p.UoW,
		campaigns:   p.Campaigns,
		submissions: repository.ProvideStore[Submission](p.DB),
		ratings:     repository.ProvideStore[CampaignRating](p.DB),
	}
}

func (s *Service) countActive(ctx context.Context, db *gorm.DB, campaignID, taskerID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&Submission{}).
		Where("campaign_id = ? AND tasker_id = ?", campaignID, taskerID).
		Scopes(option.ApplyOperator(option.Condition{Field: "status", Operator: option.IN, Value: activeStatuses})).
		Count(&n).Error
	return n, err
}

func (s *Service) countReviewed(ctx context.Context, db *gorm.DB, campaignID, taskerID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&Submission{}).
		Where("campaign_id = ? AND tasker_id = ? AND status <> ?", campaignID, taskerID, StatusPending).
		Count(&n).Error
	return n, err
}

// CanSubmit holds when the campaign passed moderation, is active and the
// tasker has no pending or approved submission for it.
func (s *Service) CanSubmit(ctx context.Context, campaignID, taskerID string) (bool, error) {
	c, err := s.campaigns.Find(ctx, campaignID)
	if err != nil {
		return false, err
	}
	if !c.IsOpen() {
		return false, nil
	}
	n, err := s.countActive(ctx, s.db, campaignID, taskerID)
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

// CanRate holds when the tasker has a reviewed submission for the campaign
// and has not rated it yet.
func (s *Service) CanRate(ctx context.Context, campaignID, taskerID string) (bool, error) {
	reviewed, err := s.countReviewed(ctx, s.db, campaignID, taskerID)
	if err != nil || reviewed == 0 {
		return false, err
	}
	existing, err := s.ratings.FindOne(ctx, &CampaignRating{CampaignID: campaignID, TaskerID: taskerID})
	if err != nil {
		return false, err
	}
	return existing == nil, nil
}

func (s *Service) Eligibility(ctx context.Context, actor *auth.Actor, campaignID string) (*Eligibility, error) {
	if err := auth.Require(actor); err != nil {
		return nil, err
	}
	if actor.Role != auth.RoleTasker {
		return &Eligibility{}, nil
	}
	canSubmit, err := s.CanSubmit(ctx, campaignID, actor.ID)
	if err != nil {
		return nil, err
	}
	canRate, err := s.CanRate(ctx, campaignID, actor.ID)
	if err != nil {
		return nil, err
	}
	return &Eligibility{CanSubmit: canSubmit, CanRate: canRate}, nil
}

func (s *Service) CreateSubmission(ctx context.Context, actor *auth.Actor, campaignID string, req CreateSubmissionRequest) (*Submission, error) {
	if err := auth.Require(actor, auth.RoleTasker); err != nil {
		return nil, err
	}
	if err := validation.Struct(&req); err != nil {
		return nil, err
	}

	sub := &Submission{
		ID:         s.ledger.NextID(),
		CampaignID: campaignID,
		TaskerID:   actor.ID,
		Proof:      req.Proof,
		Status:     StatusPending,
		ActiveKey:  activeKey(campaignID, actor.ID),
	}

	err := s.uow.Do(ctx, func(ctx context.Context, tx *ledger.Tx) error {
		c, err := s.campaigns.LockCampaign(ctx, tx, campaignID)
		if err != nil {
			return err
		}
		if !c.IsOpen() {
			return errutil.BadRequest("campaign is not accepting submissions", nil)
		}

		n, err := s.countActive(ctx, tx.DB(), campaignID, actor.ID)
		if err != nil {
			return err
		}
		if n > 0 {
			return errutil.BadRequest("an active submission already exists for this campaign", ErrActiveSubmission)
		}

		return s.submissions.WithTrx(tx.DB()).Create(ctx, sub)
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, errutil.BadRequest("an active submission already exists for this campaign", ErrActiveSubmission)
	}
	if err != nil {
		return nil, err
	}

	return sub, nil
}

// ReviewSubmission records the advertiser's verdict. Approval consumes a
// campaign slot and credits the tasker with an earning transaction in the
// same unit as the status flip.
func (s *Service) ReviewSubmission(ctx context.Context, actor *auth.Actor, submissionID string, req ReviewRequest) (*Submission, error) {
	if err := auth.Require(actor, auth.RoleAdvertiser, auth.RoleAdmin); err != nil {
		return nil, err
	}
	req.Feedback = strings.TrimSpace(req.Feedback)
	if err := validation.Struct(&req); err != nil {
		return nil, err
	}

	sub, err := s.getSubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	c, err := s.campaigns.Find(ctx, sub.CampaignID)
	if err != nil {
		return nil, err
	}
	if c.AdvertiserID != actor.ID && !actor.IsAdmin() {
		return nil, errutil.Forbidden("campaign belongs to another advertiser", nil)
	}
	if sub.Status != StatusPending {
		return nil, errutil.Conflict("submission already reviewed", ErrAlreadyReviewed)
	}

	now := time.Now()
	updates := map[string]any{
		"status":              req.Status,
		"advertiser_feedback": req.Feedback,
		"advertiser_rating":   req.Rating,
		"status_updated_at":   now,
		"updated_at":          now,
	}
	if req.Status == StatusRejected {
		updates["active_key"] = nil
	}

	err = s.uow.Do(ctx, func(ctx context.Context, tx *ledger.Tx) error {
		res := tx.DB().WithContext(ctx).Model(&Submission{}).
			Where("id = ? AND status = ?", sub.ID, StatusPending).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errutil.Conflict("submission already reviewed", ErrAlreadyReviewed)
		}

		if req.Status != StatusApproved {
			return nil
		}

		if err := s.campaigns.ConsumeSlot(ctx, tx, c.ID); err != nil {
			return err
		}

		earning, err := tx.CreateTransaction(ctx, ledger.CreateTransactionParams{
			UserID:      sub.TaskerID,
			Amount:      c.PayoutPerUser,
			Type:        ledger.TypeEarning,
			Description: fmt.Sprintf("Earning for campaign %s", c.Code),
			CampaignID:  &c.ID,
		})
		if err != nil {
			return err
		}
		if err := s.submissions.WithTrx(tx.DB()).Update(ctx, sub.ID, map[string]any{"earning_transaction_id": earning.ID}); err != nil {
			return err
		}

		_, err = tx.Settle(ctx, earning.ID, true)
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Info("submission reviewed",
		zap.String("submission_id", sub.ID),
		zap.String("campaign_id", c.ID),
		zap.String("status", string(req.Status)),
	)
	return s.getSubmission(ctx, sub.ID)
}

// RateCampaign stores the tasker's one rating for a campaign. The campaign
// row lock serialises concurrent attempts; the unique index backs it up.
func (s *Service) RateCampaign(ctx context.Context, actor *auth.Actor, campaignID string, req RateRequest) (*CampaignRating, error) {
	if err := auth.Require(actor, auth.RoleTasker); err != nil {
		return nil, err
	}
	if err := validation.Struct(&req); err != nil {
		return nil, err
	}

	rating := &CampaignRating{
		ID:         s.ledger.NextID(),
		CampaignID: campaignID,
		TaskerID:   actor.ID,
		Rating:     req.Rating,
	}

	err := s.uow.Do(ctx, func(ctx context.Context, tx *ledger.Tx) error {
		if _, err := s.campaigns.LockCampaign(ctx, tx, campaignID); err != nil {
			return err
		}

		ratings := s.ratings.WithTrx(tx.DB())
		existing, err := ratings.FindOne(ctx, &CampaignRating{CampaignID: campaignID, TaskerID: actor.ID})
		if err != nil {
			return err
		}
		if existing != nil {
			return errutil.BadRequest("campaign already rated", ErrAlreadyRated)
		}

		reviewed, err := s.countReviewed(ctx, tx.DB(), campaignID, actor.ID)
		if err != nil {
			return err
		}
		if reviewed == 0 {
			return errutil.BadRequest("a campaign can be rated once a submission for it has been reviewed", nil)
		}

		return ratings.Create(ctx, rating)
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, errutil.BadRequest("campaign already rated", ErrAlreadyRated)
	}
	if err != nil {
		return nil, err
	}
	return rating, nil
}

func (s *Service) ListCampaignSubmissions(ctx context.Context, actor *auth.Actor, campaignID string, p ListParams) ([]*Submission, *pagination.PageInfo, error) {
	if err := auth.Require(actor); err != nil {
		return nil, nil, err
	}
	c, err := s.campaigns.Find(ctx, campaignID)
	if err != nil {
		return nil, nil, err
	}
	if c.AdvertiserID != actor.ID && !actor.IsAdmin() {
		return nil, nil, errutil.Forbidden("campaign belongs to another advertiser", nil)
	}
	return s.list(ctx, &Submission{CampaignID: campaignID, Status: p.Status}, p)
}

func (s *Service) ListMySubmissions(ctx context.Context, actor *auth.Actor, p ListParams) ([]*Submission, *pagination.PageInfo, error) {
	if err := auth.Require(actor, auth.RoleTasker); err != nil {
		return nil, nil, err
	}
	return s.list(ctx, &Submission{TaskerID: actor.ID, Status: p.Status}, p)
}

func (s *Service) list(ctx context.Context, query *Submission, p ListParams) ([]*Submission, *pagination.PageInfo, error) {
	rows, err := s.submissions.Find(ctx, query, option.ApplyPagination(p.Pagination))
	if err != nil {
		return nil, nil, err
	}
	page, info := pagination.BuildCursorPage(rows, p.Size(), func(sub *Submission) string { return sub.ID })
	return page, info, nil
}

func (s *Service) getSubmission(ctx context.Context, id string) (*Submission, error) {
	sub, err := s.submissions.FindOne(ctx, &Submission{ID: id})
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, errutil.NotFound("submission not found", nil)
	}
	return sub, nil
}
