package campaign

import (
	"time"

	"taskmarket-ledger/services/ledger"
)

// ModerationStatus is the content moderation axis of a campaign.
type ModerationStatus string

const (
	StatusPending  ModerationStatus = "pending"
	StatusApproved ModerationStatus = "approved"
	StatusRejected ModerationStatus = "rejected"
)

// Activity is the operational axis of a campaign, orthogonal to moderation.
type Activity string

const (
	ActivityActive Activity = "active"
	ActivityPaused Activity = "paused"
	ActivityEnded  Activity = "ended"
)

type Campaign struct {
	ID                   string           `gorm:"column:id;primaryKey;size:32" json:"id"`
	Code                 string           `gorm:"column:code;size:32;index" json:"code"`
	AdvertiserID         string           `gorm:"column:advertiser_id;size:64;not null;index" json:"advertiser_id"`
	PayoutPerUser        int64            `gorm:"column:payout_per_user;not null" json:"payout_per_user"`
	MaxUsers             int64            `gorm:"column:max_users;not null" json:"max_users"`
	PlatformFee          int64            `gorm:"column:platform_fee;not null" json:"platform_fee"`
	TotalCost            int64            `gorm:"column:total_cost;not null" json:"total_cost"`
	ApprovedCount        int64            `gorm:"column:approved_count;not null;default:0" json:"approved_count"`
	Status               ModerationStatus `gorm:"column:status;size:16;not null;index" json:"status"`
	Activity             Activity         `gorm:"column:activity;size:16;not null" json:"activity"`
	FundingTransactionID string           `gorm:"column:funding_transaction_id;size:32;not null;uniqueIndex" json:"funding_transaction_id"`
	ContentRef           string           `gorm:"column:content_ref;size:255" json:"content_ref,omitempty"`
	CreatedAt            time.Time        `gorm:"column:created_at" json:"created_at"`
	UpdatedAt            time.Time        `gorm:"column:updated_at" json:"updated_at"`

	Advertiser         *ledger.Account     `gorm:"foreignKey:AdvertiserID;references:ID;constraint:OnDelete:RESTRICT" json:"-"`
	FundingTransaction *ledger.Transaction `gorm:"foreignKey:FundingTransactionID;references:ID;constraint:OnDelete:RESTRICT" json:"-"`
}

// IsOpen reports whether taskers may submit work.
func (c *Campaign) IsOpen() bool {
	return c.Status == StatusApproved && c.Activity == ActivityActive
}

func (c *Campaign) RemainingSlots() int64 {
	return c.MaxUsers - c.ApprovedCount
}

type CreateCampaignRequest struct {
	PayoutPerUser int64  `json:"payout_per_user" binding:"required,gte=1"`
	MaxUsers      int64  `json:"max_users" binding:"required,gte=1,lte=1000000"`
	ContentRef    string `json:"content_ref" binding:"omitempty,max=255"`
}

type ModerationRequest struct {
	Status ModerationStatus `json:"status" binding:"required,oneof=approved rejected"`
}

type ActivityRequest struct {
	Activity Activity `json:"activity" binding:"required,oneof=active paused ended"`
}
