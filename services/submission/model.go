package submission

import (
	"time"

	"taskmarket-ledger/pkg/db/pagination"
	"taskmarket-ledger/services/campaign"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Submission is a tasker's proof of work for a campaign.
//
// ActiveKey is "<campaign>:<tasker>" while the submission is pending or
// approved and NULL once rejected; its unique index allows at most one
// active submission per pair on every supported dialect.
type Submission struct {
	ID                   string     `gorm:"column:id;primaryKey;size:32" json:"id"`
	CampaignID           string     `gorm:"column:campaign_id;size:32;not null;index" json:"campaign_id"`
	TaskerID             string     `gorm:"column:tasker_id;size:64;not null;index" json:"tasker_id"`
	Proof                string     `gorm:"column:proof;type:text" json:"proof"`
	Status               Status     `gorm:"column:status;size:16;not null" json:"status"`
	AdvertiserFeedback   string     `gorm:"column:advertiser_feedback;type:text" json:"advertiser_feedback,omitempty"`
	AdvertiserRating     *int       `gorm:"column:advertiser_rating" json:"advertiser_rating,omitempty"`
	StatusUpdatedAt      *time.Time `gorm:"column:status_updated_at" json:"status_updated_at,omitempty"`
	EarningTransactionID *string    `gorm:"column:earning_transaction_id;size:32" json:"earning_transaction_id,omitempty"`
	ActiveKey            *string    `gorm:"column:active_key;size:100;uniqueIndex" json:"-"`
	CreatedAt            time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt            time.Time  `gorm:"column:updated_at" json:"updated_at"`

	Campaign *campaign.Campaign `gorm:"foreignKey:CampaignID;references:ID;constraint:OnDelete:CASCADE" json:"-"`
}

func activeKey(campaignID, taskerID string) *string {
	k := campaignID + ":" + taskerID
	return &k
}

// CampaignRating is written once per (campaign, tasker) and never updated.
type CampaignRating struct {
	ID         string    `gorm:"column:id;primaryKey;size:32" json:"id"`
	CampaignID string    `gorm:"column:campaign_id;size:32;not null;uniqueIndex:idx_campaign_ratings_pair" json:"campaign_id"`
	TaskerID   string    `gorm:"column:tasker_id;size:64;not null;uniqueIndex:idx_campaign_ratings_pair" json:"tasker_id"`
	Rating     int       `gorm:"column:rating;not null;check:chk_campaign_ratings_rating,rating BETWEEN 1 AND 5" json:"rating"`
	CreatedAt  time.Time `gorm:"column:created_at" json:"created_at"`

	Campaign *campaign.Campaign `gorm:"foreignKey:CampaignID;references:ID;constraint:OnDelete:CASCADE" json:"-"`
}

type CreateSubmissionRequest struct {
	Proof string `json:"proof" binding:"required,max=4000"`
}

type ReviewRequest struct {
	Status   Status `json:"status" binding:"required,oneof=approved rejected"`
	Feedback string `json:"feedback" binding:"required_if=Status rejected,max=2000"`
	Rating   *int   `json:"rating" binding:"omitempty,min=1,max=5"`
}

type RateRequest struct {
	Rating int `json:"rating" binding:"required,min=1,max=5"`
}

type ListParams struct {
	pagination.Pagination
	Status Status `form:"status" binding:"omitempty,oneof=pending approved rejected"`
}

type Eligibility struct {
	CanSubmit bool `json:"can_submit"`
	CanRate   bool `json:"can_rate"`
}
