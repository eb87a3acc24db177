package settings

import "time"

// SingletonID is the primary key of the only platform_settings row.
const SingletonID = 1

// PlatformSettings is the platform economics snapshot. All amounts are in
// the smallest currency unit.
type PlatformSettings struct {
	ID                int64     `gorm:"column:id;primaryKey;autoIncrement:false" json:"-"`
	PlatformFee       int64     `gorm:"column:platform_fee;not null" json:"platform_fee"`
	MinimumDeposit    int64     `gorm:"column:minimum_deposit;not null" json:"minimum_deposit"`
	MinimumWithdrawal int64     `gorm:"column:minimum_withdrawal;not null" json:"minimum_withdrawal"`
	MaximumWithdrawal int64     `gorm:"column:maximum_withdrawal;not null" json:"maximum_withdrawal"`
	WithdrawalFee     int64     `gorm:"column:withdrawal_fee;not null" json:"withdrawal_fee"`
	UpdatedAt         time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (PlatformSettings) TableName() string {
	return "platform_settings"
}

type UpdateSettingsRequest struct {
	PlatformFee       *int64 `json:"platform_fee" binding:"required,gte=0"`
	MinimumDeposit    *int64 `json:"minimum_deposit" binding:"required,gte=1"`
	MinimumWithdrawal *int64 `json:"minimum_withdrawal" binding:"required,gte=1"`
	MaximumWithdrawal *int64 `json:"maximum_withdrawal" binding:"required,gte=1"`
	WithdrawalFee     *int64 `json:"withdrawal_fee" binding:"required,gte=0"`
}
