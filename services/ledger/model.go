package ledger

import (
	"time"
)

type TransactionType string

const (
	TypeDeposit          TransactionType = "deposit"
	TypeWithdrawal       TransactionType = "withdrawal"
	TypeCampaignCreation TransactionType = "campaign_creation"
	TypeEarning          TransactionType = "earning"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TypeDeposit, TypeWithdrawal, TypeCampaignCreation, TypeEarning:
		return true
	}
	return false
}

type TransactionStatus string

const (
	StatusPending  TransactionStatus = "pending"
	StatusApproved TransactionStatus = "approved"
	StatusRejected TransactionStatus = "rejected"
)

// Account holds the wallet balance of a user, in the smallest currency unit.
type Account struct {
	ID            string    `gorm:"column:id;primaryKey;size:64" json:"user_id"`
	WalletBalance int64     `gorm:"column:wallet_balance;not null;default:0;check:chk_accounts_wallet_balance,wallet_balance >= 0" json:"wallet_balance"`
	CreatedAt     time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt     time.Time `gorm:"column:updated_at" json:"updated_at"`
}

// Transaction is a ledger entry. Its id doubles as the payment provider
// tx_ref and is the idempotency anchor for settlement.
type Transaction struct {
	ID          string            `gorm:"column:id;primaryKey;size:32" json:"id"`
	UserID      string            `gorm:"column:user_id;size:64;not null;index:idx_transactions_user_id" json:"user_id"`
	Amount      int64             `gorm:"column:amount;not null;check:chk_transactions_amount,amount > 0" json:"amount"`
	Type        TransactionType   `gorm:"column:type;size:32;not null" json:"type"`
	Status      TransactionStatus `gorm:"column:status;size:16;not null;index" json:"status"`
	Description string            `gorm:"column:description" json:"description"`
	CampaignID  *string           `gorm:"column:campaign_id;size:32;index" json:"campaign_id,omitempty"`
	CreatedAt   time.Time         `gorm:"column:created_at" json:"created_at"`
	UpdatedAt   time.Time         `gorm:"column:updated_at" json:"updated_at"`

	Account *Account `gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"-"`
}

// BalanceEffect is the signed delta an approved transaction applies to its
// owner's wallet.
func (t *Transaction) BalanceEffect() int64 {
	switch t.Type {
	case TypeDeposit, TypeEarning:
		return t.Amount
	default:
		return -t.Amount
	}
}

func (t *Transaction) IsPending() bool {
	return t.Status == StatusPending
}
