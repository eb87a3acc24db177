package payment

import (
	"bytes"
	"encoding/json"
	"time"

	"taskmarket-ledger/services/ledger"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// PaymentLog is the append-only audit trail of authentic provider
// deliveries. TransactionID is set when tx_ref matched a local transaction.
type PaymentLog struct {
	ID            string         `gorm:"column:id;primaryKey;size:36" json:"id"`
	TransactionID *string        `gorm:"column:transaction_id;size:32;index" json:"transaction_id,omitempty"`
	Event         string         `gorm:"column:event;size:64" json:"event"`
	ProviderTxID  string         `gorm:"column:provider_tx_id;size:64;index" json:"provider_tx_id"`
	TxRef         string         `gorm:"column:tx_ref;size:64" json:"tx_ref"`
	Payload       datatypes.JSON `gorm:"column:payload" json:"payload"`
	CreatedAt     time.Time      `gorm:"column:created_at" json:"created_at"`

	Transaction *ledger.Transaction `gorm:"foreignKey:TransactionID;references:ID;constraint:OnDelete:SET NULL" json:"-"`
}

// FlexibleID accepts a JSON string or number. Providers are inconsistent
// about quoting numeric identifiers.
type FlexibleID string

func (f *FlexibleID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = FlexibleID(n.String())
	return nil
}

type WebhookEvent struct {
	Event string      `json:"event"`
	Data  WebhookData `json:"data"`
}

type WebhookData struct {
	ID       FlexibleID      `json:"id"`
	TxRef    FlexibleID      `json:"tx_ref"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Status   string          `json:"status"`
}

// Outcome is what the gateway did with one delivery.
type Outcome string

const (
	OutcomeInvalidSignature   Outcome = "invalid_signature"
	OutcomeUnknownReference   Outcome = "unknown_reference"
	OutcomeAlreadySettled     Outcome = "already_settled"
	OutcomeNotDeposit         Outcome = "not_deposit"
	OutcomeVerificationFailed Outcome = "verification_failed"
	OutcomeProcessing         Outcome = "processing"
	OutcomeUnconfirmed        Outcome = "unconfirmed"
	OutcomeSettled            Outcome = "settled"
)

type DepositRequest struct {
	Amount int64 `json:"amount" binding:"required,gt=0"`
}

type DepositResponse struct {
	Transaction  *ledger.Transaction `json:"transaction"`
	RedirectLink string              `json:"redirect_link"`
}
