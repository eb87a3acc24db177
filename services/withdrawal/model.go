package withdrawal

import "taskmarket-ledger/services/ledger"

type WithdrawalRequest struct {
	Amount int64 `json:"amount" binding:"required,gt=0"`
}

// WithdrawalResponse reports what the user will receive. The fee comes out
// of the payout; the balance is debited by the full amount at settlement.
type WithdrawalResponse struct {
	Transaction   *ledger.Transaction `json:"transaction"`
	WithdrawalFee int64               `json:"withdrawal_fee"`
	NetPayout     int64               `json:"net_payout"`
}

type SettleRequest struct {
	TransactionID string `json:"transaction_id" binding:"required"`
	Approve       bool   `json:"approve"`
	Note          string `json:"note" binding:"max=500"`
}

type settleBody struct {
	Approve *bool  `json:"approve" binding:"required"`
	Note    string `json:"note" binding:"max=500"`
}

// settlePayload is the withdrawal:settle wire shape. Approve is a pointer so a
// producer that leaves it out is refused instead of read as a rejection.
type settlePayload struct {
	TransactionID string `json:"transaction_id"`
	Approve       *bool  `json:"approve"`
	Note          string `json:"note"`
}
