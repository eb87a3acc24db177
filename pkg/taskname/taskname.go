package taskname

const (
	// Ledger
	TransactionApproved = "ledger:transaction:approved"

	// Payment
	DepositReconcile = "payment:deposit:reconcile"

	// Withdrawal
	WithdrawalSettle = "withdrawal:settle"
)

// Queues, highest weight first.
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)
