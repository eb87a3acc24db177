package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	settledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledger",
		Name:      "transactions_settled_total",
		Help:      "Transactions moved out of pending, by type and final status.",
	}, []string{"type", "status"})

	settledAmount = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledger",
		Name:      "settled_amount_total",
		Help:      "Sum of approved transaction amounts, by type.",
	}, []string{"type"})

	eventsConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledger",
		Name:      "approval_events_consumed_total",
		Help:      "Approval events processed by the worker.",
	}, []string{"type"})
)

func observeSettlement(t *Transaction) {
	settledTotal.WithLabelValues(string(t.Type), string(t.Status)).Inc()
	if t.Status == StatusApproved {
		settledAmount.WithLabelValues(string(t.Type)).Add(float64(t.Amount))
	}
}
