package payment

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var outcomes = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "payment_deposit_outcomes_total",
	Help: "Deposit confirmations processed, by source (webhook|reconcile) and outcome.",
}, []string{"source", "outcome"})

func observe(source string, o Outcome) {
	outcomes.WithLabelValues(source, string(o)).Inc()
}
