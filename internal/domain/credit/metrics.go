package credit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeApplied      = "applied"
	outcomeReplayed     = string(ReasonAlreadyApplied)
	outcomeInsufficient = string(ReasonInsufficientBalance)
	outcomeError        = "error"
)

var operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "pawtrait",
	Subsystem: "ledger",
	Name:      "operations_total",
	Help:      "Credit ledger Apply calls by kind and outcome.",
}, []string{"kind", "outcome"})

func observe(kind Kind, outcome string) {
	switch kind {
	case KindAdd, KindSubtract, KindSet:
	default:
		kind = "invalid"
	}
	operationsTotal.WithLabelValues(string(kind), outcome).Inc()
}
