package generation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var generationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "pawtrait",
	Subsystem: "generation",
	Name:      "requests_total",
	Help:      "Portrait generations by final outcome.",
}, []string{"outcome"})

func observe(outcome string) {
	generationsTotal.WithLabelValues(outcome).Inc()
}
