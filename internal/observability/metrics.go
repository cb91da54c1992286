// Package observability holds the engine's prometheus collectors.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FeesGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "condoledger",
		Name:      "fees_generated_total",
		Help:      "Fees materialized by the generation engine.",
	}, []string{"kind"})

	FeesSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "condoledger",
		Name:      "fees_skipped_total",
		Help:      "Fee generations skipped because the fee already existed.",
	}, []string{"kind"})

	PaymentsAllocated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "condoledger",
		Name:      "payments_allocated_total",
		Help:      "Payments applied by the allocation engine.",
	})

	JobErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "condoledger",
		Name:      "job_errors_total",
		Help:      "Per-entity errors observed during batch jobs.",
	}, []string{"job"})
)
