// Package metrics exposes the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	IntakeCommitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "labcore_intake_committed_total",
		Help: "Sample intakes that fully committed.",
	})

	IntakeRolledBack = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "labcore_intake_rolled_back_total",
		Help: "Sample intakes that failed and were compensated.",
	}, []string{"reason"})

	IntakeConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "labcore_intake_number_conflicts_total",
		Help: "Sample number uniqueness conflicts at persist time.",
	})

	CompensationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "labcore_compensation_failures_total",
		Help: "Compensating actions that exhausted their retries.",
	})

	LedgerPostFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "labcore_ledger_post_failures_total",
		Help: "Finance ledger postings that failed after commit.",
	})

	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "labcore_http_request_duration_seconds",
		Help:    "HTTP request latency by method and status.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "status"})
)
