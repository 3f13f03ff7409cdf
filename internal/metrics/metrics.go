// Package metrics holds Prometheus instruments that are used across the
// persistence layer.  All collectors are registered with the global
// registry, so importing this package is enough to expose them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	StatementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenantstore_statements_total",
			Help: "Cumulative number of statements issued to a datasource.",
		}, []string{"datasource", "op"})

	StatementErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenantstore_statement_errors_total",
			Help: "Cumulative number of statements that returned an error.",
		}, []string{"datasource", "op"})

	StatementDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tenantstore_statement_duration_seconds",
			Help:    "Latency of statements issued to a datasource.",
			Buckets: prometheus.DefBuckets,
		}, []string{"datasource", "op"})

	IDsGeneratedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tenantstore_ids_generated_total",
			Help: "Cumulative number of snowflake ids handed out.",
		})

	IDClockRegressionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tenantstore_id_clock_regressions_total",
			Help: "Clock rollbacks beyond tolerance seen by the id generator.",
		})

	IDSequenceBorrowsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tenantstore_id_sequence_borrows_total",
			Help: "Times the id generator borrowed a future millisecond.",
		})

	TenantContextMissingTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenantstore_tenant_context_missing_total",
			Help: "Multi-tenant operations rejected for lack of a tenant.",
		}, []string{"table"})
)

func init() {
	prometheus.MustRegister(
		StatementsTotal,
		StatementErrorsTotal,
		StatementDuration,
		IDsGeneratedTotal,
		IDClockRegressionsTotal,
		IDSequenceBorrowsTotal,
		TenantContextMissingTotal,
	)
}
