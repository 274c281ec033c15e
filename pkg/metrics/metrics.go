package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "mailcore", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "mailcore", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
	// PatchResults counts pipeline outcomes; result is "ok" or a failure kind.
	PatchResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "mailcore", Name: "patch_results_total", Help: "Merge-patch outcomes by document kind and result."},
		[]string{"kind", "result"},
	)
	PatchRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "mailcore", Name: "patch_write_retries_total", Help: "Conditional writes retried after a concurrent revision change."},
		[]string{"kind"},
	)
	IndexFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "mailcore", Name: "index_write_failures_total", Help: "Search index writes that failed after a primary write."},
		[]string{"kind", "op"},
	)
	Reconciled = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "mailcore", Name: "index_reconciled_total", Help: "Reconciliation attempts by result."},
		[]string{"result"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(PatchResults)
	reg.MustRegister(PatchRetries)
	reg.MustRegister(IndexFailures)
	reg.MustRegister(Reconciled)
}
