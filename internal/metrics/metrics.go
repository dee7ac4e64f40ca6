// Package metrics provides Prometheus instrumentation for the referral ledger.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Result labels
const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
	ResultReplayed = "replayed"
	ResultError    = "error"
)

var (
	// PlacementsTotal counts placement attempts by mode (referral, auto, root) and result.
	PlacementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "referral_placements_total",
		Help: "Total member placement attempts",
	}, []string{"mode", "result"})

	DistributionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "referral_distributions_total",
		Help: "Total distribution runs",
	}, []string{"strategy", "result"})

	// CreditsTotal counts credits written, partitioned by ledger kind.
	CreditsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "referral_credits_total",
		Help: "Total commission and payout credits written",
	}, []string{"kind"})

	DistributionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "referral_distribution_duration_seconds",
		Help:    "Distribution transaction duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"strategy"})

	// TransitionsTotal counts ledger review decisions by kind and target status.
	TransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "referral_ledger_transitions_total",
		Help: "Total ledger entry approvals and rejections",
	}, []string{"kind", "status"})

	PaymentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "referral_payment_confirmations_total",
		Help: "Total payment confirmations processed",
	}, []string{"result"})

	OutboxPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "referral_outbox_messages_total",
		Help: "Outbox messages handled by the poller",
	}, []string{"result"})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "referral_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "route", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "referral_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "route"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
