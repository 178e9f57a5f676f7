package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the Prometheus collectors for gateway traffic and payment
// reconciliation. A nil *Metrics is valid and records nothing.
type Metrics struct {
	gatewayRequests *prometheus.CounterVec
	gatewayLatency  *prometheus.HistogramVec
	reconciliations *prometheus.CounterVec
	tokenFetches    prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		gatewayRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "billing",
			Subsystem: "daraja",
			Name:      "requests_total",
			Help:      "Outbound Daraja requests by operation and result.",
		}, []string{"operation", "result"}),
		gatewayLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "billing",
			Subsystem: "daraja",
			Name:      "request_duration_seconds",
			Help:      "Latency of outbound Daraja requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		reconciliations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "billing",
			Subsystem: "payments",
			Name:      "reconciliations_total",
			Help:      "Payment outcomes applied, by source and outcome.",
		}, []string{"source", "outcome"}),
		tokenFetches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "billing",
			Subsystem: "daraja",
			Name:      "token_fetches_total",
			Help:      "OAuth token fetches against the Daraja API.",
		}),
	}
	reg.MustRegister(m.gatewayRequests, m.gatewayLatency, m.reconciliations, m.tokenFetches)
	return m
}

// ObserveGateway records one outbound gateway call.
func (m *Metrics) ObserveGateway(operation, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.gatewayRequests.WithLabelValues(operation, result).Inc()
	m.gatewayLatency.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// Reconciled records an applied payment outcome.
func (m *Metrics) Reconciled(source, outcome string) {
	if m == nil {
		return
	}
	m.reconciliations.WithLabelValues(source, outcome).Inc()
}

// TokenFetched records an OAuth token fetch.
func (m *Metrics) TokenFetched() {
	if m == nil {
		return
	}
	m.tokenFetches.Inc()
}
