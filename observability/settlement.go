package observability

import (
	"math/big"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SettlementMetrics wraps collectors tracking the settlement engine.
type SettlementMetrics struct {
	operations    *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	errors        *prometheus.CounterVec
	distributions *prometheus.CounterVec
	volume        *prometheus.CounterVec
	revocations   prometheus.Counter
	sinkFailures  *prometheus.CounterVec
	inFlight      prometheus.Gauge
	pauseEngaged  prometheus.Gauge
}

// Settlement exposes the metrics registry for the settlement engine.
func Settlement() *SettlementMetrics {
	settlementMetricsOnce.Do(func() {
		settlementRegistry = &SettlementMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "settlement",
				Name:      "operations_total",
				Help:      "Count of settlement operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "settlement",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for settlement operations.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "settlement",
				Name:      "errors_total",
				Help:      "Count of rejected settlement operations segmented by operation and error kind.",
			}, []string{"operation", "kind"}),
			distributions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "settlement",
				Name:      "distributions_total",
				Help:      "Count of distributed payments segmented by sale type.",
			}, []string{"sale_type"}),
			volume: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "settlement",
				Name:      "volume_wei_total",
				Help:      "Value moved through the ledger in wei segmented by flow.",
			}, []string{"flow"}),
			revocations: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "settlement",
				Name:      "license_revocations_total",
				Help:      "Count of licenses revoked for missed payments.",
			}),
			sinkFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "settlement",
				Name:      "sink_failures_total",
				Help:      "Count of outbound value transfers that failed segmented by purpose.",
			}, []string{"purpose"}),
			inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "settlement",
				Name:      "withdrawals_in_flight",
				Help:      "Number of reserved withdrawals awaiting transfer.",
			}),
			pauseEngaged: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "settlement",
				Name:      "pause_engaged",
				Help:      "Indicates whether the marketplace pause toggle is active (1) or not (0).",
			}),
		}
		prometheus.MustRegister(
			settlementRegistry.operations,
			settlementRegistry.latency,
			settlementRegistry.errors,
			settlementRegistry.distributions,
			settlementRegistry.volume,
			settlementRegistry.revocations,
			settlementRegistry.sinkFailures,
			settlementRegistry.inFlight,
			settlementRegistry.pauseEngaged,
		)
	})
	return settlementRegistry
}

// Observe records an operation outcome. kind is empty for successes.
func (m *SettlementMetrics) Observe(operation string, duration time.Duration, kind string) {
	if m == nil {
		return
	}
	op := label(operation, "unknown")
	outcome := "success"
	if kind != "" {
		outcome = "error"
		m.errors.WithLabelValues(op, label(kind, "internal")).Inc()
	}
	m.operations.WithLabelValues(op, outcome).Inc()
	m.latency.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordDistribution counts a distributed payment and its value.
func (m *SettlementMetrics) RecordDistribution(saleType string, amount *big.Int) {
	if m == nil {
		return
	}
	m.distributions.WithLabelValues(label(saleType, "unknown")).Inc()
	m.volume.WithLabelValues("distributed").Add(bigToFloat(amount))
}

// RecordWithdrawal adds a completed withdrawal to the volume counters.
func (m *SettlementMetrics) RecordWithdrawal(total, penalty *big.Int) {
	if m == nil {
		return
	}
	m.volume.WithLabelValues("withdrawn").Add(bigToFloat(total))
	if penalty != nil && penalty.Sign() > 0 {
		m.volume.WithLabelValues("penalty").Add(bigToFloat(penalty))
	}
}

// RecordRefund adds a refund to the volume counters.
func (m *SettlementMetrics) RecordRefund(amount *big.Int) {
	if m == nil {
		return
	}
	m.volume.WithLabelValues("refunded").Add(bigToFloat(amount))
}

// RecordRevocation counts an automatic license revocation.
func (m *SettlementMetrics) RecordRevocation() {
	if m == nil {
		return
	}
	m.revocations.Inc()
}

// RecordSinkFailure counts a failed outbound transfer.
func (m *SettlementMetrics) RecordSinkFailure(purpose string) {
	if m == nil {
		return
	}
	m.sinkFailures.WithLabelValues(label(purpose, "unspecified")).Inc()
}

// SetInFlight reports the number of reserved withdrawals.
func (m *SettlementMetrics) SetInFlight(n int) {
	if m == nil {
		return
	}
	m.inFlight.Set(float64(n))
}

// SetPause toggles the pause_engaged gauge.
func (m *SettlementMetrics) SetPause(engaged bool) {
	if m == nil {
		return
	}
	if engaged {
		m.pauseEngaged.Set(1)
		return
	}
	m.pauseEngaged.Set(0)
}
