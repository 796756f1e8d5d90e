package observability

import (
	"fmt"
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	ledgerMetricsOnce sync.Once
	ledgerRegistry    *LedgerMetrics
)

// ModuleMetrics returns the lazily-initialised module metrics registry used to
// record RPC module activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "klub",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total JSON-RPC requests segmented by module and method.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "klub",
				Subsystem: "rpc",
				Name:      "errors_total",
				Help:      "Total JSON-RPC errors segmented by module, method, and error code.",
			}, []string{"module", "method", "code"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "klub",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "klub",
				Subsystem: "rpc",
				Name:      "throttles_total",
				Help:      "Count of requests rejected due to throttling policies.",
			}, []string{"module", "reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of a JSON-RPC request. code is the JSON-RPC
// error code, zero on success.
func (m *moduleMetrics) Observe(module, method string, code int, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if code != 0 {
		outcome = "error"
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", code)).Inc()
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied module and
// reason. Reasons should be stable strings such as "rate_limit" so dashboards
// and alerts remain consistent.
func (m *moduleMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(module, reason).Inc()
}

// LedgerMetrics tracks ledger transitions and the pool totals they produce.
type LedgerMetrics struct {
	transitions *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	pool        *prometheus.GaugeVec
	clients     prometheus.Gauge
	height      prometheus.Gauge
}

// Ledger exposes the metrics registry for ledger transitions.
func Ledger() *LedgerMetrics {
	ledgerMetricsOnce.Do(func() {
		ledgerRegistry = &LedgerMetrics{
			transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "klub",
				Subsystem: "ledger",
				Name:      "transitions_total",
				Help:      "Count of ledger transitions segmented by action and outcome.",
			}, []string{"action", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "klub",
				Subsystem: "ledger",
				Name:      "transition_duration_seconds",
				Help:      "Latency distribution for ledger transitions including commit.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"action"}),
			pool: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "klub",
				Subsystem: "ledger",
				Name:      "pool_amount",
				Help:      "Pool ledger totals in base units of the accepted denomination.",
			}, []string{"field"}),
			clients: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "klub",
				Subsystem: "ledger",
				Name:      "clients",
				Help:      "Number of depositor identities in the client index.",
			}),
			height: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "klub",
				Subsystem: "ledger",
				Name:      "committed_height",
				Help:      "Height of the last committed transition.",
			}),
		}
		prometheus.MustRegister(
			ledgerRegistry.transitions,
			ledgerRegistry.latency,
			ledgerRegistry.pool,
			ledgerRegistry.clients,
			ledgerRegistry.height,
		)
	})
	return ledgerRegistry
}

// ObserveTransition records one executed transition. Rejected transitions are
// labelled with a stable reason instead of the raw error text.
func (m *LedgerMetrics) ObserveTransition(action, reason string, duration time.Duration) {
	if m == nil {
		return
	}
	action = strings.TrimSpace(action)
	if action == "" {
		action = "unknown"
	}
	outcome := "committed"
	if reason = strings.TrimSpace(reason); reason != "" {
		outcome = reason
	}
	m.transitions.WithLabelValues(action, outcome).Inc()
	m.latency.WithLabelValues(action).Observe(duration.Seconds())
}

// RecordPool publishes the pool totals after a commit.
func (m *LedgerMetrics) RecordPool(totalAmount, totalStaked, pendingClaim *big.Int, clients int) {
	if m == nil {
		return
	}
	m.pool.WithLabelValues("total_amount").Set(bigToFloat(totalAmount))
	m.pool.WithLabelValues("total_staked").Set(bigToFloat(totalStaked))
	m.pool.WithLabelValues("total_pending_claim").Set(bigToFloat(pendingClaim))
	m.clients.Set(float64(clients))
}

// SetHeight records the last committed height.
func (m *LedgerMetrics) SetHeight(height uint64) {
	if m == nil {
		return
	}
	m.height.Set(float64(height))
}

func bigToFloat(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	floatVal, acc := new(big.Float).SetInt(value).Float64()
	if acc != big.Exact {
		// Guard against NaN/Inf when conversion fails.
		if math.IsNaN(floatVal) || math.IsInf(floatVal, 0) {
			return 0
		}
	}
	return floatVal
}
