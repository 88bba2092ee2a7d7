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

const namespace = "stakeoracle"

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	predictionMetricsOnce sync.Once
	predictionRegistry    *PredictionMetrics

	oracleMetricsOnce sync.Once
	oracleRegistry    *OracleMetrics
)

// ModuleMetrics returns the lazily-initialised module metrics registry used to
// record API module activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "module",
				Name:      "requests_total",
				Help:      "Total API module requests segmented by module and method.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "module",
				Name:      "errors_total",
				Help:      "Total API module errors segmented by module, method, and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "module",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for API module handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "module",
				Name:      "throttles_total",
				Help:      "Count of module requests rejected due to throttling policies.",
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

// Observe records the outcome of a module request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *moduleMetrics) Observe(module, method string, status int, duration time.Duration) {
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
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", status)).Inc()
	}
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

// PredictionMetrics captures engine level activity: operation outcomes,
// settlement amounts and custody balances.
type PredictionMetrics struct {
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	payouts    *prometheus.CounterVec
	burned     *prometheus.CounterVec
	custody    *prometheus.GaugeVec
	transfers  *prometheus.CounterVec
}

// Prediction returns the singleton metrics registry for the prediction node.
func Prediction() *PredictionMetrics {
	predictionMetricsOnce.Do(func() {
		predictionRegistry = &PredictionMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "prediction",
				Name:      "operations_total",
				Help:      "Count of engine operations segmented by operation and outcome kind.",
			}, []string{"operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "prediction",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for engine operations including commit.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			payouts: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "prediction",
				Name:      "payout_units_total",
				Help:      "Settlement token units paid out of custody segmented by payout rule.",
			}, []string{"asset", "rule"}),
			burned: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "prediction",
				Name:      "burned_units_total",
				Help:      "Stake token units destroyed by losing withdrawals.",
			}, []string{"asset"}),
			custody: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "prediction",
				Name:      "custody_balance",
				Help:      "Custody account balance after the last committed operation.",
			}, []string{"asset"}),
			transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "prediction",
				Name:      "token_transfers_total",
				Help:      "Count of committed token transfers segmented by asset.",
			}, []string{"asset"}),
		}
		prometheus.MustRegister(
			predictionRegistry.operations,
			predictionRegistry.latency,
			predictionRegistry.payouts,
			predictionRegistry.burned,
			predictionRegistry.custody,
			predictionRegistry.transfers,
		)
	})
	return predictionRegistry
}

// ObserveOperation records an engine call. outcome is "success" or the error
// kind reported by the engine.
func (m *PredictionMetrics) ObserveOperation(operation, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.operations.WithLabelValues(op, outcome).Inc()
	m.latency.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordSettlement adds the payout and burn of a committed withdrawal.
func (m *PredictionMetrics) RecordSettlement(payoutAsset, rule string, payout *big.Int, burnAsset string, burn *big.Int) {
	if m == nil {
		return
	}
	if value := bigToFloat(payout); value > 0 {
		m.payouts.WithLabelValues(labelAsset(payoutAsset), rule).Add(value)
	}
	if value := bigToFloat(burn); value > 0 {
		m.burned.WithLabelValues(labelAsset(burnAsset)).Add(value)
	}
}

// RecordCustody updates the custody balance gauge for an asset.
func (m *PredictionMetrics) RecordCustody(asset string, balance *big.Int) {
	if m == nil {
		return
	}
	m.custody.WithLabelValues(labelAsset(asset)).Set(bigToFloat(balance))
}

// RecordTransfer increments the transfer counter for the supplied asset.
func (m *PredictionMetrics) RecordTransfer(asset string) {
	if m == nil {
		return
	}
	m.transfers.WithLabelValues(labelAsset(asset)).Inc()
}

// OracleMetrics tracks loan oracle reads.
type OracleMetrics struct {
	reads   *prometheus.CounterVec
	latency prometheus.Histogram
}

// Oracle returns the metrics registry for loan oracle reads.
func Oracle() *OracleMetrics {
	oracleMetricsOnce.Do(func() {
		oracleRegistry = &OracleMetrics{
			reads: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "oracle",
				Name:      "status_reads_total",
				Help:      "Count of loan status reads segmented by reported status or error.",
			}, []string{"result"}),
			latency: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "oracle",
				Name:      "status_read_duration_seconds",
				Help:      "Latency distribution for loan status reads including retries.",
				Buckets:   prometheus.DefBuckets,
			}),
		}
		prometheus.MustRegister(oracleRegistry.reads, oracleRegistry.latency)
	})
	return oracleRegistry
}

// ObserveRead records a status read. result is the reported status label or
// "error".
func (m *OracleMetrics) ObserveRead(result string, duration time.Duration) {
	if m == nil {
		return
	}
	if result == "" {
		result = "unknown"
	}
	m.reads.WithLabelValues(result).Inc()
	m.latency.Observe(duration.Seconds())
}

func labelAsset(asset string) string {
	trimmed := strings.TrimSpace(asset)
	if trimmed == "" {
		return "UNKNOWN"
	}
	return strings.ToUpper(trimmed)
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
