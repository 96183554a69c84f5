package observability

import (
	"fmt"
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

	rolloverMetricsOnce sync.Once
	rolloverRegistry    *RolloverMetrics
)

// ModuleMetrics returns the lazily-initialised registry recording query API
// activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "pawn",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total query API requests segmented by route and outcome.",
			}, []string{"module", "route", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "pawn",
				Subsystem: "rpc",
				Name:      "errors_total",
				Help:      "Total query API errors segmented by route and status code.",
			}, []string{"module", "route", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "pawn",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for query API handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "route"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "pawn",
				Subsystem: "rpc",
				Name:      "throttles_total",
				Help:      "Count of requests rejected by the rate limiter.",
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

// Observe records the outcome of a request. The status code should be the
// HTTP status that was ultimately written to the response writer.
func (m *moduleMetrics) Observe(module, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if route == "" {
		route = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(module, route, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(module, route, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(module, route).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter. Reasons should be stable
// strings such as "rate_limit".
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

// RolloverMetrics tracks loan migrations between ledgers.
type RolloverMetrics struct {
	attempts *prometheus.CounterVec
	latency  prometheus.Histogram
	fees     *prometheus.CounterVec
	inflight prometheus.Gauge
}

// Rollover returns the singleton rollover metrics registry.
func Rollover() *RolloverMetrics {
	rolloverMetricsOnce.Do(func() {
		rolloverRegistry = &RolloverMetrics{
			attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "pawn",
				Subsystem: "rollover",
				Name:      "attempts_total",
				Help:      "Rollover attempts segmented by outcome and error kind.",
			}, []string{"outcome", "kind"}),
			latency: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "pawn",
				Subsystem: "rollover",
				Name:      "duration_seconds",
				Help:      "Latency distribution for rollover units.",
				Buckets:   prometheus.DefBuckets,
			}),
			fees: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "pawn",
				Subsystem: "rollover",
				Name:      "flash_fees_total",
				Help:      "Flash liquidity fees paid by committed rollovers, in base units.",
			}, []string{"currency"}),
			inflight: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "pawn",
				Subsystem: "rollover",
				Name:      "inflight",
				Help:      "Rollovers currently executing.",
			}),
		}
		prometheus.MustRegister(
			rolloverRegistry.attempts,
			rolloverRegistry.latency,
			rolloverRegistry.fees,
			rolloverRegistry.inflight,
		)
	})
	return rolloverRegistry
}

// Observe records one finished rollover. kind is the error family and is
// ignored on success.
func (m *RolloverMetrics) Observe(kind string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "committed"
	if err != nil {
		outcome = "aborted"
		if kind == "" {
			kind = "unknown"
		}
	} else {
		kind = "none"
	}
	m.attempts.WithLabelValues(outcome, kind).Inc()
	m.latency.Observe(duration.Seconds())
}

// RecordFee adds a committed flash fee. Fees beyond float precision are
// approximated.
func (m *RolloverMetrics) RecordFee(currency string, fee float64) {
	if m == nil || fee <= 0 {
		return
	}
	m.fees.WithLabelValues(currency).Add(fee)
}

// Begin marks a rollover in flight and returns the matching completion func.
func (m *RolloverMetrics) Begin() func() {
	if m == nil {
		return func() {}
	}
	m.inflight.Inc()
	return m.inflight.Dec
}
