package observability

import (
	"fmt"
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

// AuctionMetrics tracks auction lifecycle activity and escrowed value.
type AuctionMetrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	bids       *prometheus.CounterVec
	settled    *prometheus.CounterVec
	refunds    *prometheus.CounterVec
	escrow     *prometheus.GaugeVec
	events     *prometheus.CounterVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	auctionMetricsOnce sync.Once
	auctionRegistry    *AuctionMetrics
)

// ModuleMetrics returns the lazily-initialised module metrics registry used to
// record RPC module activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vsa",
				Subsystem: "module",
				Name:      "requests_total",
				Help:      "Total JSON-RPC module requests segmented by module and method.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vsa",
				Subsystem: "module",
				Name:      "errors_total",
				Help:      "Total JSON-RPC module errors segmented by module, method, and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "vsa",
				Subsystem: "module",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC module handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vsa",
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

// Observe records the outcome of a module request. Status is the JSON-RPC
// error code, or zero on success.
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
	if status != 0 {
		outcome = "error"
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied module and
// reason.
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

// Auction returns the lazily registered auction metrics.
func Auction() *AuctionMetrics {
	auctionMetricsOnce.Do(func() {
		auctionRegistry = &AuctionMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vsa",
				Subsystem: "auction",
				Name:      "operations_total",
				Help:      "Auction state transitions segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "vsa",
				Subsystem: "auction",
				Name:      "operation_duration_seconds",
				Help:      "Time spent applying auction operations, commit included.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			bids: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vsa",
				Subsystem: "auction",
				Name:      "bids_total",
				Help:      "Sealed bids placed and revealed, by stage.",
			}, []string{"stage"}),
			settled: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vsa",
				Subsystem: "auction",
				Name:      "settlements_total",
				Help:      "Settled auctions by currency.",
			}, []string{"currency"}),
			refunds: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vsa",
				Subsystem: "auction",
				Name:      "refunds_total",
				Help:      "Successful refund claims by currency.",
			}, []string{"currency"}),
			escrow: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "vsa",
				Subsystem: "auction",
				Name:      "escrow_balance",
				Help:      "Value currently held in each auction vault, in smallest units.",
			}, []string{"currency"}),
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vsa",
				Subsystem: "events",
				Name:      "published_total",
				Help:      "Committed events published to subscribers by type.",
			}, []string{"type"}),
		}
		prometheus.MustRegister(
			auctionRegistry.operations,
			auctionRegistry.duration,
			auctionRegistry.bids,
			auctionRegistry.settled,
			auctionRegistry.refunds,
			auctionRegistry.escrow,
			auctionRegistry.events,
		)
	})
	return auctionRegistry
}

// ObserveOperation records one node operation.
func (m *AuctionMetrics) ObserveOperation(operation string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.duration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordEvent counts a published event and updates the typed counters.
func (m *AuctionMetrics) RecordEvent(eventType string, attrs map[string]string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(eventType).Inc()
	currency := strings.ToUpper(attrs["currency"])
	switch eventType {
	case "auction.bid":
		m.bids.WithLabelValues("placed").Inc()
	case "auction.revealed":
		m.bids.WithLabelValues("revealed").Inc()
	case "auction.settled":
		m.settled.WithLabelValues(currency).Inc()
	case "auction.refund_claimed":
		m.refunds.WithLabelValues(currency).Inc()
	}
}

// SetEscrow publishes the vault balance of a currency.
func (m *AuctionMetrics) SetEscrow(currency string, amount *big.Int) {
	if m == nil || amount == nil {
		return
	}
	value, _ := new(big.Float).SetInt(amount).Float64()
	m.escrow.WithLabelValues(strings.ToUpper(currency)).Set(value)
}
