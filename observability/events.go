package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type eventMetrics struct {
	transfers *prometheus.CounterVec
	dropped   prometheus.Counter
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking value movements and event fan-out.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vsa",
				Subsystem: "events",
				Name:      "transfers_total",
				Help:      "Vault escrow and payout transfers segmented by asset and memo.",
			}, []string{"asset", "memo"}),
			dropped: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "vsa",
				Subsystem: "events",
				Name:      "subscriber_drops_total",
				Help:      "Events dropped because a subscriber fell behind.",
			}),
		}
		prometheus.MustRegister(eventRegistry.transfers, eventRegistry.dropped)
	})
	return eventRegistry
}

// RecordTransfer increments the transfer counter for the supplied asset ticker.
func (m *eventMetrics) RecordTransfer(asset, memo string) {
	if m == nil {
		return
	}
	normalized := strings.TrimSpace(strings.ToUpper(asset))
	if normalized == "" {
		normalized = "UNKNOWN"
	}
	if memo == "" {
		memo = "transfer"
	}
	m.transfers.WithLabelValues(normalized, memo).Inc()
}

// RecordDropped counts events a slow subscriber missed.
func (m *eventMetrics) RecordDropped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.dropped.Add(float64(n))
}
