package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// IntegrationMetrics covers the off-chain sinks fed from the committed event stream.
type IntegrationMetrics struct {
	webhookDeliveries *prometheus.CounterVec
	webhookFailures   *prometheus.CounterVec
	archivedEvents    *prometheus.CounterVec
	archiveLag        prometheus.Gauge
	exportRows        *prometheus.CounterVec
}

var (
	integrationsOnce     sync.Once
	integrationsRegistry *IntegrationMetrics
)

func Integrations() *IntegrationMetrics {
	integrationsOnce.Do(func() {
		integrationsRegistry = &IntegrationMetrics{
			webhookDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "vsa_webhook_deliveries_total",
				Help: "Webhook deliveries acknowledged by destination.",
			}, []string{"destination"}),
			webhookFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "vsa_webhook_failures_total",
				Help: "Number of failed webhook delivery attempts by destination.",
			}, []string{"destination"}),
			archivedEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "vsa_archive_events_total",
				Help: "Events persisted by the archive, split by whether they were new or duplicates.",
			}, []string{"result"}),
			archiveLag: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "vsa_archive_pending",
				Help: "Events queued for the archive writer.",
			}),
			exportRows: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "vsa_export_rows_total",
				Help: "Settlement rows written by export format.",
			}, []string{"format"}),
		}
		prometheus.MustRegister(
			integrationsRegistry.webhookDeliveries,
			integrationsRegistry.webhookFailures,
			integrationsRegistry.archivedEvents,
			integrationsRegistry.archiveLag,
			integrationsRegistry.exportRows,
		)
	})
	return integrationsRegistry
}

func (m *IntegrationMetrics) IncWebhookDelivery(destination string) {
	if m == nil {
		return
	}
	m.webhookDeliveries.WithLabelValues(label(destination)).Inc()
}

func (m *IntegrationMetrics) IncWebhookFailure(destination string) {
	if m == nil {
		return
	}
	m.webhookFailures.WithLabelValues(label(destination)).Inc()
}

func (m *IntegrationMetrics) ObserveArchived(inserted bool) {
	if m == nil {
		return
	}
	result := "duplicate"
	if inserted {
		result = "inserted"
	}
	m.archivedEvents.WithLabelValues(result).Inc()
}

func (m *IntegrationMetrics) SetArchivePending(n int) {
	if m == nil {
		return
	}
	m.archiveLag.Set(float64(n))
}

func (m *IntegrationMetrics) AddExportRows(format string, rows int) {
	if m == nil || rows <= 0 {
		return
	}
	m.exportRows.WithLabelValues(label(format)).Add(float64(rows))
}

func label(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
