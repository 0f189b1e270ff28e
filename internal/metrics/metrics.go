package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// IngestMetrics holds the Prometheus instruments for the ingestion path.
type IngestMetrics struct {
	EventsTotal  *prometheus.CounterVec
	BatchSize    prometheus.Histogram
	BatchSeconds prometheus.Histogram
}

// NewIngestMetrics initializes and registers the Prometheus metrics.
func NewIngestMetrics() *IngestMetrics {
	return &IngestMetrics{
		EventsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "factory_events",
			Subsystem: "ingest",
			Name:      "events_total",
			Help:      "Total number of ingested events by disposition.",
		}, []string{"disposition"}), // accepted, deduped, updated, rejected
		BatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "factory_events",
			Subsystem: "ingest",
			Name:      "batch_size",
			Help:      "Number of records per submitted batch.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
		BatchSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "factory_events",
			Subsystem: "ingest",
			Name:      "batch_duration_seconds",
			Help:      "Wall time spent reconciling and persisting one batch.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// ObserveBatch records one completed batch.
func (m *IngestMetrics) ObserveBatch(accepted, deduped, updated, rejected int, seconds float64) {
	if m == nil {
		return
	}
	m.EventsTotal.WithLabelValues("accepted").Add(float64(accepted))
	m.EventsTotal.WithLabelValues("deduped").Add(float64(deduped))
	m.EventsTotal.WithLabelValues("updated").Add(float64(updated))
	m.EventsTotal.WithLabelValues("rejected").Add(float64(rejected))
	m.BatchSize.Observe(float64(accepted + deduped + updated + rejected))
	m.BatchSeconds.Observe(seconds)
}
