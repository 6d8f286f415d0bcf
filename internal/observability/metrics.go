// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Snapshot metrics
	SnapshotsSaved      *prometheus.CounterVec
	SnapshotSaveErrors  *prometheus.CounterVec
	SnapshotsLoaded     prometheus.Counter
	SnapshotLoadErrors  *prometheus.CounterVec
	SnapshotQueries     prometheus.Counter
	OrphanedPayloads    prometheus.Counter
	PayloadBytesWritten prometheus.Counter

	// Classification metrics
	ClassificationWarnings prometheus.Counter

	// Training metrics
	RecordsGenerated *prometheus.CounterVec
	GenerationErrors prometheus.Counter
	RecordsValidated prometheus.Counter

	// Export metrics
	ExportsCompleted *prometheus.CounterVec
	ExportErrors     *prometheus.CounterVec
	RecordsExported  prometheus.Counter

	// Latency metrics
	SaveLatency     prometheus.Histogram
	LoadLatency     prometheus.Histogram
	GenerateLatency prometheus.Histogram
	ExportLatency   prometheus.Histogram

	// Feed metrics
	FeedSubscribers    prometheus.Gauge
	FeedEventsFanned   prometheus.Counter
	FeedDroppedClients prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "market_snapshot_lab"
	}

	return &Metrics{
		// Snapshot metrics
		SnapshotsSaved: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshots",
			Name:      "saved_total",
			Help:      "Total number of snapshots saved by analysis type",
		}, []string{"analysis_type"}),
		SnapshotSaveErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshots",
			Name:      "save_errors_total",
			Help:      "Total number of snapshot save failures by stage",
		}, []string{"stage"}),
		SnapshotsLoaded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshots",
			Name:      "loaded_total",
			Help:      "Total number of snapshots loaded with payloads",
		}),
		SnapshotLoadErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshots",
			Name:      "load_errors_total",
			Help:      "Total number of snapshot load failures by reason",
		}, []string{"reason"}),
		SnapshotQueries: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshots",
			Name:      "queries_total",
			Help:      "Total number of snapshot metadata queries",
		}),
		OrphanedPayloads: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshots",
			Name:      "orphaned_payloads_total",
			Help:      "Total number of payload blobs written whose index insert failed",
		}),
		PayloadBytesWritten: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshots",
			Name:      "payload_bytes_written_total",
			Help:      "Total uncompressed payload bytes written to blob storage",
		}),

		// Classification metrics
		ClassificationWarnings: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "classify",
			Name:      "warnings_total",
			Help:      "Total number of default substitutions applied during classification",
		}),

		// Training metrics
		RecordsGenerated: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "training",
			Name:      "records_generated_total",
			Help:      "Total number of training records generated by category",
		}, []string{"category"}),
		GenerationErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "training",
			Name:      "generation_errors_total",
			Help:      "Total number of failed generation runs",
		}),
		RecordsValidated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "training",
			Name:      "records_validated_total",
			Help:      "Total number of records flagged human-validated",
		}),

		// Export metrics
		ExportsCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "export",
			Name:      "completed_total",
			Help:      "Total number of completed exports by format",
		}, []string{"format"}),
		ExportErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "export",
			Name:      "errors_total",
			Help:      "Total number of export failures by reason",
		}, []string{"reason"}),
		RecordsExported: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "export",
			Name:      "records_exported_total",
			Help:      "Total number of training records written to export artifacts",
		}),

		// Latency metrics
		SaveLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "snapshots",
			Name:      "save_latency_seconds",
			Help:      "Snapshot save latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		LoadLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "snapshots",
			Name:      "load_latency_seconds",
			Help:      "Snapshot load latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		GenerateLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "training",
			Name:      "generate_latency_seconds",
			Help:      "Training record generation latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		ExportLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "export",
			Name:      "latency_seconds",
			Help:      "Export run latency in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
		}),

		// Feed metrics
		FeedSubscribers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "subscribers",
			Help:      "Current number of connected feed subscribers",
		}),
		FeedEventsFanned: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "events_fanned_total",
			Help:      "Total number of events fanned out to subscribers",
		}),
		FeedDroppedClients: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "dropped_clients_total",
			Help:      "Total number of subscribers dropped for slow consumption",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordSnapshotSaved increments the saved counter for an analysis type.
func RecordSnapshotSaved(analysisType string) {
	DefaultMetrics.SnapshotsSaved.WithLabelValues(analysisType).Inc()
}

// RecordSaveError increments the save error counter for a pipeline stage.
func RecordSaveError(stage string) {
	DefaultMetrics.SnapshotSaveErrors.WithLabelValues(stage).Inc()
}

// RecordOrphanedPayload increments the orphaned payload counter.
func RecordOrphanedPayload() {
	DefaultMetrics.OrphanedPayloads.Inc()
}

// RecordClassificationWarning increments the default-substitution counter.
func RecordClassificationWarning() {
	DefaultMetrics.ClassificationWarnings.Inc()
}

// RecordGenerated increments the generated-records counter for a category.
func RecordGenerated(category string) {
	DefaultMetrics.RecordsGenerated.WithLabelValues(category).Inc()
}

// RecordExportCompleted increments the completed-exports counter for a format.
func RecordExportCompleted(format string, records int) {
	DefaultMetrics.ExportsCompleted.WithLabelValues(format).Inc()
	DefaultMetrics.RecordsExported.Add(float64(records))
}
