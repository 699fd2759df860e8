// Package metrics holds the Prometheus collectors for the ingestion
// pipeline.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	DocumentsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docsmith",
			Name:      "documents_processed_total",
			Help:      "Total number of document pipeline runs by terminal status",
		},
		[]string{"status"},
	)

	ProcessingDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "docsmith",
			Name:      "processing_duration_seconds",
			Help:      "End-to-end pipeline run duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	EmbeddingBatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docsmith",
			Name:      "embedding_batches_total",
			Help:      "Total embedding provider batch calls",
		},
		[]string{"status"},
	)

	ExtractionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docsmith",
			Name:      "extraction_total",
			Help:      "Total extraction attempts by method and status",
		},
		[]string{"method", "status"},
	)
)

// Register adds all pipeline collectors to the given registry.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		DocumentsProcessedTotal,
		ProcessingDurationSeconds,
		EmbeddingBatchesTotal,
		ExtractionTotal,
	)
}
