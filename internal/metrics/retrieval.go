package metrics

import "github.com/prometheus/client_golang/prometheus"

// Retrieval pipeline Prometheus metrics.
var (
	RetrievalRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragd",
			Name:      "retrieval_requests_total",
			Help:      "Total number of retrieval requests",
		},
		[]string{"mode", "status"},
	)

	RetrievalDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ragd",
			Name:      "retrieval_duration_seconds",
			Help:      "End-to-end retrieval duration in seconds",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"mode"},
	)

	RetrieverErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragd",
			Name:      "retriever_errors_total",
			Help:      "Per-index retriever failures tolerated by fusion",
		},
		[]string{"retriever"},
	)

	RetrievalResultCount = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ragd",
			Name:      "retrieval_result_count",
			Help:      "Number of nodes returned after post-processing",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100},
		},
		[]string{"mode"},
	)

	AccessLogDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ragd",
			Name:      "accesslog_dropped_total",
			Help:      "Access log entries dropped because the queue was full",
		},
	)
)

var retrievalMetricsRegistered bool

// RegisterRetrievalMetrics registers retrieval metrics. Must be called once from main.
func RegisterRetrievalMetrics() {
	if retrievalMetricsRegistered {
		return
	}
	prometheus.MustRegister(RetrievalRequestsTotal)
	prometheus.MustRegister(RetrievalDuration)
	prometheus.MustRegister(RetrieverErrorsTotal)
	prometheus.MustRegister(RetrievalResultCount)
	prometheus.MustRegister(AccessLogDroppedTotal)
	retrievalMetricsRegistered = true
}
