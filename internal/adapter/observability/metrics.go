// Package observability provides logging, metrics, and tracing.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/fairyhunter13/review-insights/internal/domain"
)

var (
	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "review_queue_depth",
			Help: "Current depth of each logical queue",
		},
		[]string{"queue"},
	)
	MessagesEnqueuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "review_messages_enqueued_total",
			Help: "Total number of review envelopes enqueued",
		},
	)
	MessagesClaimedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "review_messages_claimed_total",
			Help: "Total number of envelopes claimed by workers",
		},
	)
	MessagesAckedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "review_messages_acked_total",
			Help: "Total number of envelopes acknowledged",
		},
	)
	MessagesNackedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "review_messages_nacked_total",
			Help: "Total number of envelopes negatively acknowledged",
		},
		[]string{"outcome"}, // retry or failed
	)
	MessagesPromotedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "review_messages_promoted_total",
			Help: "Total number of envelopes promoted from the retry schedule",
		},
	)
	MessagesReapedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "review_messages_reaped_total",
			Help: "Total number of expired claims reaped by maintenance",
		},
	)
	ReviewsCompletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reviews_completed_total",
			Help: "Total number of reviews processed to completion",
		},
	)
	ReviewsFailedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reviews_failed_total",
			Help: "Total number of reviews that ended in failure",
		},
	)
	ProcessingDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "review_processing_duration_seconds",
			Help:    "End-to-end pipeline duration per review",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)
	AnalyzerRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analyzer_requests_total",
			Help: "Total number of analyzer requests by outcome",
		},
		[]string{"outcome"},
	)
	AnalyzerRequestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "analyzer_request_duration_seconds",
			Help:    "Analyzer request duration in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)
	MaintenanceCycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "queue_maintenance_cycle_duration_seconds",
			Help:    "Duration of a full maintenance cycle",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
	)
)

// InitMetrics registers all collectors with the default registry.
func InitMetrics() {
	prometheus.MustRegister(QueueDepth)
	prometheus.MustRegister(MessagesEnqueuedTotal)
	prometheus.MustRegister(MessagesClaimedTotal)
	prometheus.MustRegister(MessagesAckedTotal)
	prometheus.MustRegister(MessagesNackedTotal)
	prometheus.MustRegister(MessagesPromotedTotal)
	prometheus.MustRegister(MessagesReapedTotal)
	prometheus.MustRegister(ReviewsCompletedTotal)
	prometheus.MustRegister(ReviewsFailedTotal)
	prometheus.MustRegister(ProcessingDuration)
	prometheus.MustRegister(AnalyzerRequestsTotal)
	prometheus.MustRegister(AnalyzerRequestDuration)
	prometheus.MustRegister(MaintenanceCycleDuration)
}

// RecordQueueStats updates the per-queue depth gauges from a stats snapshot.
func RecordQueueStats(s domain.QueueStats) {
	QueueDepth.WithLabelValues("main").Set(float64(s.Main))
	QueueDepth.WithLabelValues("processing").Set(float64(s.Processing))
	QueueDepth.WithLabelValues("retry").Set(float64(s.Retry))
	QueueDepth.WithLabelValues("failed").Set(float64(s.Failed))
	QueueDepth.WithLabelValues("visibility_keys").Set(float64(s.VisibilityKeys))
}
