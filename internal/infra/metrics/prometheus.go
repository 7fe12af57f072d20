package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SubmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clip_submissions_total",
		Help: "Total number of clip submissions, by outcome",
	}, []string{"outcome"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "clip_stage_duration_seconds",
		Help:    "Duration of clip submission pipeline stages",
		Buckets: []float64{0.05, 0.25, 1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"stage"})

	ValidationFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clip_validation_failures_total",
		Help: "Total number of rejected assets, by kind",
	}, []string{"kind"})

	CompressionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clip_compression_total",
		Help: "Compression attempts, by result (compressed, skipped, fallback)",
	}, []string{"result"})

	CompressionRatio = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "clip_compression_ratio_percent",
		Help:    "Space saved by compression, in percent",
		Buckets: prometheus.LinearBuckets(0, 10, 11),
	})

	UploadedBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clip_uploaded_bytes_total",
		Help: "Total bytes uploaded to object storage",
	})

	ActiveSubmissions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "clip_active_submissions",
		Help: "Number of submissions currently running",
	})

	ReviewTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clip_review_transitions_total",
		Help: "Review transitions applied, by target status",
	}, []string{"status"})

	OrphansSweptTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clip_orphans_swept_total",
		Help: "Unreferenced objects deleted by the reconciliation sweep",
	})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clip_http_requests_total",
		Help: "API requests, by method, route and status code",
	}, []string{"method", "route", "code"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "clip_http_request_duration_seconds",
		Help:    "API request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	MessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clip_messages_total",
		Help: "Queue deliveries handled, by queue and outcome",
	}, []string{"queue", "outcome"})
)
