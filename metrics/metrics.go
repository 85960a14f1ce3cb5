// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vidcrush_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vidcrush_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Compression metrics
var (
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vidcrush_jobs_total",
			Help: "Compression jobs by outcome (success, failure, cancelled)",
		},
		[]string{"outcome", "tier"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vidcrush_job_duration_seconds",
			Help:    "Time from admission to delivery",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"tier"},
	)

	JobsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vidcrush_jobs_in_flight",
			Help: "1 while a compression job is running",
		},
	)

	JobsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vidcrush_jobs_rejected_total",
			Help: "Requests refused before encoding (validation, busy, engine)",
		},
		[]string{"reason"},
	)

	BytesIn = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vidcrush_input_bytes_total",
			Help: "Bytes of video accepted for compression",
		},
	)

	BytesOut = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vidcrush_output_bytes_total",
			Help: "Bytes of compressed video delivered",
		},
	)

	Deliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vidcrush_deliveries_total",
			Help: "Deliveries by sink",
		},
		[]string{"sink", "status"},
	)
)

// Engine metrics
var (
	EngineReady = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vidcrush_engine_ready",
			Help: "Whether the encoding engine is loaded (1 = ready)",
		},
	)

	BlobsLive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vidcrush_blobs_live",
			Help: "Transient download blobs currently held",
		},
	)
)
