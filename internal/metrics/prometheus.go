package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the translation service
type Metrics struct {
	// Transcription request metrics
	TranscriptionRequests  prometheus.Counter
	TranscriptionSuccesses prometheus.Counter
	TranscriptionFailures  prometheus.Counter
	EmptyTranscriptions    prometheus.Counter

	// Pipeline stage metrics
	StageDuration    *prometheus.HistogramVec
	StageFailures    *prometheus.CounterVec
	PipelineDuration prometheus.Histogram

	// Synthesis metrics
	SynthesisBytes prometheus.Histogram

	// Upload payload metrics
	UploadSize prometheus.Histogram

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// WebSocket metrics
	WebsocketSubscribers prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		// Transcription request metrics
		TranscriptionRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "shatranz_transcription_requests_total",
			Help: "Total number of transcription requests received",
		}),
		TranscriptionSuccesses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "shatranz_transcription_successes_total",
			Help: "Total number of successfully processed requests",
		}),
		TranscriptionFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "shatranz_transcription_failures_total",
			Help: "Total number of requests that failed in the pipeline",
		}),
		EmptyTranscriptions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "shatranz_empty_transcriptions_total",
			Help: "Total number of chunks with no usable speech",
		}),

		// Pipeline stage metrics
		StageDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shatranz_pipeline_stage_duration_seconds",
			Help:    "Duration of individual pipeline stages",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~2 minutes
		}, []string{"stage"}),
		StageFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "shatranz_pipeline_stage_failures_total",
			Help: "Total number of pipeline stage failures",
		}, []string{"stage"}),
		PipelineDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "shatranz_pipeline_duration_seconds",
			Help:    "End-to-end duration of chunk processing",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10), // 250ms to ~4 minutes
		}),

		// Synthesis metrics
		SynthesisBytes: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "shatranz_synthesis_size_bytes",
			Help:    "Size of synthesized audio payloads in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 12), // 1KB to ~4MB
		}),

		// Upload payload metrics
		UploadSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "shatranz_upload_size_bytes",
			Help:    "Size of uploaded audio chunks in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 12), // 1KB to ~4MB
		}),

		// HTTP API metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "shatranz_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shatranz_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),

		// WebSocket metrics
		WebsocketSubscribers: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "shatranz_websocket_subscribers",
			Help: "Current number of connected WebSocket subscribers",
		}),
	}
}

// RecordRequest increments the transcription requests counter
func (m *Metrics) RecordRequest() {
	m.TranscriptionRequests.Inc()
}

// RecordSuccess records a successfully processed request
func (m *Metrics) RecordSuccess(durationSeconds float64, audioBytes int) {
	m.TranscriptionSuccesses.Inc()
	m.PipelineDuration.Observe(durationSeconds)
	m.SynthesisBytes.Observe(float64(audioBytes))
}

// RecordFailure records a request that failed in the pipeline
func (m *Metrics) RecordFailure(durationSeconds float64) {
	m.TranscriptionFailures.Inc()
	m.PipelineDuration.Observe(durationSeconds)
}

// RecordEmptyTranscription increments the empty transcription counter
func (m *Metrics) RecordEmptyTranscription() {
	m.EmptyTranscriptions.Inc()
}

// RecordStage records the duration of a pipeline stage
func (m *Metrics) RecordStage(stage string, durationSeconds float64) {
	m.StageDuration.WithLabelValues(stage).Observe(durationSeconds)
}

// RecordStageFailure increments the failure counter for a stage
func (m *Metrics) RecordStageFailure(stage string) {
	m.StageFailures.WithLabelValues(stage).Inc()
}

// RecordUploadSize records the size of an uploaded chunk
func (m *Metrics) RecordUploadSize(sizeBytes int64) {
	m.UploadSize.Observe(float64(sizeBytes))
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// SetWebsocketSubscribers sets the current subscriber gauge
func (m *Metrics) SetWebsocketSubscribers(count int) {
	m.WebsocketSubscribers.Set(float64(count))
}
