// Package metrics defines the Prometheus instrumentation for the voice AI
// service pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the voice AI service
type Metrics struct {
	// Audio ingestion metrics
	FramesIngested prometheus.Counter
	FramesDropped  prometheus.Counter

	// Transcription metrics
	TranscriptionFlushes  prometheus.Counter
	TranscriptionFailures prometheus.Counter
	TranscriptionLatency  prometheus.Histogram

	// Inference metrics
	InferenceRequests  prometheus.Counter
	InferenceCacheHits prometheus.Counter
	InferenceFailures  prometheus.Counter
	InferenceLatency   prometheus.Histogram

	// Synthesis metrics
	SynthesisChunks   prometheus.Counter
	SynthesisFailures prometheus.Counter

	// Session metrics
	ActiveSessions    prometheus.Gauge
	SessionsCreated   prometheus.Counter
	SessionsReaped    prometheus.Counter
	RequestsProcessed prometheus.Counter
	RequestErrors     prometheus.Counter
	RequestDuration   prometheus.Histogram
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		FramesIngested: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_frames_ingested_total",
			Help: "Total number of raw audio frames ingested",
		}),
		FramesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_frames_dropped_total",
			Help: "Total number of frames dropped by voice activity detection",
		}),

		TranscriptionFlushes: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_transcription_flushes_total",
			Help: "Total number of transcription buffer flushes sent to the backend",
		}),
		TranscriptionFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_transcription_failures_total",
			Help: "Total number of dropped transcription flushes",
		}),
		TranscriptionLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "voice_transcription_duration_seconds",
			Help:    "Latency of transcription backend calls",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~10s
		}),

		InferenceRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_inference_requests_total",
			Help: "Total number of inference requests dispatched",
		}),
		InferenceCacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_inference_cache_hits_total",
			Help: "Total number of inference requests served from cache",
		}),
		InferenceFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_inference_failures_total",
			Help: "Total number of inference requests that exhausted retries",
		}),
		InferenceLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "voice_inference_duration_seconds",
			Help:    "End-to-end latency of inference dispatch",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~51s
		}),

		SynthesisChunks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_synthesis_chunks_total",
			Help: "Total number of synthesized audio chunks produced",
		}),
		SynthesisFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_synthesis_failures_total",
			Help: "Total number of failed synthesis chunk requests",
		}),

		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "voice_active_sessions",
			Help: "Current number of active sessions",
		}),
		SessionsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_sessions_created_total",
			Help: "Total number of sessions created",
		}),
		SessionsReaped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_sessions_reaped_total",
			Help: "Total number of sessions reaped after idle timeout",
		}),
		RequestsProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_requests_processed_total",
			Help: "Total number of orchestrated requests completed",
		}),
		RequestErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_request_errors_total",
			Help: "Total number of orchestrated requests that failed",
		}),
		RequestDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "voice_request_duration_seconds",
			Help:    "End-to-end duration of orchestrated requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~102s
		}),
	}
}
