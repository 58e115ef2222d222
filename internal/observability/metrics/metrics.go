// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ai_speech_roundtrip"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Session metrics
	SessionsCreated prometheus.Counter
	SessionsActive  prometheus.Gauge
	SessionsCleared prometheus.Counter
	SessionsExpired prometheus.Counter

	// Ingest metrics
	UploadsTotal     *prometheus.CounterVec
	UploadBytes      prometheus.Counter
	TempFilesActive  prometheus.Gauge
	TempFileFailures *prometheus.CounterVec

	// STT metrics
	ModelLoads           *prometheus.CounterVec
	TranscriptionLatency *prometheus.HistogramVec
	TranscriptionErrors  *prometheus.CounterVec

	// TTS metrics
	SynthesisLatency  *prometheus.HistogramVec
	SynthesisErrors   *prometheus.CounterVec
	SynthesisFallback prometheus.Counter
	SynthesisBytes    prometheus.Counter

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPLatency  *prometheus.HistogramVec

	// gRPC metrics (health and reflection)
	GRPCRequests *prometheus.CounterVec
	GRPCLatency  *prometheus.HistogramVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics(prometheus.DefaultRegisterer)

// NewMetrics creates and registers all Prometheus metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SessionsCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_created_total",
			Help:      "Total number of sessions created",
		}),
		SessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently live sessions",
		}),
		SessionsCleared: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_cleared_total",
			Help:      "Total number of explicit session clears",
		}),
		SessionsExpired: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_expired_total",
			Help:      "Total number of sessions torn down after idling",
		}),

		UploadsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Total number of ingested audio clips",
		}, []string{"source", "format"}),
		UploadBytes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_bytes_total",
			Help:      "Total audio bytes written to temp files",
		}),
		TempFilesActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "temp_files_active",
			Help:      "Number of temp audio files currently on disk",
		}),
		TempFileFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "temp_file_failures_total",
			Help:      "Total number of temp file write/remove failures",
		}, []string{"op"}),

		ModelLoads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stt_model_loads_total",
			Help:      "Total number of underlying STT model loads",
		}, []string{"backend", "size", "result"}),
		TranscriptionLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stt_latency_seconds",
			Help:      "Transcription latency in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"backend", "size"}),
		TranscriptionErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stt_errors_total",
			Help:      "Total number of transcription errors",
		}, []string{"backend", "kind"}),

		SynthesisLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tts_latency_seconds",
			Help:      "Synthesis latency in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"backend"}),
		SynthesisErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tts_errors_total",
			Help:      "Total number of synthesis backend errors",
		}, []string{"backend"}),
		SynthesisFallback: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tts_fallbacks_total",
			Help:      "Total number of syntheses served by a non-first candidate",
		}),
		SynthesisBytes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tts_bytes_total",
			Help:      "Total synthesized audio bytes",
		}),

		KafkaPublishTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),

		GRPCRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grpc_requests_total",
			Help:      "Total number of gRPC calls by method, call type and status code",
		}, []string{"method", "type", "code"}),
		GRPCLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "grpc_request_duration_seconds",
			Help:      "gRPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
}

// RecordSessionCreated records a new session.
func (m *Metrics) RecordSessionCreated() {
	m.SessionsCreated.Inc()
	m.SessionsActive.Inc()
}

// RecordSessionEnded records a session teardown.
func (m *Metrics) RecordSessionEnded(expired bool) {
	m.SessionsActive.Dec()
	if expired {
		m.SessionsExpired.Inc()
	}
}

// RecordSessionCleared records an explicit clear action.
func (m *Metrics) RecordSessionCleared() {
	m.SessionsCleared.Inc()
}

// RecordUpload records an ingested clip.
func (m *Metrics) RecordUpload(source, format string, bytes int64) {
	m.UploadsTotal.WithLabelValues(source, format).Inc()
	m.UploadBytes.Add(float64(bytes))
	m.TempFilesActive.Inc()
}

// RecordTempFileRemoved records removal of a temp clip.
func (m *Metrics) RecordTempFileRemoved() {
	m.TempFilesActive.Dec()
}

// RecordTempFileFailure records a failed temp file operation.
func (m *Metrics) RecordTempFileFailure(op string) {
	m.TempFileFailures.WithLabelValues(op).Inc()
}

// RecordModelLoad records an underlying STT model load attempt.
func (m *Metrics) RecordModelLoad(backend, size string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.ModelLoads.WithLabelValues(backend, size, result).Inc()
}

// RecordTranscription records a transcription attempt.
func (m *Metrics) RecordTranscription(backend, size string, err error, latencySeconds float64, kind string) {
	m.TranscriptionLatency.WithLabelValues(backend, size).Observe(latencySeconds)
	if err != nil {
		m.TranscriptionErrors.WithLabelValues(backend, kind).Inc()
	}
}

// RecordSynthesis records a synthesis attempt against one backend.
func (m *Metrics) RecordSynthesis(backend string, err error, latencySeconds float64, bytes int) {
	m.SynthesisLatency.WithLabelValues(backend).Observe(latencySeconds)
	if err != nil {
		m.SynthesisErrors.WithLabelValues(backend).Inc()
		return
	}
	m.SynthesisBytes.Add(float64(bytes))
}

// RecordFallback records a synthesis served by a fallback backend.
func (m *Metrics) RecordFallback() {
	m.SynthesisFallback.Inc()
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}

// RecordGRPCCall records a finished gRPC call. callType is unary or stream.
func (m *Metrics) RecordGRPCCall(method, callType, code string, latencySeconds float64) {
	m.GRPCRequests.WithLabelValues(method, callType, code).Inc()
	m.GRPCLatency.WithLabelValues(method).Observe(latencySeconds)
}

// RecordHTTPRequest records a served HTTP request.
func (m *Metrics) RecordHTTPRequest(method, route, status string, latencySeconds float64) {
	m.HTTPRequests.WithLabelValues(method, route, status).Inc()
	m.HTTPLatency.WithLabelValues(method, route).Observe(latencySeconds)
}
