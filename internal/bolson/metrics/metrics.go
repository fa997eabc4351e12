// Package metrics defines the Prometheus metric collectors bolson exposes
// on its admin surface, mirroring the platform's pkg/metrics package.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus collector bolson updates while running.
type Metrics struct {
	RowsReceivedTotal   prometheus.Counter
	RowsParsedTotal     prometheus.Counter
	ParseErrorsTotal    *prometheus.CounterVec
	BuffersDroppedTotal prometheus.Counter
	MessagesSentTotal   prometheus.Counter
	BytesSentTotal      prometheus.Counter
	PublishErrorsTotal  prometheus.Counter
	BufferPoolInUse     prometheus.Gauge
	JSONQueueDepth      prometheus.Gauge
	PublishQueueDepth   prometheus.Gauge
	ConvertDuration     prometheus.Histogram
	SerializeDuration   prometheus.Histogram
	PublishDuration     prometheus.Histogram
	EndToEndLatency     prometheus.Histogram
	CircuitBreakerState *prometheus.GaugeVec
	RetryAttemptsTotal  *prometheus.CounterVec

	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
}

// New creates and registers every bolson Prometheus collector against reg.
// Passing a fresh registry (rather than the global default) keeps repeated
// construction in tests side-effect free.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RowsReceivedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bolson_rows_received_total",
			Help: "Total JSON rows received over TCP.",
		}),
		RowsParsedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bolson_rows_parsed_total",
			Help: "Total JSON rows successfully parsed into Arrow batches.",
		}),
		ParseErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bolson_parse_errors_total",
			Help: "Total buffers dropped due to a parse error, by reason.",
		}, []string{"reason"}),
		BuffersDroppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bolson_buffers_dropped_total",
			Help: "Total buffers dropped before producing any output batch.",
		}),
		MessagesSentTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bolson_messages_sent_total",
			Help: "Total Arrow IPC messages published to the bus.",
		}),
		BytesSentTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bolson_bytes_sent_total",
			Help: "Total serialized bytes published to the bus.",
		}),
		PublishErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bolson_publish_errors_total",
			Help: "Total publish attempts that returned an error.",
		}),
		BufferPoolInUse: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bolson_buffer_pool_in_use",
			Help: "Number of receive buffers currently checked out of the pool.",
		}),
		JSONQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bolson_json_queue_depth",
			Help: "Number of filled buffers waiting for a converter worker.",
		}),
		PublishQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bolson_publish_queue_depth",
			Help: "Number of serialized messages waiting to be published.",
		}),
		ConvertDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bolson_convert_duration_seconds",
			Help:    "Time to parse and resize one buffer.",
			Buckets: prometheus.DefBuckets,
		}),
		SerializeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bolson_serialize_duration_seconds",
			Help:    "Time to serialize one resized batch to Arrow IPC.",
			Buckets: prometheus.DefBuckets,
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bolson_publish_duration_seconds",
			Help:    "Time to publish one serialized message.",
			Buckets: prometheus.DefBuckets,
		}),
		EndToEndLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bolson_end_to_end_latency_seconds",
			Help:    "Recv-to-published latency for sampled sequence numbers.",
			Buckets: prometheus.DefBuckets,
		}),
		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bolson_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
		}, []string{"name"}),
		RetryAttemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bolson_retry_attempts_total",
			Help: "Total retry attempts made, by operation and outcome.",
		}, []string{"operation", "outcome"}),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bolson_http_requests_total",
			Help: "Total admin HTTP requests by method, path, and status.",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bolson_http_request_duration_seconds",
			Help:    "Admin HTTP request latency in seconds.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"method", "path"}),
		HTTPRequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bolson_http_requests_in_flight",
			Help: "Admin HTTP requests currently being processed.",
		}),
	}

	reg.MustRegister(
		m.RowsReceivedTotal,
		m.RowsParsedTotal,
		m.ParseErrorsTotal,
		m.BuffersDroppedTotal,
		m.MessagesSentTotal,
		m.BytesSentTotal,
		m.PublishErrorsTotal,
		m.BufferPoolInUse,
		m.JSONQueueDepth,
		m.PublishQueueDepth,
		m.ConvertDuration,
		m.SerializeDuration,
		m.PublishDuration,
		m.EndToEndLatency,
		m.CircuitBreakerState,
		m.RetryAttemptsTotal,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler for reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
