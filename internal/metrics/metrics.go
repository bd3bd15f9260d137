package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Tracks outbound calls to market data providers.
	ProviderRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketintel_provider_requests_total",
			Help: "Total number of provider API requests (by provider and status).",
		},
		[]string{"provider", "method", "status"},
	)

	// Measures duration of provider requests, one observation per attempt.
	ProviderRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "marketintel_provider_request_duration_seconds",
			Help:    "Duration of provider API requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms → ~16s
		},
		[]string{"provider", "method"},
	)

	// Number of coordinated calls currently executing.
	CoordinatorInflight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "marketintel_coordinator_inflight",
			Help: "Coordinated calls currently holding an admission slot.",
		},
		[]string{"kind"},
	)

	CoordinatorQueueWait = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "marketintel_coordinator_queue_wait_seconds",
			Help:    "Time spent waiting for an admission slot.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// Callers that joined an already running call instead of starting one.
	CoordinatorDedupTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketintel_coordinator_dedup_total",
			Help: "Requests served by an in-flight call with the same key.",
		},
		[]string{"kind"},
	)

	FallbackTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketintel_fallback_total",
			Help: "Synthetic data substitutions by source.",
		},
		[]string{"source"},
	)

	CacheAccessTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketintel_cache_access_total",
			Help: "Number of cache hits/misses by cache type.",
		},
		[]string{"type", "result"}, // hit | miss
	)

	// Tracks NATS messages published by subject and result.
	NATSMessageCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nats_messages_total",
			Help: "Total number of NATS messages processed.",
		},
		[]string{"subject", "result"}, // result = "ok" | "error"
	)

	NATSMessageLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nats_message_latency_seconds",
			Help:    "Time taken to publish NATS messages",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"subject"},
	)

	AMQPMessageCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "amqp_messages_total",
			Help: "Total number of AMQP messages published.",
		},
		[]string{"routing_key", "result"},
	)

	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketintel_errors_total",
			Help: "Count of service errors by component.",
		},
		[]string{"component", "reason"},
	)

	StatusStreamClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "marketintel_status_stream_clients",
			Help: "Websocket clients subscribed to the status stream.",
		},
	)

	// Timestamp of the last successful holiday calendar refresh.
	LastRefreshTimestamp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "marketintel_last_refresh_timestamp",
			Help: "Timestamp (unix seconds) of the last successful background refresh.",
		},
		[]string{"component"},
	)
)

// ObserveDuration records the time since start on a histogram or summary.
func ObserveDuration(v interface{}, start time.Time, labels ...string) {
	duration := time.Since(start).Seconds()

	switch metric := v.(type) {
	case *prometheus.HistogramVec:
		metric.WithLabelValues(labels...).Observe(duration)
	case *prometheus.SummaryVec:
		metric.WithLabelValues(labels...).Observe(duration)
	}
}

func IncProviderRequest(provider, method, status string) {
	ProviderRequestsTotal.WithLabelValues(provider, method, status).Inc()
}

func IncDedup(kind string) {
	CoordinatorDedupTotal.WithLabelValues(kind).Inc()
}

func IncFallback(source string) {
	FallbackTotal.WithLabelValues(source).Inc()
}

func IncCache(cacheType, result string) {
	CacheAccessTotal.WithLabelValues(cacheType, result).Inc()
}

func IncNATSMessage(subject, result string) {
	NATSMessageCount.WithLabelValues(subject, result).Inc()
}

func IncAMQPMessage(routingKey, result string) {
	AMQPMessageCount.WithLabelValues(routingKey, result).Inc()
}

func IncError(component, reason string) {
	ErrorsTotal.WithLabelValues(component, reason).Inc()
}

func SetLastRefresh(component string, t time.Time) {
	LastRefreshTimestamp.WithLabelValues(component).Set(float64(t.Unix()))
}
