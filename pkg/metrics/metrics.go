package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	EventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_published_total",
			Help: "Total number of events published on the bus (count)",
		},
		[]string{"topic"},
	)

	EventsReceivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_received_total",
			Help: "Total number of events received from the remote transport (count)",
		},
		[]string{"topic", "status"},
	)

	EventsDeliveredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_delivered_total",
			Help: "Total number of events delivered to streaming clients (count)",
		},
		[]string{"event_type"},
	)

	EventsDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_dropped_total",
			Help: "Total number of events dropped under client backpressure (count)",
		},
		[]string{"event_type"},
	)

	ActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "stream_active_connections",
			Help: "Number of currently active streaming connections (count)",
		},
	)

	SubscribeRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stream_subscribe_requests_total",
			Help: "Total number of stream subscribe requests (count)",
		},
		[]string{"status"},
	)

	AdmissionRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stream_admission_rejections_total",
			Help: "Total number of subscribes rejected by admission control (count)",
		},
		[]string{"reason"},
	)

	PermissionRevocationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stream_permission_revocations_total",
			Help: "Total number of connections closed by permission revocation (count)",
		},
	)

	FilterDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stream_filter_duration_ms",
			Help:    "Per-event filter evaluation duration in milliseconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 25, 50},
		},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of requests checked against rate limit (count)",
		},
		[]string{"status"},
	)
)

func RegisterEventMetrics() {
	prometheus.MustRegister(
		EventsPublishedTotal,
		EventsReceivedTotal,
		EventsDeliveredTotal,
		EventsDroppedTotal,
	)
}

func RegisterStreamMetrics() {
	prometheus.MustRegister(
		ActiveConnections,
		SubscribeRequestsTotal,
		AdmissionRejectionsTotal,
		PermissionRevocationsTotal,
		FilterDuration,
	)
}

func RegisterCircuitBreakerMetrics() {
	prometheus.MustRegister(
		CircuitBreakerState,
		CircuitBreakerRequests,
		CircuitBreakerFailures,
	)
}

func RegisterRateLimitMetrics() {
	prometheus.MustRegister(RateLimitRequestsTotal)
}

func ObserveFilterDuration(d time.Duration) {
	FilterDuration.Observe(float64(d.Microseconds()) / 1000.0)
}
