package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTPRequestDuration tracks HTTP request latency for the admin/kiosk surface.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "consultease",
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "path", "status"},
)

// BusPublished counts messages successfully handed to the broker.
var BusPublished = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "consultease",
		Subsystem: "bus",
		Name:      "published_total",
		Help:      "Messages published to the broker, by topic.",
	},
	[]string{"topic"},
)

// BusDropped counts outbound messages dropped due to queue overflow.
var BusDropped = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "consultease",
		Subsystem: "bus",
		Name:      "dropped_total",
		Help:      "Outbound messages dropped because the publish queue was full.",
	},
	[]string{"topic"},
)

// BusQueueDepth reports the current outbound queue depth.
var BusQueueDepth = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "consultease",
		Subsystem: "bus",
		Name:      "queue_depth",
		Help:      "Current depth of the bus client's outbound publish queue.",
	},
)

// ConsultationsPending reports the count of consultations awaiting dispatch/ack.
var ConsultationsPending = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "consultease",
		Subsystem: "consultation",
		Name:      "pending",
		Help:      "Consultations currently in the pending state.",
	},
)

// SessionsActive reports the count of live in-memory sessions.
var SessionsActive = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "consultease",
		Subsystem: "auth",
		Name:      "sessions_active",
		Help:      "Currently valid in-memory sessions.",
	},
)

// All returns the ConsultEase-specific collectors for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		BusPublished, BusDropped, BusQueueDepth,
		ConsultationsPending, SessionsActive,
	}
}

// NewMetricsRegistry creates a Prometheus registry with Go/process collectors,
// the shared HTTP histogram, and any additional service-specific collectors.
func NewMetricsRegistry(extra ...prometheus.Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		HTTPRequestDuration,
	)
	for _, c := range extra {
		reg.MustRegister(c)
	}
	return reg
}
