// Package telemetry provides observability primitives for the Campus backend.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "campus"

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	reg prometheus.Registerer

	RequestsTotal       *prometheus.CounterVec
	RequestDuration     *prometheus.HistogramVec
	ActiveRequests      prometheus.Gauge
	BackendDuration     *prometheus.HistogramVec
	BackendErrors       *prometheus.CounterVec
	RateLimitRejects    prometheus.Counter
	ActivityQueueLength prometheus.Gauge
	ActivityDropped     prometheus.Counter
}

// NewMetrics creates and registers all metrics with the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		reg: reg,

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:                       namespace,
			Name:                            "request_duration_seconds",
			Help:                            "HTTP request duration in seconds.",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 0,
		}, []string{"method", "path"}),

		ActiveRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_requests",
			Help:      "Number of currently active requests.",
		}),

		BackendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:                       namespace,
			Name:                            "backend_duration_seconds",
			Help:                            "Backend service call duration in seconds.",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 0,
		}, []string{"service", "operation"}),

		BackendErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_errors_total",
			Help:      "Total backend service errors.",
		}, []string{"service", "status"}),

		RateLimitRejects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ratelimit_rejects_total",
			Help:      "Total mutation rate limit rejections.",
		}),

		ActivityQueueLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "activity_queue_length",
			Help:      "Current number of queued activity events.",
		}),

		ActivityDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "activity_dropped_total",
			Help:      "Activity events dropped because the queue was full.",
		}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.ActiveRequests,
		m.BackendDuration,
		m.BackendErrors,
		m.RateLimitRejects,
		m.ActivityQueueLength,
		m.ActivityDropped,
	)

	return m
}

// CacheStats is a snapshot of cumulative cache counters.
type CacheStats struct {
	Hits, AbsentHits, Misses, Expirations, Invalidations uint64
}

// RegisterCache exports the counters of a named cache. stats is called on
// every scrape and must be cheap.
func (m *Metrics) RegisterCache(name string, stats func() CacheStats) {
	labels := prometheus.Labels{"cache": name}
	counter := func(metric, help string, pick func(CacheStats) uint64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "cache",
			Name:        metric,
			Help:        help,
			ConstLabels: labels,
		}, func() float64 { return float64(pick(stats())) })
	}
	m.reg.MustRegister(
		counter("hits_total", "Fresh cache hits.", func(s CacheStats) uint64 { return s.Hits }),
		counter("absent_hits_total", "Fresh known-absent relationship hits.", func(s CacheStats) uint64 { return s.AbsentHits }),
		counter("misses_total", "Cache misses.", func(s CacheStats) uint64 { return s.Misses }),
		counter("expirations_total", "Entries removed after their TTL.", func(s CacheStats) uint64 { return s.Expirations }),
		counter("invalidations_total", "Cache invalidations.", func(s CacheStats) uint64 { return s.Invalidations }),
	)
}
