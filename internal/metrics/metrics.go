// Package metrics exposes Prometheus metrics for the upstream client.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the upstream client.
type Metrics struct {
	// Executor metrics
	UpstreamRequestsTotal   *prometheus.CounterVec
	UpstreamRequestDuration *prometheus.HistogramVec
	UpstreamRetriesTotal    *prometheus.CounterVec

	// Rate limiter metrics
	RateLimitDenialsTotal *prometheus.CounterVec

	// Conditional cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Sweep metrics
	SweepRunsTotal       prometheus.Counter
	SweepRefreshedTotal  prometheus.Counter
	SweepFailedTotal     prometheus.Counter
	SweepDurationSeconds prometheus.Histogram
}

// Default is the global metrics instance.
var Default *Metrics

func init() {
	Default = New(prometheus.DefaultRegisterer)
}

// New creates and registers all metrics on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		UpstreamRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "esi",
				Name:      "upstream_requests_total",
				Help:      "Total number of upstream requests by method and status class",
			},
			[]string{"method", "status_class"},
		),
		UpstreamRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "esi",
				Name:      "upstream_request_duration_seconds",
				Help:      "Upstream request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		UpstreamRetriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "esi",
				Name:      "upstream_retries_total",
				Help:      "Total number of retried upstream attempts by reason",
			},
			[]string{"reason"},
		),
		RateLimitDenialsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "esi",
				Name:      "rate_limit_denials_total",
				Help:      "Total number of locally denied requests per endpoint",
			},
			[]string{"endpoint"},
		),
		CacheHitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "esi",
				Name:      "cache_hits_total",
				Help:      "Total number of conditional cache hits by kind",
			},
			[]string{"kind"},
		),
		CacheMissesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "esi",
				Name:      "cache_misses_total",
				Help:      "Total number of conditional cache misses by kind",
			},
			[]string{"kind"},
		),
		SweepRunsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "esi",
				Name:      "sweep_runs_total",
				Help:      "Total number of refresh sweep runs",
			},
		),
		SweepRefreshedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "esi",
				Name:      "sweep_refreshed_total",
				Help:      "Total number of credentials refreshed by the sweep",
			},
		),
		SweepFailedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "esi",
				Name:      "sweep_failed_total",
				Help:      "Total number of credential refresh failures in the sweep",
			},
		),
		SweepDurationSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "esi",
				Name:      "sweep_duration_seconds",
				Help:      "Refresh sweep duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
	}
}

// StatusClass buckets an HTTP status code for metric labels.
func StatusClass(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500:
		return "5xx"
	default:
		return "error"
	}
}
