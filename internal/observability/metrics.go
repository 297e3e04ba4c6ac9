package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// weather-delta pipeline.
type Metrics struct {
	QueriesHandled  *prometheus.CounterVec // labels: outcome={success,error}
	QueryDuration   prometheus.Histogram
	QueriesInFlight prometheus.Gauge

	// Geocoding metrics.
	ResolveRequests *prometheus.CounterVec // labels: outcome={success,not_found,invalid}
	GeocodeCache    *prometheus.CounterVec // labels: result={hit,miss}

	// Upstream provider metrics.
	ProviderRequests *prometheus.CounterVec   // labels: provider, outcome={success,unavailable,error}
	ProviderDuration *prometheus.HistogramVec // labels: provider
	FetchRetries     prometheus.Counter
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		QueriesHandled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weather_delta",
			Name:      "queries_handled_total",
			Help:      "Completed delta queries by outcome.",
		}, []string{"outcome"}),
		QueryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "weather_delta",
			Name:      "query_duration_seconds",
			Help:      "Duration of a complete resolve-fetch-compute cycle.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		QueriesInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "weather_delta",
			Name:      "queries_in_flight",
			Help:      "Delta queries currently being processed.",
		}),
		ResolveRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weather_delta",
			Name:      "resolve_requests_total",
			Help:      "Location resolution attempts by outcome.",
		}, []string{"outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weather_delta",
			Name:      "geocode_cache_total",
			Help:      "Geocoding cache lookups by result.",
		}, []string{"result"}),
		ProviderRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weather_delta",
			Name:      "provider_requests_total",
			Help:      "Upstream weather provider requests by provider and outcome.",
		}, []string{"provider", "outcome"}),
		ProviderDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "weather_delta",
			Name:      "provider_request_duration_seconds",
			Help:      "Upstream provider request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"provider"}),
		FetchRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "weather_delta",
			Name:      "fetch_retries_total",
			Help:      "Fetch attempts retried after a transient upstream failure.",
		}),
	}

	prometheus.MustRegister(
		m.QueriesHandled,
		m.QueryDuration,
		m.QueriesInFlight,
		m.ResolveRequests,
		m.GeocodeCache,
		m.ProviderRequests,
		m.ProviderDuration,
		m.FetchRetries,
	)

	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		QueriesHandled:   prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "weather_delta", Name: "queries_handled_total"}, []string{"outcome"}),
		QueryDuration:    prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "weather_delta", Name: "query_duration_seconds"}),
		QueriesInFlight:  prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "weather_delta", Name: "queries_in_flight"}),
		ResolveRequests:  prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "weather_delta", Name: "resolve_requests_total"}, []string{"outcome"}),
		GeocodeCache:     prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "weather_delta", Name: "geocode_cache_total"}, []string{"result"}),
		ProviderRequests: prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "weather_delta", Name: "provider_requests_total"}, []string{"provider", "outcome"}),
		ProviderDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: "weather_delta", Name: "provider_request_duration_seconds"}, []string{"provider"}),
		FetchRetries:     prometheus.NewCounter(prometheus.CounterOpts{Namespace: "weather_delta", Name: "fetch_retries_total"}),
	}
}
