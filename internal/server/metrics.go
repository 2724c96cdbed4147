package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yourorg/nearme-discovery/internal/circuitbreaker"
)

// serverMetrics holds Prometheus metrics for the server
type serverMetrics struct {
	registry *prometheus.Registry

	requestCounter  *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	sourceErrors    *prometheus.CounterVec
	circuitBreaker  prometheus.Gauge
	circuitTrips    prometheus.Counter
	fallbacks       prometheus.Counter
	validMerchants  prometheus.Gauge
	rejected        prometheus.Gauge
	results         prometheus.Histogram
}

// registerMetrics sets up Prometheus metrics collection on a private registry
func registerMetrics() *serverMetrics {
	m := &serverMetrics{
		registry: prometheus.NewRegistry(),
		requestCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nearme_requests_total",
				Help: "Total number of requests processed",
			},
			[]string{"route", "method", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nearme_request_duration_seconds",
				Help:    "Request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		sourceErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nearme_source_errors_total",
				Help: "Total number of merchant source errors",
			},
			[]string{"source"},
		),
		circuitBreaker: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "nearme_circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
			},
		),
		circuitTrips: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "nearme_circuit_breaker_trips_total",
				Help: "Number of times the feed circuit breaker tripped",
			},
		),
		fallbacks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "nearme_fallback_responses_total",
				Help: "Responses served from the last good merchant list",
			},
		),
		validMerchants: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "nearme_merchants_valid",
				Help: "Valid merchants in the latest fetch",
			},
		),
		rejected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "nearme_merchants_rejected",
				Help: "Malformed merchant records in the latest fetch",
			},
		),
		results: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "nearme_search_results",
				Help:    "Number of merchants returned per search",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250},
			},
		),
	}

	m.registry.MustRegister(
		m.requestCounter,
		m.requestDuration,
		m.sourceErrors,
		m.circuitBreaker,
		m.circuitTrips,
		m.fallbacks,
		m.validMerchants,
		m.rejected,
		m.results,
	)

	return m
}

func (m *serverMetrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *serverMetrics) setBreakerState(state circuitbreaker.State) {
	if m == nil {
		return
	}
	m.circuitBreaker.Set(float64(state))
}
