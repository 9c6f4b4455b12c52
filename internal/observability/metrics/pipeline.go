package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/antonkh/knowledge-qa/internal/core/domain"
)

// Metrics carries the process-wide instruments on a private registry:
// pipeline stage timings and degradations, provider attempts and spend,
// and the HTTP server surface.
type Metrics struct {
	registry *prometheus.Registry
	service  string

	stageDuration    *prometheus.HistogramVec
	degradationTotal *prometheus.CounterVec
	attemptTotal     *prometheus.CounterVec
	costTotal        *prometheus.CounterVec

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge
}

func New(service string) *Metrics {
	registry := prometheus.NewRegistry()

	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "kqa",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Answer pipeline stage duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "stage"},
	)
	degradationTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kqa",
			Subsystem: "pipeline",
			Name:      "degradation_total",
			Help:      "Total degraded pipeline stages by kind.",
		},
		[]string{"service", "kind"},
	)
	attemptTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kqa",
			Subsystem: "generation",
			Name:      "attempts_total",
			Help:      "Total generation attempts by provider and outcome.",
		},
		[]string{"service", "provider", "outcome"},
	)
	costTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kqa",
			Subsystem: "generation",
			Name:      "estimated_cost_total",
			Help:      "Accumulated estimated provider spend.",
		},
		[]string{"service", "provider"},
	)

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kqa",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "kqa",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "kqa",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)

	registry.MustRegister(stageDuration, degradationTotal, attemptTotal, costTotal, requestTotal, requestDuration, requestInFlight)

	return &Metrics{
		registry:         registry,
		service:          service,
		stageDuration:    stageDuration,
		degradationTotal: degradationTotal,
		attemptTotal:     attemptTotal,
		costTotal:        costTotal,
		requestTotal:     requestTotal,
		requestDuration:  requestDuration,
		requestInFlight:  requestInFlight,
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.stageDuration.WithLabelValues(m.service, stage).Observe(d.Seconds())
}

func (m *Metrics) IncDegradation(kind string) {
	m.degradationTotal.WithLabelValues(m.service, kind).Inc()
}

func (m *Metrics) ObserveAttempt(provider string, outcome domain.AttemptOutcome) {
	m.attemptTotal.WithLabelValues(m.service, provider, string(outcome)).Inc()
}

func (m *Metrics) AddCost(provider string, cost float64) {
	m.costTotal.WithLabelValues(m.service, provider).Add(cost)
}

func (m *Metrics) RequestStarted() {
	m.requestInFlight.Inc()
}

func (m *Metrics) RequestFinished(method, path string, status int, d time.Duration) {
	m.requestInFlight.Dec()
	m.requestTotal.WithLabelValues(m.service, method, path, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(m.service, method, path).Observe(d.Seconds())
}
