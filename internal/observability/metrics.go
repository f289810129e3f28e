package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/helpdesk-sla/sla-service/internal/domain"
)

const namespace = "sla_service"

// Metrics holds the Prometheus collectors of the service on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	requests      *prometheus.CounterVec
	requestTime   *prometheus.HistogramVec
	errors        *prometheus.CounterVec
	evaluations   *prometheus.CounterVec
	escalations   *prometheus.CounterVec
	pauseOps      *prometheus.CounterVec
	sweepDuration prometheus.Histogram
	sweepTickets  prometheus.Counter
}

// NewMetrics registers all collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"path", "method", "status"}),
		requestTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"path", "method"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_errors_total",
			Help:      "HTTP error responses by error code.",
		}, []string{"path", "method", "code"}),
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "SLA evaluations by overall state.",
		}, []string{"state"}),
		escalations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "escalations_fired_total",
			Help:      "Escalation levels fired by action.",
		}, []string{"action"}),
		pauseOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pause_operations_total",
			Help:      "Pause and resume operations by outcome.",
		}, []string{"op", "outcome"}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "escalation_sweep_duration_seconds",
			Help:      "Duration of escalation sweeps.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		sweepTickets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "escalation_sweep_tickets_total",
			Help:      "Tickets examined by escalation sweeps.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests, m.requestTime, m.errors, m.evaluations,
		m.escalations, m.pauseOps, m.sweepDuration, m.sweepTickets,
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	m.requestTime.WithLabelValues(path, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(path, method, code).Inc()
}

// RecordEvaluation counts one computed SLA status.
func (m *Metrics) RecordEvaluation(state domain.SLAState) {
	if m == nil {
		return
	}
	m.evaluations.WithLabelValues(string(state)).Inc()
}

// RecordEscalation counts one fired escalation level.
func (m *Metrics) RecordEscalation(action domain.EscalationAction) {
	if m == nil {
		return
	}
	m.escalations.WithLabelValues(string(action)).Inc()
}

// RecordPauseOp counts a pause or resume attempt.
func (m *Metrics) RecordPauseOp(op string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.pauseOps.WithLabelValues(op, outcome).Inc()
}

// RecordSweep observes one sweep run.
func (m *Metrics) RecordSweep(tickets int, duration time.Duration) {
	if m == nil {
		return
	}
	m.sweepTickets.Add(float64(tickets))
	m.sweepDuration.Observe(duration.Seconds())
}
