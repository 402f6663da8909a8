package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HostMetrics holds the lifecycle collectors of a host. A nil *HostMetrics
// is valid and records nothing.
type HostMetrics struct {
	registry *prometheus.Registry

	operationDuration *prometheus.HistogramVec
	bindingState      *prometheus.GaugeVec
	bindFailures      *prometheus.CounterVec
}

// InitMetrics creates the collectors and registers them on a fresh registry.
func InitMetrics() *HostMetrics {
	m := &HostMetrics{
		registry: prometheus.NewRegistry(),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "servicehost",
				Subsystem: "lifecycle",
				Name:      "operation_duration_seconds",
				Help:      "Tracks the duration of lifecycle operations per service.",
			},
			[]string{"service", "operation"},
		),
		bindingState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "servicehost",
				Subsystem: "binding",
				Name:      "state",
				Help:      "Current binding state (0 unbound, 1 binding, 2 bound, 3 unbinding).",
			},
			[]string{"service"},
		),
		bindFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "servicehost",
				Subsystem: "binding",
				Name:      "failures_total",
				Help:      "Number of bind requests that failed.",
			},
			[]string{"service"},
		),
	}
	m.Register()
	return m
}

// Register adds the collectors and the Go runtime collectors to the registry.
func (m *HostMetrics) Register() {
	m.registry.MustRegister(
		m.operationDuration,
		m.bindingState,
		m.bindFailures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// ObserveExecution records the duration of a lifecycle operation.
func (m *HostMetrics) ObserveExecution(service, operation string, duration float64) {
	if m == nil {
		return
	}
	m.operationDuration.WithLabelValues(service, operation).Observe(duration)
}

// SetState records the binding state of a service.
func (m *HostMetrics) SetState(service string, state int) {
	if m == nil {
		return
	}
	m.bindingState.WithLabelValues(service).Set(float64(state))
}

// IncBindFailure counts a failed bind request.
func (m *HostMetrics) IncBindFailure(service string) {
	if m == nil {
		return
	}
	m.bindFailures.WithLabelValues(service).Inc()
}

// Gatherer exposes the underlying registry, mostly for tests.
func (m *HostMetrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *HostMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
