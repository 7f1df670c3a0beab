package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	*PipelineMetrics

	registry *prometheus.Registry

	renderTotal    *prometheus.CounterVec
	renderDuration *prometheus.HistogramVec
	renderInFlight prometheus.Gauge
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	renderTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "render_requests_total",
			Help:      "Total consumed render requests by status.",
		},
		[]string{"service", "status"},
	)
	renderDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "render_request_duration_seconds",
			Help:      "Render request handling duration in seconds by status.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 60, 120, 300},
		},
		[]string{"service", "status"},
	)
	renderInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "render_requests_in_flight",
			Help:      "Number of in-flight render requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)

	registry.MustRegister(renderTotal, renderDuration, renderInFlight)

	return &WorkerMetrics{
		PipelineMetrics: newPipelineMetrics(registry, service),
		registry:        registry,
		renderTotal:     renderTotal,
		renderDuration:  renderDuration,
		renderInFlight:  renderInFlight,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartRender() {
	m.renderInFlight.Inc()
}

func (m *WorkerMetrics) FinishRender(duration time.Duration, err error) {
	m.renderInFlight.Dec()
	s := status(err)
	m.renderTotal.WithLabelValues(m.service, s).Inc()
	m.renderDuration.WithLabelValues(m.service, s).Observe(duration.Seconds())
	m.RecordRender(err)
}
