package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "contract_signer"

// PipelineMetrics is shared by the API and the worker: both run renders.
type PipelineMetrics struct {
	service string

	stageDuration      *prometheus.HistogramVec
	conversionsTotal   *prometheus.CounterVec
	conversionDuration *prometheus.HistogramVec
	rendersTotal       *prometheus.CounterVec
	signaturesTotal    *prometheus.CounterVec
}

func newPipelineMetrics(registry *prometheus.Registry, service string) *PipelineMetrics {
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds by stage and status.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"service", "stage", "status"},
	)
	conversionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "converter",
			Name:      "attempts_total",
			Help:      "Conversion attempts by backend and outcome.",
		},
		[]string{"service", "backend", "outcome"},
	)
	conversionDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "converter",
			Name:      "duration_seconds",
			Help:      "Conversion duration in seconds by backend.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 60, 120},
		},
		[]string{"service", "backend"},
	)
	rendersTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "documents",
			Name:      "renders_total",
			Help:      "Document renders by status.",
		},
		[]string{"service", "status"},
	)
	signaturesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "documents",
			Name:      "signatures_total",
			Help:      "Signing calls by signer role and status.",
		},
		[]string{"service", "role", "status"},
	)

	registry.MustRegister(stageDuration, conversionsTotal, conversionDuration, rendersTotal, signaturesTotal)

	return &PipelineMetrics{
		service:            service,
		stageDuration:      stageDuration,
		conversionsTotal:   conversionsTotal,
		conversionDuration: conversionDuration,
		rendersTotal:       rendersTotal,
		signaturesTotal:    signaturesTotal,
	}
}

// ObserveStage has the shape of usecase.StageObserver.
func (m *PipelineMetrics) ObserveStage(stage string, elapsed time.Duration, err error) {
	m.stageDuration.WithLabelValues(m.service, stage, status(err)).Observe(elapsed.Seconds())
}

// ObserveConversion has the shape of converter.Observer.
func (m *PipelineMetrics) ObserveConversion(backend, outcome string, elapsed time.Duration) {
	if outcome == "" {
		outcome = "unknown"
	}
	m.conversionsTotal.WithLabelValues(m.service, backend, outcome).Inc()
	m.conversionDuration.WithLabelValues(m.service, backend).Observe(elapsed.Seconds())
}

func (m *PipelineMetrics) RecordRender(err error) {
	m.rendersTotal.WithLabelValues(m.service, status(err)).Inc()
}

func (m *PipelineMetrics) RecordSignature(role string, err error) {
	if role == "" {
		role = "unknown"
	}
	m.signaturesTotal.WithLabelValues(m.service, role, status(err)).Inc()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
