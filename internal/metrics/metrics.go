// Package metrics provides Prometheus metrics for the people counter service.
package metrics

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"peoplecounter/internal/model"
)

// AnalysisMetrics contains all Prometheus metrics related to analysis requests.
// A nil *AnalysisMetrics is valid and records nothing.
type AnalysisMetrics struct {
	AnalysisTotal    *prometheus.CounterVec
	AnalysisErrors   *prometheus.CounterVec
	AnalysisDuration *prometheus.HistogramVec
	PeopleCounted    *prometheus.HistogramVec
	Overcrowded      prometheus.Counter
	ActiveAnalyses   prometheus.Gauge
	LiveClients      prometheus.Gauge

	registry *prometheus.Registry
}

// NewAnalysisMetrics creates the metrics and registers them in registry.
func NewAnalysisMetrics(registry *prometheus.Registry) (*AnalysisMetrics, error) {
	m := &AnalysisMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register analysis metrics: %w", err)
	}
	return m, nil
}

func (m *AnalysisMetrics) initMetrics() {
	m.AnalysisTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peoplecounter_analyses_total",
			Help: "Total number of analyze requests partitioned by file type and status.",
		},
		[]string{"file_type", "status"},
	)
	m.AnalysisErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peoplecounter_analysis_errors_total",
			Help: "Total number of failed analyses partitioned by error kind.",
		},
		[]string{"error_type"},
	)
	m.AnalysisDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "peoplecounter_analysis_duration_seconds",
			Help:    "Pipeline processing time",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
		},
		[]string{"file_type"},
	)
	m.PeopleCounted = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "peoplecounter_people_per_analysis",
			Help:    "Number of people found per analysis",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100},
		},
		[]string{"file_type"},
	)
	m.Overcrowded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "peoplecounter_overcrowded_total",
			Help: "Total number of results above their location capacity.",
		},
	)
	m.ActiveAnalyses = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "peoplecounter_active_analyses",
			Help: "Number of analyses currently running",
		},
	)
	m.LiveClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "peoplecounter_live_clients",
			Help: "Number of connected live feed clients",
		},
	)
}

// Describe implements prometheus.Collector.
func (m *AnalysisMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.AnalysisTotal.Describe(ch)
	m.AnalysisErrors.Describe(ch)
	m.AnalysisDuration.Describe(ch)
	m.PeopleCounted.Describe(ch)
	m.Overcrowded.Describe(ch)
	m.ActiveAnalyses.Describe(ch)
	m.LiveClients.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *AnalysisMetrics) Collect(ch chan<- prometheus.Metric) {
	m.AnalysisTotal.Collect(ch)
	m.AnalysisErrors.Collect(ch)
	m.AnalysisDuration.Collect(ch)
	m.PeopleCounted.Collect(ch)
	m.Overcrowded.Collect(ch)
	m.ActiveAnalyses.Collect(ch)
	m.LiveClients.Collect(ch)
}

// RecordSuccess records a persisted analysis.
func (m *AnalysisMetrics) RecordSuccess(fileType string, peopleCount int, seconds float64, overcrowded bool) {
	if m == nil {
		return
	}
	m.AnalysisTotal.WithLabelValues(fileType, "success").Inc()
	m.AnalysisDuration.WithLabelValues(fileType).Observe(seconds)
	m.PeopleCounted.WithLabelValues(fileType).Observe(float64(peopleCount))
	if overcrowded {
		m.Overcrowded.Inc()
	}
}

// RecordFailure records a failed analysis.
func (m *AnalysisMetrics) RecordFailure(fileType string, err error) {
	if m == nil {
		return
	}
	m.AnalysisTotal.WithLabelValues(fileType, "error").Inc()
	m.AnalysisErrors.WithLabelValues(ErrorType(err)).Inc()
}

// AnalysisStarted increments the active gauge and returns a func that decrements it.
func (m *AnalysisMetrics) AnalysisStarted() func() {
	if m == nil {
		return func() {}
	}
	m.ActiveAnalyses.Inc()
	return m.ActiveAnalyses.Dec
}

// SetLiveClients sets the live feed client gauge.
func (m *AnalysisMetrics) SetLiveClients(n int) {
	if m == nil {
		return
	}
	m.LiveClients.Set(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *AnalysisMetrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ErrorType maps an error to a low-cardinality label value.
func ErrorType(err error) string {
	switch {
	case errors.Is(err, model.ErrValidation):
		return "validation"
	case errors.Is(err, model.ErrTooLarge):
		return "too_large"
	case errors.Is(err, model.ErrUnreadableMedia):
		return "unreadable_media"
	case errors.Is(err, model.ErrModel):
		return "model"
	case errors.Is(err, model.ErrStorageIO):
		return "storage_io"
	case errors.Is(err, model.ErrTimeout):
		return "timeout"
	case errors.Is(err, model.ErrNotFound):
		return "not_found"
	default:
		return "other"
	}
}
