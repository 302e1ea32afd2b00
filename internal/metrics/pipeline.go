package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Poll request results used as label values.
const (
	PollResultResolved  = "resolved"
	PollResultNotReady  = "not_ready"
	PollResultStatus    = "unexpected_status"
	PollResultMalformed = "malformed"
	PollResultTransport = "transport_error"
)

// PipelineMetrics records upload and polling activity. A nil *PipelineMetrics
// is valid and records nothing.
type PipelineMetrics struct {
	registry *prometheus.Registry

	uploadsTotal      *prometheus.CounterVec
	pollRequestsTotal *prometheus.CounterVec
	pollPasses        prometheus.Histogram
	pollDuration      prometheus.Histogram
	budgetExhausted   prometheus.Counter
	activeSessions    prometheus.Gauge
}

// NewPipelineMetrics creates metrics on a private registry.
func NewPipelineMetrics() *PipelineMetrics {
	registry := prometheus.NewRegistry()

	uploadsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docdash",
			Subsystem: "upload",
			Name:      "objects_total",
			Help:      "Uploaded objects by outcome.",
		},
		[]string{"status"},
	)
	pollRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docdash",
			Subsystem: "poll",
			Name:      "requests_total",
			Help:      "Result fetches by classification.",
		},
		[]string{"result"},
	)
	pollPasses := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "docdash",
			Subsystem: "poll",
			Name:      "passes",
			Help:      "Polling passes spent per run.",
			Buckets:   []float64{0, 1, 2, 3, 5, 10, 15, 20, 30},
		},
	)
	pollDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "docdash",
			Subsystem: "poll",
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of polling runs.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
	)
	budgetExhausted := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "docdash",
			Subsystem: "poll",
			Name:      "budget_exhausted_total",
			Help:      "Polling runs that ended with keys still pending and no attempts left.",
		},
	)
	activeSessions := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "docdash",
			Subsystem: "session",
			Name:      "active",
			Help:      "Sessions currently held in memory.",
		},
	)

	registry.MustRegister(uploadsTotal, pollRequestsTotal, pollPasses, pollDuration, budgetExhausted, activeSessions)

	return &PipelineMetrics{
		registry:          registry,
		uploadsTotal:      uploadsTotal,
		pollRequestsTotal: pollRequestsTotal,
		pollPasses:        pollPasses,
		pollDuration:      pollDuration,
		budgetExhausted:   budgetExhausted,
		activeSessions:    activeSessions,
	}
}

// Handler exposes the registry in the Prometheus text format.
func (m *PipelineMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *PipelineMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *PipelineMetrics) ObserveUpload(status string) {
	if m == nil {
		return
	}
	m.uploadsTotal.WithLabelValues(status).Inc()
}

func (m *PipelineMetrics) ObservePollRequest(result string) {
	if m == nil {
		return
	}
	m.pollRequestsTotal.WithLabelValues(result).Inc()
}

func (m *PipelineMetrics) ObservePollRun(passes int, duration time.Duration, exhausted bool) {
	if m == nil {
		return
	}
	m.pollPasses.Observe(float64(passes))
	m.pollDuration.Observe(duration.Seconds())
	if exhausted {
		m.budgetExhausted.Inc()
	}
}

func (m *PipelineMetrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}
