package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the workflow service's collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	PhaseCommits   *prometheus.CounterVec
	SyncOutcomes   *prometheus.CounterVec
	EventsConsumed *prometheus.CounterVec
	AssistRequests *prometheus.CounterVec
	AssistLatency  *prometheus.HistogramVec
	HTTPRequests   *prometheus.CounterVec
	HTTPLatency    *prometheus.HistogramVec
}

// New registers the collectors with the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

func NewWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		PhaseCommits: f.NewCounterVec(prometheus.CounterOpts{
			Name: "transplantflow_phase_commits_total",
			Help: "Persisted phase commits by phase id and origin",
		}, []string{"phase", "origin"}), // origin: "local", "sync"

		SyncOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "transplantflow_pair_sync_total",
			Help: "Shared-phase propagations by outcome",
		}, []string{"outcome"}), // outcome: "applied", "unchanged", "unpaired", "failed"

		EventsConsumed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "transplantflow_events_consumed_total",
			Help: "Phase events read from the event bus by result",
		}, []string{"result"}),

		AssistRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "transplantflow_assist_requests_total",
			Help: "Summarization and extraction calls by operation and outcome",
		}, []string{"operation", "outcome"}),

		AssistLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "transplantflow_assist_duration_seconds",
			Help:    "Duration of summarization and extraction calls",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"operation"}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "transplantflow_http_requests_total",
			Help: "HTTP requests by method and status code",
		}, []string{"method", "code"}),

		HTTPLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "transplantflow_http_request_duration_seconds",
			Help:    "HTTP request latency by method",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
	}
}

func (m *Metrics) ObserveCommit(phaseID int, origin string) {
	if m != nil {
		m.PhaseCommits.WithLabelValues(strconv.Itoa(phaseID), origin).Inc()
	}
}

func (m *Metrics) IncrementSync(outcome string) {
	if m != nil {
		m.SyncOutcomes.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) IncrementConsumed(result string) {
	if m != nil {
		m.EventsConsumed.WithLabelValues(result).Inc()
	}
}

// ObserveAssist records one assist call and its duration.
func (m *Metrics) ObserveAssist(operation string, err error, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.AssistRequests.WithLabelValues(operation, outcome).Inc()
	m.AssistLatency.WithLabelValues(operation).Observe(d.Seconds())
}

func (m *Metrics) ObserveHTTP(method string, code int, d time.Duration) {
	if m != nil {
		m.HTTPRequests.WithLabelValues(method, strconv.Itoa(code)).Inc()
		m.HTTPLatency.WithLabelValues(method).Observe(d.Seconds())
	}
}
