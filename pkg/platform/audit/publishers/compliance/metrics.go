package compliance

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	audit "govengine/pkg/platform/audit"
)

// Metrics holds Prometheus metrics for the fail-closed publisher. All
// methods are safe on a nil receiver.
type Metrics struct {
	EventsEmitted   *prometheus.CounterVec
	PersistFailures prometheus.Counter
	Rejected        prometheus.Counter
	PersistDuration prometheus.Histogram
}

// NewMetrics registers the publisher metrics with the default registry.
func NewMetrics() *Metrics {
	return newMetrics(promauto.With(prometheus.DefaultRegisterer))
}

// NewMetricsWith registers the publisher metrics with reg. Tests pass a
// fresh registry so repeated construction does not collide.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	return newMetrics(promauto.With(reg))
}

func newMetrics(f promauto.Factory) *Metrics {
	return &Metrics{
		EventsEmitted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "govengine_audit_events_emitted_total",
			Help: "Governance audit events durably appended, by event type",
		}, []string{"event_type"}),
		PersistFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "govengine_audit_persist_failures_total",
			Help: "Audit appends that failed; each one failed its business operation",
		}),
		Rejected: f.NewCounter(prometheus.CounterOpts{
			Name: "govengine_audit_events_rejected_total",
			Help: "Audit events rejected by envelope validation",
		}),
		PersistDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "govengine_audit_persist_duration_seconds",
			Help:    "Duration of synchronous audit appends",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

func (m *Metrics) IncEventsEmitted(t audit.EventType) {
	if m == nil {
		return
	}
	m.EventsEmitted.WithLabelValues(string(t)).Inc()
}

func (m *Metrics) IncPersistFailures() {
	if m == nil {
		return
	}
	m.PersistFailures.Inc()
}

func (m *Metrics) IncRejected() {
	if m == nil {
		return
	}
	m.Rejected.Inc()
}

func (m *Metrics) ObservePersistDuration(seconds float64) {
	if m == nil {
		return
	}
	m.PersistDuration.Observe(seconds)
}
