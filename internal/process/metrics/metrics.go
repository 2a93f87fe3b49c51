package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the process engine.
type Metrics struct {
	TemplatesUpserted  prometheus.Counter
	InstancesCreated   prometheus.Counter
	ArtifactsSubmitted prometheus.Counter
	StepsClosed        prometheus.Counter
	ProcessesClosed    prometheus.Counter
	RejectedOperations *prometheus.CounterVec
	SubmitDuration     prometheus.Histogram
}

// New registers the engine metrics with the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers against reg; tests pass a fresh registry.
func NewWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		TemplatesUpserted: f.NewCounter(prometheus.CounterOpts{
			Name: "governance_templates_upserted_total",
			Help: "Total number of process templates upserted by catalog bootstrap",
		}),
		InstancesCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "governance_instances_created_total",
			Help: "Total number of process instances created",
		}),
		ArtifactsSubmitted: f.NewCounter(prometheus.CounterOpts{
			Name: "governance_artifacts_submitted_total",
			Help: "Total number of artifacts recorded",
		}),
		StepsClosed: f.NewCounter(prometheus.CounterOpts{
			Name: "governance_steps_closed_total",
			Help: "Total number of steps closed by evidence",
		}),
		ProcessesClosed: f.NewCounter(prometheus.CounterOpts{
			Name: "governance_processes_closed_total",
			Help: "Total number of process instances closed",
		}),
		RejectedOperations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "governance_rejected_operations_total",
			Help: "Operations rejected before any write, by operation and error code",
		}, []string{"operation", "code"}),
		SubmitDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "governance_submit_artifact_duration_seconds",
			Help:    "Duration of artifact submission including closure evaluation",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

func (m *Metrics) AddTemplatesUpserted(n int) {
	if m == nil {
		return
	}
	m.TemplatesUpserted.Add(float64(n))
}

func (m *Metrics) IncrementInstancesCreated() {
	if m == nil {
		return
	}
	m.InstancesCreated.Inc()
}

func (m *Metrics) IncrementArtifactsSubmitted() {
	if m == nil {
		return
	}
	m.ArtifactsSubmitted.Inc()
}

func (m *Metrics) IncrementStepsClosed() {
	if m == nil {
		return
	}
	m.StepsClosed.Inc()
}

func (m *Metrics) IncrementProcessesClosed() {
	if m == nil {
		return
	}
	m.ProcessesClosed.Inc()
}

func (m *Metrics) IncrementRejected(operation, code string) {
	if m == nil {
		return
	}
	m.RejectedOperations.WithLabelValues(operation, code).Inc()
}

// ObserveSubmit records the duration of a submission.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveSubmit(start time.Time) {
	if m == nil {
		return
	}
	m.SubmitDuration.Observe(time.Since(start).Seconds())
}
