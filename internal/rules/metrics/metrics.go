package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for rule evaluation.
type Metrics struct {
	// Rule outcomes by rule id and result
	RuleOutcome *prometheus.CounterVec

	// Use-case outcomes by use case id and result
	UseCaseOutcome *prometheus.CounterVec

	EvaluateLatency prometheus.Histogram
}

func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the rule metrics on reg.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RuleOutcome: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "governance_rule_outcomes_total",
			Help: "Institutional rule evaluations by rule and result",
		}, []string{"rule_id", "result"}),

		UseCaseOutcome: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "governance_use_case_outcomes_total",
			Help: "Use-case evaluations by use case and result",
		}, []string{"use_case_id", "result"}),

		EvaluateLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "governance_use_case_evaluate_duration_seconds",
			Help:    "Duration of a full use-case evaluation",
			Buckets: []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01},
		}),
	}
}

func (m *Metrics) IncrementRuleOutcome(ruleID, result string) {
	if m != nil {
		m.RuleOutcome.WithLabelValues(ruleID, result).Inc()
	}
}

// UnknownLabel replaces ids that are not in the catalog, so caller supplied
// ids cannot grow the label set.
const UnknownLabel = "unknown"

func (m *Metrics) IncrementUseCaseOutcome(useCaseID, result string) {
	if m != nil {
		m.UseCaseOutcome.WithLabelValues(useCaseID, result).Inc()
	}
}

func (m *Metrics) ObserveEvaluateLatency(d time.Duration) {
	if m != nil {
		m.EvaluateLatency.Observe(d.Seconds())
	}
}
