package rules

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"govengine/internal/rules/catalog"
	"govengine/internal/rules/impl"
	"govengine/internal/rules/metrics"
	"govengine/internal/rules/models"
)

type EngineSuite struct {
	suite.Suite
	engine  *Engine
	metrics *metrics.Metrics
	ctx     context.Context
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	c := catalog.New(
		[]models.Rule{
			{ID: "RN01", Name: "Strict legality", Severity: models.SeverityCritical, EngineRef: "StrictLegality"},
			{ID: "RN03", Name: "Segregation of duties", Severity: models.SeverityHigh, EngineRef: "SegregationOfDuties"},
			{ID: "RN09", Name: "Not yet built", Severity: models.SeverityLow, EngineRef: "FutureRule"},
		},
		[]models.UseCase{
			{ID: "UC01", Name: "Register contract", RuleIDs: []string{"RN01", "RN03"}},
			{ID: "UC02", Name: "Drifted", RuleIDs: []string{"RN01", "RN77"}},
			{ID: "UC03", Name: "Unbound", RuleIDs: []string{"RN09"}},
		},
	)
	s.metrics = metrics.NewWith(prometheus.NewRegistry())
	s.engine = New(c, WithMetrics(s.metrics))
	s.ctx = context.Background()
}

func (s *EngineSuite) TestRegisteredIsSorted() {
	s.Equal([]string{
		"ConfidentialityMasking",
		"JointLiabilityTrigger",
		"PersonnelSpendingLimit",
		"SegregationOfDuties",
		"StrictLegality",
	}, Registered())
}

func (s *EngineSuite) TestEvaluateRule() {
	s.Run("bound rule carries identity", func() {
		res := s.engine.EvaluateRule(s.ctx, "RN01", impl.Payload{"legal_basis_id": "Law 14.133"})
		s.Equal(models.OutcomePass, res.Result)
		s.Equal("Strict legality", res.RuleName)
		s.Equal("StrictLegality", res.EngineRef)
		s.Equal(models.SeverityCritical, res.Severity)
	})

	s.Run("unknown rule fails with violation", func() {
		res := s.engine.EvaluateRule(s.ctx, "RN99", nil)
		s.Equal(models.OutcomeFail, res.Result)
		s.Require().Len(res.Violations, 1)
		s.Contains(res.Violations[0], "RN99")
	})

	s.Run("unbound engine_ref fails with violation", func() {
		res := s.engine.EvaluateRule(s.ctx, "RN09", impl.Payload{})
		s.Equal(models.OutcomeFail, res.Result)
		s.Contains(res.Violations[0], "FutureRule")
	})

	s.Run("nil payload is treated as empty", func() {
		res := s.engine.EvaluateRule(s.ctx, "RN01", nil)
		s.Equal(models.OutcomeFail, res.Result)
	})
}

func (s *EngineSuite) TestEvaluateUseCase() {
	s.Run("all rules pass", func() {
		res := s.engine.EvaluateUseCase(s.ctx, "UC01", impl.Payload{
			"legal_basis_id": "Law 14.133",
			"registered_by":  "ana",
			"audited_by":     "bruno",
		})
		s.Equal(models.OutcomePass, res.Result)
		s.Len(res.RuleResults, 2)
		s.Empty(res.Violations)
	})

	s.Run("one failing rule fails the use case", func() {
		res := s.engine.EvaluateUseCase(s.ctx, "UC01", impl.Payload{
			"legal_basis_id": "Law 14.133",
			"registered_by":  "ana",
			"audited_by":     "ana",
		})
		s.Equal(models.OutcomeFail, res.Result)
		s.Equal(models.OutcomePass, res.RuleResults[0].Result)
		s.Equal(models.OutcomeFail, res.RuleResults[1].Result)
	})

	s.Run("missing rule reference fails", func() {
		res := s.engine.EvaluateUseCase(s.ctx, "UC02", impl.Payload{"legal_basis_id": "x"})
		s.Equal(models.OutcomeFail, res.Result)
		s.Equal("RN77", res.RuleResults[1].RuleID)
	})

	s.Run("unknown use case fails", func() {
		res := s.engine.EvaluateUseCase(s.ctx, "UC404", impl.Payload{})
		s.Equal(models.OutcomeFail, res.Result)
		s.Empty(res.RuleResults)
		s.Require().Len(res.Violations, 1)
		s.Contains(res.Violations[0], "UC404")
	})
}

func (s *EngineSuite) TestMetricsRecordOutcomes() {
	s.engine.EvaluateUseCase(s.ctx, "UC03", impl.Payload{})
	s.Equal(1.0, testutil.ToFloat64(s.metrics.UseCaseOutcome.WithLabelValues("UC03", "FAIL")))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.RuleOutcome.WithLabelValues("RN09", "FAIL")))
}

func (s *EngineSuite) TestUnknownIDsShareOneMetricSeries() {
	for _, id := range []string{"UC404", "UC405", "../../etc"} {
		s.engine.EvaluateUseCase(s.ctx, id, impl.Payload{})
	}
	s.engine.EvaluateUseCase(s.ctx, "UC02", impl.Payload{"legal_basis_id": "LAW-1"})

	s.Equal(3.0, testutil.ToFloat64(s.metrics.UseCaseOutcome.WithLabelValues(metrics.UnknownLabel, "FAIL")))
	s.Equal(2, testutil.CollectAndCount(s.metrics.UseCaseOutcome), "only the unknown series and UC02")
	s.Equal(1.0, testutil.ToFloat64(s.metrics.RuleOutcome.WithLabelValues(metrics.UnknownLabel, "FAIL")), "RN77 is not in the rule catalog")
}
