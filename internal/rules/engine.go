package rules

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"govengine/internal/rules/catalog"
	"govengine/internal/rules/impl"
	"govengine/internal/rules/metrics"
	"govengine/internal/rules/models"
)

// Engine evaluates payloads against the rule catalog. Rules are bound to
// their implementations once, when the engine is built.
type Engine struct {
	catalog *catalog.Catalog
	bound   map[string]impl.Func
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// New binds every rule in c. A rule whose engine_ref is not registered
// stays unbound and always fails; the gate is where that drift is caught.
func New(c *catalog.Catalog, opts ...Option) *Engine {
	e := &Engine{
		catalog: c,
		bound:   make(map[string]impl.Func, len(c.Rules)),
		tracer:  otel.Tracer("govengine/rules"),
	}
	for _, opt := range opts {
		opt(e)
	}
	for _, r := range c.Rules {
		if fn, ok := lookup(r.EngineRef); ok {
			e.bound[r.ID] = fn
		} else if e.logger != nil {
			e.logger.Warn("rule engine_ref is not registered",
				"rule_id", r.ID,
				"engine_ref", r.EngineRef,
			)
		}
	}
	return e
}

func (e *Engine) Rules() []models.Rule {
	return e.catalog.Rules
}

func (e *Engine) UseCases() []models.UseCase {
	return e.catalog.UseCases
}

// EvaluateRule runs one rule. Unknown rules and unbound engine_refs fail
// with a violation instead of erroring.
func (e *Engine) EvaluateRule(ctx context.Context, ruleID string, payload impl.Payload) models.RuleEvaluation {
	_, span := e.tracer.Start(ctx, "rules.EvaluateRule")
	defer span.End()
	span.SetAttributes(attribute.String("rule.id", ruleID))

	res := e.evaluateRule(ruleID, payload)
	span.SetAttributes(attribute.String("rule.result", string(res.Result)))
	label := ruleID
	if _, known := e.catalog.Rule(ruleID); !known {
		label = metrics.UnknownLabel
	}
	e.metrics.IncrementRuleOutcome(label, string(res.Result))
	return res
}

func (e *Engine) evaluateRule(ruleID string, payload impl.Payload) models.RuleEvaluation {
	rule, ok := e.catalog.Rule(ruleID)
	if !ok {
		return models.RuleEvaluation{
			RuleID:     ruleID,
			Severity:   models.SeverityCritical,
			Result:     models.OutcomeFail,
			Violations: []string{fmt.Sprintf("rule %s is not in the rule catalog", ruleID)},
			Evidence:   map[string]any{},
		}
	}
	eval := models.RuleEvaluation{
		RuleID:    rule.ID,
		RuleName:  rule.Name,
		EngineRef: rule.EngineRef,
		Severity:  rule.Severity,
	}
	fn, ok := e.bound[rule.ID]
	if !ok {
		eval.Result = models.OutcomeFail
		eval.Violations = []string{fmt.Sprintf("engine_ref %q has no registered implementation", rule.EngineRef)}
		eval.Evidence = map[string]any{}
		return eval
	}
	if payload == nil {
		payload = impl.Payload{}
	}
	res := fn(payload)
	eval.Result = res.Outcome
	eval.Violations = res.Violations
	eval.Evidence = res.Evidence
	return eval
}

// EvaluateUseCase runs every rule of the use case in declaration order.
// The use case fails if any rule fails or if the use case is unknown.
func (e *Engine) EvaluateUseCase(ctx context.Context, useCaseID string, payload impl.Payload) models.UseCaseEvaluation {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "rules.EvaluateUseCase")
	defer span.End()
	span.SetAttributes(attribute.String("use_case.id", useCaseID))

	uc, ok := e.catalog.UseCase(useCaseID)
	if !ok {
		e.metrics.IncrementUseCaseOutcome(metrics.UnknownLabel, string(models.OutcomeFail))
		return models.UseCaseEvaluation{
			UseCaseID:   useCaseID,
			Result:      models.OutcomeFail,
			Violations:  []string{fmt.Sprintf("use case %s is not in the use-case catalog", useCaseID)},
			RuleResults: []models.RuleEvaluation{},
		}
	}

	out := models.UseCaseEvaluation{
		UseCaseID:   uc.ID,
		Result:      models.OutcomePass,
		RuleResults: make([]models.RuleEvaluation, 0, len(uc.RuleIDs)),
	}
	for _, ruleID := range uc.RuleIDs {
		res := e.EvaluateRule(ctx, ruleID, payload)
		if res.Result != models.OutcomePass {
			out.Result = models.OutcomeFail
		}
		out.RuleResults = append(out.RuleResults, res)
	}

	span.SetAttributes(
		attribute.String("use_case.result", string(out.Result)),
		attribute.Int("use_case.rules", len(out.RuleResults)),
	)
	e.metrics.IncrementUseCaseOutcome(uc.ID, string(out.Result))
	e.metrics.ObserveEvaluateLatency(time.Since(start))
	return out
}
