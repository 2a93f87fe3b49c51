package models

// Severity ranks how serious a rule violation is.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
)

func (s Severity) IsValid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}

// Rule is one institutional rule as declared in the governed rule document.
// EngineRef names the exported implementation that enforces it.
type Rule struct {
	ID                string   `json:"id" yaml:"id"`
	Name              string   `json:"name" yaml:"name"`
	LegalReference    string   `json:"legal_reference" yaml:"legal_reference"`
	ConstraintSummary string   `json:"constraint_summary,omitempty" yaml:"constraint_summary"`
	Objective         string   `json:"objective,omitempty" yaml:"objective"`
	Severity          Severity `json:"severity" yaml:"severity"`
	EngineRef         string   `json:"engine_ref" yaml:"engine_ref"`
	AppliesToUseCases []string `json:"applies_to_use_cases" yaml:"applies_to_use_cases"`
}

// UseCase is an administrative operation and the rules it must satisfy.
type UseCase struct {
	ID            string   `json:"id" yaml:"id"`
	Name          string   `json:"name" yaml:"name"`
	PrimaryActor  string   `json:"primary_actor,omitempty" yaml:"primary_actor"`
	PayloadFields []string `json:"payload_fields" yaml:"payload_fields"`
	FlowSummary   string   `json:"flow_summary,omitempty" yaml:"flow_summary"`
	RuleIDs       []string `json:"rule_ids" yaml:"rule_ids"`
}

// Outcome is the binary result of a rule or use-case evaluation.
type Outcome string

const (
	OutcomePass Outcome = "PASS"
	OutcomeFail Outcome = "FAIL"
)

// RuleEvaluation is the outcome of one rule against one payload.
type RuleEvaluation struct {
	RuleID     string         `json:"rule_id"`
	RuleName   string         `json:"rule_name"`
	EngineRef  string         `json:"engine_ref"`
	Severity   Severity       `json:"severity"`
	Result     Outcome        `json:"result"`
	Violations []string       `json:"violations"`
	Evidence   map[string]any `json:"evidence"`
}

// UseCaseEvaluation aggregates rule evaluations; any failing rule fails the
// use case. Violations is only set when the use case itself is unknown.
type UseCaseEvaluation struct {
	UseCaseID   string           `json:"use_case_id"`
	Result      Outcome          `json:"result"`
	Violations  []string         `json:"violations,omitempty"`
	RuleResults []RuleEvaluation `json:"rule_results"`
}
