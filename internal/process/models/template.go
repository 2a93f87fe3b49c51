package models

import "time"

// CloseRule decides when a step is complete. Only one rule exists today;
// templates name it explicitly so new rules can be added without changing
// the meaning of existing documents.
type CloseRule string

const CloseRuleAllArtifacts CloseRule = "requires_all_artifacts"

func (r CloseRule) IsValid() bool {
	return r == CloseRuleAllArtifacts
}

// Step is one stage of a template.
type Step struct {
	StepID            string    `json:"step_id" yaml:"step_id"`
	Title             string    `json:"title" yaml:"title"`
	RequiredArtifacts []string  `json:"required_artifacts" yaml:"required_artifacts"`
	CloseRule         CloseRule `json:"close_rule" yaml:"close_rule"`
}

// Requires reports whether artifactType counts toward closing the step.
func (s Step) Requires(artifactType string) bool {
	for _, required := range s.RequiredArtifacts {
		if required == artifactType {
			return true
		}
	}
	return false
}

// SatisfiedBy reports whether the distinct artifact types in seen cover
// every required artifact. Duplicates and extra types do not matter.
func (s Step) SatisfiedBy(seen map[string]struct{}) bool {
	switch s.CloseRule {
	case CloseRuleAllArtifacts:
		for _, required := range s.RequiredArtifacts {
			if _, ok := seen[required]; !ok {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Template is a governed process definition. Step order defines progression.
type Template struct {
	Key     string `json:"key" yaml:"key"`
	Title   string `json:"title" yaml:"title"`
	Version string `json:"version" yaml:"version"`
	Steps   []Step `json:"steps" yaml:"steps"`
}

// FirstStep returns the step new instances are positioned on.
func (t Template) FirstStep() (Step, bool) {
	if len(t.Steps) == 0 {
		return Step{}, false
	}
	return t.Steps[0], true
}

// StepByID returns the step and its position.
func (t Template) StepByID(stepID string) (Step, int, bool) {
	for i, step := range t.Steps {
		if step.StepID == stepID {
			return step, i, true
		}
	}
	return Step{}, -1, false
}

// NextStep returns the step after stepID, or false when stepID is the last
// step or unknown.
func (t Template) NextStep(stepID string) (Step, bool) {
	_, pos, ok := t.StepByID(stepID)
	if !ok || pos+1 >= len(t.Steps) {
		return Step{}, false
	}
	return t.Steps[pos+1], true
}

// Clone returns a deep copy so snapshots never alias catalog slices.
func (t Template) Clone() Template {
	out := t
	out.Steps = make([]Step, len(t.Steps))
	for i, step := range t.Steps {
		step.RequiredArtifacts = append([]string(nil), step.RequiredArtifacts...)
		out.Steps[i] = step
	}
	return out
}

// StoredTemplate is a template as persisted by bootstrap.
type StoredTemplate struct {
	Template
	CatalogVersion int       `json:"catalog_version"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
