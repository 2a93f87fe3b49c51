// Package gate checks that the rule document, the use-case document and the
// compiled rule implementations agree with each other. It runs offline in
// CI and is deterministic: the same inputs always give the same report.
package gate

import (
	"fmt"
	"io"
	"slices"
	"sort"

	"govengine/internal/rules/models"
)

// Check identifies which consistency property a finding violates.
type Check string

const (
	// CheckEngineRefResolves: every engine_ref names an exported implementation.
	CheckEngineRefResolves Check = "A"
	// CheckImplementationReferenced: every exported implementation is used by a rule.
	CheckImplementationReferenced Check = "B"
	// CheckRuleIDExists: every use case rule_id is declared in the rule document.
	CheckRuleIDExists Check = "C"
	// CheckRegistryDrift: the compiled registration table matches the exports.
	CheckRegistryDrift Check = "D"
	// CheckAppliesTo: applies_to_use_cases agrees with use-case rule_ids. Warning only.
	CheckAppliesTo Check = "W"
)

// Finding names the offending rule id, implementation or use case.
type Finding struct {
	Check   Check  `json:"check"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

func (f Finding) String() string {
	return fmt.Sprintf("[%s] %s: %s", f.Check, f.Subject, f.Message)
}

// Inputs are the three governed sources plus the compiled registration
// table.
type Inputs struct {
	Rules      []models.Rule
	UseCases   []models.UseCase
	Exports    []string
	Registered []string
}

// Report lists every violation, not just the first, so all drift can be
// fixed in one pass.
type Report struct {
	Violations []Finding `json:"violations"`
	Warnings   []Finding `json:"warnings"`
}

func (r Report) Passed() bool { return len(r.Violations) == 0 }

// Run applies every check to in.
func Run(in Inputs) Report {
	report := Report{Violations: []Finding{}, Warnings: []Finding{}}

	exports := toSet(in.Exports)
	registered := toSet(in.Registered)
	ruleIDs := make(map[string]struct{}, len(in.Rules))
	referenced := make(map[string]struct{}, len(in.Rules))
	for _, r := range in.Rules {
		ruleIDs[r.ID] = struct{}{}
		referenced[r.EngineRef] = struct{}{}
	}

	for _, r := range in.Rules {
		if _, ok := exports[r.EngineRef]; !ok {
			report.Violations = append(report.Violations, Finding{
				Check:   CheckEngineRefResolves,
				Subject: r.ID,
				Message: fmt.Sprintf("engine_ref %q has no exported implementation", r.EngineRef),
			})
		}
	}

	for _, name := range sorted(exports) {
		if _, ok := referenced[name]; !ok {
			report.Violations = append(report.Violations, Finding{
				Check:   CheckImplementationReferenced,
				Subject: name,
				Message: "exported implementation is not referenced by any rule",
			})
		}
	}

	for _, uc := range in.UseCases {
		for _, ruleID := range uc.RuleIDs {
			if _, ok := ruleIDs[ruleID]; !ok {
				report.Violations = append(report.Violations, Finding{
					Check:   CheckRuleIDExists,
					Subject: uc.ID,
					Message: fmt.Sprintf("rule_id %s is not declared in the rule catalog", ruleID),
				})
			}
		}
	}

	for _, name := range sorted(exports) {
		if _, ok := registered[name]; !ok {
			report.Violations = append(report.Violations, Finding{
				Check:   CheckRegistryDrift,
				Subject: name,
				Message: "exported implementation is missing from the registration table",
			})
		}
	}
	for _, name := range sorted(registered) {
		if _, ok := exports[name]; !ok {
			report.Violations = append(report.Violations, Finding{
				Check:   CheckRegistryDrift,
				Subject: name,
				Message: "registration table entry has no exported implementation",
			})
		}
	}

	report.Warnings = appliesToWarnings(in.Rules, in.UseCases)
	return report
}

func appliesToWarnings(rules []models.Rule, useCases []models.UseCase) []Finding {
	warnings := []Finding{}
	byUseCase := make(map[string]models.UseCase, len(useCases))
	for _, uc := range useCases {
		byUseCase[uc.ID] = uc
	}
	byRule := make(map[string]models.Rule, len(rules))
	for _, r := range rules {
		byRule[r.ID] = r
	}

	for _, r := range rules {
		for _, ucID := range r.AppliesToUseCases {
			uc, ok := byUseCase[ucID]
			switch {
			case !ok:
				warnings = append(warnings, Finding{
					Check:   CheckAppliesTo,
					Subject: r.ID,
					Message: fmt.Sprintf("applies_to_use_cases names unknown use case %s", ucID),
				})
			case !slices.Contains(uc.RuleIDs, r.ID):
				warnings = append(warnings, Finding{
					Check:   CheckAppliesTo,
					Subject: r.ID,
					Message: fmt.Sprintf("applies to %s but %s does not list it in rule_ids", ucID, ucID),
				})
			}
		}
	}
	for _, uc := range useCases {
		for _, ruleID := range uc.RuleIDs {
			r, ok := byRule[ruleID]
			if ok && !slices.Contains(r.AppliesToUseCases, uc.ID) {
				warnings = append(warnings, Finding{
					Check:   CheckAppliesTo,
					Subject: uc.ID,
					Message: fmt.Sprintf("lists %s but the rule does not name %s in applies_to_use_cases", ruleID, uc.ID),
				})
			}
		}
	}
	return warnings
}

// Write renders human-readable diagnostics, one line per finding, followed
// by a PASS or FAIL summary.
func (r Report) Write(w io.Writer, in Inputs) error {
	for _, f := range r.Violations {
		if _, err := fmt.Fprintf(w, "FAIL %s\n", f); err != nil {
			return err
		}
	}
	for _, f := range r.Warnings {
		if _, err := fmt.Fprintf(w, "WARN %s\n", f); err != nil {
			return err
		}
	}
	var err error
	if r.Passed() {
		_, err = fmt.Fprintf(w, "PASS governance gate: %d rules, %d implementations, %d use cases consistent\n",
			len(in.Rules), len(in.Exports), len(in.UseCases))
	} else {
		_, err = fmt.Fprintf(w, "FAIL governance gate: %d violation(s)\n", len(r.Violations))
	}
	return err
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

func sorted(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
