package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"govengine/internal/rules/models"
	dErrors "govengine/pkg/domain-errors"
)

const (
	maxIDLength   = 50
	maxNameLength = 200
	maxRefLength  = 100
)

type rulesDocument struct {
	Rules []models.Rule `yaml:"rules"`
}

type useCasesDocument struct {
	UseCases []models.UseCase `yaml:"use_cases"`
}

// Issue is one schema violation, located by a path into the document.
type Issue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (i Issue) String() string { return i.Path + ": " + i.Message }

// ValidationError carries every issue found in a document, not just the
// first.
type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		parts[i] = issue.String()
	}
	return strings.Join(parts, "; ")
}

// Catalog is the validated rule and use-case catalog. Lookups never fail
// for a missing id; they report ok=false.
type Catalog struct {
	Rules    []models.Rule
	UseCases []models.UseCase

	rulesByID    map[string]int
	useCasesByID map[string]int
}

// New assembles a catalog from already validated parts.
func New(rules []models.Rule, useCases []models.UseCase) *Catalog {
	c := &Catalog{
		Rules:        rules,
		UseCases:     useCases,
		rulesByID:    make(map[string]int, len(rules)),
		useCasesByID: make(map[string]int, len(useCases)),
	}
	for i, r := range rules {
		c.rulesByID[r.ID] = i
	}
	for i, u := range useCases {
		c.useCasesByID[u.ID] = i
	}
	return c
}

func (c *Catalog) Rule(ruleID string) (models.Rule, bool) {
	if c == nil {
		return models.Rule{}, false
	}
	i, ok := c.rulesByID[ruleID]
	if !ok {
		return models.Rule{}, false
	}
	return c.Rules[i], true
}

func (c *Catalog) UseCase(useCaseID string) (models.UseCase, bool) {
	if c == nil {
		return models.UseCase{}, false
	}
	i, ok := c.useCasesByID[useCaseID]
	if !ok {
		return models.UseCase{}, false
	}
	return c.UseCases[i], true
}

// ParseRules decodes and validates the institutional rule document.
// Cross-references to use cases are left to the consistency gate.
func ParseRules(data []byte) ([]models.Rule, error) {
	var doc rulesDocument
	if err := decodeStrict(data, &doc, "rule catalog"); err != nil {
		return nil, err
	}
	if issues := validateRules(doc.Rules); len(issues) > 0 {
		return nil, invalid("rule catalog", issues)
	}
	return doc.Rules, nil
}

// ParseUseCases decodes and validates the use-case document.
func ParseUseCases(data []byte) ([]models.UseCase, error) {
	var doc useCasesDocument
	if err := decodeStrict(data, &doc, "use-case catalog"); err != nil {
		return nil, err
	}
	if issues := validateUseCases(doc.UseCases); len(issues) > 0 {
		return nil, invalid("use-case catalog", issues)
	}
	return doc.UseCases, nil
}

func decodeStrict(data []byte, out any, name string) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return dErrors.New(dErrors.CodeValidation, name+" is empty")
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return dErrors.Wrap(err, dErrors.CodeValidation, name+" is not valid YAML")
	}
	var extra any
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return dErrors.New(dErrors.CodeValidation, name+" must contain a single YAML document")
	}
	return nil
}

func invalid(name string, issues []Issue) error {
	verr := &ValidationError{Issues: issues}
	return dErrors.Wrap(verr, dErrors.CodeValidation, name+" failed validation: "+verr.Error())
}

func validateRules(rules []models.Rule) []Issue {
	var issues []Issue
	if len(rules) == 0 {
		return append(issues, Issue{Path: "rules", Message: "at least one rule is required"})
	}
	seen := make(map[string]int, len(rules))
	for i, r := range rules {
		path := fmt.Sprintf("rules[%d]", i)
		issues = append(issues, checkText(path+".id", r.ID, maxIDLength)...)
		issues = append(issues, checkText(path+".name", r.Name, maxNameLength)...)
		issues = append(issues, checkText(path+".engine_ref", r.EngineRef, maxRefLength)...)
		if !r.Severity.IsValid() {
			issues = append(issues, Issue{Path: path + ".severity", Message: fmt.Sprintf("severity %q must be one of CRITICAL, HIGH, MEDIUM, LOW", r.Severity)})
		}
		if prev, dup := seen[r.ID]; dup && r.ID != "" {
			issues = append(issues, Issue{Path: path + ".id", Message: fmt.Sprintf("duplicate rule id %q (also at rules[%d])", r.ID, prev)})
		} else {
			seen[r.ID] = i
		}
		issues = append(issues, checkUnique(path+".applies_to_use_cases", r.AppliesToUseCases)...)
	}
	return issues
}

func validateUseCases(useCases []models.UseCase) []Issue {
	var issues []Issue
	if len(useCases) == 0 {
		return append(issues, Issue{Path: "use_cases", Message: "at least one use case is required"})
	}
	seen := make(map[string]int, len(useCases))
	for i, u := range useCases {
		path := fmt.Sprintf("use_cases[%d]", i)
		issues = append(issues, checkText(path+".id", u.ID, maxIDLength)...)
		issues = append(issues, checkText(path+".name", u.Name, maxNameLength)...)
		if prev, dup := seen[u.ID]; dup && u.ID != "" {
			issues = append(issues, Issue{Path: path + ".id", Message: fmt.Sprintf("duplicate use case id %q (also at use_cases[%d])", u.ID, prev)})
		} else {
			seen[u.ID] = i
		}
		issues = append(issues, checkUnique(path+".rule_ids", u.RuleIDs)...)
	}
	return issues
}

func checkText(path, value string, limit int) []Issue {
	switch {
	case value == "":
		return []Issue{{Path: path, Message: "is required"}}
	case strings.TrimSpace(value) != value:
		return []Issue{{Path: path, Message: "must not have leading or trailing whitespace"}}
	case len(value) > limit:
		return []Issue{{Path: path, Message: fmt.Sprintf("must be %d characters or less", limit)}}
	}
	return nil
}

func checkUnique(path string, values []string) []Issue {
	var issues []Issue
	seen := make(map[string]struct{}, len(values))
	for i, v := range values {
		if v == "" {
			issues = append(issues, Issue{Path: fmt.Sprintf("%s[%d]", path, i), Message: "is required"})
			continue
		}
		if _, dup := seen[v]; dup {
			issues = append(issues, Issue{Path: fmt.Sprintf("%s[%d]", path, i), Message: fmt.Sprintf("duplicate entry %q", v)})
		}
		seen[v] = struct{}{}
	}
	return issues
}
