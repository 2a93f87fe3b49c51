package rules

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body any) error
	GetResponseField(field string) (any, error)
}

// RegisterSteps registers use case evaluation steps
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &rulesSteps{tc: tc}

	ctx.Step(`^I evaluate use case "([^"]*)" with payload:$`, steps.evaluate)
	ctx.Step(`^the evaluation result should be "(PASS|FAIL)"$`, steps.resultShouldBe)
	ctx.Step(`^rule "([^"]*)" should have result "(PASS|FAIL)"$`, steps.ruleResultShouldBe)
}

type rulesSteps struct {
	tc TestContext
}

func (s *rulesSteps) evaluate(ctx context.Context, useCaseID string, payload *godog.DocString) error {
	var body map[string]any
	if err := json.Unmarshal([]byte(payload.Content), &body); err != nil {
		return fmt.Errorf("payload is not JSON: %w", err)
	}
	return s.tc.POST("/admin/use-cases/"+useCaseID+"/evaluate", map[string]any{"payload": body})
}

func (s *rulesSteps) resultShouldBe(ctx context.Context, expected string) error {
	v, err := s.tc.GetResponseField("result")
	if err != nil {
		return err
	}
	if v != expected {
		return fmt.Errorf("expected result %q, got %v", expected, v)
	}
	return nil
}

func (s *rulesSteps) ruleResultShouldBe(ctx context.Context, ruleID, expected string) error {
	v, err := s.tc.GetResponseField("rule_results")
	if err != nil {
		return err
	}
	results, _ := v.([]any)
	for _, r := range results {
		entry, _ := r.(map[string]any)
		if entry["rule_id"] != ruleID {
			continue
		}
		if entry["result"] != expected {
			return fmt.Errorf("expected %s to be %s, got %v (violations: %v)", ruleID, expected, entry["result"], entry["violations"])
		}
		return nil
	}
	return fmt.Errorf("rule %s not in rule_results", ruleID)
}
