package process

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body any) error
	GET(path string) error
	GetResponseField(field string) (any, error)
	LastStatus() int
	LastBody() []byte
	Remember(key, value string)
	Recall(key string) string
}

// RegisterSteps registers process catalog and instance steps
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &processSteps{tc: tc}

	ctx.Step(`^the process catalog is bootstrapped$`, steps.bootstrap)
	ctx.Step(`^I bootstrap the process catalog$`, steps.bootstrapRequest)
	ctx.Step(`^I open a "([^"]*)" instance titled "([^"]*)"$`, steps.openInstance)
	ctx.Step(`^I submit an artifact of type "([^"]*)"$`, steps.submitArtifact)
	ctx.Step(`^I submit artifacts "([^"]*)" and "([^"]*)"$`, steps.submitPair)
	ctx.Step(`^I fetch the instance$`, steps.fetchInstance)
	ctx.Step(`^the transition should be "([^"]*)"$`, steps.transitionShouldBe)
	ctx.Step(`^the instance should be at step "([^"]*)"$`, steps.atStep)
}

type processSteps struct {
	tc TestContext
}

func (s *processSteps) bootstrapRequest(ctx context.Context) error {
	return s.tc.POST("/admin/process/bootstrap", nil)
}

func (s *processSteps) bootstrap(ctx context.Context) error {
	if err := s.bootstrapRequest(ctx); err != nil {
		return err
	}
	if s.tc.LastStatus() != 200 {
		return fmt.Errorf("bootstrap failed with %d: %s", s.tc.LastStatus(), s.tc.LastBody())
	}
	return nil
}

func (s *processSteps) openInstance(ctx context.Context, templateKey, title string) error {
	err := s.tc.POST("/admin/process/instances", map[string]any{
		"template_key": templateKey,
		"title":        title,
	})
	if err != nil {
		return err
	}
	if s.tc.LastStatus() != 201 {
		return nil
	}
	id, err := s.tc.GetResponseField("instance_id")
	if err != nil {
		return err
	}
	s.tc.Remember("instance_id", fmt.Sprint(id))
	return nil
}

func (s *processSteps) instancePath() (string, error) {
	id := s.tc.Recall("instance_id")
	if id == "" {
		return "", fmt.Errorf("no instance opened in this scenario")
	}
	return "/admin/process/instances/" + id, nil
}

func (s *processSteps) submitArtifact(ctx context.Context, artifactType string) error {
	path, err := s.instancePath()
	if err != nil {
		return err
	}
	return s.tc.POST(path+"/artifacts", map[string]any{
		"artifact_type": artifactType,
		"title":         artifactType + " (e2e)",
		"ref_text":      "e2e submission",
	})
}

func (s *processSteps) submitPair(ctx context.Context, first, second string) error {
	if err := s.submitArtifact(ctx, first); err != nil {
		return err
	}
	if s.tc.LastStatus() != 201 {
		return fmt.Errorf("submitting %s failed with %d: %s", first, s.tc.LastStatus(), s.tc.LastBody())
	}
	return s.submitArtifact(ctx, second)
}

func (s *processSteps) fetchInstance(ctx context.Context) error {
	path, err := s.instancePath()
	if err != nil {
		return err
	}
	return s.tc.GET(path)
}

func (s *processSteps) transitionShouldBe(ctx context.Context, expected string) error {
	v, err := s.tc.GetResponseField("transition")
	if err != nil {
		return err
	}
	if v != expected {
		return fmt.Errorf("expected transition %q, got %v", expected, v)
	}
	return nil
}

func (s *processSteps) atStep(ctx context.Context, stepID string) error {
	if err := s.fetchInstance(ctx); err != nil {
		return err
	}
	v, err := s.tc.GetResponseField("instance.current_step_id")
	if err != nil {
		return err
	}
	if v != stepID {
		return fmt.Errorf("expected current step %q, got %v", stepID, v)
	}
	return nil
}
