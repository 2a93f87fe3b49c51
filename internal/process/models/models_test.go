package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "govengine/pkg/domain"
	dErrors "govengine/pkg/domain-errors"
)

func twoStepTemplate() Template {
	return Template{
		Key:     "procurement",
		Title:   "Procurement",
		Version: "1.0.0",
		Steps: []Step{
			{StepID: "S1", Title: "Request", RequiredArtifacts: []string{"A", "B"}, CloseRule: CloseRuleAllArtifacts},
			{StepID: "S2", Title: "Award", RequiredArtifacts: []string{"C"}, CloseRule: CloseRuleAllArtifacts},
		},
	}
}

func seen(types ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(types))
	for _, t := range types {
		out[t] = struct{}{}
	}
	return out
}

func TestNewInstance(t *testing.T) {
	now := time.Now()

	t.Run("positions on first step", func(t *testing.T) {
		inst, err := NewInstance(id.NewInstanceID(), twoStepTemplate(), "Buy chairs", "admin@example", now)
		require.NoError(t, err)
		assert.Equal(t, StatusOpen, inst.Status)
		assert.Equal(t, "S1", inst.CurrentStepID)
		assert.Equal(t, "1.0.0", inst.TemplateVersion)
	})

	t.Run("snapshot does not alias template", func(t *testing.T) {
		tpl := twoStepTemplate()
		inst, err := NewInstance(id.NewInstanceID(), tpl, "Buy chairs", "admin", now)
		require.NoError(t, err)
		tpl.Steps[0].RequiredArtifacts[0] = "Z"
		assert.Equal(t, "A", inst.Snapshot.Steps[0].RequiredArtifacts[0])
	})

	t.Run("rejects empty title", func(t *testing.T) {
		_, err := NewInstance(id.NewInstanceID(), twoStepTemplate(), "", "admin", now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	t.Run("rejects template without steps", func(t *testing.T) {
		_, err := NewInstance(id.NewInstanceID(), Template{Key: "empty"}, "x", "admin", now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})
}

func TestEvaluateClosure(t *testing.T) {
	now := time.Now()
	inst, err := NewInstance(id.NewInstanceID(), twoStepTemplate(), "Buy chairs", "admin", now)
	require.NoError(t, err)

	tr, err := inst.EvaluateClosure(seen("A"))
	require.NoError(t, err)
	assert.Equal(t, TransitionNone, tr.Kind)

	tr, err = inst.EvaluateClosure(seen("A", "B", "extra"))
	require.NoError(t, err)
	assert.Equal(t, Transition{Kind: TransitionStepClosed, ClosedStepID: "S1", NextStepID: "S2"}, tr)
	inst.ApplyTransition(tr, now)
	assert.Equal(t, "S2", inst.CurrentStepID)

	tr, err = inst.EvaluateClosure(seen("C"))
	require.NoError(t, err)
	assert.Equal(t, Transition{Kind: TransitionProcessClosed, ClosedStepID: "S2"}, tr)
	inst.ApplyTransition(tr, now)
	assert.True(t, inst.IsClosed())
	require.NotNil(t, inst.ClosedAt)

	_, err = inst.EvaluateClosure(seen("C"))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))
}

func TestSatisfiedByIgnoresOrderAndDuplicates(t *testing.T) {
	step := Step{StepID: "S1", RequiredArtifacts: []string{"B", "A"}, CloseRule: CloseRuleAllArtifacts}
	artifacts := []Artifact{
		{StepID: "S1", ArtifactType: "A"},
		{StepID: "S1", ArtifactType: "A"},
		{StepID: "S0", ArtifactType: "B"},
	}
	assert.False(t, step.SatisfiedBy(SeenTypes(artifacts, "S1")))

	artifacts = append(artifacts, Artifact{StepID: "S1", ArtifactType: "B"})
	assert.True(t, step.SatisfiedBy(SeenTypes(artifacts, "S1")))
}

func TestSubmitArtifactRequestValidate(t *testing.T) {
	req := &SubmitArtifactRequest{ArtifactType: " A ", Title: " Quote ", RefText: "file 12", SHA256: "  " + "ABCDEF0123456789abcdef0123456789abcdef0123456789abcdef0123456789"}
	req.Normalize()
	require.NoError(t, req.Validate())
	assert.Equal(t, "A", req.ArtifactType)
	assert.Equal(t, "abcdef0123456789abcdef0123456789abcdef0123456789abcdef0123456789", req.SHA256)

	assert.Equal(t, "Quote", req.Title)

	bad := &SubmitArtifactRequest{ArtifactType: "A", Title: "Quote", RefURL: "https://example.org/q", SHA256: "nothex"}
	bad.Normalize()
	assert.True(t, dErrors.HasCode(bad.Validate(), dErrors.CodeValidation))

	missing := &SubmitArtifactRequest{}
	assert.True(t, dErrors.HasCode(missing.Validate(), dErrors.CodeValidation))
}

func TestSubmitArtifactRequestRequiresTitleAndReference(t *testing.T) {
	tests := []struct {
		name    string
		req     SubmitArtifactRequest
		message string
	}{
		{"type only", SubmitArtifactRequest{ArtifactType: "A"}, "title is required"},
		{"blank title", SubmitArtifactRequest{ArtifactType: "A", Title: "   ", RefText: "x"}, "title is required"},
		{"no reference", SubmitArtifactRequest{ArtifactType: "A", Title: "Quote"}, "either ref_url or ref_text is required"},
		{"blank references", SubmitArtifactRequest{ArtifactType: "A", Title: "Quote", RefURL: " ", RefText: " "}, "either ref_url or ref_text is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			req.Normalize()
			err := req.Validate()
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
			assert.Contains(t, err.Error(), tt.message)
		})
	}

	for _, ok := range []SubmitArtifactRequest{
		{ArtifactType: "A", Title: "Quote", RefURL: "https://example.org/q"},
		{ArtifactType: "A", Title: "Quote", RefText: "protocol 2026/114"},
	} {
		ok.Normalize()
		assert.NoError(t, ok.Validate())
	}
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 50, ClampLimit(0, 50, 200))
	assert.Equal(t, 200, ClampLimit(999, 50, 200))
	assert.Equal(t, 7, ClampLimit(7, 50, 200))
}
