package models

import (
	"time"
	"unicode/utf8"

	id "govengine/pkg/domain"
	dErrors "govengine/pkg/domain-errors"
	audit "govengine/pkg/platform/audit"
)

const (
	MaxTitleLength = 200
	MaxActorLength = 200
)

type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// Instance is a live execution of a template.
//
// Invariants:
//   - CurrentStepID names a step of Snapshot
//   - Status moves open -> closed only; closed is terminal
//   - Snapshot is captured at creation and never changes, so re-bootstrapping
//     the catalog cannot strand an instance on a removed step
type Instance struct {
	ID              id.InstanceID `json:"id"`
	TemplateKey     string        `json:"template_key"`
	TemplateVersion string        `json:"template_version"`
	Snapshot        Template      `json:"template"`
	Title           string        `json:"title"`
	Status          Status        `json:"status"`
	CurrentStepID   string        `json:"current_step_id"`
	CreatedBy       string        `json:"created_by"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
	ClosedAt        *time.Time    `json:"closed_at,omitempty"`
}

func NewInstance(instanceID id.InstanceID, tpl Template, title, actor string, now time.Time) (*Instance, error) {
	if title == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "title is required")
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "title must be 200 characters or less")
	}
	if actor == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "actor is required")
	}
	if utf8.RuneCountInString(actor) > MaxActorLength {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "actor must be 200 characters or less")
	}
	first, ok := tpl.FirstStep()
	if !ok {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "template has no steps")
	}
	return &Instance{
		ID:              instanceID,
		TemplateKey:     tpl.Key,
		TemplateVersion: tpl.Version,
		Snapshot:        tpl.Clone(),
		Title:           title,
		Status:          StatusOpen,
		CurrentStepID:   first.StepID,
		CreatedBy:       actor,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

func (i *Instance) IsClosed() bool {
	return i.Status == StatusClosed
}

// CanAcceptArtifact rejects submissions against a closed instance.
func (i *Instance) CanAcceptArtifact() error {
	if i.IsClosed() {
		return dErrors.New(dErrors.CodeInvalidState, "process instance is closed")
	}
	return nil
}

// CurrentStep resolves CurrentStepID against the pinned snapshot.
func (i *Instance) CurrentStep() (Step, error) {
	step, _, ok := i.Snapshot.StepByID(i.CurrentStepID)
	if !ok {
		return Step{}, dErrors.New(dErrors.CodeInvariantViolation, "current step is not part of the template snapshot")
	}
	return step, nil
}

// TransitionKind is the outcome of a closure evaluation.
type TransitionKind int

const (
	TransitionNone TransitionKind = iota
	TransitionStepClosed
	TransitionProcessClosed
)

// Transition describes what closure evaluation decided. For
// TransitionProcessClosed, ClosedStepID is the final step and NextStepID is
// empty.
type Transition struct {
	Kind         TransitionKind
	ClosedStepID string
	NextStepID   string
}

// EvaluateClosure decides the transition implied by the distinct artifact
// types seen for the current step. It does not mutate the instance; call
// ApplyTransition with the result.
func (i *Instance) EvaluateClosure(seen map[string]struct{}) (Transition, error) {
	if err := i.CanAcceptArtifact(); err != nil {
		return Transition{}, err
	}
	step, err := i.CurrentStep()
	if err != nil {
		return Transition{}, err
	}
	if !step.SatisfiedBy(seen) {
		return Transition{Kind: TransitionNone}, nil
	}
	if next, ok := i.Snapshot.NextStep(step.StepID); ok {
		return Transition{Kind: TransitionStepClosed, ClosedStepID: step.StepID, NextStepID: next.StepID}, nil
	}
	return Transition{Kind: TransitionProcessClosed, ClosedStepID: step.StepID}, nil
}

// ApplyTransition moves the instance according to t.
func (i *Instance) ApplyTransition(t Transition, now time.Time) {
	switch t.Kind {
	case TransitionStepClosed:
		i.CurrentStepID = t.NextStepID
		i.UpdatedAt = now
	case TransitionProcessClosed:
		i.Status = StatusClosed
		closedAt := now
		i.ClosedAt = &closedAt
		i.UpdatedAt = now
	case TransitionNone:
		i.UpdatedAt = now
	}
}

type StepStatus string

const (
	StepStatusOpen StepStatus = "open"
	StepStatusDone StepStatus = "done"
)

// StepProgress tracks one step of one instance.
type StepProgress struct {
	InstanceID id.InstanceID `json:"-"`
	StepID     string        `json:"step_id"`
	Title      string        `json:"title"`
	Position   int           `json:"position"`
	Status     StepStatus    `json:"status"`
	DoneAt     *time.Time    `json:"done_at,omitempty"`
}

// NewStepProgress builds the initial progress rows for an instance.
func NewStepProgress(inst *Instance) []StepProgress {
	out := make([]StepProgress, len(inst.Snapshot.Steps))
	for pos, step := range inst.Snapshot.Steps {
		out[pos] = StepProgress{
			InstanceID: inst.ID,
			StepID:     step.StepID,
			Title:      step.Title,
			Position:   pos,
			Status:     StepStatusOpen,
		}
	}
	return out
}

// InstanceDetail is the read model for a single instance.
type InstanceDetail struct {
	Instance  *Instance      `json:"instance"`
	Steps     []StepProgress `json:"steps"`
	Artifacts []Artifact     `json:"artifacts"`
	Events    []audit.Event  `json:"events"`
}
