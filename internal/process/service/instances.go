package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"govengine/internal/process/models"
	id "govengine/pkg/domain"
	dErrors "govengine/pkg/domain-errors"
	audit "govengine/pkg/platform/audit"
	txcontext "govengine/pkg/platform/tx"
	"govengine/pkg/requestcontext"
)

// CreateInstance starts a process on the first step of a stored template.
// An unknown template key is rejected before anything is written.
func (s *Service) CreateInstance(ctx context.Context, req *models.CreateInstanceRequest, actor string) (inst *models.Instance, err error) {
	ctx, span := s.tracer.Start(ctx, "process.CreateInstance")
	defer span.End()
	defer func() { s.finish(ctx, span, "create_instance", err) }()

	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	actor, err = normalizeActor(actor)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("process.template_key", req.TemplateKey))

	instanceID := id.NewInstanceID()
	now := requestcontext.Now(ctx)
	err = s.tx.RunInTx(txcontext.WithLockKey(ctx, instanceID.String()), func(ctx context.Context) error {
		tpl, err := s.templates.FindTemplate(ctx, req.TemplateKey)
		if err != nil {
			return storeError(err, "process template not found", "failed to load template")
		}

		created, err := models.NewInstance(instanceID, tpl.Template, req.Title, actor, now)
		if err != nil {
			if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
				return dErrors.New(dErrors.CodeValidation, dErrors.Message(err))
			}
			return err
		}
		if err := s.instances.CreateInstance(ctx, created, models.NewStepProgress(created)); err != nil {
			return storeError(err, "", "failed to create instance")
		}

		if err := s.emit(ctx, audit.Event{
			Type:       audit.EventInstanceCreated,
			ActorType:  audit.ActorAdmin,
			ActorRef:   actor,
			InstanceID: created.ID,
			OccurredAt: now,
			Metadata: map[string]any{
				"template_key":     created.TemplateKey,
				"template_version": created.TemplateVersion,
				"title":            created.Title,
				"first_step_id":    created.CurrentStepID,
			},
		}); err != nil {
			return err
		}
		inst = created
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncrementInstancesCreated()
	span.SetAttributes(attribute.String("process.instance_id", inst.ID.String()))
	return inst, nil
}

// SubmitResult reports the instance state after closure evaluation.
type SubmitResult struct {
	Instance   *models.Instance `json:"instance"`
	Artifact   models.Artifact  `json:"artifact"`
	Transition string           `json:"transition"`
}

const (
	transitionNone          = "none"
	transitionStepClosed    = "step_closed"
	transitionProcessClosed = "process_closed"
)

// SubmitArtifact records evidence on the current step and evaluates closure.
//
// The artifact, its event, any step or process closure and the instance
// update form one transaction holding the instance lock, so concurrent
// submissions cannot both close the same step. Closing the final step
// emits process_closed only.
func (s *Service) SubmitArtifact(ctx context.Context, instanceID id.InstanceID, req *models.SubmitArtifactRequest, actor string) (result *SubmitResult, err error) {
	ctx, span := s.tracer.Start(ctx, "process.SubmitArtifact")
	defer span.End()
	defer func() { s.finish(ctx, span, "submit_artifact", err) }()
	start := time.Now()
	defer s.metrics.ObserveSubmit(start)

	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	actor, err = normalizeActor(actor)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("process.instance_id", instanceID.String()),
		attribute.String("process.artifact_type", req.ArtifactType),
	)

	now := requestcontext.Now(ctx)
	err = s.tx.RunInTx(txcontext.WithLockKey(ctx, instanceID.String()), func(ctx context.Context) error {
		inst, err := s.instances.FindInstanceForUpdate(ctx, instanceID)
		if err != nil {
			return storeError(err, "process instance not found", "failed to load instance")
		}
		if err := inst.CanAcceptArtifact(); err != nil {
			return err
		}
		step, err := inst.CurrentStep()
		if err != nil {
			return err
		}

		artifact := models.Artifact{
			ID:                  id.NewArtifactID(),
			InstanceID:          inst.ID,
			StepID:              step.StepID,
			ArtifactType:        req.ArtifactType,
			CountsTowardClosure: step.Requires(req.ArtifactType),
			Title:               req.Title,
			RefURL:              req.RefURL,
			RefText:             req.RefText,
			SHA256:              req.SHA256,
			SubmittedBy:         actor,
			SubmittedAt:         now,
		}
		if err := s.instances.AddArtifact(ctx, &artifact); err != nil {
			return storeError(err, "process instance not found", "failed to record artifact")
		}
		if err := s.emit(ctx, audit.Event{
			Type:       audit.EventArtifactAdded,
			ActorType:  audit.ActorAdmin,
			ActorRef:   actor,
			InstanceID: inst.ID,
			OccurredAt: now,
			Metadata: map[string]any{
				"step_id":               step.StepID,
				"artifact_type":         artifact.ArtifactType,
				"counts_toward_closure": artifact.CountsTowardClosure,
			},
		}); err != nil {
			return err
		}

		artifacts, err := s.instances.ListArtifacts(ctx, inst.ID, step.StepID)
		if err != nil {
			return storeError(err, "", "failed to load step artifacts")
		}
		transition, err := inst.EvaluateClosure(models.SeenTypes(artifacts, step.StepID))
		if err != nil {
			return err
		}

		label := transitionNone
		switch transition.Kind {
		case models.TransitionStepClosed:
			label = transitionStepClosed
			if err := s.closeStep(ctx, inst, transition, actor, now); err != nil {
				return err
			}
		case models.TransitionProcessClosed:
			label = transitionProcessClosed
			if err := s.closeProcess(ctx, inst, transition, actor, now); err != nil {
				return err
			}
		}

		inst.ApplyTransition(transition, now)
		if err := s.instances.UpdateInstance(ctx, inst); err != nil {
			return storeError(err, "process instance not found", "failed to update instance")
		}
		result = &SubmitResult{Instance: inst, Artifact: artifact, Transition: label}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncrementArtifactsSubmitted()
	switch result.Transition {
	case transitionStepClosed:
		s.metrics.IncrementStepsClosed()
	case transitionProcessClosed:
		s.metrics.IncrementStepsClosed()
		s.metrics.IncrementProcessesClosed()
	}
	span.SetAttributes(attribute.String("process.transition", result.Transition))
	return result, nil
}

func (s *Service) closeStep(ctx context.Context, inst *models.Instance, t models.Transition, actor string, now time.Time) error {
	if err := s.instances.MarkStepDone(ctx, inst.ID, t.ClosedStepID, now); err != nil {
		return storeError(err, "process step not found", "failed to close step")
	}
	return s.emit(ctx, audit.Event{
		Type:       audit.EventStepClosed,
		ActorType:  audit.ActorAdmin,
		ActorRef:   actor,
		InstanceID: inst.ID,
		OccurredAt: now,
		Metadata: map[string]any{
			"step_id":      t.ClosedStepID,
			"next_step_id": t.NextStepID,
		},
	})
}

// closeProcess marks the final step done and reports the closure as a single
// process_closed event.
func (s *Service) closeProcess(ctx context.Context, inst *models.Instance, t models.Transition, actor string, now time.Time) error {
	if err := s.instances.MarkStepDone(ctx, inst.ID, t.ClosedStepID, now); err != nil {
		return storeError(err, "process step not found", "failed to close step")
	}
	return s.emit(ctx, audit.Event{
		Type:       audit.EventProcessClosed,
		ActorType:  audit.ActorAdmin,
		ActorRef:   actor,
		InstanceID: inst.ID,
		OccurredAt: now,
		Metadata: map[string]any{
			"final_step_id": t.ClosedStepID,
		},
	})
}

// GetInstance returns the instance with its step progress, artifacts (newest
// first) and most recent events.
func (s *Service) GetInstance(ctx context.Context, instanceID id.InstanceID) (*models.InstanceDetail, error) {
	inst, err := s.instances.FindInstance(ctx, instanceID)
	if err != nil {
		return nil, storeError(err, "process instance not found", "failed to load instance")
	}
	steps, err := s.instances.ListStepProgress(ctx, instanceID)
	if err != nil {
		return nil, storeError(err, "", "failed to load instance steps")
	}
	artifacts, err := s.instances.ListArtifacts(ctx, instanceID, "")
	if err != nil {
		return nil, storeError(err, "", "failed to load artifacts")
	}
	events := []audit.Event{}
	if s.events != nil {
		events, err = s.events.ListByInstance(ctx, instanceID, instanceEventLimit)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load instance events")
		}
	}
	if steps == nil {
		steps = []models.StepProgress{}
	}
	if artifacts == nil {
		artifacts = []models.Artifact{}
	}
	return &models.InstanceDetail{Instance: inst, Steps: steps, Artifacts: artifacts, Events: events}, nil
}

// ListInstances filters by q over title and template key, newest update
// first.
func (s *Service) ListInstances(ctx context.Context, req models.ListInstancesRequest) ([]models.Instance, error) {
	req.Normalize()
	out, err := s.instances.ListInstances(ctx, req.Q, req.Limit)
	if err != nil {
		return nil, storeError(err, "", "failed to list instances")
	}
	if out == nil {
		out = []models.Instance{}
	}
	return out, nil
}
