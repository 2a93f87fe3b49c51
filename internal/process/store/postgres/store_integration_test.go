//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"govengine/internal/process/models"
	processpg "govengine/internal/process/store/postgres"
	id "govengine/pkg/domain"
	"govengine/pkg/platform/sentinel"
	"govengine/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *processpg.PostgresStore
	now      time.Time
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = processpg.New(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(),
		"process_artifacts", "process_instance_steps", "process_instances", "process_templates")
	s.Require().NoError(err)
	s.now = time.Now().UTC().Truncate(time.Microsecond)
}

func (s *PostgresStoreSuite) template(version string) models.StoredTemplate {
	return models.StoredTemplate{
		Template: models.Template{
			Key:     "procurement",
			Title:   "Procurement",
			Version: version,
			Steps: []models.Step{
				{StepID: "S1", Title: "Request", RequiredArtifacts: []string{"A", "B"}, CloseRule: models.CloseRuleAllArtifacts},
				{StepID: "S2", Title: "Award", RequiredArtifacts: []string{"C"}, CloseRule: models.CloseRuleAllArtifacts},
			},
		},
		CatalogVersion: 1,
		CreatedAt:      s.now,
		UpdatedAt:      s.now,
	}
}

func (s *PostgresStoreSuite) TestUpsertIsIdempotent() {
	ctx := context.Background()
	s.Require().NoError(s.store.UpsertTemplate(ctx, s.template("1.0.0")))
	s.Require().NoError(s.store.UpsertTemplate(ctx, s.template("1.0.0")))

	later := s.template("1.1.0")
	later.UpdatedAt = s.now.Add(time.Hour)
	later.CreatedAt = s.now.Add(time.Hour)
	s.Require().NoError(s.store.UpsertTemplate(ctx, later))

	all, err := s.store.ListTemplates(ctx)
	s.Require().NoError(err)
	s.Require().Len(all, 1)
	s.Equal("1.1.0", all[0].Version)
	s.True(all[0].CreatedAt.Equal(s.now))

	found, err := s.store.FindTemplates(ctx, []string{"procurement", "missing"})
	s.Require().NoError(err)
	s.Len(found, 1)
	s.Equal([]string{"A", "B"}, found["procurement"].Steps[0].RequiredArtifacts)
}

func (s *PostgresStoreSuite) TestInstanceLifecycle() {
	ctx := context.Background()
	inst, err := models.NewInstance(id.NewInstanceID(), s.template("1.0.0").Template, "Buy chairs", "admin", s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.store.CreateInstance(ctx, inst, models.NewStepProgress(inst)))

	s.Require().NoError(s.store.AddArtifact(ctx, &models.Artifact{
		ID: id.NewArtifactID(), InstanceID: inst.ID, StepID: "S1", ArtifactType: "A",
		CountsTowardClosure: true, SHA256: "", SubmittedBy: "admin", SubmittedAt: s.now,
	}))
	artifacts, err := s.store.ListArtifacts(ctx, inst.ID, "S1")
	s.Require().NoError(err)
	s.Require().Len(artifacts, 1)
	s.Equal("A", artifacts[0].ArtifactType)

	s.Require().NoError(s.store.MarkStepDone(ctx, inst.ID, "S1", s.now))
	inst.ApplyTransition(models.Transition{Kind: models.TransitionStepClosed, ClosedStepID: "S1", NextStepID: "S2"}, s.now)
	s.Require().NoError(s.store.UpdateInstance(ctx, inst))

	inst.ApplyTransition(models.Transition{Kind: models.TransitionProcessClosed, ClosedStepID: "S2"}, s.now)
	s.Require().NoError(s.store.UpdateInstance(ctx, inst))

	stored, err := s.store.FindInstance(ctx, inst.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusClosed, stored.Status)
	s.Equal("S2", stored.CurrentStepID)
	s.Equal(inst.Snapshot, stored.Snapshot)

	steps, err := s.store.ListStepProgress(ctx, inst.ID)
	s.Require().NoError(err)
	s.Require().Len(steps, 2)
	s.Equal(models.StepStatusDone, steps[0].Status)

	s.Run("closed row is guarded by the database", func() {
		stored.Title = "rewritten"
		stored.CurrentStepID = "S1"
		s.ErrorIs(s.store.UpdateInstance(ctx, stored), sentinel.ErrInvalidState)
	})
}

func (s *PostgresStoreSuite) TestListInstancesFilters() {
	ctx := context.Background()
	for i, title := range []string{"Buy 100% chairs", "Hire clerk"} {
		inst, err := models.NewInstance(id.NewInstanceID(), s.template("1").Template, title, "admin", s.now.Add(time.Duration(i)*time.Minute))
		s.Require().NoError(err)
		s.Require().NoError(s.store.CreateInstance(ctx, inst, models.NewStepProgress(inst)))
	}

	all, err := s.store.ListInstances(ctx, "", 50)
	s.Require().NoError(err)
	s.Require().Len(all, 2)
	s.Equal("Hire clerk", all[0].Title)

	literal, err := s.store.ListInstances(ctx, "100%", 50)
	s.Require().NoError(err)
	s.Len(literal, 1)

	byKey, err := s.store.ListInstances(ctx, "PROCUREMENT", 1)
	s.Require().NoError(err)
	s.Len(byKey, 1)

	_, err = s.store.FindInstance(ctx, id.NewInstanceID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}
