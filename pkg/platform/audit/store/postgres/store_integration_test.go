//go:build integration

package postgres_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/suite"

	id "govengine/pkg/domain"
	audit "govengine/pkg/platform/audit"
	auditpg "govengine/pkg/platform/audit/store/postgres"
	"govengine/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *auditpg.Store
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = auditpg.New(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "audit_events"))
}

func (s *PostgresStoreSuite) appendEvent(instanceID id.InstanceID, at time.Time) audit.Event {
	e := &audit.Event{
		Type:       audit.EventArtifactAdded,
		ActorType:  audit.ActorAdmin,
		ActorRef:   "admin@example",
		InstanceID: instanceID,
		OccurredAt: at,
		Metadata:   map[string]any{"artifact_type": "A", "counts_toward_closure": true},
	}
	s.Require().NoError(s.store.Append(context.Background(), e))
	return *e
}

// The audit_events triggers raise SQLSTATE GA001 on UPDATE, DELETE and
// TRUNCATE.
func (s *PostgresStoreSuite) requireAppendOnlyRejection(err error) {
	s.T().Helper()
	var pgErr *pgconn.PgError
	s.Require().ErrorAs(err, &pgErr)
	s.Equal("GA001", pgErr.Code)
}

func (s *PostgresStoreSuite) TestRowsCannotBeRewritten() {
	ctx := context.Background()
	e := s.appendEvent(id.NewInstanceID(), time.Now())

	_, err := s.postgres.DB.ExecContext(ctx, `UPDATE audit_events SET actor_ref = 'mallory' WHERE seq = $1`, e.Seq)
	s.requireAppendOnlyRejection(err)

	_, err = s.postgres.DB.ExecContext(ctx, `DELETE FROM audit_events WHERE seq = $1`, e.Seq)
	s.requireAppendOnlyRejection(err)

	_, err = s.postgres.DB.ExecContext(ctx, `TRUNCATE audit_events`)
	s.requireAppendOnlyRejection(err)
}

func (s *PostgresStoreSuite) TestStableOrderAndVerifiableChain() {
	ctx := context.Background()
	instanceID := id.NewInstanceID()
	at := time.Now()
	for i := 0; i < 5; i++ {
		// Identical timestamps exercise the seq tie-break.
		s.appendEvent(instanceID, at)
	}

	first, err := s.store.ListRecent(ctx, 200)
	s.Require().NoError(err)
	second, err := s.store.ListByInstance(ctx, instanceID, 200)
	s.Require().NoError(err)
	s.Require().Len(first, 5)
	s.Equal(first, second)
	s.Greater(first[0].Seq, first[4].Seq)

	report, err := audit.Verify(ctx, s.store)
	s.Require().NoError(err)
	s.True(report.OK(), "breaks: %+v", report.Breaks)
	s.Equal(5, report.Events)
}

func (s *PostgresStoreSuite) TestConcurrentAppendsKeepOneChain() {
	ctx := context.Background()
	instanceID := id.NewInstanceID()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e := &audit.Event{
				Type:       audit.EventArtifactAdded,
				ActorType:  audit.ActorSystem,
				InstanceID: instanceID,
				OccurredAt: time.Now(),
			}
			s.NoError(s.store.Append(ctx, e))
		}()
	}
	wg.Wait()

	report, err := audit.Verify(ctx, s.store)
	s.Require().NoError(err)
	s.True(report.OK(), "breaks: %+v", report.Breaks)
	s.Equal(20, report.Events)
}
