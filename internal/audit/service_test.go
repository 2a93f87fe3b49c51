package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	id "govengine/pkg/domain"
	platformaudit "govengine/pkg/platform/audit"
	auditmemory "govengine/pkg/platform/audit/store/memory"
)

type ServiceSuite struct {
	suite.Suite
	store   *auditmemory.InMemoryStore
	service *Service
	ctx     context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.store = auditmemory.NewInMemoryStore()
	s.service = NewService(s.store)
	s.ctx = context.Background()
}

func (s *ServiceSuite) append(eventType platformaudit.EventType, instanceID id.InstanceID, meta map[string]any) {
	e := &platformaudit.Event{
		Type:       eventType,
		ActorType:  platformaudit.ActorAdmin,
		ActorRef:   "auditor",
		InstanceID: instanceID,
		OccurredAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Metadata:   meta,
	}
	s.Require().NoError(s.store.Append(s.ctx, e))
}

func (s *ServiceSuite) TestRecentRendersViews() {
	instanceID := id.NewInstanceID()
	s.append(platformaudit.EventCatalogBootstrapped, id.InstanceID{}, map[string]any{"upserted": 2, "scope": "process"})
	s.append(platformaudit.EventInstanceCreated, instanceID, nil)

	views, err := s.service.Recent(s.ctx, 0)
	s.Require().NoError(err)
	s.Require().Len(views, 2)

	s.Run("newest first", func() {
		s.Equal(string(platformaudit.EventInstanceCreated), views[0].EventType)
		s.Equal(instanceID.String(), views[0].InstanceID)
		s.Equal("Process instance created", views[0].Label)
	})

	s.Run("nil metadata renders as empty object", func() {
		s.NotNil(views[0].Metadata)
		s.Empty(views[0].MetadataPairs)
	})

	s.Run("metadata pairs sorted by key", func() {
		s.Require().Len(views[1].MetadataPairs, 2)
		s.Equal(platformaudit.Pair{Key: "scope", Value: "process"}, views[1].MetadataPairs[0])
		s.Equal(platformaudit.Pair{Key: "upserted", Value: "2"}, views[1].MetadataPairs[1])
		s.Empty(views[1].InstanceID)
	})
}

func (s *ServiceSuite) TestRecentClampsLimit() {
	for range 5 {
		s.append(platformaudit.EventArtifactAdded, id.NewInstanceID(), nil)
	}

	views, err := s.service.Recent(s.ctx, 2)
	s.Require().NoError(err)
	s.Len(views, 2)

	views, err = s.service.Recent(s.ctx, 10_000)
	s.Require().NoError(err)
	s.Len(views, 5)

	s.Equal(DefaultRecentLimit, clamp(-3))
	s.Equal(MaxRecentLimit, clamp(MaxRecentLimit+1))
}

func (s *ServiceSuite) TestForInstanceFiltersStream() {
	a, b := id.NewInstanceID(), id.NewInstanceID()
	s.append(platformaudit.EventInstanceCreated, a, nil)
	s.append(platformaudit.EventInstanceCreated, b, nil)
	s.append(platformaudit.EventArtifactAdded, a, nil)

	views, err := s.service.ForInstance(s.ctx, a, 0)
	s.Require().NoError(err)
	s.Require().Len(views, 2)
	for _, v := range views {
		s.Equal(a.String(), v.InstanceID)
	}
}

func (s *ServiceSuite) TestVerifyIntactTrail() {
	instanceID := id.NewInstanceID()
	s.append(platformaudit.EventCatalogBootstrapped, id.InstanceID{}, nil)
	s.append(platformaudit.EventInstanceCreated, instanceID, nil)
	s.append(platformaudit.EventArtifactAdded, instanceID, map[string]any{"step_id": "S1"})

	report, err := s.service.Verify(s.ctx)
	s.Require().NoError(err)
	s.True(report.OK())
	s.Equal(3, report.Events)
	s.Equal(2, report.Streams)
}

func TestNewEventViewUnknownType(t *testing.T) {
	view := NewEventView(platformaudit.Event{Type: "retention_purged", ActorType: platformaudit.ActorSystem})
	if view.Label != platformaudit.FallbackLabel {
		t.Fatalf("expected fallback label, got %q", view.Label)
	}
}
