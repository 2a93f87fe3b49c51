package audit

import (
	"context"

	id "govengine/pkg/domain"
	dErrors "govengine/pkg/domain-errors"
	platformaudit "govengine/pkg/platform/audit"
)

const (
	DefaultRecentLimit = 200
	MaxRecentLimit     = 200
)

// Service is the read side of the audit trail. Writes only happen through
// the compliance publisher inside domain transactions.
type Service struct {
	store platformaudit.Store
}

func NewService(store platformaudit.Store) *Service {
	return &Service{store: store}
}

// Recent returns the newest events across all streams. Limits outside
// [1, MaxRecentLimit] are clamped.
func (s *Service) Recent(ctx context.Context, limit int) ([]EventView, error) {
	events, err := s.store.ListRecent(ctx, clamp(limit))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list audit events")
	}
	return NewEventViews(events), nil
}

// ForInstance returns the newest events of one process instance.
func (s *Service) ForInstance(ctx context.Context, instanceID id.InstanceID, limit int) ([]EventView, error) {
	events, err := s.store.ListByInstance(ctx, instanceID, clamp(limit))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list audit events")
	}
	return NewEventViews(events), nil
}

// Verify recomputes every stream's hash chain.
func (s *Service) Verify(ctx context.Context) (platformaudit.VerifyReport, error) {
	report, err := platformaudit.Verify(ctx, s.store)
	if err != nil {
		return platformaudit.VerifyReport{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to verify audit trail")
	}
	return report, nil
}

func clamp(limit int) int {
	if limit <= 0 {
		return DefaultRecentLimit
	}
	if limit > MaxRecentLimit {
		return MaxRecentLimit
	}
	return limit
}
