package memory

import (
	"context"
	"maps"
	"sort"
	"sync"

	id "govengine/pkg/domain"
	audit "govengine/pkg/platform/audit"
	txcontext "govengine/pkg/platform/tx"
)

// InMemoryStore keeps the trail in process memory. It has no mutators beyond
// Append and only ever hands out copies, so callers cannot rewrite history
// through a returned slice or map.
type InMemoryStore struct {
	mu     sync.RWMutex
	events []audit.Event
	heads  map[string]string
	seq    int64
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{heads: make(map[string]string)}
}

func (s *InMemoryStore) Append(ctx context.Context, event *audit.Event) error {
	if event.ID.IsNil() {
		event.ID = id.NewEventID()
	}
	event.OccurredAt = audit.NormalizeTime(event.OccurredAt)
	if err := event.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stream := event.Stream()
	prevHead, hadHead := s.heads[stream]
	if err := audit.Seal(event, prevHead); err != nil {
		return err
	}
	s.seq++
	event.Seq = s.seq

	stored := copyEvent(*event)
	s.events = append(s.events, stored)
	s.heads[stream] = stored.Hash

	txcontext.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i := len(s.events) - 1; i >= 0; i-- {
			if s.events[i].ID == stored.ID {
				s.events = append(s.events[:i], s.events[i+1:]...)
				break
			}
		}
		if hadHead {
			s.heads[stream] = prevHead
		} else {
			delete(s.heads, stream)
		}
	})
	return nil
}

func (s *InMemoryStore) ListRecent(_ context.Context, limit int) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newestFirst(s.events, limit, func(audit.Event) bool { return true }), nil
}

func (s *InMemoryStore) ListByInstance(_ context.Context, instanceID id.InstanceID, limit int) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newestFirst(s.events, limit, func(e audit.Event) bool { return e.InstanceID == instanceID }), nil
}

func (s *InMemoryStore) ListAfter(_ context.Context, afterSeq int64, limit int) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]audit.Event, 0)
	for _, e := range s.events {
		if e.Seq <= afterSeq {
			continue
		}
		out = append(out, copyEvent(e))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func newestFirst(events []audit.Event, limit int, keep func(audit.Event) bool) []audit.Event {
	out := make([]audit.Event, 0)
	for _, e := range events {
		if keep(e) {
			out = append(out, copyEvent(e))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].OccurredAt.Equal(out[j].OccurredAt) {
			return out[i].OccurredAt.After(out[j].OccurredAt)
		}
		return out[i].Seq > out[j].Seq
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// copyEvent clones the metadata map one level deep. Nested values are
// produced by services as fresh literals and never shared.
func copyEvent(e audit.Event) audit.Event {
	if e.Metadata != nil {
		e.Metadata = maps.Clone(e.Metadata)
	}
	return e
}
