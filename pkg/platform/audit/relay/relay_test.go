package relay

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	id "govengine/pkg/domain"
	audit "govengine/pkg/platform/audit"
)

type pagerStub struct {
	events []audit.Event
}

func (p *pagerStub) ListAfter(_ context.Context, afterSeq int64, limit int) ([]audit.Event, error) {
	var out []audit.Event
	for _, e := range p.events {
		if e.Seq > afterSeq {
			out = append(out, e)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type sinkStub struct {
	published []int64
	err       error
}

func (s *sinkStub) Publish(_ context.Context, events []audit.Event) error {
	if s.err != nil {
		return s.err
	}
	for _, e := range events {
		s.published = append(s.published, e.Seq)
	}
	return nil
}

type RelaySuite struct {
	suite.Suite
	store *pagerStub
	sink  *sinkStub
	clock time.Time
	relay *Relay
}

func TestRelaySuite(t *testing.T) {
	suite.Run(t, new(RelaySuite))
}

func (s *RelaySuite) SetupTest() {
	s.store = &pagerStub{}
	s.sink = &sinkStub{}
	s.clock = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.relay = New(s.store, s.sink, WithGapGrace(5*time.Second))
	s.relay.now = func() time.Time { return s.clock }
}

func (s *RelaySuite) add(seqs ...int64) {
	for _, seq := range seqs {
		s.store.events = append(s.store.events, audit.Event{ID: id.NewEventID(), Seq: seq, Type: audit.EventArtifactAdded})
	}
}

func (s *RelaySuite) TestPublishesInOrderAndAdvances() {
	s.add(1, 2, 3)

	n, err := s.relay.Poll(context.Background())
	s.Require().NoError(err)
	s.Equal(3, n)
	s.Equal([]int64{1, 2, 3}, s.sink.published)
	s.Equal(int64(3), s.relay.Cursor())

	n, err = s.relay.Poll(context.Background())
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *RelaySuite) TestWaitsForGapThenSkips() {
	s.add(1, 2, 4)

	_, err := s.relay.Poll(context.Background())
	s.Require().NoError(err)
	s.Equal([]int64{1, 2}, s.sink.published)

	// Within the grace period the gap holds back seq 4.
	_, err = s.relay.Poll(context.Background())
	s.Require().NoError(err)
	s.Equal([]int64{1, 2}, s.sink.published)

	s.clock = s.clock.Add(6 * time.Second)
	_, err = s.relay.Poll(context.Background())
	s.Require().NoError(err)
	s.Equal([]int64{1, 2, 4}, s.sink.published)
	s.Equal(int64(4), s.relay.Cursor())
}

func (s *RelaySuite) TestLateCommitFillsGap() {
	s.add(1, 3)
	_, err := s.relay.Poll(context.Background())
	s.Require().NoError(err)

	s.store.events = append([]audit.Event{s.store.events[0], {ID: id.NewEventID(), Seq: 2}}, s.store.events[1:]...)
	_, err = s.relay.Poll(context.Background())
	s.Require().NoError(err)
	s.Equal([]int64{1, 2, 3}, s.sink.published)
}

func (s *RelaySuite) TestSinkFailureKeepsCursor() {
	s.add(1)
	s.sink.err = errors.New("broker down")

	_, err := s.relay.Poll(context.Background())
	s.Require().Error(err)
	s.Zero(s.relay.Cursor())
}
