// Package relay ships the audit trail to an external log.
//
// The relay tails the store by sequence number and publishes each event at
// least once, in sequence order. Consumers deduplicate on the event id,
// which is also the record key.
package relay

import (
	"context"
	"log/slog"
	"time"

	audit "govengine/pkg/platform/audit"
)

// Sink receives batches of events in ascending sequence order.
type Sink interface {
	Publish(ctx context.Context, events []audit.Event) error
}

const (
	defaultInterval  = 2 * time.Second
	defaultBatchSize = 200
	// defaultGapGrace is how long a missing sequence number is awaited
	// before it is treated as a rolled-back insert. Sequence numbers are
	// allocated before commit, so a later event can become visible before
	// an earlier one.
	defaultGapGrace = 10 * time.Second
)

// Relay polls the audit store and forwards new events to a Sink.
type Relay struct {
	store    audit.Pager
	sink     Sink
	logger   *slog.Logger
	interval time.Duration
	batch    int
	gapGrace time.Duration
	now      func() time.Time

	cursor   int64
	gapSeq   int64
	gapSince time.Time
}

type Option func(*Relay)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) { r.logger = logger }
}

func WithInterval(d time.Duration) Option {
	return func(r *Relay) { r.interval = d }
}

func WithGapGrace(d time.Duration) Option {
	return func(r *Relay) { r.gapGrace = d }
}

// WithStartAfter resumes after an already relayed sequence number.
func WithStartAfter(seq int64) Option {
	return func(r *Relay) { r.cursor = seq }
}

func New(store audit.Pager, sink Sink, opts ...Option) *Relay {
	r := &Relay{
		store:    store,
		sink:     sink,
		interval: defaultInterval,
		batch:    defaultBatchSize,
		gapGrace: defaultGapGrace,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Cursor returns the last relayed sequence number.
func (r *Relay) Cursor() int64 { return r.cursor }

// Run polls until ctx is cancelled. Poll errors are logged and retried on
// the next tick; the cursor only moves after a successful publish.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		if _, err := r.Poll(ctx); err != nil && r.logger != nil {
			r.logger.WarnContext(ctx, "audit relay poll failed", "cursor", r.cursor, "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Poll publishes the next contiguous run of events and returns how many were
// sent.
func (r *Relay) Poll(ctx context.Context) (int, error) {
	page, err := r.store.ListAfter(ctx, r.cursor, r.batch)
	if err != nil {
		return 0, err
	}

	next := r.cursor
	ready := make([]audit.Event, 0, len(page))
	for _, e := range page {
		if e.Seq != next+1 && !r.skipGap(next+1) {
			break
		}
		ready = append(ready, e)
		next = e.Seq
	}
	if len(ready) == 0 {
		return 0, nil
	}

	if err := r.sink.Publish(ctx, ready); err != nil {
		return 0, err
	}
	r.cursor = next
	return len(ready), nil
}

// skipGap reports whether the missing seq has been absent long enough.
func (r *Relay) skipGap(seq int64) bool {
	now := r.now()
	if r.gapSeq != seq {
		r.gapSeq = seq
		r.gapSince = now
		return false
	}
	if now.Sub(r.gapSince) < r.gapGrace {
		return false
	}
	if r.logger != nil {
		r.logger.Info("audit relay skipping sequence gap", "seq", seq)
	}
	return true
}
