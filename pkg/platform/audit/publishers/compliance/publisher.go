// Package compliance provides a fail-closed audit publisher for governance events.
//
// Emit writes synchronously through the audit store and joins the caller's
// transaction when one is in context. If the write fails, an error is
// returned and the calling operation MUST fail: an operation whose audit
// record was not persisted is treated as not having happened.
package compliance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	audit "govengine/pkg/platform/audit"
	"govengine/pkg/requestcontext"
)

// Publisher emits governance events with fail-closed semantics.
type Publisher struct {
	store   audit.Store
	logger  *slog.Logger
	metrics *Metrics
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithLogger sets a logger for error reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

func New(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit persists event and returns it as stored (id, seq and hashes set).
func (p *Publisher) Emit(ctx context.Context, event audit.Event) (audit.Event, error) {
	start := time.Now()

	if event.OccurredAt.IsZero() {
		event.OccurredAt = requestcontext.Now(ctx)
	}
	if err := event.Validate(); err != nil {
		p.metrics.IncRejected()
		return audit.Event{}, err
	}

	if err := p.store.Append(ctx, &event); err != nil {
		p.metrics.IncPersistFailures()
		if p.logger != nil {
			p.logger.ErrorContext(ctx, "CRITICAL: governance audit append failed",
				"event_type", event.Type,
				"instance_id", event.InstanceID,
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
		}
		return audit.Event{}, fmt.Errorf("audit persistence failed: %w", err)
	}

	p.metrics.ObservePersistDuration(time.Since(start).Seconds())
	p.metrics.IncEventsEmitted(event.Type)
	return event, nil
}
