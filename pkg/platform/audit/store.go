package audit

import (
	"context"

	id "govengine/pkg/domain"
)

// Store persists audit events. There is no update or delete, and
// implementations must also refuse them at the storage level.
//
// Append assigns Seq, PrevHash and Hash on the passed event. It joins the
// caller's transaction when one is present in ctx.
type Store interface {
	Append(ctx context.Context, event *Event) error
	// ListRecent returns up to limit events, occurred_at descending with seq
	// descending as the tie-break.
	ListRecent(ctx context.Context, limit int) ([]Event, error)
	// ListByInstance returns the newest events of one instance, same order.
	ListByInstance(ctx context.Context, instanceID id.InstanceID, limit int) ([]Event, error)
	// ListAfter returns events with Seq > afterSeq in ascending Seq order.
	ListAfter(ctx context.Context, afterSeq int64, limit int) ([]Event, error)
}
