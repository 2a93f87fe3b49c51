package audit

import (
	"time"

	platformaudit "govengine/pkg/platform/audit"
)

// EventView is an audit event prepared for display: a label that never
// fails for unknown types and metadata flattened to sorted pairs.
type EventView struct {
	ID            string               `json:"id"`
	Seq           int64                `json:"seq"`
	EventType     string               `json:"event_type"`
	Label         string               `json:"label"`
	ActorType     string               `json:"actor_type"`
	ActorRef      string               `json:"actor_ref,omitempty"`
	ContactID     string               `json:"contact_id,omitempty"`
	InstanceID    string               `json:"instance_id,omitempty"`
	OccurredAt    time.Time            `json:"occurred_at"`
	Metadata      map[string]any       `json:"metadata"`
	MetadataPairs []platformaudit.Pair `json:"metadata_pairs"`
}

func NewEventView(e platformaudit.Event) EventView {
	view := EventView{
		ID:            e.ID.String(),
		Seq:           e.Seq,
		EventType:     string(e.Type),
		Label:         e.Type.Label(),
		ActorType:     string(e.ActorType),
		ActorRef:      e.ActorRef,
		ContactID:     e.ContactID,
		OccurredAt:    e.OccurredAt,
		Metadata:      e.Metadata,
		MetadataPairs: platformaudit.MetadataPairs(e.Metadata),
	}
	if !e.InstanceID.IsNil() {
		view.InstanceID = e.InstanceID.String()
	}
	if view.Metadata == nil {
		view.Metadata = map[string]any{}
	}
	return view
}

func NewEventViews(events []platformaudit.Event) []EventView {
	out := make([]EventView, len(events))
	for i, e := range events {
		out[i] = NewEventView(e)
	}
	return out
}
