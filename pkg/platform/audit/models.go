package audit

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	id "govengine/pkg/domain"
	dErrors "govengine/pkg/domain-errors"
)

// EventType is the closed set of governance events. New kinds are added as
// new members; existing members never change meaning.
type EventType string

const (
	EventCatalogBootstrapped EventType = "catalog_bootstrapped"
	EventInstanceCreated     EventType = "instance_created"
	EventArtifactAdded       EventType = "artifact_added"
	EventStepClosed          EventType = "step_closed"
	EventProcessClosed       EventType = "process_closed"
)

// FallbackLabel is rendered for event types this build does not know about,
// e.g. rows written by a newer release.
const FallbackLabel = "Event"

var eventLabels = map[EventType]string{
	EventCatalogBootstrapped: "Catalog bootstrapped",
	EventInstanceCreated:     "Process instance created",
	EventArtifactAdded:       "Artifact added",
	EventStepClosed:          "Step closed",
	EventProcessClosed:       "Process closed",
}

// Valid reports whether t is a member of the closed enumeration.
func (t EventType) Valid() bool {
	_, ok := eventLabels[t]
	return ok
}

// Label returns a display label. Unknown types get FallbackLabel.
func (t EventType) Label() string {
	if label, ok := eventLabels[t]; ok {
		return label
	}
	return FallbackLabel
}

// ActorType identifies who caused an event.
type ActorType string

const (
	ActorSystem  ActorType = "system"
	ActorAdmin   ActorType = "admin"
	ActorContact ActorType = "contact"
)

func (a ActorType) Valid() bool {
	switch a {
	case ActorSystem, ActorAdmin, ActorContact:
		return true
	}
	return false
}

// Streams partition the hash chain. Catalog events chain together; each
// instance has its own chain.
const CatalogStream = "catalog"

func InstanceStream(instanceID id.InstanceID) string {
	return "instance:" + instanceID.String()
}

// MaxMetadataBytes caps the serialized metadata payload. Oversized metadata
// is rejected, never truncated.
const MaxMetadataBytes = 16 << 10

// Event is an immutable record of something that happened. Seq, PrevHash
// and Hash are assigned by the store on append.
type Event struct {
	ID         id.EventID     `json:"id"`
	Seq        int64          `json:"seq"`
	Type       EventType      `json:"event_type"`
	ActorType  ActorType      `json:"actor_type"`
	ActorRef   string         `json:"actor_ref,omitempty"`
	ContactID  string         `json:"contact_id,omitempty"`
	InstanceID id.InstanceID  `json:"instance_id,omitzero"`
	OccurredAt time.Time      `json:"occurred_at"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	PrevHash   string         `json:"prev_hash"`
	Hash       string         `json:"hash"`
}

// Stream returns the hash-chain partition the event belongs to.
func (e Event) Stream() string {
	if e.InstanceID.IsNil() {
		return CatalogStream
	}
	return InstanceStream(e.InstanceID)
}

// Validate checks the envelope before it reaches a store. Unknown event
// types are rejected on write even though readers tolerate them.
func (e Event) Validate() error {
	if !e.Type.Valid() {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown audit event type %q", e.Type))
	}
	if !e.ActorType.Valid() {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown actor type %q", e.ActorType))
	}
	if len(e.ActorRef) > 200 {
		return dErrors.New(dErrors.CodeValidation, "actor_ref must be 200 characters or less")
	}
	if e.OccurredAt.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "occurred_at is required")
	}
	raw, err := MarshalMetadata(e.Metadata)
	if err != nil {
		return err
	}
	if len(raw) > MaxMetadataBytes {
		return dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("audit metadata is %d bytes, limit is %d", len(raw), MaxMetadataBytes))
	}
	return nil
}

// MarshalMetadata serializes metadata deterministically (map keys sorted).
// Nil metadata encodes as an empty object.
func MarshalMetadata(meta map[string]any) ([]byte, error) {
	if meta == nil {
		return []byte("{}"), nil
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "audit metadata must be JSON-serializable")
	}
	return raw, nil
}

// Pair is one rendered metadata entry.
type Pair struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

const maxPairValueRunes = 200

// MetadataPairs renders metadata as key/value strings sorted by key. Strings
// render as-is, everything else as compact JSON; values are cut at 200 runes.
func MetadataPairs(meta map[string]any) []Pair {
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]Pair, 0, len(keys))
	for _, k := range keys {
		var v string
		switch val := meta[k].(type) {
		case string:
			v = val
		case nil:
			v = ""
		default:
			raw, err := json.Marshal(val)
			if err != nil {
				v = fmt.Sprint(val)
			} else {
				v = string(raw)
			}
		}
		pairs = append(pairs, Pair{Key: k, Value: truncateRunes(v, maxPairValueRunes)})
	}
	return pairs
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	var b strings.Builder
	n := 0
	for _, r := range s {
		if n == limit {
			break
		}
		b.WriteRune(r)
		n++
	}
	b.WriteString("…")
	return b.String()
}
