package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "govengine/pkg/domain-errors"
)

// Typed identifiers keep instance, artifact and audit event ids from being
// mixed up at call sites. All are UUIDs underneath.
type (
	InstanceID uuid.UUID
	ArtifactID uuid.UUID
	EventID    uuid.UUID
)

func NewInstanceID() InstanceID { return InstanceID(uuid.New()) }
func NewArtifactID() ArtifactID { return ArtifactID(uuid.New()) }
func NewEventID() EventID       { return EventID(uuid.New()) }

func (i InstanceID) String() string { return uuid.UUID(i).String() }
func (i InstanceID) IsNil() bool    { return uuid.UUID(i) == uuid.Nil }
func (i ArtifactID) String() string { return uuid.UUID(i).String() }
func (i ArtifactID) IsNil() bool    { return uuid.UUID(i) == uuid.Nil }
func (i EventID) String() string    { return uuid.UUID(i).String() }
func (i EventID) IsNil() bool       { return uuid.UUID(i) == uuid.Nil }

// MarshalText lets typed ids render as plain UUID strings in JSON.
func (i InstanceID) MarshalText() ([]byte, error) { return []byte(i.String()), nil }
func (i ArtifactID) MarshalText() ([]byte, error) { return []byte(i.String()), nil }
func (i EventID) MarshalText() ([]byte, error)    { return []byte(i.String()), nil }

func (i *InstanceID) UnmarshalText(b []byte) error { return unmarshalUUID((*uuid.UUID)(i), b) }
func (i *ArtifactID) UnmarshalText(b []byte) error { return unmarshalUUID((*uuid.UUID)(i), b) }
func (i *EventID) UnmarshalText(b []byte) error    { return unmarshalUUID((*uuid.UUID)(i), b) }

func unmarshalUUID(dst *uuid.UUID, b []byte) error {
	if len(b) == 0 {
		*dst = uuid.Nil
		return nil
	}
	u, err := uuid.ParseBytes(b)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid id")
	}
	*dst = u
	return nil
}

// ParseInstanceID validates an instance id received at a trust boundary.
func ParseInstanceID(s string) (InstanceID, error) {
	u, err := parseUUID(s, "instance id")
	return InstanceID(u), err
}

// ParseEventID validates an audit event id.
func ParseEventID(s string) (EventID, error) {
	u, err := parseUUID(s, "event id")
	return EventID(u), err
}

func parseUUID(s, label string) (uuid.UUID, error) {
	if strings.TrimSpace(s) == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid "+label)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be nil")
	}
	return u, nil
}
