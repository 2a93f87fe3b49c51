package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	id "govengine/pkg/domain"
	audit "govengine/pkg/platform/audit"
	txcontext "govengine/pkg/platform/tx"
)

// Store implements audit.Store on the insert-only audit_events table.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) execer(ctx context.Context) txcontext.Executor {
	return txcontext.ExecutorFor(ctx, s.db)
}

// Append seals the event against its stream head and inserts it. The stream
// is serialized with a transaction-scoped advisory lock, so the head read
// and the insert cannot interleave with another writer of the same stream.
func (s *Store) Append(ctx context.Context, event *audit.Event) error {
	if event.ID.IsNil() {
		event.ID = id.NewEventID()
	}
	event.OccurredAt = audit.NormalizeTime(event.OccurredAt)
	if err := event.Validate(); err != nil {
		return err
	}

	if _, ok := txcontext.From(ctx); ok {
		return s.appendInTx(ctx, event)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin audit append: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()
	if err := s.appendInTx(txcontext.WithTx(ctx, tx), event); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit audit append: %w", err)
	}
	return nil
}

func (s *Store) appendInTx(ctx context.Context, event *audit.Event) error {
	exec := s.execer(ctx)
	stream := event.Stream()

	if _, err := exec.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, stream); err != nil {
		return fmt.Errorf("lock audit stream: %w", err)
	}

	var head string
	err := exec.QueryRowContext(ctx, `
		SELECT hash FROM audit_events
		WHERE stream = $1
		ORDER BY seq DESC
		LIMIT 1
	`, stream).Scan(&head)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("read audit stream head: %w", err)
	}

	if err := audit.Seal(event, head); err != nil {
		return err
	}
	meta, err := audit.MarshalMetadata(event.Metadata)
	if err != nil {
		return err
	}

	var instanceID *uuid.UUID
	if !event.InstanceID.IsNil() {
		u := uuid.UUID(event.InstanceID)
		instanceID = &u
	}

	err = exec.QueryRowContext(ctx, `
		INSERT INTO audit_events (
			id, stream, event_type, actor_type, actor_ref, contact_id,
			instance_id, occurred_at, metadata, prev_hash, hash
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING seq
	`,
		uuid.UUID(event.ID),
		stream,
		string(event.Type),
		string(event.ActorType),
		nullString(event.ActorRef),
		nullString(event.ContactID),
		instanceID,
		event.OccurredAt,
		meta,
		event.PrevHash,
		event.Hash,
	).Scan(&event.Seq)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

const selectColumns = `
	SELECT seq, id, event_type, actor_type, actor_ref, contact_id,
		   instance_id, occurred_at, metadata, prev_hash, hash
	FROM audit_events
`

// ListRecent returns the N most recent events.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, selectColumns+`
		ORDER BY occurred_at DESC, seq DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListByInstance returns the N most recent events of one instance.
func (s *Store) ListByInstance(ctx context.Context, instanceID id.InstanceID, limit int) ([]audit.Event, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, selectColumns+`
		WHERE instance_id = $1
		ORDER BY occurred_at DESC, seq DESC
		LIMIT $2
	`, uuid.UUID(instanceID), limit)
	if err != nil {
		return nil, fmt.Errorf("query instance audit events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListAfter pages through the trail in insertion order.
func (s *Store) ListAfter(ctx context.Context, afterSeq int64, limit int) ([]audit.Event, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, selectColumns+`
		WHERE seq > $1
		ORDER BY seq ASC
		LIMIT $2
	`, afterSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events after %d: %w", afterSeq, err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	events := make([]audit.Event, 0)
	for rows.Next() {
		var (
			event      audit.Event
			eventID    uuid.UUID
			eventType  string
			actorType  string
			actorRef   sql.NullString
			contactID  sql.NullString
			instanceID *uuid.UUID
			meta       []byte
		)
		err := rows.Scan(
			&event.Seq,
			&eventID,
			&eventType,
			&actorType,
			&actorRef,
			&contactID,
			&instanceID,
			&event.OccurredAt,
			&meta,
			&event.PrevHash,
			&event.Hash,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.ID = id.EventID(eventID)
		event.Type = audit.EventType(eventType)
		event.ActorType = audit.ActorType(actorType)
		event.ActorRef = actorRef.String
		event.ContactID = contactID.String
		if instanceID != nil {
			event.InstanceID = id.InstanceID(*instanceID)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &event.Metadata); err != nil {
				return nil, fmt.Errorf("decode audit metadata: %w", err)
			}
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
