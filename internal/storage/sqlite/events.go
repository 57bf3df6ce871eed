package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/dealflowhq/dealflow/internal/types"
)

// addEvent appends an audit trail entry. Used from both the pooled
// connection and transactions so every transition records its event in the
// same commit.
func addEvent(ctx context.Context, q dbtx, entityID string, eventType types.EventType, actor string, oldValue, newValue, comment *string) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO events (entity_id, event_type, actor, old_value, new_value, comment, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, entityID, eventType, actor, oldValue, newValue, comment, time.Now().UTC())
	return wrapDBError("add event", err)
}

// AddEvent appends an audit trail entry within the transaction.
func (t *Tx) AddEvent(ctx context.Context, entityID string, eventType types.EventType, actor string, oldValue, newValue, comment *string) error {
	return addEvent(ctx, t.tx, entityID, eventType, actor, oldValue, newValue, comment)
}

// GetEvents returns the audit trail for an entity, newest first.
// limit <= 0 means no limit.
func (s *Store) GetEvents(ctx context.Context, entityID string, limit int) ([]*types.Event, error) {
	query := `
		SELECT id, entity_id, event_type, actor, old_value, new_value, comment, created_at
		FROM events WHERE entity_id = ? ORDER BY created_at DESC, id DESC
	`
	args := []any{entityID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError("get events", err)
	}
	defer rows.Close()

	var events []*types.Event
	for rows.Next() {
		var e types.Event
		var oldValue, newValue, comment sql.NullString
		if err := rows.Scan(&e.ID, &e.EntityID, &e.EventType, &e.Actor, &oldValue, &newValue, &comment, &e.CreatedAt); err != nil {
			return nil, wrapDBError("scan event", err)
		}
		e.OldValue = nullableString(oldValue)
		e.NewValue = nullableString(newValue)
		e.Comment = nullableString(comment)
		events = append(events, &e)
	}
	return events, rows.Err()
}
