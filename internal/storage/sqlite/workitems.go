package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dealflowhq/dealflow/internal/types"
)

// CreateWorkItem inserts an explicit task row.
func (s *Store) CreateWorkItem(ctx context.Context, item *types.WorkItem, actor string) error {
	if item.Type == "" {
		item.Type = types.ItemTask
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	if err := item.Validate(); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO work_items (id, deal_id, item_type, title, creator, assignee, started_at, escalated_at, closed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		item.ID, item.DealID, item.Type, item.Title, item.Creator,
		item.Assignee, item.StartedAt, item.EscalatedAt, boolToInt(item.Closed),
		item.CreatedAt,
	)
	return wrapDBError("create work item", err)
}

// GetWorkItem returns an explicit task row.
func (s *Store) GetWorkItem(ctx context.Context, id string) (*types.WorkItem, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, deal_id, item_type, title, creator, assignee, started_at, escalated_at, closed, created_at
		FROM work_items WHERE id = ?
	`, id)
	item, err := scanWorkItem(row)
	if err != nil {
		return nil, wrapDBError(fmt.Sprintf("get work item %s", id), err)
	}
	return item, nil
}

// CloseWorkItem marks a task closed so it leaves the escalation sweep.
func (s *Store) CloseWorkItem(ctx context.Context, id, actor string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE work_items SET closed = 1 WHERE id = ? AND closed = 0`, id)
	if err != nil {
		return wrapDBError("close work item", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapDBError("close work item", err)
	}
	if n == 0 {
		return fmt.Errorf("close work item %s: %w", id, types.ErrNotFound)
	}
	return nil
}

// ListOverdueItems assembles the escalation sweep input: explicit open tasks
// past their due time, open conflicts (review requests), and pushed
// recipients with no live response (deal submissions).
func (s *Store) ListOverdueItems(ctx context.Context, now time.Time) ([]*types.WorkItem, error) {
	var items []*types.WorkItem

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, deal_id, item_type, title, creator, assignee, started_at, escalated_at, closed, created_at
		FROM work_items WHERE closed = 0 AND started_at <= ?
	`, now)
	if err != nil {
		return nil, wrapDBError("list overdue tasks", err)
	}
	defer rows.Close()
	for rows.Next() {
		item, err := scanWorkItem(rows)
		if err != nil {
			return nil, wrapDBError("scan work item", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	conflictRows, err := s.db.QueryContext(ctx, `
		SELECT id, deal_id, field, escalated_at, created_at
		FROM conflicts WHERE status = 'OPEN' AND created_at <= ?
	`, now)
	if err != nil {
		return nil, wrapDBError("list overdue conflicts", err)
	}
	defer conflictRows.Close()
	for conflictRows.Next() {
		var id, dealID, field string
		var escalatedAt sql.NullTime
		var createdAt time.Time
		if err := conflictRows.Scan(&id, &dealID, &field, &escalatedAt, &createdAt); err != nil {
			return nil, wrapDBError("scan overdue conflict", err)
		}
		items = append(items, &types.WorkItem{
			ID:          id,
			DealID:      dealID,
			Type:        types.ItemReviewRequest,
			Title:       fmt.Sprintf("unresolved conflict on %s", field),
			StartedAt:   createdAt,
			EscalatedAt: nullableTime(escalatedAt),
			CreatedAt:   createdAt,
		})
	}
	if err := conflictRows.Err(); err != nil {
		return nil, err
	}

	recipientRows, err := s.db.QueryContext(ctx, `
		SELECT r.id, d.deal_id, r.buyer_id, r.pushed_at, r.escalated_at
		FROM distribution_recipients r
		JOIN distributions d ON d.id = r.distribution_id
		LEFT JOIN buyer_responses resp ON resp.recipient_id = r.id AND resp.superseded_at IS NULL
		WHERE d.status = 'ACTIVE' AND r.pushed_at IS NOT NULL AND r.pushed_at <= ? AND resp.id IS NULL
	`, now)
	if err != nil {
		return nil, wrapDBError("list overdue submissions", err)
	}
	defer recipientRows.Close()
	for recipientRows.Next() {
		var id, dealID, buyerID string
		var pushedAt time.Time
		var escalatedAt sql.NullTime
		if err := recipientRows.Scan(&id, &dealID, &buyerID, &pushedAt, &escalatedAt); err != nil {
			return nil, wrapDBError("scan overdue submission", err)
		}
		items = append(items, &types.WorkItem{
			ID:          id,
			DealID:      dealID,
			Type:        types.ItemDealSubmission,
			Title:       fmt.Sprintf("no response from buyer %s", buyerID),
			StartedAt:   pushedAt,
			EscalatedAt: nullableTime(escalatedAt),
			CreatedAt:   pushedAt,
		})
	}
	return items, recipientRows.Err()
}

// MarkEscalated stamps escalated_at on the underlying row (task, conflict,
// or recipient) and records the escalation in the audit trail.
func (s *Store) MarkEscalated(ctx context.Context, item *types.WorkItem, level types.EscalationLevel, at time.Time) error {
	var query string
	switch item.Type {
	case types.ItemTask:
		query = `UPDATE work_items SET escalated_at = ? WHERE id = ?`
	case types.ItemReviewRequest:
		query = `UPDATE conflicts SET escalated_at = ? WHERE id = ?`
	case types.ItemDealSubmission:
		query = `UPDATE distribution_recipients SET escalated_at = ? WHERE id = ?`
	default:
		return fmt.Errorf("%w: unknown work item type %q", types.ErrValidation, item.Type)
	}

	if _, err := s.db.ExecContext(ctx, query, at, item.ID); err != nil {
		return wrapDBError("mark escalated", err)
	}

	newLevel := level.String()
	return addEvent(ctx, s.db, item.ID, types.EventEscalated, "", nil, &newLevel, nil)
}

func scanWorkItem(row scanner) (*types.WorkItem, error) {
	var w types.WorkItem
	var escalatedAt sql.NullTime
	var closed int
	err := row.Scan(
		&w.ID, &w.DealID, &w.Type, &w.Title, &w.Creator, &w.Assignee,
		&w.StartedAt, &escalatedAt, &closed, &w.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	w.EscalatedAt = nullableTime(escalatedAt)
	w.Closed = closed != 0
	return &w, nil
}
