package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dealflowhq/dealflow/internal/types"
)

const omColumns = `id, deal_id, version_number, status, sections, claim_refs,
	broker_approved_by, broker_approved_at, seller_approved_by, seller_approved_at,
	created_by, created_at, updated_at`

// GetOMVersion returns a single OM version by id.
func (s *Store) GetOMVersion(ctx context.Context, id string) (*types.OMVersion, error) {
	return getOMVersion(ctx, s.db, id)
}

// LatestOMVersion returns the highest-numbered version for a deal.
func (s *Store) LatestOMVersion(ctx context.Context, dealID string) (*types.OMVersion, error) {
	return latestOMVersion(ctx, s.db, dealID)
}

// ListOMVersions returns all versions for a deal, newest first.
func (s *Store) ListOMVersions(ctx context.Context, dealID string) ([]*types.OMVersion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+omColumns+` FROM om_versions WHERE deal_id = ? ORDER BY version_number DESC`, dealID)
	if err != nil {
		return nil, wrapDBError("list om versions", err)
	}
	defer rows.Close()

	var versions []*types.OMVersion
	for rows.Next() {
		v, err := scanOMVersion(rows)
		if err != nil {
			return nil, wrapDBError("scan om version", err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// CreateOMVersion inserts a new version. The partial unique index on
// (deal_id) WHERE status='DRAFT' makes a concurrent duplicate-draft insert
// fail; callers map that to the idempotent read of the existing draft.
func (t *Tx) CreateOMVersion(ctx context.Context, v *types.OMVersion) error {
	now := time.Now().UTC()
	if v.CreatedAt.IsZero() {
		v.CreatedAt = now
	}
	v.UpdatedAt = now
	if err := v.Validate(); err != nil {
		return err
	}

	sections, err := marshalSections(v.Sections)
	if err != nil {
		return fmt.Errorf("marshal sections: %w", err)
	}

	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO om_versions (
			id, deal_id, version_number, status, sections, claim_refs,
			broker_approved_by, broker_approved_at, seller_approved_by, seller_approved_at,
			created_by, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		v.ID, v.DealID, v.VersionNumber, v.Status, sections,
		marshalStringArray(v.ClaimRefs),
		v.BrokerApprovedBy, v.BrokerApprovedAt, v.SellerApprovedBy, v.SellerApprovedAt,
		v.CreatedBy, v.CreatedAt, v.UpdatedAt,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return &types.StaleStateError{Entity: "om version", ID: v.DealID}
		}
		return wrapDBError("create om version", err)
	}
	return nil
}

// GetOMVersion reads a version within the transaction.
func (t *Tx) GetOMVersion(ctx context.Context, id string) (*types.OMVersion, error) {
	return getOMVersion(ctx, t.tx, id)
}

// LatestOMVersion reads the latest version within the transaction.
func (t *Tx) LatestOMVersion(ctx context.Context, dealID string) (*types.OMVersion, error) {
	return latestOMVersion(ctx, t.tx, dealID)
}

// UpdateOMSections rewrites the section snapshot of a DRAFT version.
func (t *Tx) UpdateOMSections(ctx context.Context, id string, sections map[string]*types.OMSection) error {
	encoded, err := marshalSections(sections)
	if err != nil {
		return fmt.Errorf("marshal sections: %w", err)
	}
	res, err := t.tx.ExecContext(ctx,
		`UPDATE om_versions SET sections = ?, updated_at = ? WHERE id = ?`,
		encoded, time.Now().UTC(), id)
	if err != nil {
		return wrapDBError("update om sections", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapDBError("update om sections", err)
	}
	if n == 0 {
		return fmt.Errorf("update om sections %s: %w", id, types.ErrNotFound)
	}
	return nil
}

// SetOMStatus compare-and-swaps the version status and writes the approval
// stamps carried on v. A writer that lost the race gets a StaleStateError.
func (t *Tx) SetOMStatus(ctx context.Context, v *types.OMVersion, from types.OMStatus) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE om_versions
		SET status = ?, broker_approved_by = ?, broker_approved_at = ?,
		    seller_approved_by = ?, seller_approved_at = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`,
		v.Status, v.BrokerApprovedBy, v.BrokerApprovedAt,
		v.SellerApprovedBy, v.SellerApprovedAt, time.Now().UTC(),
		v.ID, from,
	)
	if err != nil {
		return wrapDBError("set om status", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapDBError("set om status", err)
	}
	if n == 0 {
		return &types.StaleStateError{Entity: "om version", ID: v.ID}
	}
	return nil
}

func getOMVersion(ctx context.Context, q dbtx, id string) (*types.OMVersion, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+omColumns+` FROM om_versions WHERE id = ?`, id)
	v, err := scanOMVersion(row)
	if err != nil {
		return nil, wrapDBError(fmt.Sprintf("get om version %s", id), err)
	}
	return v, nil
}

func latestOMVersion(ctx context.Context, q dbtx, dealID string) (*types.OMVersion, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+omColumns+` FROM om_versions WHERE deal_id = ? ORDER BY version_number DESC LIMIT 1`, dealID)
	v, err := scanOMVersion(row)
	if err != nil {
		return nil, wrapDBError(fmt.Sprintf("latest om version for %s", dealID), err)
	}
	return v, nil
}

func scanOMVersion(row scanner) (*types.OMVersion, error) {
	var v types.OMVersion
	var sections, claimRefs string
	var brokerAt, sellerAt sql.NullTime
	err := row.Scan(
		&v.ID, &v.DealID, &v.VersionNumber, &v.Status, &sections, &claimRefs,
		&v.BrokerApprovedBy, &brokerAt, &v.SellerApprovedBy, &sellerAt,
		&v.CreatedBy, &v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	v.Sections, err = unmarshalSections(sections)
	if err != nil {
		return nil, fmt.Errorf("unmarshal sections: %w", err)
	}
	v.ClaimRefs = unmarshalStringArray(claimRefs)
	v.BrokerApprovedAt = nullableTime(brokerAt)
	v.SellerApprovedAt = nullableTime(sellerAt)
	return &v, nil
}
