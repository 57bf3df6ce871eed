package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dealflowhq/dealflow/internal/types"
)

const claimColumns = `id, deal_id, field, value, numeric_value, display_value,
	source_document_id, source_page, source_snippet, extraction_method,
	confidence, verification_status, verified_by, verified_at,
	corrected_value, rejection_reason, conflict_group_id, superseded_by,
	created_at`

// GetClaim returns a single claim by id.
func (s *Store) GetClaim(ctx context.Context, id string) (*types.Claim, error) {
	return getClaim(ctx, s.db, id)
}

// ListClaims returns claims for a deal, optionally filtered to one field,
// newest first.
func (s *Store) ListClaims(ctx context.Context, dealID, field string) ([]*types.Claim, error) {
	return listClaims(ctx, s.db, dealID, field)
}

// GetConflict returns a conflict with its member claims populated.
func (s *Store) GetConflict(ctx context.Context, id string) (*types.Conflict, error) {
	return getConflict(ctx, s.db, id)
}

// ListConflicts returns conflicts for a deal, optionally filtered by status,
// newest first.
func (s *Store) ListConflicts(ctx context.Context, dealID string, status types.ConflictStatus) ([]*types.Conflict, error) {
	query := `
		SELECT id, deal_id, field, status, variance, resolution_method,
		       resolved_value, resolved_claim_id, resolved_by, resolved_at,
		       row_version, created_at
		FROM conflicts WHERE deal_id = ?
	`
	args := []any{dealID}
	if status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError("list conflicts", err)
	}
	defer rows.Close()

	var conflicts []*types.Conflict
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, wrapDBError("scan conflict", err)
		}
		conflicts = append(conflicts, c)
	}
	return conflicts, rows.Err()
}

// CreateClaim inserts a new claim within the transaction.
func (t *Tx) CreateClaim(ctx context.Context, claim *types.Claim) error {
	if claim.VerificationStatus == "" {
		claim.VerificationStatus = types.VerificationUnverified
	}
	if claim.CreatedAt.IsZero() {
		claim.CreatedAt = time.Now().UTC()
	}
	if err := claim.Validate(); err != nil {
		return err
	}

	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO claims (
			id, deal_id, field, value, numeric_value, display_value,
			source_document_id, source_page, source_snippet, extraction_method,
			confidence, verification_status, verified_by, verified_at,
			corrected_value, rejection_reason, conflict_group_id, superseded_by,
			created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		claim.ID, claim.DealID, claim.Field, claim.Value, claim.NumericValue,
		claim.DisplayValue, claim.SourceDocumentID, claim.SourcePage,
		claim.SourceSnippet, claim.ExtractionMethod, claim.Confidence,
		claim.VerificationStatus, claim.VerifiedBy, claim.VerifiedAt,
		claim.CorrectedValue, claim.RejectionReason, claim.ConflictGroupID,
		claim.SupersededBy, claim.CreatedAt,
	)
	return wrapDBError("create claim", err)
}

// GetClaim reads a claim within the transaction.
func (t *Tx) GetClaim(ctx context.Context, id string) (*types.Claim, error) {
	return getClaim(ctx, t.tx, id)
}

// ListClaims reads claims within the transaction.
func (t *Tx) ListClaims(ctx context.Context, dealID, field string) ([]*types.Claim, error) {
	return listClaims(ctx, t.tx, dealID, field)
}

// SetClaimVerification writes a claim's verification outcome.
func (t *Tx) SetClaimVerification(ctx context.Context, claim *types.Claim) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE claims SET verification_status = ?, verified_by = ?, verified_at = ?,
		       corrected_value = ?, rejection_reason = ?
		WHERE id = ?
	`,
		claim.VerificationStatus, claim.VerifiedBy, claim.VerifiedAt,
		claim.CorrectedValue, claim.RejectionReason, claim.ID,
	)
	if err != nil {
		return wrapDBError("set claim verification", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapDBError("set claim verification", err)
	}
	if n == 0 {
		return fmt.Errorf("set claim verification %s: %w", claim.ID, types.ErrNotFound)
	}
	return nil
}

// SetClaimConflictGroup links a claim into a conflict group.
func (t *Tx) SetClaimConflictGroup(ctx context.Context, claimID, conflictID string) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE claims SET conflict_group_id = ? WHERE id = ?`, conflictID, claimID)
	if err != nil {
		return wrapDBError("set claim conflict group", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapDBError("set claim conflict group", err)
	}
	if n == 0 {
		return fmt.Errorf("set claim conflict group %s: %w", claimID, types.ErrNotFound)
	}
	return nil
}

// CreateConflict inserts a new conflict group.
func (t *Tx) CreateConflict(ctx context.Context, conflict *types.Conflict) error {
	if conflict.Status == "" {
		conflict.Status = types.ConflictOpen
	}
	if conflict.CreatedAt.IsZero() {
		conflict.CreatedAt = time.Now().UTC()
	}
	conflict.RowVersion = 1

	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO conflicts (id, deal_id, field, status, variance, row_version, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		conflict.ID, conflict.DealID, conflict.Field, conflict.Status,
		conflict.Variance, conflict.RowVersion, conflict.CreatedAt,
	)
	return wrapDBError("create conflict", err)
}

// GetConflict reads a conflict (with member claims) within the transaction.
func (t *Tx) GetConflict(ctx context.Context, id string) (*types.Conflict, error) {
	return getConflict(ctx, t.tx, id)
}

// ResolveConflict writes the resolution outcome with a row_version
// compare-and-swap. A resolve that observes a different row_version (or a
// non-OPEN status) updates zero rows and fails with a StaleStateError.
func (t *Tx) ResolveConflict(ctx context.Context, conflict *types.Conflict) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE conflicts
		SET status = ?, resolution_method = ?, resolved_value = ?,
		    resolved_claim_id = ?, resolved_by = ?, resolved_at = ?,
		    row_version = row_version + 1
		WHERE id = ? AND row_version = ? AND status = 'OPEN'
	`,
		conflict.Status, conflict.ResolutionMethod, conflict.ResolvedValue,
		conflict.ResolvedClaimID, conflict.ResolvedBy, conflict.ResolvedAt,
		conflict.ID, conflict.RowVersion,
	)
	if err != nil {
		return wrapDBError("resolve conflict", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapDBError("resolve conflict", err)
	}
	if n == 0 {
		return &types.StaleStateError{Entity: "conflict", ID: conflict.ID}
	}
	conflict.RowVersion++
	return nil
}

func getClaim(ctx context.Context, q dbtx, id string) (*types.Claim, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+claimColumns+` FROM claims WHERE id = ?`, id)
	claim, err := scanClaim(row)
	if err != nil {
		return nil, wrapDBError(fmt.Sprintf("get claim %s", id), err)
	}
	return claim, nil
}

func listClaims(ctx context.Context, q dbtx, dealID, field string) ([]*types.Claim, error) {
	query := `SELECT ` + claimColumns + ` FROM claims WHERE deal_id = ?`
	args := []any{dealID}
	if field != "" {
		query += " AND field = ?"
		args = append(args, field)
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError("list claims", err)
	}
	defer rows.Close()

	var claims []*types.Claim
	for rows.Next() {
		claim, err := scanClaim(rows)
		if err != nil {
			return nil, wrapDBError("scan claim", err)
		}
		claims = append(claims, claim)
	}
	return claims, rows.Err()
}

func getConflict(ctx context.Context, q dbtx, id string) (*types.Conflict, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, deal_id, field, status, variance, resolution_method,
		       resolved_value, resolved_claim_id, resolved_by, resolved_at,
		       row_version, created_at
		FROM conflicts WHERE id = ?
	`, id)
	conflict, err := scanConflict(row)
	if err != nil {
		return nil, wrapDBError(fmt.Sprintf("get conflict %s", id), err)
	}

	rows, err := q.QueryContext(ctx,
		`SELECT `+claimColumns+` FROM claims WHERE conflict_group_id = ? ORDER BY created_at, id`, id)
	if err != nil {
		return nil, wrapDBError("get conflict claims", err)
	}
	defer rows.Close()

	for rows.Next() {
		claim, err := scanClaim(rows)
		if err != nil {
			return nil, wrapDBError("scan conflict claim", err)
		}
		conflict.Claims = append(conflict.Claims, claim)
	}
	return conflict, rows.Err()
}

func scanClaim(row scanner) (*types.Claim, error) {
	var c types.Claim
	var numericValue sql.NullFloat64
	var verifiedAt sql.NullTime
	var correctedValue, conflictGroupID, supersededBy sql.NullString
	err := row.Scan(
		&c.ID, &c.DealID, &c.Field, &c.Value, &numericValue, &c.DisplayValue,
		&c.SourceDocumentID, &c.SourcePage, &c.SourceSnippet, &c.ExtractionMethod,
		&c.Confidence, &c.VerificationStatus, &c.VerifiedBy, &verifiedAt,
		&correctedValue, &c.RejectionReason, &conflictGroupID, &supersededBy,
		&c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.NumericValue = nullableFloat(numericValue)
	c.VerifiedAt = nullableTime(verifiedAt)
	c.CorrectedValue = nullableString(correctedValue)
	c.ConflictGroupID = nullableString(conflictGroupID)
	c.SupersededBy = nullableString(supersededBy)
	return &c, nil
}

func scanConflict(row scanner) (*types.Conflict, error) {
	var c types.Conflict
	var method string
	var resolvedValue, resolvedClaimID sql.NullString
	var resolvedAt sql.NullTime
	err := row.Scan(
		&c.ID, &c.DealID, &c.Field, &c.Status, &c.Variance, &method,
		&resolvedValue, &resolvedClaimID, &c.ResolvedBy, &resolvedAt,
		&c.RowVersion, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.ResolutionMethod = types.ResolutionMethod(method)
	c.ResolvedValue = nullableString(resolvedValue)
	c.ResolvedClaimID = nullableString(resolvedClaimID)
	c.ResolvedAt = nullableTime(resolvedAt)
	return &c, nil
}
