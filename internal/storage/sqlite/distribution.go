package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dealflowhq/dealflow/internal/types"
)

const distributionColumns = `id, deal_id, om_version_id, listing_type, status,
	is_anonymous_seller, anonymous_label, created_by, created_at, updated_at`

const recipientColumns = `id, distribution_id, buyer_id, match_type, match_score,
	is_anonymous, anonymous_label, pushed_at, viewed_at, view_duration_secs, pages_viewed`

const responseColumns = `id, recipient_id, buyer_id, response, price_min, price_max,
	conditions, questions, pass_reason, notes, confidential, superseded_at, created_at`

const authorizationColumns = `id, recipient_id, status, access_level,
	decline_reason, revoke_reason, authorized_by, authorized_at,
	seller_confirmed_by, seller_confirmed_at, nda_status, nda_sent_at,
	nda_signed_at, data_room_access_granted, row_version, created_at, updated_at`

// GetDistribution returns a distribution with recipients (and their live
// responses) populated.
func (s *Store) GetDistribution(ctx context.Context, id string) (*types.Distribution, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+distributionColumns+` FROM distributions WHERE id = ?`, id)
	dist, err := scanDistribution(row)
	if err != nil {
		return nil, wrapDBError(fmt.Sprintf("get distribution %s", id), err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recipientColumns+` FROM distribution_recipients WHERE distribution_id = ? ORDER BY match_score DESC, id`, id)
	if err != nil {
		return nil, wrapDBError("get distribution recipients", err)
	}
	defer rows.Close()

	for rows.Next() {
		r, err := scanRecipient(rows)
		if err != nil {
			return nil, wrapDBError("scan recipient", err)
		}
		dist.Recipients = append(dist.Recipients, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, r := range dist.Recipients {
		resp, err := getActiveResponse(ctx, s.db, r.ID)
		if err != nil && !errors.Is(err, types.ErrNotFound) {
			return nil, err
		}
		r.Response = resp
	}
	return dist, nil
}

// LatestDistribution returns the most recent distribution for a deal.
func (s *Store) LatestDistribution(ctx context.Context, dealID string) (*types.Distribution, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+distributionColumns+` FROM distributions WHERE deal_id = ? ORDER BY created_at DESC LIMIT 1`, dealID)
	dist, err := scanDistribution(row)
	if err != nil {
		return nil, wrapDBError(fmt.Sprintf("latest distribution for %s", dealID), err)
	}
	return dist, nil
}

// GetRecipient returns a single recipient record.
func (s *Store) GetRecipient(ctx context.Context, id string) (*types.DistributionRecipient, error) {
	return getRecipient(ctx, s.db, id)
}

// GetActiveResponse returns the live (non-superseded) response for a
// recipient, or ErrNotFound.
func (s *Store) GetActiveResponse(ctx context.Context, recipientID string) (*types.BuyerResponse, error) {
	return getActiveResponse(ctx, s.db, recipientID)
}

// GetAuthorizationByRecipient returns the persisted authorization record for
// a recipient, or ErrNotFound when the recipient is unreviewed.
func (s *Store) GetAuthorizationByRecipient(ctx context.Context, recipientID string) (*types.BuyerAuthorization, error) {
	return getAuthorizationByRecipient(ctx, s.db, recipientID)
}

// GateProgress computes the buyer-gate funnel for a deal across all of its
// distributions.
func (s *Store) GateProgress(ctx context.Context, dealID string) (*types.GateProgress, error) {
	var p types.GateProgress
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(r.id),
			COUNT(resp.id),
			COUNT(CASE WHEN resp.response != 'PASS' THEN 1 END),
			COUNT(CASE WHEN a.status = 'AUTHORIZED' THEN 1 END),
			COUNT(CASE WHEN a.nda_status = 'SIGNED' THEN 1 END),
			COUNT(CASE WHEN a.data_room_access_granted = 1 THEN 1 END)
		FROM distribution_recipients r
		JOIN distributions d ON d.id = r.distribution_id
		LEFT JOIN buyer_responses resp ON resp.recipient_id = r.id AND resp.superseded_at IS NULL
		LEFT JOIN buyer_authorizations a ON a.recipient_id = r.id
		WHERE d.deal_id = ?
	`, dealID).Scan(&p.Distributed, &p.Responded, &p.Interested, &p.Authorized, &p.NDASigned, &p.InDataRoom)
	if err != nil {
		return nil, wrapDBError("gate progress", err)
	}
	p.CanAdvanceToDD = p.InDataRoom >= 1
	return &p, nil
}

// CreateDistribution inserts a new distribution within the transaction.
func (t *Tx) CreateDistribution(ctx context.Context, d *types.Distribution) error {
	now := time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now
	if d.Status == "" {
		d.Status = types.DistributionPending
	}

	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO distributions (
			id, deal_id, om_version_id, listing_type, status,
			is_anonymous_seller, anonymous_label, created_by, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		d.ID, d.DealID, d.OMVersionID, d.ListingType, d.Status,
		boolToInt(d.IsAnonymousSeller), d.AnonymousLabel, d.CreatedBy,
		d.CreatedAt, d.UpdatedAt,
	)
	return wrapDBError("create distribution", err)
}

// AddRecipient inserts a recipient record within the transaction.
func (t *Tx) AddRecipient(ctx context.Context, r *types.DistributionRecipient) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO distribution_recipients (
			id, distribution_id, buyer_id, match_type, match_score,
			is_anonymous, anonymous_label, pushed_at, viewed_at,
			view_duration_secs, pages_viewed
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID, r.DistributionID, r.BuyerID, r.MatchType, r.MatchScore,
		boolToInt(r.IsAnonymous), r.AnonymousLabel, r.PushedAt, r.ViewedAt,
		r.ViewDurationSecs, r.PagesViewed,
	)
	return wrapDBError("add recipient", err)
}

// GetRecipient reads a recipient within the transaction.
func (t *Tx) GetRecipient(ctx context.Context, id string) (*types.DistributionRecipient, error) {
	return getRecipient(ctx, t.tx, id)
}

// SetDistributionStatus compare-and-swaps the distribution status.
func (t *Tx) SetDistributionStatus(ctx context.Context, id string, from, to types.DistributionStatus) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE distributions SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to, time.Now().UTC(), id, from)
	if err != nil {
		return wrapDBError("set distribution status", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapDBError("set distribution status", err)
	}
	if n == 0 {
		return &types.StaleStateError{Entity: "distribution", ID: id}
	}
	return nil
}

// MarkRecipientsPushed stamps pushed_at on every recipient of a distribution
// that has not been pushed yet.
func (t *Tx) MarkRecipientsPushed(ctx context.Context, distributionID string, at time.Time) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE distribution_recipients SET pushed_at = ? WHERE distribution_id = ? AND pushed_at IS NULL`,
		at, distributionID)
	return wrapDBError("mark recipients pushed", err)
}

// RecordRecipientView stamps engagement metrics on a recipient.
func (t *Tx) RecordRecipientView(ctx context.Context, recipientID string, at time.Time, durationSecs, pagesViewed int) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE distribution_recipients
		SET viewed_at = ?, view_duration_secs = ?, pages_viewed = ?
		WHERE id = ?
	`, at, durationSecs, pagesViewed, recipientID)
	if err != nil {
		return wrapDBError("record recipient view", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapDBError("record recipient view", err)
	}
	if n == 0 {
		return fmt.Errorf("record recipient view %s: %w", recipientID, types.ErrNotFound)
	}
	return nil
}

// CreateBuyerResponse inserts a response. The partial unique index enforces
// one live response per recipient; a violation surfaces as ErrAlreadyResponded.
func (t *Tx) CreateBuyerResponse(ctx context.Context, resp *types.BuyerResponse) error {
	if resp.CreatedAt.IsZero() {
		resp.CreatedAt = time.Now().UTC()
	}
	if err := resp.Validate(); err != nil {
		return err
	}

	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO buyer_responses (
			id, recipient_id, buyer_id, response, price_min, price_max,
			conditions, questions, pass_reason, notes, confidential,
			superseded_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		resp.ID, resp.RecipientID, resp.BuyerID, resp.Response,
		resp.PriceMin, resp.PriceMax, resp.Conditions, resp.Questions,
		resp.PassReason, resp.Notes, boolToInt(resp.Confidential),
		resp.SupersededAt, resp.CreatedAt,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("recipient %s: %w", resp.RecipientID, types.ErrAlreadyResponded)
		}
		return wrapDBError("create buyer response", err)
	}
	return nil
}

// GetActiveResponse reads the live response within the transaction.
func (t *Tx) GetActiveResponse(ctx context.Context, recipientID string) (*types.BuyerResponse, error) {
	return getActiveResponse(ctx, t.tx, recipientID)
}

// SupersedeResponse closes a response row so a revision can be inserted.
func (t *Tx) SupersedeResponse(ctx context.Context, responseID string, at time.Time) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE buyer_responses SET superseded_at = ? WHERE id = ? AND superseded_at IS NULL`,
		at, responseID)
	if err != nil {
		return wrapDBError("supersede response", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapDBError("supersede response", err)
	}
	if n == 0 {
		return &types.StaleStateError{Entity: "buyer response", ID: responseID}
	}
	return nil
}

// CreateAuthorization inserts the gate record for a recipient.
func (t *Tx) CreateAuthorization(ctx context.Context, auth *types.BuyerAuthorization) error {
	now := time.Now().UTC()
	if auth.CreatedAt.IsZero() {
		auth.CreatedAt = now
	}
	auth.UpdatedAt = now
	if auth.NDAStatus == "" {
		auth.NDAStatus = types.NDANotSent
	}
	if auth.AccessLevel == "" {
		auth.AccessLevel = types.AccessStandard
	}
	auth.RowVersion = 1

	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO buyer_authorizations (
			id, recipient_id, status, access_level, decline_reason, revoke_reason,
			authorized_by, authorized_at, seller_confirmed_by, seller_confirmed_at,
			nda_status, nda_sent_at, nda_signed_at, data_room_access_granted,
			row_version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		auth.ID, auth.RecipientID, auth.Status, auth.AccessLevel,
		auth.DeclineReason, auth.RevokeReason, auth.AuthorizedBy, auth.AuthorizedAt,
		auth.SellerConfirmedBy, auth.SellerConfirmedAt, auth.NDAStatus,
		auth.NDASentAt, auth.NDASignedAt, boolToInt(auth.DataRoomAccessGranted),
		auth.RowVersion, auth.CreatedAt, auth.UpdatedAt,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return &types.StaleStateError{Entity: "buyer authorization", ID: auth.RecipientID}
		}
		return wrapDBError("create authorization", err)
	}
	return nil
}

// GetAuthorizationByRecipient reads the gate record within the transaction.
func (t *Tx) GetAuthorizationByRecipient(ctx context.Context, recipientID string) (*types.BuyerAuthorization, error) {
	return getAuthorizationByRecipient(ctx, t.tx, recipientID)
}

// UpdateAuthorization compare-and-swaps on auth.RowVersion. A decline or
// revoke racing an authorize updates zero rows and fails with a
// StaleStateError rather than silently overwriting.
func (t *Tx) UpdateAuthorization(ctx context.Context, auth *types.BuyerAuthorization) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE buyer_authorizations
		SET status = ?, access_level = ?, decline_reason = ?, revoke_reason = ?,
		    authorized_by = ?, authorized_at = ?, seller_confirmed_by = ?,
		    seller_confirmed_at = ?, nda_status = ?, nda_sent_at = ?,
		    nda_signed_at = ?, data_room_access_granted = ?,
		    row_version = row_version + 1, updated_at = ?
		WHERE id = ? AND row_version = ?
	`,
		auth.Status, auth.AccessLevel, auth.DeclineReason, auth.RevokeReason,
		auth.AuthorizedBy, auth.AuthorizedAt, auth.SellerConfirmedBy,
		auth.SellerConfirmedAt, auth.NDAStatus, auth.NDASentAt,
		auth.NDASignedAt, boolToInt(auth.DataRoomAccessGranted),
		time.Now().UTC(), auth.ID, auth.RowVersion,
	)
	if err != nil {
		return wrapDBError("update authorization", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapDBError("update authorization", err)
	}
	if n == 0 {
		return &types.StaleStateError{Entity: "buyer authorization", ID: auth.ID}
	}
	auth.RowVersion++
	return nil
}

func getRecipient(ctx context.Context, q dbtx, id string) (*types.DistributionRecipient, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+recipientColumns+` FROM distribution_recipients WHERE id = ?`, id)
	r, err := scanRecipient(row)
	if err != nil {
		return nil, wrapDBError(fmt.Sprintf("get recipient %s", id), err)
	}
	return r, nil
}

func getActiveResponse(ctx context.Context, q dbtx, recipientID string) (*types.BuyerResponse, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+responseColumns+` FROM buyer_responses WHERE recipient_id = ? AND superseded_at IS NULL`,
		recipientID)
	resp, err := scanResponse(row)
	if err != nil {
		return nil, wrapDBError(fmt.Sprintf("active response for %s", recipientID), err)
	}
	return resp, nil
}

func getAuthorizationByRecipient(ctx context.Context, q dbtx, recipientID string) (*types.BuyerAuthorization, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+authorizationColumns+` FROM buyer_authorizations WHERE recipient_id = ?`, recipientID)
	auth, err := scanAuthorization(row)
	if err != nil {
		return nil, wrapDBError(fmt.Sprintf("authorization for %s", recipientID), err)
	}
	return auth, nil
}

func scanDistribution(row scanner) (*types.Distribution, error) {
	var d types.Distribution
	var isAnon int
	err := row.Scan(
		&d.ID, &d.DealID, &d.OMVersionID, &d.ListingType, &d.Status,
		&isAnon, &d.AnonymousLabel, &d.CreatedBy, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	d.IsAnonymousSeller = isAnon != 0
	return &d, nil
}

func scanRecipient(row scanner) (*types.DistributionRecipient, error) {
	var r types.DistributionRecipient
	var isAnon int
	var pushedAt, viewedAt sql.NullTime
	err := row.Scan(
		&r.ID, &r.DistributionID, &r.BuyerID, &r.MatchType, &r.MatchScore,
		&isAnon, &r.AnonymousLabel, &pushedAt, &viewedAt,
		&r.ViewDurationSecs, &r.PagesViewed,
	)
	if err != nil {
		return nil, err
	}
	r.IsAnonymous = isAnon != 0
	r.PushedAt = nullableTime(pushedAt)
	r.ViewedAt = nullableTime(viewedAt)
	return &r, nil
}

func scanResponse(row scanner) (*types.BuyerResponse, error) {
	var b types.BuyerResponse
	var priceMin, priceMax sql.NullFloat64
	var confidential int
	var supersededAt sql.NullTime
	err := row.Scan(
		&b.ID, &b.RecipientID, &b.BuyerID, &b.Response, &priceMin, &priceMax,
		&b.Conditions, &b.Questions, &b.PassReason, &b.Notes, &confidential,
		&supersededAt, &b.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	b.PriceMin = nullableFloat(priceMin)
	b.PriceMax = nullableFloat(priceMax)
	b.Confidential = confidential != 0
	b.SupersededAt = nullableTime(supersededAt)
	return &b, nil
}

func scanAuthorization(row scanner) (*types.BuyerAuthorization, error) {
	var a types.BuyerAuthorization
	var authorizedAt, sellerConfirmedAt, ndaSentAt, ndaSignedAt sql.NullTime
	var granted int
	err := row.Scan(
		&a.ID, &a.RecipientID, &a.Status, &a.AccessLevel,
		&a.DeclineReason, &a.RevokeReason, &a.AuthorizedBy, &authorizedAt,
		&a.SellerConfirmedBy, &sellerConfirmedAt, &a.NDAStatus, &ndaSentAt,
		&ndaSignedAt, &granted, &a.RowVersion, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.AuthorizedAt = nullableTime(authorizedAt)
	a.SellerConfirmedAt = nullableTime(sellerConfirmedAt)
	a.NDASentAt = nullableTime(ndaSentAt)
	a.NDASignedAt = nullableTime(ndaSignedAt)
	a.DataRoomAccessGranted = granted != 0
	return &a, nil
}
