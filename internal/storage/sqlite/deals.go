package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dealflowhq/dealflow/internal/types"
)

const dealColumns = `id, title, status, address, property_type, asking_price,
	seller_id, seller_has_direct_access, seller_receive_notifications,
	seller_requires_om_approval, seller_requires_buyer_approval,
	created_at, updated_at`

// CreateDeal inserts a new deal and its creation audit event.
func (s *Store) CreateDeal(ctx context.Context, deal *types.DealDraft, actor string) error {
	if deal.Status == "" {
		deal.Status = types.DealDraftIngested
	}
	now := time.Now().UTC()
	if deal.CreatedAt.IsZero() {
		deal.CreatedAt = now
	}
	deal.UpdatedAt = now

	if err := deal.Validate(); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO deals (
			id, title, status, address, property_type, asking_price,
			seller_id, seller_has_direct_access, seller_receive_notifications,
			seller_requires_om_approval, seller_requires_buyer_approval,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		deal.ID, deal.Title, deal.Status, deal.Address, deal.PropertyType,
		deal.AskingPrice, deal.SellerID,
		boolToInt(deal.SellerHasDirectAccess), boolToInt(deal.SellerReceiveNotifications),
		boolToInt(deal.SellerRequiresOMApproval), boolToInt(deal.SellerRequiresBuyerApproval),
		deal.CreatedAt, deal.UpdatedAt,
	)
	if err != nil {
		return wrapDBError("create deal", err)
	}

	newStatus := string(deal.Status)
	return addEvent(ctx, s.db, deal.ID, types.EventDealCreated, actor, nil, &newStatus, nil)
}

// GetDeal returns a deal with its broker edges populated.
func (s *Store) GetDeal(ctx context.Context, id string) (*types.DealDraft, error) {
	deal, err := getDeal(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	brokers, err := listDealBrokers(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	deal.Brokers = brokers
	return deal, nil
}

// ListDeals returns all deals, newest first.
func (s *Store) ListDeals(ctx context.Context) ([]*types.DealDraft, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+dealColumns+` FROM deals ORDER BY created_at DESC`)
	if err != nil {
		return nil, wrapDBError("list deals", err)
	}
	defer rows.Close()

	var deals []*types.DealDraft
	for rows.Next() {
		deal, err := scanDeal(rows)
		if err != nil {
			return nil, wrapDBError("scan deal", err)
		}
		deals = append(deals, deal)
	}
	return deals, rows.Err()
}

// AddDealBroker attaches a broker edge to a deal.
func (s *Store) AddDealBroker(ctx context.Context, edge *types.DealBroker) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO deal_brokers (deal_id, broker_id, is_primary, can_approve_om, can_distribute, can_authorize)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		edge.DealID, edge.BrokerID, boolToInt(edge.IsPrimary),
		boolToInt(edge.CanApproveOM), boolToInt(edge.CanDistribute), boolToInt(edge.CanAuthorize),
	)
	return wrapDBError("add deal broker", err)
}

// GetDealBroker returns the broker edge for (dealID, brokerID).
func (s *Store) GetDealBroker(ctx context.Context, dealID, brokerID string) (*types.DealBroker, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT deal_id, broker_id, is_primary, can_approve_om, can_distribute, can_authorize
		FROM deal_brokers WHERE deal_id = ? AND broker_id = ?
	`, dealID, brokerID)
	edge, err := scanDealBroker(row)
	if err != nil {
		return nil, wrapDBError(fmt.Sprintf("get deal broker %s/%s", dealID, brokerID), err)
	}
	return edge, nil
}

// ListDealBrokers returns all broker edges for a deal, primary first.
func (s *Store) ListDealBrokers(ctx context.Context, dealID string) ([]*types.DealBroker, error) {
	return listDealBrokers(ctx, s.db, dealID)
}

// GetDeal reads a deal within the transaction (read-your-writes), with its
// broker edges populated.
func (t *Tx) GetDeal(ctx context.Context, id string) (*types.DealDraft, error) {
	deal, err := getDeal(ctx, t.tx, id)
	if err != nil {
		return nil, err
	}
	deal.Brokers, err = listDealBrokers(ctx, t.tx, id)
	if err != nil {
		return nil, err
	}
	return deal, nil
}

// SetDealStatus compare-and-swaps the deal status and records the audit
// event. A writer that lost the race gets a StaleStateError.
func (t *Tx) SetDealStatus(ctx context.Context, id string, from, to types.DealStatus) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE deals SET status = ?, updated_at = ? WHERE id = ? AND status = ?
	`, to, time.Now().UTC(), id, from)
	if err != nil {
		return wrapDBError("set deal status", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapDBError("set deal status", err)
	}
	if n == 0 {
		return &types.StaleStateError{Entity: "deal", ID: id}
	}

	oldStatus, newStatus := string(from), string(to)
	return addEvent(ctx, t.tx, id, types.EventDealStatusChanged, "", &oldStatus, &newStatus, nil)
}

func getDeal(ctx context.Context, q dbtx, id string) (*types.DealDraft, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+dealColumns+` FROM deals WHERE id = ?`, id)
	deal, err := scanDeal(row)
	if err != nil {
		return nil, wrapDBError(fmt.Sprintf("get deal %s", id), err)
	}
	return deal, nil
}

func listDealBrokers(ctx context.Context, q dbtx, dealID string) ([]*types.DealBroker, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT deal_id, broker_id, is_primary, can_approve_om, can_distribute, can_authorize
		FROM deal_brokers WHERE deal_id = ? ORDER BY is_primary DESC, broker_id
	`, dealID)
	if err != nil {
		return nil, wrapDBError("list deal brokers", err)
	}
	defer rows.Close()

	var edges []*types.DealBroker
	for rows.Next() {
		edge, err := scanDealBroker(rows)
		if err != nil {
			return nil, wrapDBError("scan deal broker", err)
		}
		edges = append(edges, edge)
	}
	return edges, rows.Err()
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanDeal(row scanner) (*types.DealDraft, error) {
	var d types.DealDraft
	var askingPrice sql.NullFloat64
	var hasDirect, recvNotif, reqOM, reqBuyer int
	err := row.Scan(
		&d.ID, &d.Title, &d.Status, &d.Address, &d.PropertyType, &askingPrice,
		&d.SellerID, &hasDirect, &recvNotif, &reqOM, &reqBuyer,
		&d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	d.AskingPrice = nullableFloat(askingPrice)
	d.SellerHasDirectAccess = hasDirect != 0
	d.SellerReceiveNotifications = recvNotif != 0
	d.SellerRequiresOMApproval = reqOM != 0
	d.SellerRequiresBuyerApproval = reqBuyer != 0
	return &d, nil
}

func scanDealBroker(row scanner) (*types.DealBroker, error) {
	var e types.DealBroker
	var isPrimary, canApprove, canDistribute, canAuthorize int
	err := row.Scan(&e.DealID, &e.BrokerID, &isPrimary, &canApprove, &canDistribute, &canAuthorize)
	if err != nil {
		return nil, err
	}
	e.IsPrimary = isPrimary != 0
	e.CanApproveOM = canApprove != 0
	e.CanDistribute = canDistribute != 0
	e.CanAuthorize = canAuthorize != 0
	return &e, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
