// Package storage provides shared types for deal workflow storage.
//
// The concrete implementation lives in the sqlite sub-package. This package
// holds the interface and value types referenced by both the implementation
// and its consumers (the workflow services and cmd/dfl).
package storage

import (
	"context"
	"time"

	"github.com/dealflowhq/dealflow/internal/types"
)

// Storage is the interface satisfied by *sqlite.Store.
// Consumers depend on this interface rather than on the concrete type so
// that alternative implementations (mocks, proxies) can be substituted.
//
// Write methods that participate in multi-row transitions are also exposed
// on Transaction; services compose them under RunInTransaction so every
// transition and its audit event commit atomically.
type Storage interface {
	// Deals
	CreateDeal(ctx context.Context, deal *types.DealDraft, actor string) error
	GetDeal(ctx context.Context, id string) (*types.DealDraft, error)
	ListDeals(ctx context.Context) ([]*types.DealDraft, error)
	AddDealBroker(ctx context.Context, edge *types.DealBroker) error
	GetDealBroker(ctx context.Context, dealID, brokerID string) (*types.DealBroker, error)
	ListDealBrokers(ctx context.Context, dealID string) ([]*types.DealBroker, error)

	// Claims and conflicts
	GetClaim(ctx context.Context, id string) (*types.Claim, error)
	ListClaims(ctx context.Context, dealID, field string) ([]*types.Claim, error)
	GetConflict(ctx context.Context, id string) (*types.Conflict, error)
	ListConflicts(ctx context.Context, dealID string, status types.ConflictStatus) ([]*types.Conflict, error)

	// OM versions
	GetOMVersion(ctx context.Context, id string) (*types.OMVersion, error)
	LatestOMVersion(ctx context.Context, dealID string) (*types.OMVersion, error)
	ListOMVersions(ctx context.Context, dealID string) ([]*types.OMVersion, error)

	// Distribution and buyer gate
	GetDistribution(ctx context.Context, id string) (*types.Distribution, error)
	LatestDistribution(ctx context.Context, dealID string) (*types.Distribution, error)
	GetRecipient(ctx context.Context, id string) (*types.DistributionRecipient, error)
	GetActiveResponse(ctx context.Context, recipientID string) (*types.BuyerResponse, error)
	GetAuthorizationByRecipient(ctx context.Context, recipientID string) (*types.BuyerAuthorization, error)
	GateProgress(ctx context.Context, dealID string) (*types.GateProgress, error)

	// Work items and escalation bookkeeping
	CreateWorkItem(ctx context.Context, item *types.WorkItem, actor string) error
	GetWorkItem(ctx context.Context, id string) (*types.WorkItem, error)
	CloseWorkItem(ctx context.Context, id, actor string) error
	ListOverdueItems(ctx context.Context, now time.Time) ([]*types.WorkItem, error)
	MarkEscalated(ctx context.Context, item *types.WorkItem, level types.EscalationLevel, at time.Time) error

	// Audit trail
	GetEvents(ctx context.Context, entityID string, limit int) ([]*types.Event, error)

	// Transactions
	RunInTransaction(ctx context.Context, fn func(tx Transaction) error) error

	// Lifecycle
	Close() error
}

// Transaction exposes the write operations that must compose atomically.
//
// All operations share one database transaction: changes are invisible to
// other connections until commit, any error rolls back, a panic rolls back,
// and a nil return from the callback commits.
type Transaction interface {
	// Deals
	GetDeal(ctx context.Context, id string) (*types.DealDraft, error)
	// SetDealStatus compare-and-swaps the deal status; a writer that lost the
	// race observes 0 rows updated and gets a StaleStateError.
	SetDealStatus(ctx context.Context, id string, from, to types.DealStatus) error

	// Claims and conflicts
	CreateClaim(ctx context.Context, claim *types.Claim) error
	GetClaim(ctx context.Context, id string) (*types.Claim, error)
	ListClaims(ctx context.Context, dealID, field string) ([]*types.Claim, error)
	SetClaimVerification(ctx context.Context, claim *types.Claim) error
	SetClaimConflictGroup(ctx context.Context, claimID, conflictID string) error
	CreateConflict(ctx context.Context, conflict *types.Conflict) error
	GetConflict(ctx context.Context, id string) (*types.Conflict, error)
	// ResolveConflict writes the resolution outcome with a row_version
	// compare-and-swap; a racing resolver gets a StaleStateError.
	ResolveConflict(ctx context.Context, conflict *types.Conflict) error

	// OM versions
	CreateOMVersion(ctx context.Context, v *types.OMVersion) error
	GetOMVersion(ctx context.Context, id string) (*types.OMVersion, error)
	LatestOMVersion(ctx context.Context, dealID string) (*types.OMVersion, error)
	UpdateOMSections(ctx context.Context, id string, sections map[string]*types.OMSection) error
	// SetOMStatus compare-and-swaps the version status and approval stamps.
	SetOMStatus(ctx context.Context, v *types.OMVersion, from types.OMStatus) error

	// Distribution and buyer gate
	CreateDistribution(ctx context.Context, d *types.Distribution) error
	AddRecipient(ctx context.Context, r *types.DistributionRecipient) error
	GetRecipient(ctx context.Context, id string) (*types.DistributionRecipient, error)
	SetDistributionStatus(ctx context.Context, id string, from, to types.DistributionStatus) error
	MarkRecipientsPushed(ctx context.Context, distributionID string, at time.Time) error
	RecordRecipientView(ctx context.Context, recipientID string, at time.Time, durationSecs, pagesViewed int) error
	CreateBuyerResponse(ctx context.Context, resp *types.BuyerResponse) error
	GetActiveResponse(ctx context.Context, recipientID string) (*types.BuyerResponse, error)
	SupersedeResponse(ctx context.Context, responseID string, at time.Time) error
	CreateAuthorization(ctx context.Context, auth *types.BuyerAuthorization) error
	GetAuthorizationByRecipient(ctx context.Context, recipientID string) (*types.BuyerAuthorization, error)
	// UpdateAuthorization compare-and-swaps on auth.RowVersion; a decline or
	// revoke racing an authorize fails with a StaleStateError.
	UpdateAuthorization(ctx context.Context, auth *types.BuyerAuthorization) error

	// Audit trail
	AddEvent(ctx context.Context, entityID string, eventType types.EventType, actor string, oldValue, newValue, comment *string) error
}
