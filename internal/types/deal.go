// Package types defines core data structures for the dealflow workflow engine.
package types

import (
	"fmt"
	"time"
)

// DealStatus is the deal lifecycle status. It is advanced exclusively by the
// workflow state machines, never by direct user edit.
type DealStatus string

// Deal lifecycle constants, in lifecycle order.
const (
	DealDraftIngested         DealStatus = "DRAFT_INGESTED"
	DealOMDrafted             DealStatus = "OM_DRAFTED"
	DealOMBrokerApproved      DealStatus = "OM_BROKER_APPROVED"
	DealOMApprovedForMarketing DealStatus = "OM_APPROVED_FOR_MARKETING"
	DealDistributed           DealStatus = "DISTRIBUTED"
	DealActiveDD              DealStatus = "ACTIVE_DD"
)

// dealStatusOrder maps each status to its position in the lifecycle.
var dealStatusOrder = map[DealStatus]int{
	DealDraftIngested:          0,
	DealOMDrafted:              1,
	DealOMBrokerApproved:       2,
	DealOMApprovedForMarketing: 3,
	DealDistributed:            4,
	DealActiveDD:               5,
}

// IsValid checks if the status value is valid.
func (s DealStatus) IsValid() bool {
	_, ok := dealStatusOrder[s]
	return ok
}

// Before reports whether s comes earlier in the lifecycle than other.
func (s DealStatus) Before(other DealStatus) bool {
	return dealStatusOrder[s] < dealStatusOrder[other]
}

// DealDraft is the aggregate root for a deal moving through intake,
// OM approval, distribution, and due diligence.
type DealDraft struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Status       DealStatus `json:"status"`
	Address      string     `json:"address,omitempty"`
	PropertyType string     `json:"property_type,omitempty"`
	AskingPrice  *float64   `json:"asking_price,omitempty"`

	SellerID                   string `json:"seller_id,omitempty"`
	SellerHasDirectAccess      bool   `json:"seller_has_direct_access,omitempty"`
	SellerReceiveNotifications bool   `json:"seller_receive_notifications,omitempty"`
	SellerRequiresOMApproval   bool   `json:"seller_requires_om_approval,omitempty"`
	SellerRequiresBuyerApproval bool  `json:"seller_requires_buyer_approval,omitempty"`

	Brokers []*DealBroker `json:"brokers,omitempty"` // Populated on read

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks that the deal has valid field values.
func (d *DealDraft) Validate() error {
	if len(d.Title) == 0 {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	if len(d.Title) > 500 {
		return fmt.Errorf("%w: title must be 500 characters or less (got %d)", ErrValidation, len(d.Title))
	}
	if !d.Status.IsValid() {
		return fmt.Errorf("%w: invalid deal status: %s", ErrValidation, d.Status)
	}
	if d.AskingPrice != nil && *d.AskingPrice < 0 {
		return fmt.Errorf("%w: asking price cannot be negative", ErrValidation)
	}
	return nil
}

// DealBroker is an ownership edge from a deal to a broker, carrying the
// broker's capability flags on this deal.
type DealBroker struct {
	DealID       string `json:"deal_id"`
	BrokerID     string `json:"broker_id"`
	IsPrimary    bool   `json:"is_primary"`
	CanApproveOM bool   `json:"can_approve_om"`
	CanDistribute bool  `json:"can_distribute"`
	CanAuthorize bool   `json:"can_authorize"`
}
