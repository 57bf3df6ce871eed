package types

import "time"

// Event represents an audit trail entry. Events are append-only and written
// in the same transaction as the state transition they record.
type Event struct {
	ID        int64     `json:"id"`
	EntityID  string    `json:"entity_id"`
	EventType EventType `json:"event_type"`
	Actor     string    `json:"actor"`
	OldValue  *string   `json:"old_value,omitempty"`
	NewValue  *string   `json:"new_value,omitempty"`
	Comment   *string   `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// EventType categorizes audit trail events
type EventType string

// Event type constants for audit trail
const (
	EventDealCreated       EventType = "deal_created"
	EventDealStatusChanged EventType = "deal_status_changed"

	EventClaimSubmitted  EventType = "claim_submitted"
	EventClaimConfirmed  EventType = "claim_confirmed"
	EventClaimRejected   EventType = "claim_rejected"
	EventConflictOpened  EventType = "conflict_opened"
	EventConflictResolved EventType = "conflict_resolved"

	EventOMGenerated      EventType = "om_generated"
	EventOMSectionEdited  EventType = "om_section_edited"
	EventOMBrokerApproved EventType = "om_broker_approved"
	EventOMSellerApproved EventType = "om_seller_approved"
	EventOMChangeRequest  EventType = "om_change_request"

	EventDistributionCreated       EventType = "distribution_created"
	EventDistributionStatusChanged EventType = "distribution_status_changed"
	EventRecipientViewed           EventType = "recipient_viewed"
	EventResponseRecorded          EventType = "response_recorded"
	EventResponseSuperseded        EventType = "response_superseded"

	EventBuyerAuthorized      EventType = "buyer_authorized"
	EventSellerConfirmed      EventType = "seller_confirmed"
	EventBuyerDeclined        EventType = "buyer_declined"
	EventBuyerRevoked         EventType = "buyer_revoked"
	EventNDASent              EventType = "nda_sent"
	EventNDASigned            EventType = "nda_signed"
	EventNDAExpired           EventType = "nda_expired"

	EventEscalated EventType = "escalated"
)
