// Package notification delivers workflow events to interested parties.
//
// Delivery is best-effort and fire-and-forget: a failed notification never
// rolls back or retries the workflow transition that triggered it. Retry
// policy lives inside the individual sinks.
package notification

import (
	"context"
	"time"
)

// Kind classifies a notification.
type Kind string

// Notification kinds
const (
	KindOMBrokerApproved  Kind = "om_broker_approved"
	KindOMSellerApproved  Kind = "om_seller_approved"
	KindOMChangeRequested Kind = "om_change_requested"
	KindDistributionLive  Kind = "distribution_live"
	KindBuyerResponse     Kind = "buyer_response"
	KindSellerConfirmWait Kind = "seller_confirmation_pending"
	KindBuyerAuthorized   Kind = "buyer_authorized"
	KindBuyerDeclined     Kind = "buyer_declined"
	KindNDASigned         Kind = "nda_signed"
	KindEscalation        Kind = "escalation"
)

// Event is one notification payload.
type Event struct {
	DealID     string    `json:"deal_id"`
	EntityID   string    `json:"entity_id,omitempty"`
	Kind       Kind      `json:"kind"`
	Message    string    `json:"message"`
	Recipients []string  `json:"recipients,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// DispatchResult records the outcome of one sink delivery.
type DispatchResult struct {
	Sink string
	Err  error
}

// Notifier is the surface workflow services depend on.
type Notifier interface {
	Dispatch(ctx context.Context, e Event) []DispatchResult
}

// NopNotifier discards all events. Used when no sinks are configured and in
// tests that don't care about notifications.
type NopNotifier struct{}

// Dispatch discards the event.
func (NopNotifier) Dispatch(context.Context, Event) []DispatchResult { return nil }
