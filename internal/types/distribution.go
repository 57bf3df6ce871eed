package types

import (
	"fmt"
	"time"
)

// ListingType distinguishes public from private distributions.
type ListingType string

// Listing type constants
const (
	ListingPublic  ListingType = "PUBLIC"
	ListingPrivate ListingType = "PRIVATE"
)

// IsValid checks if the listing type value is valid.
func (t ListingType) IsValid() bool {
	return t == ListingPublic || t == ListingPrivate
}

// DistributionStatus is the broker-controlled lifecycle of a distribution.
type DistributionStatus string

// Distribution status constants
const (
	DistributionPending DistributionStatus = "PENDING"
	DistributionActive  DistributionStatus = "ACTIVE"
	DistributionPaused  DistributionStatus = "PAUSED"
	DistributionClosed  DistributionStatus = "CLOSED"
)

// IsValid checks if the distribution status value is valid.
func (s DistributionStatus) IsValid() bool {
	switch s {
	case DistributionPending, DistributionActive, DistributionPaused, DistributionClosed:
		return true
	}
	return false
}

// Distribution is one listing event: a marketing-ready deal pushed to a set
// of matched buyers.
type Distribution struct {
	ID          string             `json:"id"`
	DealID      string             `json:"deal_id"`
	OMVersionID string             `json:"om_version_id"`
	ListingType ListingType        `json:"listing_type"`
	Status      DistributionStatus `json:"status"`

	IsAnonymousSeller bool   `json:"is_anonymous_seller,omitempty"`
	AnonymousLabel    string `json:"anonymous_label,omitempty"`

	Recipients []*DistributionRecipient `json:"recipients,omitempty"` // Populated on read

	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MatchType records how a recipient was matched to the deal.
type MatchType string

// Match type constants
const (
	MatchAuto   MatchType = "AUTO_MATCHED"
	MatchManual MatchType = "MANUAL"
)

// IsValid checks if the match type value is valid.
func (t MatchType) IsValid() bool {
	return t == MatchAuto || t == MatchManual
}

// DistributionRecipient is one buyer's membership in a distribution, with
// match metadata and engagement tracking.
type DistributionRecipient struct {
	ID             string    `json:"id"`
	DistributionID string    `json:"distribution_id"`
	BuyerID        string    `json:"buyer_id"`
	MatchType      MatchType `json:"match_type"`
	MatchScore     float64   `json:"match_score,omitempty"`

	IsAnonymous    bool   `json:"is_anonymous,omitempty"`
	AnonymousLabel string `json:"anonymous_label,omitempty"`

	PushedAt         *time.Time `json:"pushed_at,omitempty"`
	ViewedAt         *time.Time `json:"viewed_at,omitempty"`
	ViewDurationSecs int        `json:"view_duration_secs,omitempty"`
	PagesViewed      int        `json:"pages_viewed,omitempty"`

	Response *BuyerResponse `json:"response,omitempty"` // Populated on read
}

// DisplayName returns the identity string a buyer-facing view must show for
// the seller side of this recipient. Anonymity is a presentation contract:
// the underlying data stays unredacted for authorized broker views.
func (r *DistributionRecipient) DisplayName(dist *Distribution, sellerName string) string {
	if r.IsAnonymous && r.AnonymousLabel != "" {
		return r.AnonymousLabel
	}
	if dist != nil && dist.IsAnonymousSeller {
		if dist.AnonymousLabel != "" {
			return dist.AnonymousLabel
		}
		return "Confidential Seller"
	}
	return sellerName
}

// ResponseKind is a buyer's answer to a distribution.
type ResponseKind string

// Buyer response constants
const (
	ResponseInterested               ResponseKind = "INTERESTED"
	ResponseInterestedWithConditions ResponseKind = "INTERESTED_WITH_CONDITIONS"
	ResponsePass                     ResponseKind = "PASS"
)

// IsValid checks if the response kind value is valid.
func (k ResponseKind) IsValid() bool {
	switch k {
	case ResponseInterested, ResponseInterestedWithConditions, ResponsePass:
		return true
	}
	return false
}

// BuyerResponse is one buyer's submitted answer for a recipient record.
// Immutable once submitted; a revision is a new record that supersedes this
// one, never a mutation.
type BuyerResponse struct {
	ID          string       `json:"id"`
	RecipientID string       `json:"recipient_id"`
	BuyerID     string       `json:"buyer_id"`
	Response    ResponseKind `json:"response"`

	PriceMin     *float64 `json:"price_min,omitempty"`
	PriceMax     *float64 `json:"price_max,omitempty"`
	Conditions   string   `json:"conditions,omitempty"`
	Questions    string   `json:"questions,omitempty"`
	PassReason   string   `json:"pass_reason,omitempty"`
	Notes        string   `json:"notes,omitempty"`
	Confidential bool     `json:"confidential,omitempty"`

	SupersededAt *time.Time `json:"superseded_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Validate checks that the response has valid field values.
func (b *BuyerResponse) Validate() error {
	if b.RecipientID == "" {
		return fmt.Errorf("%w: recipient_id is required", ErrValidation)
	}
	if !b.Response.IsValid() {
		return fmt.Errorf("%w: invalid response: %s", ErrValidation, b.Response)
	}
	if b.Response == ResponsePass && b.PassReason == "" {
		return fmt.Errorf("%w: pass responses must include a reason", ErrValidation)
	}
	if b.PriceMin != nil && b.PriceMax != nil && *b.PriceMin > *b.PriceMax {
		return fmt.Errorf("%w: price_min exceeds price_max", ErrValidation)
	}
	return nil
}

// AuthorizationStatus is the buyer-gate state for a responding buyer.
type AuthorizationStatus string

// Authorization status constants
const (
	AuthorizationPending              AuthorizationStatus = "PENDING"
	AuthorizationAuthorizedPendingSeller AuthorizationStatus = "AUTHORIZED_PENDING_SELLER"
	AuthorizationAuthorized           AuthorizationStatus = "AUTHORIZED"
	AuthorizationDeclined             AuthorizationStatus = "DECLINED"
	AuthorizationRevoked              AuthorizationStatus = "REVOKED"
)

// IsValid checks if the authorization status value is valid.
func (s AuthorizationStatus) IsValid() bool {
	switch s {
	case AuthorizationPending, AuthorizationAuthorizedPendingSeller,
		AuthorizationAuthorized, AuthorizationDeclined, AuthorizationRevoked:
		return true
	}
	return false
}

// NDAStatus tracks NDA progress, advanced by external document-service
// callbacks once the buyer is authorized.
type NDAStatus string

// NDA status constants
const (
	NDANotSent NDAStatus = "NOT_SENT"
	NDASent    NDAStatus = "SENT"
	NDASigned  NDAStatus = "SIGNED"
	NDAExpired NDAStatus = "EXPIRED"
)

// IsValid checks if the NDA status value is valid.
func (s NDAStatus) IsValid() bool {
	switch s {
	case NDANotSent, NDASent, NDASigned, NDAExpired:
		return true
	}
	return false
}

// AccessLevel is the data-room access tier granted on authorization.
type AccessLevel string

// Access level constants
const (
	AccessStandard AccessLevel = "STANDARD"
	AccessFull     AccessLevel = "FULL"
	AccessCustom   AccessLevel = "CUSTOM"
)

// IsValid checks if the access level value is valid.
func (l AccessLevel) IsValid() bool {
	switch l {
	case AccessStandard, AccessFull, AccessCustom:
		return true
	}
	return false
}

// BuyerAuthorization is the persisted gate record for a responding buyer.
// Transitions are append-only in spirit: decline and revoke reasons are
// retained, and every transition is recorded in the event log.
type BuyerAuthorization struct {
	ID          string              `json:"id"`
	RecipientID string              `json:"recipient_id"`
	Status      AuthorizationStatus `json:"status"`
	AccessLevel AccessLevel         `json:"access_level"`

	DeclineReason string `json:"decline_reason,omitempty"`
	RevokeReason  string `json:"revoke_reason,omitempty"`

	AuthorizedBy      string     `json:"authorized_by,omitempty"`
	AuthorizedAt      *time.Time `json:"authorized_at,omitempty"`
	SellerConfirmedBy string     `json:"seller_confirmed_by,omitempty"`
	SellerConfirmedAt *time.Time `json:"seller_confirmed_at,omitempty"`

	NDAStatus   NDAStatus  `json:"nda_status"`
	NDASentAt   *time.Time `json:"nda_sent_at,omitempty"`
	NDASignedAt *time.Time `json:"nda_signed_at,omitempty"`

	DataRoomAccessGranted bool `json:"data_room_access_granted"`

	RowVersion int64 `json:"-"` // Optimistic concurrency token

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GateState is a tagged view of a recipient's position at the buyer gate.
// A recipient who has responded (non-pass) but has never been reviewed by a
// broker has no persisted authorization record; that absence is modeled
// explicitly here rather than as a sentinel BuyerAuthorization.
type GateState struct {
	reviewed bool
	auth     *BuyerAuthorization
}

// Unreviewed is the gate state for a responded recipient with no
// authorization record yet.
func Unreviewed() GateState {
	return GateState{}
}

// Reviewed wraps a persisted authorization record.
func Reviewed(auth *BuyerAuthorization) GateState {
	return GateState{reviewed: true, auth: auth}
}

// Authorization returns the persisted record, or nil and false when the
// recipient is unreviewed.
func (g GateState) Authorization() (*BuyerAuthorization, bool) {
	return g.auth, g.reviewed
}

// GateProgress is the funnel summary for a deal's distribution.
type GateProgress struct {
	Distributed  int `json:"distributed"`
	Responded    int `json:"responded"`
	Interested   int `json:"interested"`
	Authorized   int `json:"authorized"`
	NDASigned    int `json:"nda_signed"`
	InDataRoom   int `json:"in_data_room"`

	CanAdvanceToDD bool `json:"can_advance_to_dd"`
}
