package types

import (
	"fmt"
	"time"
)

// VerificationStatus is the human-verification state of a claim.
type VerificationStatus string

// Verification status constants
const (
	VerificationUnverified      VerificationStatus = "UNVERIFIED"
	VerificationBrokerConfirmed VerificationStatus = "BROKER_CONFIRMED"
	VerificationRejected        VerificationStatus = "REJECTED"
)

// IsValid checks if the verification status value is valid.
func (s VerificationStatus) IsValid() bool {
	switch s {
	case VerificationUnverified, VerificationBrokerConfirmed, VerificationRejected:
		return true
	}
	return false
}

// Claim is a single candidate fact extracted from a source document.
// Extraction confidence is advisory only: a claim is never usable downstream
// until a human confirms it.
type Claim struct {
	ID           string   `json:"id"`
	DealID       string   `json:"deal_id"`
	Field        string   `json:"field"`
	Value        string   `json:"value"`                   // Canonical string form
	NumericValue *float64 `json:"numeric_value,omitempty"` // Set when the value parses as a number
	DisplayValue string   `json:"display_value,omitempty"`

	SourceDocumentID string `json:"source_document_id,omitempty"`
	SourcePage       int    `json:"source_page,omitempty"`
	SourceSnippet    string `json:"source_snippet,omitempty"`

	ExtractionMethod string  `json:"extraction_method,omitempty"`
	Confidence       float64 `json:"confidence"` // In [0,1]

	VerificationStatus VerificationStatus `json:"verification_status"`
	VerifiedBy         string             `json:"verified_by,omitempty"`
	VerifiedAt         *time.Time         `json:"verified_at,omitempty"`
	CorrectedValue     *string            `json:"corrected_value,omitempty"`
	RejectionReason    string             `json:"rejection_reason,omitempty"`

	ConflictGroupID *string `json:"conflict_group_id,omitempty"`
	SupersededBy    *string `json:"superseded_by,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// EffectiveValue returns the broker-corrected value when one was supplied at
// confirmation time, otherwise the extracted value.
func (c *Claim) EffectiveValue() string {
	if c.CorrectedValue != nil {
		return *c.CorrectedValue
	}
	return c.Value
}

// Validate checks that the claim has valid field values.
func (c *Claim) Validate() error {
	if c.DealID == "" {
		return fmt.Errorf("%w: deal_id is required", ErrValidation)
	}
	if c.Field == "" {
		return fmt.Errorf("%w: field is required", ErrValidation)
	}
	if c.Value == "" {
		return fmt.Errorf("%w: value is required", ErrValidation)
	}
	if c.Confidence < 0 || c.Confidence > 1 {
		return fmt.Errorf("%w: confidence must be in [0,1] (got %g)", ErrValidation, c.Confidence)
	}
	if !c.VerificationStatus.IsValid() {
		return fmt.Errorf("%w: invalid verification status: %s", ErrValidation, c.VerificationStatus)
	}
	if c.VerificationStatus == VerificationRejected && c.RejectionReason == "" {
		return fmt.Errorf("%w: rejected claims must have a rejection reason", ErrValidation)
	}
	return nil
}

// ConflictStatus is the lifecycle state of a conflict group.
type ConflictStatus string

// Conflict status constants
const (
	ConflictOpen     ConflictStatus = "OPEN"
	ConflictResolved ConflictStatus = "RESOLVED"
)

// ResolutionMethod identifies how a conflict was resolved.
type ResolutionMethod string

// Resolution method constants
const (
	ResolutionChoseClaimA    ResolutionMethod = "CHOSE_CLAIM_A"
	ResolutionChoseClaimB    ResolutionMethod = "CHOSE_CLAIM_B"
	ResolutionManualOverride ResolutionMethod = "MANUAL_OVERRIDE"
	ResolutionAveraged       ResolutionMethod = "AVERAGED"
)

// resolutionKind tags the Resolution variant.
type resolutionKind int

const (
	resolutionChoose resolutionKind = iota
	resolutionOverride
	resolutionAverage
)

// Resolution is a closed set of resolution variants, each carrying exactly
// the fields it needs. Construct via ChooseClaim, Override, or Average.
// Whether a ChooseClaim resolution records CHOSE_CLAIM_A or CHOSE_CLAIM_B is
// determined by the resolver from the chosen claim's position in the group.
type Resolution struct {
	kind          resolutionKind
	chosenClaimID string // ChooseClaim
	overrideValue string // Override
}

// ChooseClaim resolves in favor of one claim in the group.
func ChooseClaim(claimID string) Resolution {
	return Resolution{kind: resolutionChoose, chosenClaimID: claimID}
}

// Override resolves with a manually supplied authoritative value, backing
// neither claim.
func Override(value string) Resolution {
	return Resolution{kind: resolutionOverride, overrideValue: value}
}

// Average resolves to the numeric mean of the group's claim values.
func Average() Resolution {
	return Resolution{kind: resolutionAverage}
}

// IsChoose reports whether this is a ChooseClaim resolution, and returns the
// chosen claim id when it is.
func (r Resolution) IsChoose() (string, bool) {
	return r.chosenClaimID, r.kind == resolutionChoose
}

// IsOverride reports whether this is a manual-override resolution, and
// returns the override value when it is.
func (r Resolution) IsOverride() (string, bool) {
	return r.overrideValue, r.kind == resolutionOverride
}

// IsAverage reports whether this is an averaging resolution.
func (r Resolution) IsAverage() bool {
	return r.kind == resolutionAverage
}

// Conflict groups two or more claims for the same field whose values
// disagree beyond the variance threshold. Conflicts are never physically
// deleted; resolution flips the status and records the outcome.
type Conflict struct {
	ID       string         `json:"id"`
	DealID   string         `json:"deal_id"`
	Field    string         `json:"field"`
	Status   ConflictStatus `json:"status"`
	Variance float64        `json:"variance"` // Relative disagreement at detection time

	ResolutionMethod ResolutionMethod `json:"resolution_method,omitempty"`
	ResolvedValue    *string          `json:"resolved_value,omitempty"`
	ResolvedClaimID  *string          `json:"resolved_claim_id,omitempty"`
	ResolvedBy       string           `json:"resolved_by,omitempty"`
	ResolvedAt       *time.Time       `json:"resolved_at,omitempty"`

	RowVersion int64 `json:"-"` // Optimistic concurrency token

	Claims []*Claim `json:"claims,omitempty"` // Populated on read

	CreatedAt time.Time `json:"created_at"`
}

// IsResolved reports whether the conflict has been resolved.
func (c *Conflict) IsResolved() bool {
	return c.Status == ConflictResolved
}
