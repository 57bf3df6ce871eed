package types

import (
	"fmt"
	"time"
)

// OMStatus is the approval state of an offering-memorandum version.
type OMStatus string

// OM version status constants
const (
	OMDraft          OMStatus = "DRAFT"
	OMBrokerApproved OMStatus = "BROKER_APPROVED"
	OMSellerApproved OMStatus = "SELLER_APPROVED"
)

// IsValid checks if the OM status value is valid.
func (s OMStatus) IsValid() bool {
	switch s {
	case OMDraft, OMBrokerApproved, OMSellerApproved:
		return true
	}
	return false
}

// Section keys for the fixed OM section set. The required set is always
// generated; optional sections are generated when source data supports them.
const (
	SectionCover            = "cover"
	SectionExecutiveSummary = "executive_summary"
	SectionPropertyOverview = "property_overview"
	SectionFinancialSummary = "financial_summary"
	SectionDisclaimers      = "disclaimers"
	SectionMarketOverview   = "market_overview"
	SectionInvestmentThesis = "investment_thesis"
)

// RequiredSections lists the sections every OM version must carry, in
// presentation order.
var RequiredSections = []string{
	SectionCover,
	SectionExecutiveSummary,
	SectionPropertyOverview,
	SectionFinancialSummary,
	SectionDisclaimers,
}

// OptionalSections lists sections generated only when data supports them.
var OptionalSections = []string{
	SectionMarketOverview,
	SectionInvestmentThesis,
}

// OMSection is one generated section of an OM version.
type OMSection struct {
	Content       string `json:"content"`
	Required      bool   `json:"required"`
	Autogenerated bool   `json:"autogenerated"`
}

// OMVersion is one immutable snapshot per OM generation cycle. Edits while in
// DRAFT mutate the section content in place; once approved, content changes
// require either a change request (reverting to DRAFT) or a forced
// regeneration (creating versionNumber+1).
//
// The change log is not embedded here: it is an append-only event log keyed
// by the version id, stored and queried independently.
type OMVersion struct {
	ID            string                `json:"id"`
	DealID        string                `json:"deal_id"`
	VersionNumber int                   `json:"version_number"`
	Status        OMStatus              `json:"status"`
	Sections      map[string]*OMSection `json:"sections"`
	ClaimRefs     []string              `json:"claim_refs,omitempty"`

	BrokerApprovedBy string     `json:"broker_approved_by,omitempty"`
	BrokerApprovedAt *time.Time `json:"broker_approved_at,omitempty"`
	SellerApprovedBy string     `json:"seller_approved_by,omitempty"`
	SellerApprovedAt *time.Time `json:"seller_approved_at,omitempty"`

	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks that the version has valid field values.
func (v *OMVersion) Validate() error {
	if v.DealID == "" {
		return fmt.Errorf("%w: deal_id is required", ErrValidation)
	}
	if v.VersionNumber < 1 {
		return fmt.Errorf("%w: version number must be >= 1 (got %d)", ErrValidation, v.VersionNumber)
	}
	if !v.Status.IsValid() {
		return fmt.Errorf("%w: invalid OM status: %s", ErrValidation, v.Status)
	}
	for _, key := range RequiredSections {
		if _, ok := v.Sections[key]; !ok {
			return fmt.Errorf("%w: missing required section %q", ErrValidation, key)
		}
	}
	return nil
}
