// Package om drives the offering-memorandum version and approval state
// machine.
//
// Approval is strictly sequential: the broker gatekeeps before the seller
// ever sees a version, mirroring the liability structure where the broker is
// accountable for data accuracy before a principal-facing approval is sought.
// Each transition is a one-way door except the explicit RequestChanges escape
// hatch back to DRAFT.
package om

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dealflowhq/dealflow/internal/generate"
	"github.com/dealflowhq/dealflow/internal/idgen"
	"github.com/dealflowhq/dealflow/internal/notification"
	"github.com/dealflowhq/dealflow/internal/storage"
	"github.com/dealflowhq/dealflow/internal/types"
)

// FactSource supplies the authoritative field values and the claim ids
// backing them. Satisfied by *claims.Resolver.
type FactSource interface {
	AuthoritativeValues(ctx context.Context, dealID string) (map[string]string, []string, error)
}

// Service coordinates OM generation and approval against the store.
type Service struct {
	store  storage.Storage
	facts  FactSource
	gen    generate.Generator
	notify notification.Notifier
	now    func() time.Time
}

// NewService creates an OM service. notify may be nil.
func NewService(store storage.Storage, facts FactSource, gen generate.Generator, notify notification.Notifier) *Service {
	if notify == nil {
		notify = notification.NopNotifier{}
	}
	return &Service{
		store:  store,
		facts:  facts,
		gen:    gen,
		notify: notify,
		now:    time.Now,
	}
}

// GenerateDraft builds a DRAFT version from the deal's authoritative claim
// values.
//
// If the latest version is already a DRAFT it is returned unchanged
// regardless of regenerate, so accidental double calls cannot create
// duplicate drafts. If the latest version has been approved, a new version
// (versionNumber+1) requires regenerate=true. Generation failures surface
// before any write: no partial version is ever persisted.
func (s *Service) GenerateDraft(ctx context.Context, dealID, createdBy string, regenerate bool) (*types.OMVersion, error) {
	deal, err := s.store.GetDeal(ctx, dealID)
	if err != nil {
		return nil, err
	}

	latest, err := s.store.LatestOMVersion(ctx, dealID)
	if err != nil && !errors.Is(err, types.ErrNotFound) {
		return nil, err
	}
	if latest != nil {
		if latest.Status == types.OMDraft {
			return latest, nil
		}
		if !regenerate {
			return nil, fmt.Errorf("%w: version %d is %s; pass regenerate to create version %d",
				types.ErrRegenerateNotAllowed, latest.VersionNumber, latest.Status, latest.VersionNumber+1)
		}
	}

	facts, claimRefs, err := s.facts.AuthoritativeValues(ctx, dealID)
	if err != nil {
		return nil, err
	}

	sections, err := s.generateSections(ctx, deal, facts)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	version := &types.OMVersion{
		ID:            idgen.New(idgen.PrefixOMVersion, now, 0, dealID),
		DealID:        dealID,
		VersionNumber: 1,
		Status:        types.OMDraft,
		Sections:      sections,
		ClaimRefs:     claimRefs,
		CreatedBy:     createdBy,
		CreatedAt:     now,
	}
	if latest != nil {
		version.VersionNumber = latest.VersionNumber + 1
	}

	err = s.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		if err := tx.CreateOMVersion(ctx, version); err != nil {
			return err
		}
		if deal.Status == types.DealDraftIngested {
			if err := tx.SetDealStatus(ctx, dealID, types.DealDraftIngested, types.DealOMDrafted); err != nil {
				return err
			}
		}
		comment := fmt.Sprintf("version %d generated from %d confirmed fields", version.VersionNumber, len(facts))
		return tx.AddEvent(ctx, version.ID, types.EventOMGenerated, createdBy, nil, nil, &comment)
	})
	if err != nil {
		// A concurrent generate won the single-draft race; its draft is the
		// idempotent result.
		if errors.Is(err, types.ErrStaleState) {
			if existing, rerr := s.store.LatestOMVersion(ctx, dealID); rerr == nil && existing.Status == types.OMDraft {
				return existing, nil
			}
		}
		return nil, err
	}
	return version, nil
}

// generateSections produces the full required section set plus any optional
// section the facts can support. An error on any section abandons the whole
// generation.
func (s *Service) generateSections(ctx context.Context, deal *types.DealDraft, facts map[string]string) (map[string]*types.OMSection, error) {
	sections := make(map[string]*types.OMSection, len(types.RequiredSections)+len(types.OptionalSections))

	for _, key := range types.RequiredSections {
		content, err := s.gen.GenerateSection(ctx, generate.SectionRequest{Deal: deal, Section: key, Facts: facts})
		if err != nil {
			return nil, err
		}
		sections[key] = &types.OMSection{Content: content, Required: true, Autogenerated: true}
	}

	for _, key := range types.OptionalSections {
		if !supportsSection(key, facts) {
			continue
		}
		content, err := s.gen.GenerateSection(ctx, generate.SectionRequest{Deal: deal, Section: key, Facts: facts})
		if err != nil {
			return nil, err
		}
		sections[key] = &types.OMSection{Content: content, Autogenerated: true}
	}
	return sections, nil
}

// supportsSection reports whether enough confirmed data exists to populate an
// optional section. Absent data means the section is skipped, never padded.
func supportsSection(key string, facts map[string]string) bool {
	var needed []string
	switch key {
	case types.SectionMarketOverview:
		needed = []string{"submarket", "market_vacancy", "market_rent"}
	case types.SectionInvestmentThesis:
		needed = []string{"cap_rate", "noi"}
	default:
		return false
	}
	for _, f := range needed {
		if _, ok := facts[f]; ok {
			return true
		}
	}
	return false
}

// UpdateSection edits one section of a DRAFT version. The edit is recorded in
// the version's change log with the prior content.
func (s *Service) UpdateSection(ctx context.Context, versionID, sectionKey, content, actor string) (*types.OMVersion, error) {
	if !knownSection(sectionKey) {
		return nil, fmt.Errorf("%w: unknown section %q", types.ErrValidation, sectionKey)
	}

	var version *types.OMVersion
	err := s.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		var err error
		version, err = tx.GetOMVersion(ctx, versionID)
		if err != nil {
			return err
		}
		if version.Status != types.OMDraft {
			return types.NewInvalidState("OM version", "edit", string(version.Status), string(types.OMDraft))
		}

		section, ok := version.Sections[sectionKey]
		if !ok {
			section = &types.OMSection{}
			version.Sections[sectionKey] = section
		}
		oldContent := section.Content
		section.Content = content
		section.Autogenerated = false

		if err := tx.UpdateOMSections(ctx, versionID, version.Sections); err != nil {
			return err
		}
		return tx.AddEvent(ctx, versionID, types.EventOMSectionEdited, actor, &oldContent, &content, &sectionKey)
	})
	if err != nil {
		return nil, err
	}
	return version, nil
}

func knownSection(key string) bool {
	for _, k := range types.RequiredSections {
		if k == key {
			return true
		}
	}
	for _, k := range types.OptionalSections {
		if k == key {
			return true
		}
	}
	return false
}

// BrokerApprove moves a DRAFT version to BROKER_APPROVED. The actor must hold
// the can_approve_om capability on the deal. When the seller has waived OM
// approval, the version continues straight to SELLER_APPROVED and the deal
// becomes marketing-ready in the same transaction.
func (s *Service) BrokerApprove(ctx context.Context, versionID, brokerID string) (*types.OMVersion, error) {
	var version *types.OMVersion
	var autoApproved bool

	err := s.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		var err error
		version, err = tx.GetOMVersion(ctx, versionID)
		if err != nil {
			return err
		}
		if version.Status != types.OMDraft {
			return types.NewInvalidState("OM version", "broker approve", string(version.Status), string(types.OMDraft))
		}

		deal, err := tx.GetDeal(ctx, version.DealID)
		if err != nil {
			return err
		}
		if err := requireCapability(deal, brokerID, capApproveOM); err != nil {
			return err
		}

		now := s.now().UTC()
		version.Status = types.OMBrokerApproved
		version.BrokerApprovedBy = brokerID
		version.BrokerApprovedAt = &now
		if err := tx.SetOMStatus(ctx, version, types.OMDraft); err != nil {
			return err
		}
		if deal.Status.Before(types.DealOMBrokerApproved) {
			if err := tx.SetDealStatus(ctx, deal.ID, deal.Status, types.DealOMBrokerApproved); err != nil {
				return err
			}
		}
		oldStatus, newStatus := string(types.OMDraft), string(types.OMBrokerApproved)
		if err := tx.AddEvent(ctx, versionID, types.EventOMBrokerApproved, brokerID, &oldStatus, &newStatus, nil); err != nil {
			return err
		}

		if deal.SellerRequiresOMApproval {
			return nil
		}

		// Seller approval waived: finish the sequence in the same commit.
		autoApproved = true
		version.Status = types.OMSellerApproved
		version.SellerApprovedBy = "policy:seller-approval-waived"
		version.SellerApprovedAt = &now
		if err := tx.SetOMStatus(ctx, version, types.OMBrokerApproved); err != nil {
			return err
		}
		if err := tx.SetDealStatus(ctx, deal.ID, types.DealOMBrokerApproved, types.DealOMApprovedForMarketing); err != nil {
			return err
		}
		oldStatus, newStatus = string(types.OMBrokerApproved), string(types.OMSellerApproved)
		comment := "seller approval waived by deal settings"
		return tx.AddEvent(ctx, versionID, types.EventOMSellerApproved, "policy", &oldStatus, &newStatus, &comment)
	})
	if err != nil {
		return nil, err
	}

	kind := notification.KindOMBrokerApproved
	msg := fmt.Sprintf("OM version %d broker-approved", version.VersionNumber)
	if autoApproved {
		kind = notification.KindOMSellerApproved
		msg = fmt.Sprintf("OM version %d approved for marketing", version.VersionNumber)
	}
	s.notify.Dispatch(ctx, notification.Event{
		DealID:   version.DealID,
		EntityID: version.ID,
		Kind:     kind,
		Message:  msg,
	})
	return version, nil
}

// SellerApprove moves a BROKER_APPROVED version to SELLER_APPROVED and the
// deal to OM_APPROVED_FOR_MARKETING. The seller can only approve an OM the
// broker has already signed off on.
func (s *Service) SellerApprove(ctx context.Context, versionID, sellerID string) (*types.OMVersion, error) {
	var version *types.OMVersion
	err := s.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		var err error
		version, err = tx.GetOMVersion(ctx, versionID)
		if err != nil {
			return err
		}
		if version.Status != types.OMBrokerApproved {
			return types.NewInvalidState("OM version", "seller approve", string(version.Status), string(types.OMBrokerApproved))
		}

		deal, err := tx.GetDeal(ctx, version.DealID)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		version.Status = types.OMSellerApproved
		version.SellerApprovedBy = sellerID
		version.SellerApprovedAt = &now
		if err := tx.SetOMStatus(ctx, version, types.OMBrokerApproved); err != nil {
			return err
		}
		if deal.Status.Before(types.DealOMApprovedForMarketing) {
			if err := tx.SetDealStatus(ctx, deal.ID, deal.Status, types.DealOMApprovedForMarketing); err != nil {
				return err
			}
		}
		oldStatus, newStatus := string(types.OMBrokerApproved), string(types.OMSellerApproved)
		return tx.AddEvent(ctx, versionID, types.EventOMSellerApproved, sellerID, &oldStatus, &newStatus, nil)
	})
	if err != nil {
		return nil, err
	}

	s.notify.Dispatch(ctx, notification.Event{
		DealID:   version.DealID,
		EntityID: version.ID,
		Kind:     notification.KindOMSellerApproved,
		Message:  fmt.Sprintf("OM version %d approved for marketing", version.VersionNumber),
	})
	return version, nil
}

// RequestChanges reverts a broker-approved version to DRAFT without creating
// a new version; edits continue against the same snapshot. The note is
// mandatory so the change log always records what was asked for.
// SELLER_APPROVED is terminal: once the seller has signed off the snapshot is
// immutable and further changes require GenerateDraft with regenerate.
func (s *Service) RequestChanges(ctx context.Context, versionID, actor, note string) (*types.OMVersion, error) {
	if note == "" {
		return nil, fmt.Errorf("%w: change request requires a note", types.ErrValidation)
	}

	var version *types.OMVersion
	err := s.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		var err error
		version, err = tx.GetOMVersion(ctx, versionID)
		if err != nil {
			return err
		}
		if version.Status != types.OMBrokerApproved {
			return types.NewInvalidState("OM version", "request changes", string(version.Status),
				string(types.OMBrokerApproved))
		}

		version.Status = types.OMDraft
		version.BrokerApprovedBy = ""
		version.BrokerApprovedAt = nil
		if err := tx.SetOMStatus(ctx, version, types.OMBrokerApproved); err != nil {
			return err
		}
		oldStatus, newStatus := string(types.OMBrokerApproved), string(types.OMDraft)
		return tx.AddEvent(ctx, versionID, types.EventOMChangeRequest, actor, &oldStatus, &newStatus, &note)
	})
	if err != nil {
		return nil, err
	}

	s.notify.Dispatch(ctx, notification.Event{
		DealID:   version.DealID,
		EntityID: version.ID,
		Kind:     notification.KindOMChangeRequested,
		Message:  fmt.Sprintf("changes requested on OM version %d: %s", version.VersionNumber, note),
	})
	return version, nil
}

// Latest returns the newest version for a deal.
func (s *Service) Latest(ctx context.Context, dealID string) (*types.OMVersion, error) {
	return s.store.LatestOMVersion(ctx, dealID)
}

// List returns all versions for a deal, newest first.
func (s *Service) List(ctx context.Context, dealID string) ([]*types.OMVersion, error) {
	return s.store.ListOMVersions(ctx, dealID)
}

// ChangeLog returns a version's append-only event history, newest first.
func (s *Service) ChangeLog(ctx context.Context, versionID string, limit int) ([]*types.Event, error) {
	return s.store.GetEvents(ctx, versionID, limit)
}

type capability int

const (
	capApproveOM capability = iota
	capDistribute
	capAuthorize
)

// requireCapability checks the actor's capability flags on the deal. A broker
// not attached to the deal fails the same way as one lacking the flag.
func requireCapability(deal *types.DealDraft, brokerID string, cap capability) error {
	for _, b := range deal.Brokers {
		if b.BrokerID != brokerID {
			continue
		}
		ok := false
		switch cap {
		case capApproveOM:
			ok = b.CanApproveOM
		case capDistribute:
			ok = b.CanDistribute
		case capAuthorize:
			ok = b.CanAuthorize
		}
		if ok {
			return nil
		}
		break
	}
	return fmt.Errorf("%w: broker %s lacks the required capability on deal %s", types.ErrValidation, brokerID, deal.ID)
}
