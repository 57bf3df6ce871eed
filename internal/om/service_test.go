package om

import (
	"context"
	"errors"
	"testing"

	"github.com/dealflowhq/dealflow/internal/generate"
	"github.com/dealflowhq/dealflow/internal/storage/sqlite"
	"github.com/dealflowhq/dealflow/internal/types"
)

type stubFacts map[string]string

func (f stubFacts) AuthoritativeValues(context.Context, string) (map[string]string, []string, error) {
	return f, []string{"clm-aaaaa"}, nil
}

type failingGenerator struct{}

func (failingGenerator) GenerateSection(_ context.Context, req generate.SectionRequest) (string, error) {
	return "", &types.GenerationFailedError{Section: req.Section, Cause: errors.New("upstream timeout")}
}

type fixture struct {
	store   *sqlite.Store
	service *Service
}

func newFixture(t *testing.T, deal *types.DealDraft, facts stubFacts) *fixture {
	t.Helper()

	ctx := context.Background()
	store, err := sqlite.New(ctx, t.TempDir()+"/test.db")
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		if cerr := store.Close(); cerr != nil {
			t.Fatalf("Failed to close test database: %v", cerr)
		}
	})

	if err := store.CreateDeal(ctx, deal, "test-broker"); err != nil {
		t.Fatalf("CreateDeal failed: %v", err)
	}
	if err := store.AddDealBroker(ctx, &types.DealBroker{
		DealID: deal.ID, BrokerID: "broker-1", IsPrimary: true,
		CanApproveOM: true, CanDistribute: true, CanAuthorize: true,
	}); err != nil {
		t.Fatalf("AddDealBroker failed: %v", err)
	}
	if err := store.AddDealBroker(ctx, &types.DealBroker{
		DealID: deal.ID, BrokerID: "broker-2",
	}); err != nil {
		t.Fatalf("AddDealBroker failed: %v", err)
	}

	return &fixture{
		store:   store,
		service: NewService(store, facts, generate.NewTemplateGenerator(), nil),
	}
}

func testDeal(requiresSellerApproval bool) *types.DealDraft {
	return &types.DealDraft{
		ID:                       "deal-om1",
		Title:                    "Riverside Industrial Park",
		Status:                   types.DealDraftIngested,
		SellerID:                 "seller-1",
		SellerRequiresOMApproval: requiresSellerApproval,
	}
}

func testFacts() stubFacts {
	return stubFacts{
		"asking_price": "1150000",
		"noi":          "500000",
		"cap_rate":     "6.5",
	}
}

func TestGenerateDraftCreatesVersionOne(t *testing.T) {
	f := newFixture(t, testDeal(true), testFacts())
	ctx := context.Background()

	v, err := f.service.GenerateDraft(ctx, "deal-om1", "broker-1", false)
	if err != nil {
		t.Fatalf("GenerateDraft failed: %v", err)
	}
	if v.VersionNumber != 1 {
		t.Errorf("version number = %d, want 1", v.VersionNumber)
	}
	if v.Status != types.OMDraft {
		t.Errorf("status = %s, want DRAFT", v.Status)
	}
	for _, key := range types.RequiredSections {
		if _, ok := v.Sections[key]; !ok {
			t.Errorf("missing required section %q", key)
		}
	}
	// cap_rate and noi are confirmed, so the investment thesis should ride along.
	if _, ok := v.Sections[types.SectionInvestmentThesis]; !ok {
		t.Error("missing investment_thesis section despite supporting facts")
	}
	if len(v.ClaimRefs) == 0 {
		t.Error("claim refs not recorded")
	}

	deal, err := f.store.GetDeal(ctx, "deal-om1")
	if err != nil {
		t.Fatalf("GetDeal failed: %v", err)
	}
	if deal.Status != types.DealOMDrafted {
		t.Errorf("deal status = %s, want OM_DRAFTED", deal.Status)
	}
}

func TestGenerateDraftIsIdempotentWhileDraft(t *testing.T) {
	f := newFixture(t, testDeal(true), testFacts())
	ctx := context.Background()

	v1, err := f.service.GenerateDraft(ctx, "deal-om1", "broker-1", false)
	if err != nil {
		t.Fatalf("GenerateDraft failed: %v", err)
	}
	// Second call, even with regenerate, returns the same draft.
	v2, err := f.service.GenerateDraft(ctx, "deal-om1", "broker-1", true)
	if err != nil {
		t.Fatalf("second GenerateDraft failed: %v", err)
	}
	if v1.ID != v2.ID || v2.VersionNumber != 1 {
		t.Errorf("expected the same draft back, got %s v%d vs %s v%d",
			v1.ID, v1.VersionNumber, v2.ID, v2.VersionNumber)
	}
}

func TestRegenerateRequiresFlagAfterApproval(t *testing.T) {
	f := newFixture(t, testDeal(true), testFacts())
	ctx := context.Background()

	v1, err := f.service.GenerateDraft(ctx, "deal-om1", "broker-1", false)
	if err != nil {
		t.Fatalf("GenerateDraft failed: %v", err)
	}
	if _, err := f.service.BrokerApprove(ctx, v1.ID, "broker-1"); err != nil {
		t.Fatalf("BrokerApprove failed: %v", err)
	}

	if _, err := f.service.GenerateDraft(ctx, "deal-om1", "broker-1", false); !errors.Is(err, types.ErrRegenerateNotAllowed) {
		t.Errorf("expected RegenerateNotAllowed, got %v", err)
	}

	v2, err := f.service.GenerateDraft(ctx, "deal-om1", "broker-1", true)
	if err != nil {
		t.Fatalf("forced regenerate failed: %v", err)
	}
	if v2.VersionNumber != 2 || v2.Status != types.OMDraft {
		t.Errorf("regenerated version = v%d %s, want v2 DRAFT", v2.VersionNumber, v2.Status)
	}
}

func TestGenerationFailureLeavesStateUnchanged(t *testing.T) {
	f := newFixture(t, testDeal(true), testFacts())
	f.service.gen = failingGenerator{}
	ctx := context.Background()

	_, err := f.service.GenerateDraft(ctx, "deal-om1", "broker-1", false)
	if !errors.Is(err, types.ErrGenerationFailed) {
		t.Fatalf("expected GenerationFailed, got %v", err)
	}

	if _, err := f.store.LatestOMVersion(ctx, "deal-om1"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("partial version persisted: %v", err)
	}
	deal, _ := f.store.GetDeal(ctx, "deal-om1")
	if deal.Status != types.DealDraftIngested {
		t.Errorf("deal status mutated to %s on failed generation", deal.Status)
	}
}

func TestUpdateSectionDraftOnly(t *testing.T) {
	f := newFixture(t, testDeal(true), testFacts())
	ctx := context.Background()

	v, err := f.service.GenerateDraft(ctx, "deal-om1", "broker-1", false)
	if err != nil {
		t.Fatalf("GenerateDraft failed: %v", err)
	}

	updated, err := f.service.UpdateSection(ctx, v.ID, types.SectionExecutiveSummary, "Hand-written summary.", "broker-1")
	if err != nil {
		t.Fatalf("UpdateSection failed: %v", err)
	}
	sec := updated.Sections[types.SectionExecutiveSummary]
	if sec.Content != "Hand-written summary." {
		t.Errorf("content = %q", sec.Content)
	}
	if sec.Autogenerated {
		t.Error("edited section still flagged autogenerated")
	}

	if _, err := f.service.UpdateSection(ctx, v.ID, "not_a_section", "x", "broker-1"); !errors.Is(err, types.ErrValidation) {
		t.Errorf("unknown section accepted: %v", err)
	}

	if _, err := f.service.BrokerApprove(ctx, v.ID, "broker-1"); err != nil {
		t.Fatalf("BrokerApprove failed: %v", err)
	}
	if _, err := f.service.UpdateSection(ctx, v.ID, types.SectionExecutiveSummary, "too late", "broker-1"); !errors.Is(err, types.ErrInvalidState) {
		t.Errorf("expected InvalidState editing approved version, got %v", err)
	}
}

func TestBrokerApproveRequiresCapability(t *testing.T) {
	f := newFixture(t, testDeal(true), testFacts())
	ctx := context.Background()

	v, err := f.service.GenerateDraft(ctx, "deal-om1", "broker-1", false)
	if err != nil {
		t.Fatalf("GenerateDraft failed: %v", err)
	}

	// broker-2 has no capability flags.
	if _, err := f.service.BrokerApprove(ctx, v.ID, "broker-2"); !errors.Is(err, types.ErrValidation) {
		t.Errorf("capability check passed for broker-2: %v", err)
	}
	// Unknown actors fail identically.
	if _, err := f.service.BrokerApprove(ctx, v.ID, "broker-99"); !errors.Is(err, types.ErrValidation) {
		t.Errorf("capability check passed for unknown broker: %v", err)
	}

	approved, err := f.service.BrokerApprove(ctx, v.ID, "broker-1")
	if err != nil {
		t.Fatalf("BrokerApprove failed: %v", err)
	}
	if approved.Status != types.OMBrokerApproved {
		t.Errorf("status = %s, want BROKER_APPROVED", approved.Status)
	}
	if approved.BrokerApprovedBy != "broker-1" || approved.BrokerApprovedAt == nil {
		t.Error("broker approval stamp missing")
	}

	deal, _ := f.store.GetDeal(ctx, "deal-om1")
	if deal.Status != types.DealOMBrokerApproved {
		t.Errorf("deal status = %s, want OM_BROKER_APPROVED", deal.Status)
	}
}

func TestBrokerApproveAutoCompletesWhenSellerWaived(t *testing.T) {
	f := newFixture(t, testDeal(false), testFacts())
	ctx := context.Background()

	v, err := f.service.GenerateDraft(ctx, "deal-om1", "broker-1", false)
	if err != nil {
		t.Fatalf("GenerateDraft failed: %v", err)
	}
	approved, err := f.service.BrokerApprove(ctx, v.ID, "broker-1")
	if err != nil {
		t.Fatalf("BrokerApprove failed: %v", err)
	}
	if approved.Status != types.OMSellerApproved {
		t.Errorf("status = %s, want SELLER_APPROVED (seller approval waived)", approved.Status)
	}

	deal, _ := f.store.GetDeal(ctx, "deal-om1")
	if deal.Status != types.DealOMApprovedForMarketing {
		t.Errorf("deal status = %s, want OM_APPROVED_FOR_MARKETING", deal.Status)
	}
}

func TestSellerApproveOnlyFromBrokerApproved(t *testing.T) {
	f := newFixture(t, testDeal(true), testFacts())
	ctx := context.Background()

	v, err := f.service.GenerateDraft(ctx, "deal-om1", "broker-1", false)
	if err != nil {
		t.Fatalf("GenerateDraft failed: %v", err)
	}

	if _, err := f.service.SellerApprove(ctx, v.ID, "seller-1"); !errors.Is(err, types.ErrInvalidState) {
		t.Errorf("seller approved a DRAFT: %v", err)
	}

	if _, err := f.service.BrokerApprove(ctx, v.ID, "broker-1"); err != nil {
		t.Fatalf("BrokerApprove failed: %v", err)
	}
	approved, err := f.service.SellerApprove(ctx, v.ID, "seller-1")
	if err != nil {
		t.Fatalf("SellerApprove failed: %v", err)
	}
	if approved.Status != types.OMSellerApproved {
		t.Errorf("status = %s, want SELLER_APPROVED", approved.Status)
	}

	deal, _ := f.store.GetDeal(ctx, "deal-om1")
	if deal.Status != types.DealOMApprovedForMarketing {
		t.Errorf("deal status = %s, want OM_APPROVED_FOR_MARKETING", deal.Status)
	}
}

func TestRequestChangesRevertsToDraft(t *testing.T) {
	f := newFixture(t, testDeal(true), testFacts())
	ctx := context.Background()

	v, err := f.service.GenerateDraft(ctx, "deal-om1", "broker-1", false)
	if err != nil {
		t.Fatalf("GenerateDraft failed: %v", err)
	}
	if _, err := f.service.BrokerApprove(ctx, v.ID, "broker-1"); err != nil {
		t.Fatalf("BrokerApprove failed: %v", err)
	}

	if _, err := f.service.RequestChanges(ctx, v.ID, "seller-1", ""); !errors.Is(err, types.ErrValidation) {
		t.Errorf("empty note accepted: %v", err)
	}

	reverted, err := f.service.RequestChanges(ctx, v.ID, "seller-1", "cap rate section is stale")
	if err != nil {
		t.Fatalf("RequestChanges failed: %v", err)
	}
	if reverted.Status != types.OMDraft {
		t.Errorf("status = %s, want DRAFT", reverted.Status)
	}
	if reverted.BrokerApprovedBy != "" || reverted.BrokerApprovedAt != nil {
		t.Error("broker approval stamp not cleared")
	}

	// Exactly one change-request entry in the log per call.
	events, err := f.service.ChangeLog(ctx, v.ID, 0)
	if err != nil {
		t.Fatalf("ChangeLog failed: %v", err)
	}
	var changeRequests int
	for _, e := range events {
		if e.EventType == types.EventOMChangeRequest {
			changeRequests++
		}
	}
	if changeRequests != 1 {
		t.Errorf("change request events = %d, want 1", changeRequests)
	}

	// A second request on the now-DRAFT version is invalid.
	if _, err := f.service.RequestChanges(ctx, v.ID, "seller-1", "again"); !errors.Is(err, types.ErrInvalidState) {
		t.Errorf("change request on DRAFT accepted: %v", err)
	}
}

func TestRequestChangesRejectedAfterSellerApproval(t *testing.T) {
	f := newFixture(t, testDeal(true), testFacts())
	ctx := context.Background()

	v, err := f.service.GenerateDraft(ctx, "deal-om1", "broker-1", false)
	if err != nil {
		t.Fatalf("GenerateDraft failed: %v", err)
	}
	if _, err := f.service.BrokerApprove(ctx, v.ID, "broker-1"); err != nil {
		t.Fatalf("BrokerApprove failed: %v", err)
	}
	if _, err := f.service.SellerApprove(ctx, v.ID, "seller-1"); err != nil {
		t.Fatalf("SellerApprove failed: %v", err)
	}

	// Seller approval is terminal: the snapshot stays immutable and the deal
	// keeps its marketing-approved status.
	if _, err := f.service.RequestChanges(ctx, v.ID, "broker-1", "reopen please"); !errors.Is(err, types.ErrInvalidState) {
		t.Fatalf("change request on SELLER_APPROVED accepted: %v", err)
	}

	current, err := f.store.GetOMVersion(ctx, v.ID)
	if err != nil {
		t.Fatalf("GetOMVersion failed: %v", err)
	}
	if current.Status != types.OMSellerApproved {
		t.Errorf("status = %s, want SELLER_APPROVED", current.Status)
	}
	if current.SellerApprovedBy != "seller-1" || current.SellerApprovedAt == nil {
		t.Error("seller approval stamp lost")
	}
	deal, _ := f.store.GetDeal(ctx, "deal-om1")
	if deal.Status != types.DealOMApprovedForMarketing {
		t.Errorf("deal status = %s, want OM_APPROVED_FOR_MARKETING", deal.Status)
	}

	// The path forward is a fresh version.
	v2, err := f.service.GenerateDraft(ctx, "deal-om1", "broker-1", true)
	if err != nil {
		t.Fatalf("GenerateDraft(regenerate) failed: %v", err)
	}
	if v2.VersionNumber != v.VersionNumber+1 || v2.Status != types.OMDraft {
		t.Errorf("regenerated version = v%d %s, want v%d DRAFT", v2.VersionNumber, v2.Status, v.VersionNumber+1)
	}
}
