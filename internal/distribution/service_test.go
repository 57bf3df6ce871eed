package distribution

import (
	"context"
	"errors"
	"testing"

	"github.com/dealflowhq/dealflow/internal/storage"
	"github.com/dealflowhq/dealflow/internal/storage/sqlite"
	"github.com/dealflowhq/dealflow/internal/types"
)

type fixture struct {
	store   *sqlite.Store
	service *Service
	dist    *types.Distribution
}

// newFixture builds a marketing-ready deal with an approved OM version, a
// distribution to two buyers, and the distribution activated.
func newFixture(t *testing.T, requiresBuyerApproval bool) *fixture {
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

	deal := &types.DealDraft{
		ID:                          "deal-dist1",
		Title:                       "Riverside Industrial Park",
		Status:                      types.DealOMApprovedForMarketing,
		SellerID:                    "seller-1",
		SellerRequiresBuyerApproval: requiresBuyerApproval,
	}
	if err := store.CreateDeal(ctx, deal, "test-broker"); err != nil {
		t.Fatalf("CreateDeal failed: %v", err)
	}
	if err := store.AddDealBroker(ctx, &types.DealBroker{
		DealID: deal.ID, BrokerID: "broker-1", IsPrimary: true,
		CanApproveOM: true, CanDistribute: true, CanAuthorize: true,
	}); err != nil {
		t.Fatalf("AddDealBroker failed: %v", err)
	}
	if err := store.AddDealBroker(ctx, &types.DealBroker{DealID: deal.ID, BrokerID: "broker-2"}); err != nil {
		t.Fatalf("AddDealBroker failed: %v", err)
	}

	sections := make(map[string]*types.OMSection)
	for _, key := range types.RequiredSections {
		sections[key] = &types.OMSection{Content: key + " content", Required: true, Autogenerated: true}
	}
	version := &types.OMVersion{
		ID: "om-dist1", DealID: deal.ID, VersionNumber: 1,
		Status: types.OMSellerApproved, Sections: sections, CreatedBy: "broker-1",
	}
	err = store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		return tx.CreateOMVersion(ctx, version)
	})
	if err != nil {
		t.Fatalf("CreateOMVersion failed: %v", err)
	}

	service := NewService(store, nil)
	dist, err := service.CreateDistribution(ctx, CreateDistributionInput{
		DealID:      deal.ID,
		OMVersionID: version.ID,
		ListingType: types.ListingPrivate,
		CreatedBy:   "broker-1",
		Recipients: []RecipientInput{
			{BuyerID: "buyer-1", MatchType: types.MatchAuto, MatchScore: 0.92},
			{BuyerID: "buyer-2", MatchType: types.MatchManual},
		},
	})
	if err != nil {
		t.Fatalf("CreateDistribution failed: %v", err)
	}
	if err := service.Activate(ctx, dist.ID, "broker-1"); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}

	return &fixture{store: store, service: service, dist: dist}
}

func (f *fixture) recipient(t *testing.T, buyerID string) *types.DistributionRecipient {
	t.Helper()
	dist, err := f.store.GetDistribution(context.Background(), f.dist.ID)
	if err != nil {
		t.Fatalf("GetDistribution failed: %v", err)
	}
	for _, r := range dist.Recipients {
		if r.BuyerID == buyerID {
			return r
		}
	}
	t.Fatalf("no recipient for buyer %s", buyerID)
	return nil
}

// respond records an INTERESTED response for the buyer and returns the
// recipient id.
func (f *fixture) respond(t *testing.T, buyerID string) string {
	t.Helper()
	r := f.recipient(t, buyerID)
	_, _, err := f.service.RecordBuyerResponse(context.Background(), r.ID, ResponseInput{Response: types.ResponseInterested})
	if err != nil {
		t.Fatalf("RecordBuyerResponse failed: %v", err)
	}
	return r.ID
}

func TestCreateDistributionGuards(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	// broker-2 lacks can_distribute.
	_, err := f.service.CreateDistribution(ctx, CreateDistributionInput{
		DealID: "deal-dist1", OMVersionID: "om-dist1", ListingType: types.ListingPublic,
		CreatedBy: "broker-2",
		Recipients: []RecipientInput{{BuyerID: "buyer-9", MatchType: types.MatchManual}},
	})
	if !errors.Is(err, types.ErrValidation) {
		t.Errorf("capability check passed: %v", err)
	}

	_, err = f.service.CreateDistribution(ctx, CreateDistributionInput{
		DealID: "deal-dist1", OMVersionID: "om-dist1", ListingType: types.ListingPublic,
		CreatedBy: "broker-1", Recipients: nil,
	})
	if !errors.Is(err, types.ErrValidation) {
		t.Errorf("empty recipient list accepted: %v", err)
	}
}

func TestActivatePushesRecipientsAndAdvancesDeal(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	r := f.recipient(t, "buyer-1")
	if r.PushedAt == nil {
		t.Error("recipient not stamped pushed")
	}

	deal, err := f.store.GetDeal(ctx, "deal-dist1")
	if err != nil {
		t.Fatalf("GetDeal failed: %v", err)
	}
	if deal.Status != types.DealDistributed {
		t.Errorf("deal status = %s, want DISTRIBUTED", deal.Status)
	}

	// Already ACTIVE: a second activation is invalid.
	if err := f.service.Activate(ctx, f.dist.ID, "broker-1"); !errors.Is(err, types.ErrInvalidState) {
		t.Errorf("double activation accepted: %v", err)
	}
}

func TestPauseResumeClose(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	if err := f.service.Pause(ctx, f.dist.ID, "broker-1"); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	if err := f.service.Pause(ctx, f.dist.ID, "broker-1"); !errors.Is(err, types.ErrInvalidState) {
		t.Errorf("double pause accepted: %v", err)
	}
	if err := f.service.Resume(ctx, f.dist.ID, "broker-1"); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if err := f.service.Close(ctx, f.dist.ID, "broker-1"); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	dist, _ := f.store.GetDistribution(ctx, f.dist.ID)
	if dist.Status != types.DistributionClosed {
		t.Errorf("status = %s, want CLOSED", dist.Status)
	}
}

func TestRecordBuyerResponseOncePerRecipient(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	r := f.recipient(t, "buyer-1")

	resp, gate, err := f.service.RecordBuyerResponse(ctx, r.ID, ResponseInput{Response: types.ResponseInterested})
	if err != nil {
		t.Fatalf("RecordBuyerResponse failed: %v", err)
	}
	if resp.BuyerID != "buyer-1" {
		t.Errorf("buyer id = %s", resp.BuyerID)
	}
	if _, reviewed := gate.Authorization(); reviewed {
		t.Error("fresh response already reviewed")
	}

	_, _, err = f.service.RecordBuyerResponse(ctx, r.ID, ResponseInput{Response: types.ResponsePass, PassReason: "too small"})
	if !errors.Is(err, types.ErrAlreadyResponded) {
		t.Errorf("expected AlreadyResponded, got %v", err)
	}
}

func TestRecordBuyerResponseValidation(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	r := f.recipient(t, "buyer-1")

	// PASS without a reason is malformed.
	_, _, err := f.service.RecordBuyerResponse(ctx, r.ID, ResponseInput{Response: types.ResponsePass})
	if !errors.Is(err, types.ErrValidation) {
		t.Errorf("pass without reason accepted: %v", err)
	}

	// The failed attempt must not consume the one-response slot.
	_, _, err = f.service.RecordBuyerResponse(ctx, r.ID, ResponseInput{Response: types.ResponseInterested})
	if err != nil {
		t.Errorf("valid response after rejected one failed: %v", err)
	}
}

func TestSupersedeResponse(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	recipientID := f.respond(t, "buyer-1")

	min, max := 1000000.0, 1200000.0
	revised, err := f.service.SupersedeResponse(ctx, recipientID, ResponseInput{
		Response: types.ResponseInterestedWithConditions,
		PriceMin: &min, PriceMax: &max,
		Conditions: "subject to environmental report",
	})
	if err != nil {
		t.Fatalf("SupersedeResponse failed: %v", err)
	}

	live, err := f.store.GetActiveResponse(ctx, recipientID)
	if err != nil {
		t.Fatalf("GetActiveResponse failed: %v", err)
	}
	if live.ID != revised.ID || live.Response != types.ResponseInterestedWithConditions {
		t.Errorf("live response = %s %s", live.ID, live.Response)
	}
}

func TestAuthorizeBuyer(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	recipientID := f.respond(t, "buyer-1")

	// broker-2 lacks can_authorize.
	if _, err := f.service.AuthorizeBuyer(ctx, recipientID, "broker-2", ""); !errors.Is(err, types.ErrValidation) {
		t.Errorf("capability check passed: %v", err)
	}

	auth, err := f.service.AuthorizeBuyer(ctx, recipientID, "broker-1", types.AccessFull)
	if err != nil {
		t.Fatalf("AuthorizeBuyer failed: %v", err)
	}
	if auth.Status != types.AuthorizationAuthorized {
		t.Errorf("status = %s, want AUTHORIZED", auth.Status)
	}
	if auth.NDAStatus != types.NDANotSent {
		t.Errorf("nda status = %s, want NOT_SENT", auth.NDAStatus)
	}
	if auth.AccessLevel != types.AccessFull {
		t.Errorf("access level = %s", auth.AccessLevel)
	}

	gate, err := f.service.GateState(ctx, recipientID)
	if err != nil {
		t.Fatalf("GateState failed: %v", err)
	}
	if got, reviewed := gate.Authorization(); !reviewed || got.ID != auth.ID {
		t.Error("gate state not reviewed after authorization")
	}
}

func TestAuthorizeBuyerRejectsPass(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	r := f.recipient(t, "buyer-2")

	_, _, err := f.service.RecordBuyerResponse(ctx, r.ID, ResponseInput{Response: types.ResponsePass, PassReason: "wrong asset class"})
	if err != nil {
		t.Fatalf("RecordBuyerResponse failed: %v", err)
	}
	if _, err := f.service.AuthorizeBuyer(ctx, r.ID, "broker-1", ""); !errors.Is(err, types.ErrInvalidState) {
		t.Errorf("authorized a passed buyer: %v", err)
	}
	if _, err := f.service.GateState(ctx, r.ID); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("gate state for passed buyer: %v", err)
	}
}

func TestSellerConfirmationFlow(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	recipientID := f.respond(t, "buyer-1")

	auth, err := f.service.AuthorizeBuyer(ctx, recipientID, "broker-1", "")
	if err != nil {
		t.Fatalf("AuthorizeBuyer failed: %v", err)
	}
	if auth.Status != types.AuthorizationAuthorizedPendingSeller {
		t.Fatalf("status = %s, want AUTHORIZED_PENDING_SELLER", auth.Status)
	}

	// NDA cannot start until the seller confirms.
	if _, err := f.service.MarkNDASent(ctx, recipientID); !errors.Is(err, types.ErrInvalidState) {
		t.Errorf("NDA sent before seller confirmation: %v", err)
	}

	confirmed, err := f.service.SellerConfirmAuthorization(ctx, recipientID, "seller-1")
	if err != nil {
		t.Fatalf("SellerConfirmAuthorization failed: %v", err)
	}
	if confirmed.Status != types.AuthorizationAuthorized {
		t.Errorf("status = %s, want AUTHORIZED", confirmed.Status)
	}
	if confirmed.SellerConfirmedBy != "seller-1" || confirmed.SellerConfirmedAt == nil {
		t.Error("seller confirmation stamp missing")
	}

	// A second confirm is invalid.
	if _, err := f.service.SellerConfirmAuthorization(ctx, recipientID, "seller-1"); !errors.Is(err, types.ErrInvalidState) {
		t.Errorf("double confirm accepted: %v", err)
	}
}

func TestSellerDeclineAuthorization(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	recipientID := f.respond(t, "buyer-1")

	if _, err := f.service.AuthorizeBuyer(ctx, recipientID, "broker-1", ""); err != nil {
		t.Fatalf("AuthorizeBuyer failed: %v", err)
	}
	declined, err := f.service.SellerDeclineAuthorization(ctx, recipientID, "seller-1", "competitor relationship")
	if err != nil {
		t.Fatalf("SellerDeclineAuthorization failed: %v", err)
	}
	if declined.Status != types.AuthorizationDeclined || declined.DeclineReason == "" {
		t.Errorf("declined = %s %q", declined.Status, declined.DeclineReason)
	}
}

func TestDeclineAndRevokeRequireReasons(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	recipientID := f.respond(t, "buyer-1")

	if _, err := f.service.DeclineBuyer(ctx, recipientID, "broker-1", ""); !errors.Is(err, types.ErrValidation) {
		t.Errorf("decline without reason accepted: %v", err)
	}

	declined, err := f.service.DeclineBuyer(ctx, recipientID, "broker-1", "not qualified")
	if err != nil {
		t.Fatalf("DeclineBuyer failed: %v", err)
	}
	if declined.Status != types.AuthorizationDeclined {
		t.Errorf("status = %s, want DECLINED", declined.Status)
	}

	// Revoke is only valid from AUTHORIZED.
	if _, err := f.service.RevokeBuyer(ctx, recipientID, "broker-1", "changed mind"); !errors.Is(err, types.ErrInvalidState) {
		t.Errorf("revoked a declined buyer: %v", err)
	}
}

func TestRevokeCutsDataRoomAccess(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	recipientID := f.respond(t, "buyer-1")

	if _, err := f.service.AuthorizeBuyer(ctx, recipientID, "broker-1", ""); err != nil {
		t.Fatalf("AuthorizeBuyer failed: %v", err)
	}
	if _, err := f.service.MarkNDASent(ctx, recipientID); err != nil {
		t.Fatalf("MarkNDASent failed: %v", err)
	}
	if _, err := f.service.MarkNDASigned(ctx, recipientID); err != nil {
		t.Fatalf("MarkNDASigned failed: %v", err)
	}

	revoked, err := f.service.RevokeBuyer(ctx, recipientID, "broker-1", "deal terms breached")
	if err != nil {
		t.Fatalf("RevokeBuyer failed: %v", err)
	}
	if revoked.Status != types.AuthorizationRevoked {
		t.Errorf("status = %s, want REVOKED", revoked.Status)
	}
	if revoked.DataRoomAccessGranted {
		t.Error("data room access survived revocation")
	}
}

func TestNDAStateMachine(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	recipientID := f.respond(t, "buyer-1")

	if _, err := f.service.AuthorizeBuyer(ctx, recipientID, "broker-1", ""); err != nil {
		t.Fatalf("AuthorizeBuyer failed: %v", err)
	}

	// Cannot sign before sending.
	if _, err := f.service.MarkNDASigned(ctx, recipientID); !errors.Is(err, types.ErrInvalidState) {
		t.Errorf("signed unsent NDA: %v", err)
	}

	if _, err := f.service.MarkNDASent(ctx, recipientID); err != nil {
		t.Fatalf("MarkNDASent failed: %v", err)
	}
	expired, err := f.service.MarkNDAExpired(ctx, recipientID)
	if err != nil {
		t.Fatalf("MarkNDAExpired failed: %v", err)
	}
	if expired.NDAStatus != types.NDAExpired {
		t.Errorf("nda status = %s, want EXPIRED", expired.NDAStatus)
	}

	// An expired NDA can be re-sent, then signed.
	if _, err := f.service.MarkNDASent(ctx, recipientID); err != nil {
		t.Fatalf("re-send after expiry failed: %v", err)
	}
	signed, err := f.service.MarkNDASigned(ctx, recipientID)
	if err != nil {
		t.Fatalf("MarkNDASigned failed: %v", err)
	}
	if !signed.DataRoomAccessGranted {
		t.Error("data room not unlocked on signature")
	}
}

func TestGateProgressAndAdvanceToDD(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	// Before anyone reaches the data room, the deal cannot advance.
	if err := f.service.AdvanceToDD(ctx, "deal-dist1", "broker-1"); !errors.Is(err, types.ErrInvalidState) {
		t.Errorf("advanced without data-room entrant: %v", err)
	}

	recipientID := f.respond(t, "buyer-1")
	if _, err := f.service.AuthorizeBuyer(ctx, recipientID, "broker-1", ""); err != nil {
		t.Fatalf("AuthorizeBuyer failed: %v", err)
	}
	if _, err := f.service.MarkNDASent(ctx, recipientID); err != nil {
		t.Fatalf("MarkNDASent failed: %v", err)
	}
	if _, err := f.service.MarkNDASigned(ctx, recipientID); err != nil {
		t.Fatalf("MarkNDASigned failed: %v", err)
	}

	progress, err := f.service.Progress(ctx, "deal-dist1")
	if err != nil {
		t.Fatalf("Progress failed: %v", err)
	}
	want := types.GateProgress{
		Distributed: 2, Responded: 1, Interested: 1,
		Authorized: 1, NDASigned: 1, InDataRoom: 1,
		CanAdvanceToDD: true,
	}
	if *progress != want {
		t.Errorf("progress = %+v, want %+v", *progress, want)
	}

	if err := f.service.AdvanceToDD(ctx, "deal-dist1", "broker-1"); err != nil {
		t.Fatalf("AdvanceToDD failed: %v", err)
	}
	deal, _ := f.store.GetDeal(ctx, "deal-dist1")
	if deal.Status != types.DealActiveDD {
		t.Errorf("deal status = %s, want ACTIVE_DD", deal.Status)
	}
}

func TestRecordView(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	r := f.recipient(t, "buyer-1")

	if err := f.service.RecordView(ctx, r.ID, 340, 18); err != nil {
		t.Fatalf("RecordView failed: %v", err)
	}
	viewed := f.recipient(t, "buyer-1")
	if viewed.ViewedAt == nil || viewed.ViewDurationSecs != 340 || viewed.PagesViewed != 18 {
		t.Errorf("view not recorded: %+v", viewed)
	}
}

func TestAnonymityDisplay(t *testing.T) {
	dist := &types.Distribution{IsAnonymousSeller: true, AnonymousLabel: "Institutional Owner"}
	r := &types.DistributionRecipient{}
	if got := r.DisplayName(dist, "Acme Holdings"); got != "Institutional Owner" {
		t.Errorf("DisplayName = %q", got)
	}

	r.IsAnonymous = true
	r.AnonymousLabel = "Project Falcon"
	if got := r.DisplayName(dist, "Acme Holdings"); got != "Project Falcon" {
		t.Errorf("per-recipient label not preferred: %q", got)
	}

	plain := &types.Distribution{}
	open := &types.DistributionRecipient{}
	if got := open.DisplayName(plain, "Acme Holdings"); got != "Acme Holdings" {
		t.Errorf("unredacted name = %q", got)
	}
}
