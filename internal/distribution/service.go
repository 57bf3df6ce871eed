// Package distribution drives the distribution lifecycle and the buyer gate:
// buyer response, broker authorization, NDA signature, data-room access.
//
// A recipient who has responded (non-pass) but has never been reviewed by a
// broker has no persisted authorization record; the gate reports that as an
// explicit Unreviewed state rather than a sentinel row. The record is created
// by the first broker action (authorize or decline).
package distribution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dealflowhq/dealflow/internal/idgen"
	"github.com/dealflowhq/dealflow/internal/notification"
	"github.com/dealflowhq/dealflow/internal/storage"
	"github.com/dealflowhq/dealflow/internal/types"
)

// Service coordinates distribution and buyer-gate transitions against the
// store.
type Service struct {
	store  storage.Storage
	notify notification.Notifier
	now    func() time.Time
}

// NewService creates a distribution service. notify may be nil.
func NewService(store storage.Storage, notify notification.Notifier) *Service {
	if notify == nil {
		notify = notification.NopNotifier{}
	}
	return &Service{store: store, notify: notify, now: time.Now}
}

// RecipientInput describes one buyer to include in a distribution.
type RecipientInput struct {
	BuyerID        string
	MatchType      types.MatchType
	MatchScore     float64
	IsAnonymous    bool
	AnonymousLabel string
}

// CreateDistributionInput carries the distribution parameters.
type CreateDistributionInput struct {
	DealID            string
	OMVersionID       string
	ListingType       types.ListingType
	IsAnonymousSeller bool
	AnonymousLabel    string
	CreatedBy         string
	Recipients        []RecipientInput
}

// CreateDistribution creates a PENDING distribution of a marketing-ready
// deal. The OM version must be fully approved, the deal must have reached
// OM_APPROVED_FOR_MARKETING, and the creating broker must hold the
// can_distribute capability.
func (s *Service) CreateDistribution(ctx context.Context, in CreateDistributionInput) (*types.Distribution, error) {
	if !in.ListingType.IsValid() {
		return nil, fmt.Errorf("%w: invalid listing type %q", types.ErrValidation, in.ListingType)
	}
	if len(in.Recipients) == 0 {
		return nil, fmt.Errorf("%w: distribution requires at least one recipient", types.ErrValidation)
	}
	for _, r := range in.Recipients {
		if r.BuyerID == "" {
			return nil, fmt.Errorf("%w: recipient buyer_id is required", types.ErrValidation)
		}
		if !r.MatchType.IsValid() {
			return nil, fmt.Errorf("%w: invalid match type %q", types.ErrValidation, r.MatchType)
		}
	}

	now := s.now().UTC()
	dist := &types.Distribution{
		ID:                idgen.New(idgen.PrefixDistribution, now, 0, in.DealID, in.OMVersionID),
		DealID:            in.DealID,
		OMVersionID:       in.OMVersionID,
		ListingType:       in.ListingType,
		Status:            types.DistributionPending,
		IsAnonymousSeller: in.IsAnonymousSeller,
		AnonymousLabel:    in.AnonymousLabel,
		CreatedBy:         in.CreatedBy,
		CreatedAt:         now,
	}

	err := s.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		deal, err := tx.GetDeal(ctx, in.DealID)
		if err != nil {
			return err
		}
		if err := requireCapability(deal, in.CreatedBy, func(b *types.DealBroker) bool { return b.CanDistribute }); err != nil {
			return err
		}
		if deal.Status.Before(types.DealOMApprovedForMarketing) {
			return types.NewInvalidState("deal", "distribute", string(deal.Status), string(types.DealOMApprovedForMarketing))
		}

		version, err := tx.GetOMVersion(ctx, in.OMVersionID)
		if err != nil {
			return err
		}
		if version.DealID != in.DealID {
			return fmt.Errorf("%w: OM version %s does not belong to deal %s", types.ErrValidation, in.OMVersionID, in.DealID)
		}
		if version.Status != types.OMSellerApproved {
			return types.NewInvalidState("OM version", "distribute", string(version.Status), string(types.OMSellerApproved))
		}

		if err := tx.CreateDistribution(ctx, dist); err != nil {
			return err
		}
		for i, r := range in.Recipients {
			recipient := &types.DistributionRecipient{
				ID:             idgen.New(idgen.PrefixRecipient, now, i, dist.ID, r.BuyerID),
				DistributionID: dist.ID,
				BuyerID:        r.BuyerID,
				MatchType:      r.MatchType,
				MatchScore:     r.MatchScore,
				IsAnonymous:    r.IsAnonymous,
				AnonymousLabel: r.AnonymousLabel,
			}
			if err := tx.AddRecipient(ctx, recipient); err != nil {
				return err
			}
			dist.Recipients = append(dist.Recipients, recipient)
		}

		comment := fmt.Sprintf("%d recipients, %s listing", len(in.Recipients), in.ListingType)
		return tx.AddEvent(ctx, dist.ID, types.EventDistributionCreated, in.CreatedBy, nil, nil, &comment)
	})
	if err != nil {
		return nil, err
	}
	return dist, nil
}

// Activate pushes a PENDING distribution live: recipients get their push
// timestamp and the deal advances to DISTRIBUTED.
func (s *Service) Activate(ctx context.Context, distributionID, actor string) error {
	err := s.transition(ctx, distributionID, actor, types.DistributionPending, types.DistributionActive, func(tx storage.Transaction, dist *types.Distribution) error {
		if err := tx.MarkRecipientsPushed(ctx, distributionID, s.now().UTC()); err != nil {
			return err
		}
		deal, err := tx.GetDeal(ctx, dist.DealID)
		if err != nil {
			return err
		}
		if deal.Status.Before(types.DealDistributed) {
			return tx.SetDealStatus(ctx, deal.ID, deal.Status, types.DealDistributed)
		}
		return nil
	})
	if err != nil {
		return err
	}

	dist, err := s.store.GetDistribution(ctx, distributionID)
	if err == nil {
		s.notify.Dispatch(ctx, notification.Event{
			DealID:   dist.DealID,
			EntityID: dist.ID,
			Kind:     notification.KindDistributionLive,
			Message:  fmt.Sprintf("distribution live to %d buyers", len(dist.Recipients)),
		})
	}
	return nil
}

// Pause suspends an ACTIVE distribution.
func (s *Service) Pause(ctx context.Context, distributionID, actor string) error {
	return s.transition(ctx, distributionID, actor, types.DistributionActive, types.DistributionPaused, nil)
}

// Resume reactivates a PAUSED distribution.
func (s *Service) Resume(ctx context.Context, distributionID, actor string) error {
	return s.transition(ctx, distributionID, actor, types.DistributionPaused, types.DistributionActive, nil)
}

// Close ends a distribution. Valid from ACTIVE or PAUSED.
func (s *Service) Close(ctx context.Context, distributionID, actor string) error {
	err := s.transition(ctx, distributionID, actor, types.DistributionActive, types.DistributionClosed, nil)
	if errors.Is(err, types.ErrInvalidState) {
		return s.transition(ctx, distributionID, actor, types.DistributionPaused, types.DistributionClosed, nil)
	}
	return err
}

// transition performs a validated status change plus an optional extra step
// in one transaction.
func (s *Service) transition(ctx context.Context, distributionID, actor string, from, to types.DistributionStatus, extra func(storage.Transaction, *types.Distribution) error) error {
	dist, err := s.store.GetDistribution(ctx, distributionID)
	if err != nil {
		return err
	}
	if dist.Status != from {
		return types.NewInvalidState("distribution", "set status "+string(to), string(dist.Status), string(from))
	}

	return s.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		if err := tx.SetDistributionStatus(ctx, distributionID, from, to); err != nil {
			return err
		}
		if extra != nil {
			if err := extra(tx, dist); err != nil {
				return err
			}
		}
		oldStatus, newStatus := string(from), string(to)
		return tx.AddEvent(ctx, distributionID, types.EventDistributionStatusChanged, actor, &oldStatus, &newStatus, nil)
	})
}

// RecordView stamps engagement metrics on a recipient.
func (s *Service) RecordView(ctx context.Context, recipientID string, durationSecs, pagesViewed int) error {
	now := s.now().UTC()
	return s.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		if err := tx.RecordRecipientView(ctx, recipientID, now, durationSecs, pagesViewed); err != nil {
			return err
		}
		comment := fmt.Sprintf("%ds, %d pages", durationSecs, pagesViewed)
		return tx.AddEvent(ctx, recipientID, types.EventRecipientViewed, "", nil, nil, &comment)
	})
}

// ResponseInput carries one buyer response submission.
type ResponseInput struct {
	Response     types.ResponseKind
	PriceMin     *float64
	PriceMax     *float64
	Conditions   string
	Questions    string
	PassReason   string
	Notes        string
	Confidential bool
}

// RecordBuyerResponse records a buyer's answer for a recipient. One live
// response per recipient: a second submission fails with AlreadyResponded
// (revisions go through SupersedeResponse). A non-pass response puts the
// recipient at the gate in the Unreviewed state.
func (s *Service) RecordBuyerResponse(ctx context.Context, recipientID string, in ResponseInput) (*types.BuyerResponse, types.GateState, error) {
	var resp *types.BuyerResponse
	err := s.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		var err error
		resp, err = s.insertResponse(ctx, tx, recipientID, in)
		return err
	})
	if err != nil {
		return nil, types.GateState{}, err
	}

	s.notify.Dispatch(ctx, notification.Event{
		EntityID: recipientID,
		Kind:     notification.KindBuyerResponse,
		Message:  fmt.Sprintf("buyer %s responded %s", resp.BuyerID, resp.Response),
	})
	return resp, types.Unreviewed(), nil
}

// SupersedeResponse retires the recipient's live response and records a
// revised one in the same transaction. The old record is retained with its
// supersede timestamp; history is never overwritten.
func (s *Service) SupersedeResponse(ctx context.Context, recipientID string, in ResponseInput) (*types.BuyerResponse, error) {
	var resp *types.BuyerResponse
	err := s.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		current, err := tx.GetActiveResponse(ctx, recipientID)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		if err := tx.SupersedeResponse(ctx, current.ID, now); err != nil {
			return err
		}
		if err := tx.AddEvent(ctx, recipientID, types.EventResponseSuperseded, current.BuyerID, (*string)(&current.Response), (*string)(&in.Response), nil); err != nil {
			return err
		}
		resp, err = s.insertResponse(ctx, tx, recipientID, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *Service) insertResponse(ctx context.Context, tx storage.Transaction, recipientID string, in ResponseInput) (*types.BuyerResponse, error) {
	recipient, err := tx.GetRecipient(ctx, recipientID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	resp := &types.BuyerResponse{
		ID:           idgen.New(idgen.PrefixResponse, now, 0, recipientID),
		RecipientID:  recipientID,
		BuyerID:      recipient.BuyerID,
		Response:     in.Response,
		PriceMin:     in.PriceMin,
		PriceMax:     in.PriceMax,
		Conditions:   in.Conditions,
		Questions:    in.Questions,
		PassReason:   in.PassReason,
		Notes:        in.Notes,
		Confidential: in.Confidential,
		CreatedAt:    now,
	}
	if err := tx.CreateBuyerResponse(ctx, resp); err != nil {
		return nil, err
	}
	newValue := string(in.Response)
	if err := tx.AddEvent(ctx, recipientID, types.EventResponseRecorded, recipient.BuyerID, nil, &newValue, nil); err != nil {
		return nil, err
	}
	return resp, nil
}

// GateState reports the recipient's position at the buyer gate. A recipient
// whose live response is non-pass but who has no authorization record is
// Unreviewed; once a broker has acted, the persisted record is returned.
// Fails with ErrNotFound when the recipient has not responded (or passed).
func (s *Service) GateState(ctx context.Context, recipientID string) (types.GateState, error) {
	auth, err := s.store.GetAuthorizationByRecipient(ctx, recipientID)
	if err == nil {
		return types.Reviewed(auth), nil
	}
	if !errors.Is(err, types.ErrNotFound) {
		return types.GateState{}, err
	}

	resp, err := s.store.GetActiveResponse(ctx, recipientID)
	if err != nil {
		return types.GateState{}, err
	}
	if resp.Response == types.ResponsePass {
		return types.GateState{}, fmt.Errorf("recipient %s passed: %w", recipientID, types.ErrNotFound)
	}
	return types.Unreviewed(), nil
}

// AuthorizeBuyer grants a responding buyer data-room access. The actor must
// hold can_authorize, and the recipient's live response must be non-pass.
// When the seller requires buyer approval, the authorization parks at
// AUTHORIZED_PENDING_SELLER until the seller confirms.
func (s *Service) AuthorizeBuyer(ctx context.Context, recipientID, brokerID string, level types.AccessLevel) (*types.BuyerAuthorization, error) {
	if level == "" {
		level = types.AccessStandard
	}
	if !level.IsValid() {
		return nil, fmt.Errorf("%w: invalid access level %q", types.ErrValidation, level)
	}

	deal, err := s.dealForRecipient(ctx, recipientID)
	if err != nil {
		return nil, err
	}
	if err := requireCapability(deal, brokerID, func(b *types.DealBroker) bool { return b.CanAuthorize }); err != nil {
		return nil, err
	}

	var auth *types.BuyerAuthorization
	var pendingSeller bool
	err = s.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		resp, err := tx.GetActiveResponse(ctx, recipientID)
		if err != nil {
			if errors.Is(err, types.ErrNotFound) {
				return types.NewInvalidState("buyer gate", "authorize", "no response", "a non-pass response")
			}
			return err
		}
		if resp.Response == types.ResponsePass {
			return types.NewInvalidState("buyer gate", "authorize", string(types.ResponsePass),
				string(types.ResponseInterested), string(types.ResponseInterestedWithConditions))
		}

		now := s.now().UTC()
		status := types.AuthorizationAuthorized
		if deal.SellerRequiresBuyerApproval {
			status = types.AuthorizationAuthorizedPendingSeller
			pendingSeller = true
		}

		auth, err = tx.GetAuthorizationByRecipient(ctx, recipientID)
		switch {
		case errors.Is(err, types.ErrNotFound):
			auth = &types.BuyerAuthorization{
				ID:           idgen.New(idgen.PrefixAuthorization, now, 0, recipientID),
				RecipientID:  recipientID,
				Status:       status,
				AccessLevel:  level,
				AuthorizedBy: brokerID,
				AuthorizedAt: &now,
			}
			if err := tx.CreateAuthorization(ctx, auth); err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			if auth.Status != types.AuthorizationPending {
				return types.NewInvalidState("buyer authorization", "authorize", string(auth.Status), string(types.AuthorizationPending))
			}
			auth.Status = status
			auth.AccessLevel = level
			auth.AuthorizedBy = brokerID
			auth.AuthorizedAt = &now
			if err := tx.UpdateAuthorization(ctx, auth); err != nil {
				return err
			}
		}

		newStatus := string(status)
		return tx.AddEvent(ctx, recipientID, types.EventBuyerAuthorized, brokerID, nil, &newStatus, nil)
	})
	if err != nil {
		return nil, err
	}

	kind := notification.KindBuyerAuthorized
	msg := fmt.Sprintf("buyer authorized with %s access", auth.AccessLevel)
	if pendingSeller {
		kind = notification.KindSellerConfirmWait
		msg = "buyer authorization awaiting seller confirmation"
	}
	s.notify.Dispatch(ctx, notification.Event{EntityID: recipientID, Kind: kind, Message: msg})
	return auth, nil
}

// SellerConfirmAuthorization completes a broker authorization that was
// parked pending seller approval.
func (s *Service) SellerConfirmAuthorization(ctx context.Context, recipientID, sellerID string) (*types.BuyerAuthorization, error) {
	auth, err := s.updateGate(ctx, recipientID, types.EventSellerConfirmed, sellerID, func(auth *types.BuyerAuthorization) error {
		if auth.Status != types.AuthorizationAuthorizedPendingSeller {
			return types.NewInvalidState("buyer authorization", "seller confirm", string(auth.Status), string(types.AuthorizationAuthorizedPendingSeller))
		}
		now := s.now().UTC()
		auth.Status = types.AuthorizationAuthorized
		auth.SellerConfirmedBy = sellerID
		auth.SellerConfirmedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify.Dispatch(ctx, notification.Event{
		EntityID: recipientID,
		Kind:     notification.KindBuyerAuthorized,
		Message:  "seller confirmed buyer authorization",
	})
	return auth, nil
}

// SellerDeclineAuthorization rejects a pending-seller authorization with a
// mandatory reason.
func (s *Service) SellerDeclineAuthorization(ctx context.Context, recipientID, sellerID, reason string) (*types.BuyerAuthorization, error) {
	if reason == "" {
		return nil, fmt.Errorf("%w: decline requires a reason", types.ErrValidation)
	}
	return s.updateGate(ctx, recipientID, types.EventBuyerDeclined, sellerID, func(auth *types.BuyerAuthorization) error {
		if auth.Status != types.AuthorizationAuthorizedPendingSeller {
			return types.NewInvalidState("buyer authorization", "seller decline", string(auth.Status), string(types.AuthorizationAuthorizedPendingSeller))
		}
		auth.Status = types.AuthorizationDeclined
		auth.DeclineReason = reason
		return nil
	})
}

// DeclineBuyer records a broker decline with a mandatory reason. Valid for
// an unreviewed recipient (creating the record) or a pending authorization;
// an AUTHORIZED buyer must be revoked instead.
func (s *Service) DeclineBuyer(ctx context.Context, recipientID, brokerID, reason string) (*types.BuyerAuthorization, error) {
	if reason == "" {
		return nil, fmt.Errorf("%w: decline requires a reason", types.ErrValidation)
	}

	deal, err := s.dealForRecipient(ctx, recipientID)
	if err != nil {
		return nil, err
	}
	if err := requireCapability(deal, brokerID, func(b *types.DealBroker) bool { return b.CanAuthorize }); err != nil {
		return nil, err
	}

	var auth *types.BuyerAuthorization
	err = s.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		now := s.now().UTC()
		var err error
		auth, err = tx.GetAuthorizationByRecipient(ctx, recipientID)
		switch {
		case errors.Is(err, types.ErrNotFound):
			if _, err := tx.GetActiveResponse(ctx, recipientID); err != nil {
				return err
			}
			auth = &types.BuyerAuthorization{
				ID:            idgen.New(idgen.PrefixAuthorization, now, 0, recipientID),
				RecipientID:   recipientID,
				Status:        types.AuthorizationDeclined,
				DeclineReason: reason,
			}
			if err := tx.CreateAuthorization(ctx, auth); err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			if auth.Status != types.AuthorizationPending && auth.Status != types.AuthorizationAuthorizedPendingSeller {
				return types.NewInvalidState("buyer authorization", "decline", string(auth.Status),
					string(types.AuthorizationPending), string(types.AuthorizationAuthorizedPendingSeller))
			}
			auth.Status = types.AuthorizationDeclined
			auth.DeclineReason = reason
			if err := tx.UpdateAuthorization(ctx, auth); err != nil {
				return err
			}
		}

		return tx.AddEvent(ctx, recipientID, types.EventBuyerDeclined, brokerID, nil, nil, &reason)
	})
	if err != nil {
		return nil, err
	}

	s.notify.Dispatch(ctx, notification.Event{
		EntityID: recipientID,
		Kind:     notification.KindBuyerDeclined,
		Message:  "buyer declined: " + reason,
	})
	return auth, nil
}

// RevokeBuyer withdraws an AUTHORIZED buyer's access with a mandatory
// reason. Data-room access is cut in the same transition.
func (s *Service) RevokeBuyer(ctx context.Context, recipientID, brokerID, reason string) (*types.BuyerAuthorization, error) {
	if reason == "" {
		return nil, fmt.Errorf("%w: revoke requires a reason", types.ErrValidation)
	}
	return s.updateGate(ctx, recipientID, types.EventBuyerRevoked, brokerID, func(auth *types.BuyerAuthorization) error {
		if auth.Status != types.AuthorizationAuthorized {
			return types.NewInvalidState("buyer authorization", "revoke", string(auth.Status), string(types.AuthorizationAuthorized))
		}
		auth.Status = types.AuthorizationRevoked
		auth.RevokeReason = reason
		auth.DataRoomAccessGranted = false
		return nil
	})
}

// MarkNDASent records the NDA going out, valid once the buyer is AUTHORIZED.
// An EXPIRED NDA can be re-sent.
func (s *Service) MarkNDASent(ctx context.Context, recipientID string) (*types.BuyerAuthorization, error) {
	return s.updateGate(ctx, recipientID, types.EventNDASent, "", func(auth *types.BuyerAuthorization) error {
		if auth.Status != types.AuthorizationAuthorized {
			return types.NewInvalidState("buyer authorization", "send NDA", string(auth.Status), string(types.AuthorizationAuthorized))
		}
		if auth.NDAStatus != types.NDANotSent && auth.NDAStatus != types.NDAExpired {
			return types.NewInvalidState("NDA", "send", string(auth.NDAStatus), string(types.NDANotSent), string(types.NDAExpired))
		}
		now := s.now().UTC()
		auth.NDAStatus = types.NDASent
		auth.NDASentAt = &now
		return nil
	})
}

// MarkNDASigned records the signature callback and unlocks data-room access.
func (s *Service) MarkNDASigned(ctx context.Context, recipientID string) (*types.BuyerAuthorization, error) {
	auth, err := s.updateGate(ctx, recipientID, types.EventNDASigned, "", func(auth *types.BuyerAuthorization) error {
		if auth.Status != types.AuthorizationAuthorized {
			return types.NewInvalidState("buyer authorization", "sign NDA", string(auth.Status), string(types.AuthorizationAuthorized))
		}
		if auth.NDAStatus != types.NDASent {
			return types.NewInvalidState("NDA", "sign", string(auth.NDAStatus), string(types.NDASent))
		}
		now := s.now().UTC()
		auth.NDAStatus = types.NDASigned
		auth.NDASignedAt = &now
		auth.DataRoomAccessGranted = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify.Dispatch(ctx, notification.Event{
		EntityID: recipientID,
		Kind:     notification.KindNDASigned,
		Message:  "NDA signed; data room unlocked",
	})
	return auth, nil
}

// MarkNDAExpired records an expiry callback on a sent NDA.
func (s *Service) MarkNDAExpired(ctx context.Context, recipientID string) (*types.BuyerAuthorization, error) {
	return s.updateGate(ctx, recipientID, types.EventNDAExpired, "", func(auth *types.BuyerAuthorization) error {
		if auth.NDAStatus != types.NDASent {
			return types.NewInvalidState("NDA", "expire", string(auth.NDAStatus), string(types.NDASent))
		}
		auth.NDAStatus = types.NDAExpired
		return nil
	})
}

// updateGate loads, mutates, and CAS-writes an authorization record, adding
// the audit event in the same transaction.
func (s *Service) updateGate(ctx context.Context, recipientID string, eventType types.EventType, actor string, mutate func(*types.BuyerAuthorization) error) (*types.BuyerAuthorization, error) {
	var auth *types.BuyerAuthorization
	err := s.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		var err error
		auth, err = tx.GetAuthorizationByRecipient(ctx, recipientID)
		if err != nil {
			return err
		}
		oldStatus := string(auth.Status)
		if err := mutate(auth); err != nil {
			return err
		}
		if err := tx.UpdateAuthorization(ctx, auth); err != nil {
			return err
		}
		newStatus := string(auth.Status)
		return tx.AddEvent(ctx, recipientID, eventType, actor, &oldStatus, &newStatus, nil)
	})
	if err != nil {
		return nil, err
	}
	return auth, nil
}

// dealForRecipient resolves recipient to distribution to deal. Runs before
// the transaction opens: capability checks read committed state only.
func (s *Service) dealForRecipient(ctx context.Context, recipientID string) (*types.DealDraft, error) {
	recipient, err := s.store.GetRecipient(ctx, recipientID)
	if err != nil {
		return nil, err
	}
	dist, err := s.store.GetDistribution(ctx, recipient.DistributionID)
	if err != nil {
		return nil, err
	}
	return s.store.GetDeal(ctx, dist.DealID)
}

// Progress returns the buyer-gate funnel for a deal.
func (s *Service) Progress(ctx context.Context, dealID string) (*types.GateProgress, error) {
	return s.store.GateProgress(ctx, dealID)
}

// AdvanceToDD promotes a DISTRIBUTED deal to ACTIVE_DD. Gated on the funnel:
// at least one recipient must have reached the data room.
func (s *Service) AdvanceToDD(ctx context.Context, dealID, actor string) error {
	progress, err := s.store.GateProgress(ctx, dealID)
	if err != nil {
		return err
	}
	if !progress.CanAdvanceToDD {
		return types.NewInvalidState("deal", "advance to due diligence",
			fmt.Sprintf("%d buyers in data room", progress.InDataRoom), "at least one buyer in data room")
	}

	return s.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		deal, err := tx.GetDeal(ctx, dealID)
		if err != nil {
			return err
		}
		if deal.Status != types.DealDistributed {
			return types.NewInvalidState("deal", "advance to due diligence", string(deal.Status), string(types.DealDistributed))
		}
		return tx.SetDealStatus(ctx, dealID, types.DealDistributed, types.DealActiveDD)
	})
}

// requireCapability checks the actor's capability flag on the deal. A broker
// not attached to the deal fails the same way as one lacking the flag.
func requireCapability(deal *types.DealDraft, brokerID string, has func(*types.DealBroker) bool) error {
	for _, b := range deal.Brokers {
		if b.BrokerID == brokerID {
			if has(b) {
				return nil
			}
			break
		}
	}
	return fmt.Errorf("%w: broker %s lacks the required capability on deal %s", types.ErrValidation, brokerID, deal.ID)
}
