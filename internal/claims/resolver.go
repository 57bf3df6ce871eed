// Package claims implements claim intake, verification, and conflict
// resolution for a deal.
//
// Extraction confidence is advisory only: it informs which claim a UI
// defaults to, but never auto-resolves a conflict. A field is not usable
// downstream (OM generation) until a human confirms a claim or resolves the
// conflict, which is what keeps erroneous source data from propagating
// silently into a marketing document.
package claims

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/dealflowhq/dealflow/internal/idgen"
	"github.com/dealflowhq/dealflow/internal/storage"
	"github.com/dealflowhq/dealflow/internal/types"
)

// DefaultVarianceThreshold is the relative disagreement above which two
// numeric claims for the same field open a conflict.
const DefaultVarianceThreshold = 0.05

// Resolver coordinates claim writes against the store.
type Resolver struct {
	store storage.Storage

	// thresholds maps field name to a per-field variance threshold;
	// fields not present use defaultThreshold.
	thresholds       map[string]float64
	defaultThreshold float64

	now func() time.Time
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithFieldThreshold sets a per-field variance threshold.
func WithFieldThreshold(field string, threshold float64) Option {
	return func(r *Resolver) { r.thresholds[field] = threshold }
}

// WithDefaultThreshold overrides the default variance threshold.
func WithDefaultThreshold(threshold float64) Option {
	return func(r *Resolver) { r.defaultThreshold = threshold }
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// NewResolver creates a Resolver backed by store.
func NewResolver(store storage.Storage, opts ...Option) *Resolver {
	r := &Resolver{
		store:            store,
		thresholds:       make(map[string]float64),
		defaultThreshold: DefaultVarianceThreshold,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SubmitClaimInput is the intake surface fed by the extraction collaborator.
type SubmitClaimInput struct {
	DealID           string
	Field            string
	Value            string
	DisplayValue     string
	SourceDocumentID string
	SourcePage       int
	SourceSnippet    string
	ExtractionMethod string
	Confidence       float64
}

// SubmitClaim stores a new claim. If an existing live claim for the same
// (deal, field) disagrees beyond the field's variance threshold, the new
// claim is grouped into a conflict with it (creating the conflict if
// needed); otherwise the claim stands alone.
func (r *Resolver) SubmitClaim(ctx context.Context, in SubmitClaimInput) (*types.Claim, error) {
	now := r.now().UTC()
	claim := &types.Claim{
		ID:                 idgen.New(idgen.PrefixClaim, now, 0, in.DealID, in.Field, in.Value),
		DealID:             in.DealID,
		Field:              in.Field,
		Value:              in.Value,
		DisplayValue:       in.DisplayValue,
		SourceDocumentID:   in.SourceDocumentID,
		SourcePage:         in.SourcePage,
		SourceSnippet:      in.SourceSnippet,
		ExtractionMethod:   in.ExtractionMethod,
		Confidence:         in.Confidence,
		VerificationStatus: types.VerificationUnverified,
		CreatedAt:          now,
	}
	if n, err := strconv.ParseFloat(in.Value, 64); err == nil {
		claim.NumericValue = &n
	}
	if err := claim.Validate(); err != nil {
		return nil, err
	}

	err := r.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		existing, err := tx.ListClaims(ctx, in.DealID, in.Field)
		if err != nil {
			return err
		}

		disputed := r.findDisputed(claim, existing)
		if err := tx.CreateClaim(ctx, claim); err != nil {
			return err
		}
		if err := tx.AddEvent(ctx, claim.ID, types.EventClaimSubmitted, "", nil, &claim.Value, nil); err != nil {
			return err
		}
		if disputed == nil {
			return nil
		}

		// The disputed claim keeps its link to a resolved conflict so that
		// record retains its member claims; only an open conflict absorbs the
		// newcomer directly.
		members := []string{claim.ID}
		if disputed.ConflictGroupID != nil {
			conflict, err := tx.GetConflict(ctx, *disputed.ConflictGroupID)
			if err != nil {
				return err
			}
			if !conflict.IsResolved() {
				claim.ConflictGroupID = disputed.ConflictGroupID
				return tx.SetClaimConflictGroup(ctx, claim.ID, conflict.ID)
			}
		} else {
			members = append(members, disputed.ID)
		}

		conflict := &types.Conflict{
			ID:        idgen.New(idgen.PrefixConflict, now, 0, in.DealID, in.Field),
			DealID:    in.DealID,
			Field:     in.Field,
			Status:    types.ConflictOpen,
			Variance:  variance(disputed, claim),
			CreatedAt: now,
		}
		if err := tx.CreateConflict(ctx, conflict); err != nil {
			return err
		}
		for _, id := range members {
			if err := tx.SetClaimConflictGroup(ctx, id, conflict.ID); err != nil {
				return err
			}
		}
		claim.ConflictGroupID = &conflict.ID
		comment := fmt.Sprintf("claims %s and %s disagree on %s", disputed.ID, claim.ID, in.Field)
		return tx.AddEvent(ctx, conflict.ID, types.EventConflictOpened, "", nil, nil, &comment)
	})
	if err != nil {
		return nil, err
	}
	return claim, nil
}

// findDisputed returns the most recent live claim whose value disagrees with
// the new claim beyond the field threshold, or nil.
func (r *Resolver) findDisputed(claim *types.Claim, existing []*types.Claim) *types.Claim {
	threshold := r.defaultThreshold
	if t, ok := r.thresholds[claim.Field]; ok {
		threshold = t
	}

	for _, other := range existing { // Newest first
		if other.VerificationStatus == types.VerificationRejected || other.SupersededBy != nil {
			continue
		}
		if variance(other, claim) > threshold {
			return other
		}
	}
	return nil
}

// variance computes the relative disagreement between two claims. Numeric
// pairs use |a-b|/|a| against the existing claim; non-numeric pairs are in
// full disagreement (1) when unequal and agreement (0) when equal.
func variance(existing, incoming *types.Claim) float64 {
	if existing.NumericValue != nil && incoming.NumericValue != nil {
		a, b := *existing.NumericValue, *incoming.NumericValue
		if a == 0 {
			if b == 0 {
				return 0
			}
			return 1
		}
		return math.Abs(a-b) / math.Abs(a)
	}
	if existing.EffectiveValue() == incoming.Value {
		return 0
	}
	return 1
}

// VerifyAction selects confirm or reject.
type VerifyAction string

// Verify actions
const (
	ActionConfirm VerifyAction = "confirm"
	ActionReject  VerifyAction = "reject"
)

// VerifyInput carries the optional fields of a verification.
type VerifyInput struct {
	CorrectedValue  *string // Confirm: use this value in place of the extracted one
	RejectionReason string  // Reject: required
}

// VerifyClaim applies a human verification to an unverified claim. Fails
// with an invalid-state error while the claim's conflict group is still
// open: conflicts must be resolved before either sibling claim can be
// independently verified.
func (r *Resolver) VerifyClaim(ctx context.Context, claimID string, action VerifyAction, actor string, in VerifyInput) (*types.Claim, error) {
	if action != ActionConfirm && action != ActionReject {
		return nil, fmt.Errorf("%w: unknown verify action %q", types.ErrValidation, action)
	}
	if action == ActionReject && in.RejectionReason == "" {
		return nil, fmt.Errorf("%w: rejection requires a reason", types.ErrValidation)
	}

	var claim *types.Claim
	err := r.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		var err error
		claim, err = tx.GetClaim(ctx, claimID)
		if err != nil {
			return err
		}
		if claim.VerificationStatus != types.VerificationUnverified {
			return types.NewInvalidState("claim", "verify", string(claim.VerificationStatus), string(types.VerificationUnverified))
		}
		if claim.ConflictGroupID != nil {
			conflict, err := tx.GetConflict(ctx, *claim.ConflictGroupID)
			if err != nil {
				return err
			}
			if !conflict.IsResolved() {
				return types.NewInvalidState("claim", "verify", "in open conflict "+conflict.ID, "resolved conflict")
			}
		}

		now := r.now().UTC()
		claim.VerifiedBy = actor
		claim.VerifiedAt = &now
		eventType := types.EventClaimConfirmed
		if action == ActionConfirm {
			claim.VerificationStatus = types.VerificationBrokerConfirmed
			claim.CorrectedValue = in.CorrectedValue
		} else {
			claim.VerificationStatus = types.VerificationRejected
			claim.RejectionReason = in.RejectionReason
			eventType = types.EventClaimRejected
		}
		if err := tx.SetClaimVerification(ctx, claim); err != nil {
			return err
		}

		newValue := claim.EffectiveValue()
		return tx.AddEvent(ctx, claim.ID, eventType, actor, &claim.Value, &newValue, nil)
	})
	if err != nil {
		return nil, err
	}
	return claim, nil
}

// ResolveConflict applies a resolution to an open conflict. Resolution is
// terminal: a second attempt fails with ErrAlreadyResolved, and a resolve
// racing another resolver fails with a stale-state error rather than
// double-applying.
func (r *Resolver) ResolveConflict(ctx context.Context, conflictID string, resolution types.Resolution, actor string) (*types.Conflict, error) {
	var conflict *types.Conflict
	err := r.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		var err error
		conflict, err = tx.GetConflict(ctx, conflictID)
		if err != nil {
			return err
		}
		if conflict.IsResolved() {
			return fmt.Errorf("conflict %s: %w", conflictID, types.ErrAlreadyResolved)
		}
		if len(conflict.Claims) < 2 {
			return fmt.Errorf("%w: conflict %s has %d claims", types.ErrValidation, conflictID, len(conflict.Claims))
		}

		now := r.now().UTC()
		var resolvedValue string
		var resolvedClaimID *string
		rejected := conflict.Claims

		switch {
		case resolution.IsAverage():
			mean, err := meanOfClaims(conflict.Claims)
			if err != nil {
				return err
			}
			resolvedValue = strconv.FormatFloat(mean, 'f', -1, 64)
			conflict.ResolutionMethod = types.ResolutionAveraged

		default:
			if value, ok := resolution.IsOverride(); ok {
				if value == "" {
					return fmt.Errorf("%w: manual override requires a value", types.ErrValidation)
				}
				resolvedValue = value
				conflict.ResolutionMethod = types.ResolutionManualOverride
				break
			}

			chosenID, _ := resolution.IsChoose()
			idx := -1
			for i, c := range conflict.Claims {
				if c.ID == chosenID {
					idx = i
					break
				}
			}
			if idx < 0 {
				return fmt.Errorf("%w: claim %s is not part of conflict %s", types.ErrValidation, chosenID, conflictID)
			}
			chosen := conflict.Claims[idx]
			resolvedValue = chosen.EffectiveValue()
			resolvedClaimID = &chosen.ID
			if idx == 0 {
				conflict.ResolutionMethod = types.ResolutionChoseClaimA
			} else {
				conflict.ResolutionMethod = types.ResolutionChoseClaimB
			}

			chosen.VerificationStatus = types.VerificationBrokerConfirmed
			chosen.VerifiedBy = actor
			chosen.VerifiedAt = &now
			if err := tx.SetClaimVerification(ctx, chosen); err != nil {
				return err
			}
			if err := tx.AddEvent(ctx, chosen.ID, types.EventClaimConfirmed, actor, nil, &resolvedValue, nil); err != nil {
				return err
			}
			rejected = append(conflict.Claims[:idx:idx], conflict.Claims[idx+1:]...)
		}

		for _, c := range rejected {
			c.VerificationStatus = types.VerificationRejected
			c.VerifiedBy = actor
			c.VerifiedAt = &now
			c.RejectionReason = fmt.Sprintf("conflict %s resolved via %s", conflictID, conflict.ResolutionMethod)
			if err := tx.SetClaimVerification(ctx, c); err != nil {
				return err
			}
			if err := tx.AddEvent(ctx, c.ID, types.EventClaimRejected, actor, nil, nil, &c.RejectionReason); err != nil {
				return err
			}
		}

		conflict.Status = types.ConflictResolved
		conflict.ResolvedValue = &resolvedValue
		conflict.ResolvedClaimID = resolvedClaimID
		conflict.ResolvedBy = actor
		conflict.ResolvedAt = &now
		if err := tx.ResolveConflict(ctx, conflict); err != nil {
			return err
		}

		method := string(conflict.ResolutionMethod)
		return tx.AddEvent(ctx, conflict.ID, types.EventConflictResolved, actor, nil, &resolvedValue, &method)
	})
	if err != nil {
		return nil, err
	}
	return conflict, nil
}

// meanOfClaims computes the numeric mean of the group's claim values,
// failing with a type-mismatch error when any value is non-numeric.
func meanOfClaims(group []*types.Claim) (float64, error) {
	var sum float64
	for _, c := range group {
		if c.NumericValue == nil {
			return 0, fmt.Errorf("%w: claim %s value %q is not numeric", types.ErrTypeMismatch, c.ID, c.Value)
		}
		sum += *c.NumericValue
	}
	return sum / float64(len(group)), nil
}

// AuthoritativeValue returns the authoritative value for (deal, field):
// the most recent broker-confirmed claim's effective value, else the most
// recent conflict resolution's resolved value, else nil.
func (r *Resolver) AuthoritativeValue(ctx context.Context, dealID, field string) (*string, error) {
	all, err := r.store.ListClaims(ctx, dealID, field)
	if err != nil {
		return nil, err
	}
	for _, c := range all { // Newest first
		if c.VerificationStatus == types.VerificationBrokerConfirmed && c.SupersededBy == nil {
			v := c.EffectiveValue()
			return &v, nil
		}
	}

	conflicts, err := r.store.ListConflicts(ctx, dealID, types.ConflictResolved)
	if err != nil {
		return nil, err
	}
	for _, c := range conflicts { // Newest first
		if c.Field == field && c.ResolvedValue != nil {
			return c.ResolvedValue, nil
		}
	}
	return nil, nil
}

// AuthoritativeValues returns the authoritative value for every field of the
// deal that has one, keyed by field name. Used by OM generation.
func (r *Resolver) AuthoritativeValues(ctx context.Context, dealID string) (map[string]string, []string, error) {
	all, err := r.store.ListClaims(ctx, dealID, "")
	if err != nil {
		return nil, nil, err
	}

	values := make(map[string]string)
	var claimRefs []string
	for _, c := range all { // Newest first; first confirmed claim per field wins
		if c.VerificationStatus != types.VerificationBrokerConfirmed || c.SupersededBy != nil {
			continue
		}
		if _, ok := values[c.Field]; ok {
			continue
		}
		values[c.Field] = c.EffectiveValue()
		claimRefs = append(claimRefs, c.ID)
	}

	conflicts, err := r.store.ListConflicts(ctx, dealID, types.ConflictResolved)
	if err != nil {
		return nil, nil, err
	}
	for _, c := range conflicts {
		if _, ok := values[c.Field]; ok || c.ResolvedValue == nil {
			continue
		}
		values[c.Field] = *c.ResolvedValue
	}
	return values, claimRefs, nil
}

// GetConflict returns a conflict with its member claims.
func (r *Resolver) GetConflict(ctx context.Context, id string) (*types.Conflict, error) {
	return r.store.GetConflict(ctx, id)
}

// ListConflicts lists a deal's conflicts, optionally filtered by status.
func (r *Resolver) ListConflicts(ctx context.Context, dealID string, status types.ConflictStatus) ([]*types.Conflict, error) {
	return r.store.ListConflicts(ctx, dealID, status)
}

// ListClaims lists a deal's claims, optionally filtered to one field.
func (r *Resolver) ListClaims(ctx context.Context, dealID, field string) ([]*types.Claim, error) {
	return r.store.ListClaims(ctx, dealID, field)
}

// ErrNoConflict is retained for callers probing conflict membership.
var ErrNoConflict = errors.New("claim has no conflict")
