package types

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the workflow error taxonomy. Every workflow operation
// reports failures through one of these so callers can branch with errors.Is
// and still render a specific operator-facing message.
var (
	// ErrValidation indicates malformed input, rejected before any state mutation.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState indicates an operation not permitted in the entity's
	// current status. Use AsInvalidState to recover the detail.
	ErrInvalidState = errors.New("invalid state")

	// ErrAlreadyResolved indicates a second resolution attempt on a conflict.
	ErrAlreadyResolved = errors.New("conflict already resolved")

	// ErrAlreadyResponded indicates a second response for the same recipient.
	ErrAlreadyResponded = errors.New("recipient already responded")

	// ErrStaleState indicates an optimistic-concurrency conflict between
	// concurrent writers; the losing writer fails cleanly.
	ErrStaleState = errors.New("stale state")

	// ErrTypeMismatch indicates an operation on incompatible value types,
	// e.g. averaging non-numeric claim values.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrRegenerateNotAllowed indicates a regeneration request the OM state
	// machine forbids.
	ErrRegenerateNotAllowed = errors.New("regenerate not allowed")

	// ErrGenerationFailed indicates the external content-generation
	// collaborator failed. Retryable by the caller; the core never retries.
	ErrGenerationFailed = errors.New("content generation failed")
)

// InvalidStateError carries the current status and the allowed status(es)
// for operator feedback.
type InvalidStateError struct {
	Entity  string
	Op      string
	Current string
	Allowed []string
}

// Error renders a specific operator-facing message.
func (e *InvalidStateError) Error() string {
	if len(e.Allowed) == 0 {
		return fmt.Sprintf("cannot %s %s in %s status", e.Op, e.Entity, e.Current)
	}
	return fmt.Sprintf("cannot %s %s in %s status (requires %s)",
		e.Op, e.Entity, e.Current, strings.Join(e.Allowed, " or "))
}

// Is makes errors.Is(err, ErrInvalidState) match.
func (e *InvalidStateError) Is(target error) bool {
	return target == ErrInvalidState
}

// NewInvalidState builds an InvalidStateError.
func NewInvalidState(entity, op, current string, allowed ...string) error {
	return &InvalidStateError{Entity: entity, Op: op, Current: current, Allowed: allowed}
}

// StaleStateError reports an optimistic-concurrency failure with enough
// detail to tell the operator what raced.
type StaleStateError struct {
	Entity string
	ID     string
}

func (e *StaleStateError) Error() string {
	return fmt.Sprintf("%s %s was modified concurrently; reload and retry", e.Entity, e.ID)
}

// Is makes errors.Is(err, ErrStaleState) match.
func (e *StaleStateError) Is(target error) bool {
	return target == ErrStaleState
}

// GenerationFailedError wraps a content-generation collaborator failure with
// the section that was being generated.
type GenerationFailedError struct {
	Section string
	Cause   error
}

func (e *GenerationFailedError) Error() string {
	return fmt.Sprintf("generating section %q: %v", e.Section, e.Cause)
}

func (e *GenerationFailedError) Unwrap() error { return e.Cause }

// Is makes errors.Is(err, ErrGenerationFailed) match.
func (e *GenerationFailedError) Is(target error) bool {
	return target == ErrGenerationFailed
}
