// Package generate produces offering memorandum section content.
//
// Two implementations exist: an Anthropic-backed generator used in
// production, and a deterministic template generator used offline and in
// tests. Generation only ever consumes authoritative field values; unverified
// claims never reach a prompt.
package generate

import (
	"context"

	"github.com/dealflowhq/dealflow/internal/types"
)

// SectionRequest carries everything a generator may use for one section.
type SectionRequest struct {
	Deal    *types.DealDraft
	Section string            // Section key, e.g. types.SectionExecutiveSummary
	Facts   map[string]string // Authoritative field values, keyed by field name
}

// Generator produces the content of a single OM section.
type Generator interface {
	GenerateSection(ctx context.Context, req SectionRequest) (string, error)
}
