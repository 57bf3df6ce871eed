package generate

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/dealflowhq/dealflow/internal/types"
)

// TemplateGenerator produces deterministic section content from the
// authoritative facts alone. It backs offline use and tests, and doubles as
// the fallback when no API key is configured.
type TemplateGenerator struct{}

// NewTemplateGenerator creates a deterministic generator.
func NewTemplateGenerator() *TemplateGenerator {
	return &TemplateGenerator{}
}

// GenerateSection assembles the section from facts without any model call.
func (g *TemplateGenerator) GenerateSection(_ context.Context, req SectionRequest) (string, error) {
	title := "Untitled Property"
	if req.Deal != nil && req.Deal.Title != "" {
		title = req.Deal.Title
	}

	switch req.Section {
	case types.SectionCover:
		var b strings.Builder
		b.WriteString(title)
		if req.Deal != nil && req.Deal.Address != "" {
			b.WriteString("\n" + req.Deal.Address)
		}
		return b.String(), nil

	case types.SectionExecutiveSummary:
		var b strings.Builder
		fmt.Fprintf(&b, "%s is offered for sale", title)
		if price, ok := req.Facts["asking_price"]; ok {
			fmt.Fprintf(&b, " at %s", formatMoney(price))
		}
		b.WriteString(".")
		if sf, ok := req.Facts["square_footage"]; ok {
			fmt.Fprintf(&b, " The property comprises %s square feet.", sf)
		}
		return b.String(), nil

	case types.SectionPropertyOverview:
		return factList(req, "square_footage", "year_built", "zoning", "occupancy", "parking"), nil

	case types.SectionFinancialSummary:
		return factList(req, "asking_price", "noi", "cap_rate", "gross_income", "operating_expenses"), nil

	case types.SectionDisclaimers:
		return disclaimerText, nil

	case types.SectionMarketOverview:
		return factList(req, "submarket", "market_vacancy", "market_rent"), nil

	case types.SectionInvestmentThesis:
		return factList(req, "cap_rate", "noi", "occupancy"), nil

	default:
		return "", &types.GenerationFailedError{
			Section: req.Section,
			Cause:   fmt.Errorf("unknown section %q", req.Section),
		}
	}
}

// factList renders the named facts that are present, one per line, in the
// given order. Absent facts are skipped rather than estimated.
func factList(req SectionRequest, fields ...string) string {
	var b strings.Builder
	for _, f := range fields {
		v, ok := req.Facts[f]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", strings.ReplaceAll(f, "_", " "), v)
	}
	return strings.TrimRight(b.String(), "\n")
}

// formatMoney renders a numeric string as $N with thousands separators,
// passing non-numeric values through untouched.
func formatMoney(v string) string {
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return v
	}
	s := strconv.FormatFloat(n, 'f', 0, 64)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var b strings.Builder
	for i, d := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(d)
	}
	out := "$" + b.String()
	if neg {
		out = "-" + out
	}
	return out
}

const disclaimerText = `This offering memorandum is provided for informational purposes only and does not constitute an offer to sell. All figures are derived from source documents supplied by the seller and verified where noted; no representation or warranty, express or implied, is made as to their accuracy or completeness. Prospective purchasers must conduct their own independent investigation.`
