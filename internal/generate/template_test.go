package generate

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/dealflowhq/dealflow/internal/types"
)

func TestTemplateGeneratorExecutiveSummary(t *testing.T) {
	g := NewTemplateGenerator()
	content, err := g.GenerateSection(context.Background(), SectionRequest{
		Deal:    &types.DealDraft{Title: "Riverside Industrial Park"},
		Section: types.SectionExecutiveSummary,
		Facts: map[string]string{
			"asking_price":   "1150000",
			"square_footage": "45000",
		},
	})
	if err != nil {
		t.Fatalf("GenerateSection failed: %v", err)
	}
	if !strings.Contains(content, "Riverside Industrial Park") {
		t.Errorf("summary missing title: %q", content)
	}
	if !strings.Contains(content, "$1,150,000") {
		t.Errorf("summary missing formatted price: %q", content)
	}
}

func TestTemplateGeneratorOmitsAbsentFacts(t *testing.T) {
	g := NewTemplateGenerator()
	content, err := g.GenerateSection(context.Background(), SectionRequest{
		Section: types.SectionFinancialSummary,
		Facts:   map[string]string{"noi": "500000"},
	})
	if err != nil {
		t.Fatalf("GenerateSection failed: %v", err)
	}
	if strings.Contains(content, "asking price") {
		t.Errorf("absent fact rendered: %q", content)
	}
	if !strings.Contains(content, "noi: 500000") {
		t.Errorf("present fact missing: %q", content)
	}
}

func TestTemplateGeneratorUnknownSection(t *testing.T) {
	g := NewTemplateGenerator()
	_, err := g.GenerateSection(context.Background(), SectionRequest{Section: "nope"})
	if !errors.Is(err, types.ErrGenerationFailed) {
		t.Errorf("expected generation-failed error, got %v", err)
	}
}

func TestFormatMoney(t *testing.T) {
	cases := map[string]string{
		"1150000":  "$1,150,000",
		"950":      "$950",
		"1000":     "$1,000",
		"see note": "see note",
	}
	for in, want := range cases {
		if got := formatMoney(in); got != want {
			t.Errorf("formatMoney(%q) = %q, want %q", in, got, want)
		}
	}
}
