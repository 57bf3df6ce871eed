package timeparsing

import (
	"errors"
	"testing"
	"time"

	"github.com/dealflowhq/dealflow/internal/types"
)

// A Friday afternoon, mid-quarter.
var base = time.Date(2026, 8, 21, 14, 30, 0, 0, time.UTC)

func TestParseDueOffsets(t *testing.T) {
	cases := []struct {
		in   string
		want time.Time
	}{
		{"+6h", base.Add(6 * time.Hour)},
		{"36h", base.Add(36 * time.Hour)},
		{"+2d", base.AddDate(0, 0, 2)},
		{"10d", base.AddDate(0, 0, 10)},
		{"+1w", base.AddDate(0, 0, 7)},
		{"3w", base.AddDate(0, 0, 21)},
	}
	for _, tc := range cases {
		got, err := ParseDue(tc.in, base)
		if err != nil {
			t.Errorf("ParseDue(%q) failed: %v", tc.in, err)
			continue
		}
		if !got.Equal(tc.want) {
			t.Errorf("ParseDue(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestParseDueAbsoluteDate(t *testing.T) {
	got, err := ParseDue("2026-09-15", base)
	if err != nil {
		t.Fatalf("ParseDue failed: %v", err)
	}
	want := time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestParseDueRFC3339(t *testing.T) {
	got, err := ParseDue("2026-09-15T09:30:00Z", base)
	if err != nil {
		t.Fatalf("ParseDue failed: %v", err)
	}
	want := time.Date(2026, 9, 15, 9, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestParseDueNaturalLanguage(t *testing.T) {
	got, err := ParseDue("tomorrow", base)
	if err != nil {
		t.Fatalf("ParseDue(tomorrow) failed: %v", err)
	}
	want := base.AddDate(0, 0, 1)
	if got.Year() != want.Year() || got.Month() != want.Month() || got.Day() != want.Day() {
		t.Errorf("ParseDue(tomorrow) = %v, want the next day", got)
	}

	got, err = ParseDue("in 3 days", base)
	if err != nil {
		t.Fatalf("ParseDue(in 3 days) failed: %v", err)
	}
	want = base.AddDate(0, 0, 3)
	if got.Year() != want.Year() || got.Month() != want.Month() || got.Day() != want.Day() {
		t.Errorf("ParseDue(in 3 days) = %v, want three days out", got)
	}
}

func TestParseDueRejectsBadInput(t *testing.T) {
	for _, in := range []string{"", "   ", "soonish", "-1d", "5x"} {
		if _, err := ParseDue(in, base); !errors.Is(err, types.ErrValidation) {
			t.Errorf("ParseDue(%q) = %v, want validation error", in, err)
		}
	}
}
