package idgen

import (
	"strings"
	"testing"
	"time"
)

func TestNewFormat(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	id := New(PrefixClaim, now, 0, "deal-abc", "askingPrice", "15000000")
	if !strings.HasPrefix(id, "clm-") {
		t.Errorf("expected clm- prefix, got %s", id)
	}
	if len(id) != len("clm-")+DefaultLength {
		t.Errorf("unexpected id length: %s", id)
	}
}

func TestNewDistinctForNonce(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	a := New(PrefixClaim, now, 0, "deal-abc", "askingPrice")
	b := New(PrefixClaim, now, 1, "deal-abc", "askingPrice")
	if a == b {
		t.Errorf("nonce did not vary id: %s", a)
	}
}

func TestNewDeterministic(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	a := New(PrefixDeal, now, 0, "123 Main St")
	b := New(PrefixDeal, now, 0, "123 Main St")
	if a != b {
		t.Errorf("same inputs produced different ids: %s vs %s", a, b)
	}
}

func TestEncodeBase36Padding(t *testing.T) {
	got := EncodeBase36([]byte{0, 0, 1}, 5)
	if got != "00001" {
		t.Errorf("EncodeBase36 = %s, want 00001", got)
	}
	if len(EncodeBase36([]byte{0xff, 0xff, 0xff, 0xff}, 5)) != 5 {
		t.Errorf("expected truncation to 5 chars")
	}
}
