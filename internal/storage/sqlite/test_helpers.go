package sqlite

import (
	"context"
	"testing"

	"github.com/dealflowhq/dealflow/internal/storage"
	"github.com/dealflowhq/dealflow/internal/types"
)

// newTestStore creates an isolated file-backed store under t.TempDir().
//
// A shared ":memory:" database would be visible across tests in the same
// process; a per-test temp file keeps tests independent and exercises the
// same WAL path production uses.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	ctx := context.Background()
	store, err := New(ctx, t.TempDir()+"/test.db")
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	t.Cleanup(func() {
		if cerr := store.Close(); cerr != nil {
			t.Fatalf("Failed to close test database: %v", cerr)
		}
	})

	return store
}

// newTestDeal inserts a minimal deal and returns it.
func newTestDeal(t *testing.T, store *Store) *types.DealDraft {
	t.Helper()

	deal := &types.DealDraft{
		ID:     "deal-test1",
		Title:  "Test Property",
		Status: types.DealDraftIngested,
	}
	if err := store.CreateDeal(context.Background(), deal, "test-actor"); err != nil {
		t.Fatalf("CreateDeal failed: %v", err)
	}
	return deal
}

// insertTestClaim inserts a claim through a transaction.
func insertTestClaim(t *testing.T, store *Store, claim *types.Claim) {
	t.Helper()

	ctx := context.Background()
	err := store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		return tx.CreateClaim(ctx, claim)
	})
	if err != nil {
		t.Fatalf("CreateClaim failed: %v", err)
	}
}
