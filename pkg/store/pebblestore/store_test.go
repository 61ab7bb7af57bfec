package pebblestore

import (
	"path/filepath"
	"testing"

	"github.com/altxchange/spotcore/pkg/exch"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "exch"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNextIDIsMonotonic(t *testing.T) {
	s := openTestStore(t)
	if got := s.NextID("users"); got != 1 {
		t.Fatalf("expected first id 1, got %d", got)
	}
	if got := s.NextID("users"); got != 2 {
		t.Fatalf("expected second id 2, got %d", got)
	}
	if got := s.NextID("accounts"); got != 1 {
		t.Fatalf("expected independent counter per table, got %d", got)
	}
}

func TestUserRoundTripByIDAndEmail(t *testing.T) {
	s := openTestStore(t)
	u := &exch.User{ID: s.NextID("users"), Email: "trader@example.com"}
	if err := s.InsertUser(u); err != nil {
		t.Fatal(err)
	}

	byID, ok := s.GetUser(u.ID)
	if !ok || byID.Email != u.Email {
		t.Fatalf("expected to fetch user by id")
	}
	byEmail, ok := s.GetUserByEmail(u.Email)
	if !ok || byEmail.ID != u.ID {
		t.Fatalf("expected to fetch user by email")
	}
}

func TestScopeCommitPersistsAndRollbackDiscards(t *testing.T) {
	s := openTestStore(t)

	committed := &exch.User{ID: s.NextID("users"), Email: "committed@example.com"}
	sc := s.Begin()
	if err := s.InsertUser(committed); err != nil {
		t.Fatal(err)
	}
	sc.Commit()
	if _, ok := s.GetUser(committed.ID); !ok {
		t.Fatalf("expected committed user to persist")
	}

	discarded := &exch.User{ID: s.NextID("users"), Email: "discarded@example.com"}
	sc2 := s.Begin()
	if err := s.InsertUser(discarded); err != nil {
		t.Fatal(err)
	}
	sc2.Rollback()
	if _, ok := s.GetUser(discarded.ID); ok {
		t.Fatalf("expected rolled-back user to be discarded")
	}
}

func TestBalanceLookupByAccountAndAsset(t *testing.T) {
	s := openTestStore(t)
	b := &exch.Balance{ID: s.NextID("balances"), AccountID: 7, Asset: "USDT"}
	if err := s.UpsertBalance(b); err != nil {
		t.Fatal(err)
	}
	found, ok := s.FindBalance(7, "USDT")
	if !ok || found.ID != b.ID {
		t.Fatalf("expected balance lookup by (account, asset) to succeed")
	}
	if _, ok := s.FindBalance(7, "ALT"); ok {
		t.Fatalf("did not expect a balance for a different asset")
	}

	other := &exch.Balance{ID: s.NextID("balances"), AccountID: 7, Asset: "ALT"}
	if err := s.UpsertBalance(other); err != nil {
		t.Fatal(err)
	}
	byAccount := s.GetBalancesByAccount(7)
	if len(byAccount) != 2 {
		t.Fatalf("expected 2 balances for account 7, got %d", len(byAccount))
	}
}

func TestOrdersByUserOrderedNewestFirst(t *testing.T) {
	s := openTestStore(t)
	first := &exch.Order{ID: s.NextID("orders"), UserID: 1, Market: "ALT/USDT"}
	if err := s.InsertOrder(first); err != nil {
		t.Fatal(err)
	}
	second := &exch.Order{ID: s.NextID("orders"), UserID: 1, Market: "ALT/USDT"}
	second.CreatedAt = first.CreatedAt.Add(1)
	if err := s.InsertOrder(second); err != nil {
		t.Fatal(err)
	}

	out := s.GetOrdersByUser(1)
	if len(out) != 2 || out[0].ID != second.ID {
		t.Fatalf("expected newest order first, got %+v", out)
	}
}
