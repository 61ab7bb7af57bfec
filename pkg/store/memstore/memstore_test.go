package memstore

import (
	"testing"

	"github.com/altxchange/spotcore/pkg/exch"
)

func TestScopeCommitPersists(t *testing.T) {
	s := New()
	sc := s.Begin()
	u := &exch.User{ID: s.NextID("users"), Email: "a@example.com"}
	if err := s.InsertUser(u); err != nil {
		t.Fatal(err)
	}
	sc.Commit()
	sc.Rollback() // no-op after commit

	if _, ok := s.GetUser(u.ID); !ok {
		t.Fatalf("expected committed user to persist")
	}
}

func TestScopeRollbackDiscards(t *testing.T) {
	s := New()
	sc := s.Begin()
	u := &exch.User{ID: s.NextID("users"), Email: "b@example.com"}
	if err := s.InsertUser(u); err != nil {
		t.Fatal(err)
	}
	sc.Rollback()

	if _, ok := s.GetUser(u.ID); ok {
		t.Fatalf("expected uncommitted user to be discarded on rollback")
	}
}

func TestBalanceUpsertIsKeyedByAccountAndAsset(t *testing.T) {
	s := New()
	b := &exch.Balance{ID: s.NextID("balances"), AccountID: 1, Asset: "USDT"}
	if err := s.UpsertBalance(b); err != nil {
		t.Fatal(err)
	}
	found, ok := s.FindBalance(1, "USDT")
	if !ok || found.ID != b.ID {
		t.Fatalf("expected to find balance by (account, asset)")
	}
	if _, ok := s.FindBalance(1, "ALT"); ok {
		t.Fatalf("did not expect a balance for a different asset")
	}
}
