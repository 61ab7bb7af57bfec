package exch

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestDomainErrorIsMatchesByKind(t *testing.T) {
	err := NewInsufficientBalance("not enough", 1, Asset("USDT"), decimal.NewFromInt(10), decimal.NewFromInt(5))

	if !errors.Is(err, ErrKind(InsufficientBalance)) {
		t.Fatalf("expected errors.Is to match on kind")
	}
	if errors.Is(err, ErrKind(InvalidOrder)) {
		t.Fatalf("did not expect match against a different kind")
	}
}

func TestDomainErrorMessage(t *testing.T) {
	err := NewEntityNotFound("account 7 not found", "account", 7)
	if err.Error() != "ENTITY_NOT_FOUND: account 7 not found" {
		t.Fatalf("unexpected message: %s", err.Error())
	}
}
