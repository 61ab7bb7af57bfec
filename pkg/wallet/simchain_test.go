package wallet

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/altxchange/spotcore/pkg/exch"
)

func TestAssignDepositAddressIsStablePerUserAndAsset(t *testing.T) {
	chain := NewSimChain("sim")

	first, err := chain.AssignDepositAddress(7, "USDT")
	if err != nil {
		t.Fatal(err)
	}
	second, err := chain.AssignDepositAddress(7, "USDT")
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Fatalf("expected stable address, got %q then %q", first, second)
	}
	if len(first) != 42 || first[:2] != "0x" {
		t.Fatalf("expected 0x-prefixed 20-byte hex address, got %q", first)
	}
}

func TestAssignDepositAddressDiffersAcrossAssetsAndUsers(t *testing.T) {
	chain := NewSimChain("sim")

	usdt, _ := chain.AssignDepositAddress(7, "USDT")
	alt, _ := chain.AssignDepositAddress(7, "ALT")
	if usdt == alt {
		t.Fatalf("expected distinct addresses per asset, got %q for both", usdt)
	}

	other, _ := chain.AssignDepositAddress(8, "USDT")
	if usdt == other {
		t.Fatalf("expected distinct addresses per user, got %q for both", usdt)
	}
}

func TestSubmitWithdrawalReturnsQueryableTxHash(t *testing.T) {
	chain := NewSimChain("sim")

	txHash, err := chain.SubmitWithdrawal(7, "USDT", decimal.RequireFromString("100"), "0xdeadbeef")
	if err != nil {
		t.Fatal(err)
	}
	if txHash == "" {
		t.Fatalf("expected non-empty tx hash")
	}

	status, err := chain.TransactionStatus(txHash)
	if err != nil {
		t.Fatal(err)
	}
	if !status.Confirmed {
		t.Fatalf("expected simulated withdrawal to report confirmed")
	}
}

func TestSubmitWithdrawalProducesDistinctHashesPerCall(t *testing.T) {
	chain := NewSimChain("sim")

	first, err := chain.SubmitWithdrawal(7, "USDT", decimal.RequireFromString("100"), "0xdeadbeef")
	if err != nil {
		t.Fatal(err)
	}
	second, err := chain.SubmitWithdrawal(7, "USDT", decimal.RequireFromString("100"), "0xdeadbeef")
	if err != nil {
		t.Fatal(err)
	}
	if first == second {
		t.Fatalf("expected distinct tx hashes across submissions, got %q for both", first)
	}
}

func TestTransactionStatusUnknownHash(t *testing.T) {
	chain := NewSimChain("sim")
	if _, err := chain.TransactionStatus("0xnotarealhash"); err == nil {
		t.Fatalf("expected error for unknown tx hash")
	}
}

func TestErrUnsupportedAssetMessage(t *testing.T) {
	err := &ErrUnsupportedAsset{Asset: exch.Asset("DOGE")}
	if err.Error() == "" {
		t.Fatalf("expected non-empty error message")
	}
}
