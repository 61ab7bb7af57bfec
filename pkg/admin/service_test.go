package admin

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/altxchange/spotcore/pkg/account"
	"github.com/altxchange/spotcore/pkg/eventbus"
	"github.com/altxchange/spotcore/pkg/exch"
	"github.com/altxchange/spotcore/pkg/matching"
	"github.com/altxchange/spotcore/pkg/store/memstore"
	"github.com/altxchange/spotcore/pkg/wallet"
)

const adminMaxID = int64(99)

func newTestServices(t *testing.T) (*Service, *account.Service) {
	t.Helper()
	repo := memstore.New()
	bus := eventbus.New(func(event any, r any) { t.Fatalf("handler panicked: %v", r) })
	engine := matching.New("ALT/USDT", repo, bus, decimal.RequireFromString("0.001"))
	acctSvc := account.New("ALT/USDT", "ALT", "USDT", decimal.RequireFromString("0.001"), repo, bus, engine)
	chain := wallet.NewSimChain("sim")
	adminSvc := New(adminMaxID, repo, bus, acctSvc, engine, chain)
	return adminSvc, acctSvc
}

func requestTestWithdrawal(t *testing.T, acctSvc *account.Service, userID int64, amount string) *exch.Transaction {
	t.Helper()
	if _, err := acctSvc.CreditDeposit(userID, "USDT", decimal.RequireFromString(amount), nil); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}
	tx, err := acctSvc.RequestWithdrawal(userID, "USDT", decimal.RequireFromString(amount), "0xabc")
	if err != nil {
		t.Fatalf("withdrawal request failed: %v", err)
	}
	return tx
}

func TestNonAdminCannotListPendingWithdrawals(t *testing.T) {
	adminSvc, _ := newTestServices(t)
	if _, err := adminSvc.ListPendingWithdrawals(adminMaxID + 1); err == nil {
		t.Fatalf("expected non-admin to be rejected")
	}
}

func TestFirstApprovalLeavesTransactionPending(t *testing.T) {
	adminSvc, acctSvc := newTestServices(t)
	user, _ := acctSvc.CreateUser("trader@example.com", "hash")
	tx := requestTestWithdrawal(t, acctSvc, user.ID, "100")

	updated, err := adminSvc.ApproveWithdrawal(1, tx.ID)
	if err != nil {
		t.Fatal(err)
	}
	if updated.Status != exch.TxPending {
		t.Fatalf("expected first approval to leave tx PENDING, got %v", updated.Status)
	}
}

func TestSameAdminCannotApproveTwice(t *testing.T) {
	adminSvc, acctSvc := newTestServices(t)
	user, _ := acctSvc.CreateUser("trader2@example.com", "hash")
	tx := requestTestWithdrawal(t, acctSvc, user.ID, "100")

	if _, err := adminSvc.ApproveWithdrawal(1, tx.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := adminSvc.ApproveWithdrawal(1, tx.ID); err == nil {
		t.Fatalf("expected duplicate approval from the same admin to be rejected")
	}
}

func TestSecondDistinctApprovalConfirmsWithdrawal(t *testing.T) {
	adminSvc, acctSvc := newTestServices(t)
	user, _ := acctSvc.CreateUser("trader3@example.com", "hash")
	tx := requestTestWithdrawal(t, acctSvc, user.ID, "100")

	if _, err := adminSvc.ApproveWithdrawal(1, tx.ID); err != nil {
		t.Fatal(err)
	}
	confirmed, err := adminSvc.ApproveWithdrawal(2, tx.ID)
	if err != nil {
		t.Fatal(err)
	}
	if confirmed.Status != exch.TxConfirmed {
		t.Fatalf("expected second distinct approval to confirm, got %v", confirmed.Status)
	}
	if confirmed.TxHash == nil || *confirmed.TxHash == "" {
		t.Fatalf("expected a tx hash to be recorded after confirmation")
	}

	balance, err := acctSvc.GetBalance(user.ID, "USDT")
	if err != nil {
		t.Fatal(err)
	}
	if !balance.Locked.IsZero() {
		t.Fatalf("expected locked funds released after confirmed withdrawal, got %v", balance.Locked)
	}
}

func TestRejectReleasesLockedFunds(t *testing.T) {
	adminSvc, acctSvc := newTestServices(t)
	user, _ := acctSvc.CreateUser("trader4@example.com", "hash")
	tx := requestTestWithdrawal(t, acctSvc, user.ID, "100")

	rejected, err := adminSvc.RejectWithdrawal(1, tx.ID, "suspicious activity")
	if err != nil {
		t.Fatal(err)
	}
	if rejected.Status != exch.TxFailed {
		t.Fatalf("expected rejected tx status FAILED, got %v", rejected.Status)
	}

	balance, err := acctSvc.GetBalance(user.ID, "USDT")
	if err != nil {
		t.Fatal(err)
	}
	if !balance.Available.Equal(decimal.RequireFromString("100")) {
		t.Fatalf("expected funds released back to available, got %v", balance.Available)
	}
	if !balance.Locked.IsZero() {
		t.Fatalf("expected zero locked after rejection, got %v", balance.Locked)
	}
}

func TestFreezeThenUnfreezeAccount(t *testing.T) {
	adminSvc, acctSvc := newTestServices(t)
	user, _ := acctSvc.CreateUser("frozen@example.com", "hash")
	acct, err := acctSvc.GetAccount(user.ID)
	if err != nil {
		t.Fatal(err)
	}

	frozen, err := adminSvc.FreezeAccount(1, acct.ID, "compliance hold")
	if err != nil {
		t.Fatal(err)
	}
	if !frozen.Frozen {
		t.Fatalf("expected account marked frozen")
	}

	if _, err := adminSvc.FreezeAccount(1, acct.ID, "compliance hold"); err == nil {
		t.Fatalf("expected double-freeze to be rejected")
	}

	unfrozen, err := adminSvc.UnfreezeAccount(1, acct.ID)
	if err != nil {
		t.Fatal(err)
	}
	if unfrozen.Frozen {
		t.Fatalf("expected account unfrozen")
	}
}

func TestAuditLogsRecordedForAdminActions(t *testing.T) {
	adminSvc, acctSvc := newTestServices(t)
	user, _ := acctSvc.CreateUser("audited@example.com", "hash")
	acct, _ := acctSvc.GetAccount(user.ID)

	if _, err := adminSvc.FreezeAccount(1, acct.ID, "review"); err != nil {
		t.Fatal(err)
	}

	logs, err := adminSvc.AuditLogs(1, AuditLogFilter{Action: "account_frozen"})
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 1 {
		t.Fatalf("expected exactly one account_frozen log entry, got %d", len(logs))
	}
}

func TestMarketOverviewReportsBookAndCounts(t *testing.T) {
	adminSvc, acctSvc := newTestServices(t)
	seller, _ := acctSvc.CreateUser("seller@example.com", "hash")
	if _, err := acctSvc.CreditDeposit(seller.ID, "ALT", decimal.RequireFromString("10"), nil); err != nil {
		t.Fatal(err)
	}
	if _, err := acctSvc.PlaceLimitOrder(seller.ID, exch.Sell, decimal.RequireFromString("100"), decimal.RequireFromString("1"), exch.GTC); err != nil {
		t.Fatal(err)
	}

	overview, err := adminSvc.MarketOverview(1, "ALT/USDT")
	if err != nil {
		t.Fatal(err)
	}
	if len(overview.Asks) != 1 {
		t.Fatalf("expected one resting ask level, got %d", len(overview.Asks))
	}
}
