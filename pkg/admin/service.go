// Package admin implements the back-office operations layered on top of
// the account and matching core: two-eyes withdrawal approval, account
// freeze/unfreeze, audit logging, and read-only operator views.
package admin

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/altxchange/spotcore/pkg/account"
	"github.com/altxchange/spotcore/pkg/eventbus"
	"github.com/altxchange/spotcore/pkg/exch"
	"github.com/altxchange/spotcore/pkg/matching"
	"github.com/altxchange/spotcore/pkg/orderbook"
	"github.com/altxchange/spotcore/pkg/store"
	"github.com/altxchange/spotcore/pkg/wallet"
)

// Service gates administrative operations behind an admin-ID check and
// drives the two-eyes withdrawal approval state machine.
type Service struct {
	adminMaxID int64

	repo    store.Repository
	bus     *eventbus.Bus
	account *account.Service
	engine  *matching.Engine
	wallet  wallet.Port

	mu        sync.Mutex
	approvals map[int64]map[int64]bool // tx ID -> set of distinct approver IDs
}

// New returns a Service whose admin check accepts any userID <=
// adminMaxID, mirroring the teacher's own low-ID-is-admin convention.
func New(adminMaxID int64, repo store.Repository, bus *eventbus.Bus, acct *account.Service, engine *matching.Engine, chain wallet.Port) *Service {
	return &Service{
		adminMaxID: adminMaxID,
		repo:       repo,
		bus:        bus,
		account:    acct,
		engine:     engine,
		wallet:     chain,
		approvals:  make(map[int64]map[int64]bool),
	}
}

func (s *Service) isAdmin(userID int64) bool {
	return userID <= s.adminMaxID
}

func (s *Service) requireAdmin(adminID int64, operation string) error {
	if !s.isAdmin(adminID) {
		return exch.NewAdminPermission("insufficient permissions", adminID, operation)
	}
	return nil
}

func (s *Service) logAction(adminID int64, action, entity string, metadata map[string]any) {
	s.repo.InsertAuditLog(&exch.AuditLog{
		ID:        s.repo.NextID("audit_logs"),
		Actor:     fmt.Sprintf("admin_%d", adminID),
		Action:    action,
		Entity:    entity,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	})
}

// ListPendingWithdrawals returns queued withdrawal requests, oldest first.
func (s *Service) ListPendingWithdrawals(adminID int64) ([]*exch.Transaction, error) {
	if err := s.requireAdmin(adminID, "list_pending_withdrawals"); err != nil {
		return nil, err
	}
	return s.repo.GetPendingWithdrawals(), nil
}

// ApproveWithdrawal records adminID's approval of tx. The second distinct
// approver's call executes the withdrawal: it calls out to the wallet
// port, completes the withdrawal in the account service, and emits
// WithdrawalApproved. An admin cannot approve the same withdrawal twice.
func (s *Service) ApproveWithdrawal(adminID, txID int64) (*exch.Transaction, error) {
	if err := s.requireAdmin(adminID, "approve_withdrawal"); err != nil {
		return nil, err
	}

	tx, ok := s.repo.GetTransaction(txID)
	if !ok {
		return nil, exch.NewEntityNotFound("transaction not found", "transaction", txID)
	}
	if tx.Type != exch.TxWithdraw {
		return nil, exch.NewWithdrawalApproval("transaction is not a withdrawal", txID, adminID)
	}
	if tx.Status != exch.TxPending {
		return nil, exch.NewWithdrawalApproval("transaction is not pending", txID, adminID)
	}

	s.mu.Lock()
	approvers, ok := s.approvals[txID]
	if !ok {
		approvers = make(map[int64]bool)
		s.approvals[txID] = approvers
	}
	if approvers[adminID] {
		s.mu.Unlock()
		return nil, exch.NewWithdrawalApproval("admin has already approved this withdrawal", txID, adminID)
	}
	approvers[adminID] = true
	confirmed := len(approvers) >= 2
	if confirmed {
		delete(s.approvals, txID)
	}
	s.mu.Unlock()

	now := time.Now().UTC()
	tx.ApproverID = &adminID
	tx.ApprovedAt = &now

	if !confirmed {
		if err := s.repo.UpdateTransaction(tx); err != nil {
			return nil, err
		}
		s.logAction(adminID, "withdrawal_first_approval", "transaction", map[string]any{
			"amount": tx.Amount.String(),
			"asset":  string(tx.Asset),
		})
		return tx, nil
	}

	address := ""
	if tx.Address != nil {
		address = *tx.Address
	}
	txHash, err := s.wallet.SubmitWithdrawal(tx.UserID, tx.Asset, tx.Amount, address)
	if err != nil {
		return nil, exch.NewWithdrawalApproval(fmt.Sprintf("wallet rejected withdrawal: %v", err), txID, adminID)
	}

	if _, err := s.account.CompleteWithdrawal(tx.ID, txHash, 0); err != nil {
		return nil, err
	}

	tx, ok = s.repo.GetTransaction(txID)
	if !ok {
		return nil, exch.NewEntityNotFound("transaction vanished mid-approval", "transaction", txID)
	}

	s.bus.Publish(eventbus.WithdrawalApproved{TransactionID: txID, ApproverID: adminID, Amount: tx.Amount})
	s.logAction(adminID, "withdrawal_approved", "transaction", map[string]any{
		"amount":  tx.Amount.String(),
		"asset":   string(tx.Asset),
		"tx_hash": txHash,
	})
	return tx, nil
}

// RejectWithdrawal marks tx FAILED, releases its locked funds back to the
// user's available balance, and emits WithdrawalRejected.
func (s *Service) RejectWithdrawal(adminID, txID int64, reason string) (*exch.Transaction, error) {
	if err := s.requireAdmin(adminID, "reject_withdrawal"); err != nil {
		return nil, err
	}

	tx, ok := s.repo.GetTransaction(txID)
	if !ok {
		return nil, exch.NewEntityNotFound("transaction not found", "transaction", txID)
	}
	if tx.Type != exch.TxWithdraw {
		return nil, exch.NewWithdrawalApproval("transaction is not a withdrawal", txID, adminID)
	}
	if tx.Status != exch.TxPending {
		return nil, exch.NewWithdrawalApproval("transaction is not pending", txID, adminID)
	}

	acct, err := s.account.GetAccount(tx.UserID)
	if err != nil {
		return nil, err
	}

	scope := s.repo.Begin()
	defer scope.Rollback()

	balance, ok := s.repo.FindBalance(acct.ID, tx.Asset)
	if !ok {
		return nil, exch.NewEntityNotFound("balance not found", "balance", acct.ID)
	}
	if balance.Locked.LessThan(tx.Amount) {
		return nil, exch.NewSettlement("locked balance lower than withdrawal amount", tx.ID, acct.ID)
	}
	now := time.Now().UTC()
	balance.Locked = balance.Locked.Sub(tx.Amount)
	balance.Available = balance.Available.Add(tx.Amount)
	balance.UpdatedAt = now
	if err := s.repo.UpsertBalance(balance); err != nil {
		return nil, err
	}

	tx.Status = exch.TxFailed
	tx.ApproverID = &adminID
	tx.RejectedAt = &now
	if err := s.repo.UpdateTransaction(tx); err != nil {
		return nil, err
	}

	scope.Commit()

	s.mu.Lock()
	delete(s.approvals, txID)
	s.mu.Unlock()

	s.bus.Publish(eventbus.BalanceChanged{Balance: *balance})
	s.bus.Publish(eventbus.WithdrawalRejected{TransactionID: txID, ApproverID: adminID, Reason: reason})
	s.logAction(adminID, "withdrawal_rejected", "transaction", map[string]any{
		"amount": tx.Amount.String(),
		"asset":  string(tx.Asset),
		"reason": reason,
	})
	return tx, nil
}

// FreezeAccount blocks an account from placing new orders. Withdrawal
// requests are not gated by the freeze, and existing resting orders are
// left untouched: freezing is not an automatic cancellation of what's
// already in the book.
func (s *Service) FreezeAccount(adminID, accountID int64, reason string) (*exch.Account, error) {
	if err := s.requireAdmin(adminID, "freeze_account"); err != nil {
		return nil, err
	}
	acct, ok := s.repo.GetAccount(accountID)
	if !ok {
		return nil, exch.NewEntityNotFound("account not found", "account", accountID)
	}
	if acct.Frozen {
		return nil, exch.NewAdminPermission("account is already frozen", adminID, "freeze_account")
	}

	acct.Frozen = true
	acct.Status = exch.AccountFrozen
	if err := s.repo.UpdateAccount(acct); err != nil {
		return nil, err
	}

	s.bus.Publish(eventbus.AccountFrozen{AccountID: accountID, AdminID: adminID, Reason: reason, At: time.Now().UTC()})
	s.logAction(adminID, "account_frozen", "account", map[string]any{
		"user_id": acct.UserID,
		"reason":  reason,
	})
	return acct, nil
}

// UnfreezeAccount restores the account's ability to place orders.
func (s *Service) UnfreezeAccount(adminID, accountID int64) (*exch.Account, error) {
	if err := s.requireAdmin(adminID, "unfreeze_account"); err != nil {
		return nil, err
	}
	acct, ok := s.repo.GetAccount(accountID)
	if !ok {
		return nil, exch.NewEntityNotFound("account not found", "account", accountID)
	}
	if !acct.Frozen {
		return nil, exch.NewAdminPermission("account is not frozen", adminID, "unfreeze_account")
	}

	acct.Frozen = false
	acct.Status = exch.AccountActive
	if err := s.repo.UpdateAccount(acct); err != nil {
		return nil, err
	}

	s.bus.Publish(eventbus.AccountUnfrozen{AccountID: accountID, AdminID: adminID, At: time.Now().UTC()})
	s.logAction(adminID, "account_unfrozen", "account", map[string]any{"user_id": acct.UserID})
	return acct, nil
}

// AuditLogFilter narrows AuditLogs by actor substring and/or exact action;
// zero values leave the corresponding field unfiltered.
type AuditLogFilter struct {
	Actor  string
	Action string
	Limit  int
}

// AuditLogs returns matching log entries, newest first.
func (s *Service) AuditLogs(adminID int64, filter AuditLogFilter) ([]*exch.AuditLog, error) {
	if err := s.requireAdmin(adminID, "audit_logs"); err != nil {
		return nil, err
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	// ListRecentAuditLogs already returns newest first and up to some
	// bound; over-fetch so actor/action filtering doesn't starve the
	// page before it gets to apply.
	logs := s.repo.ListRecentAuditLogs(limit * 4)
	var out []*exch.AuditLog
	for _, log := range logs {
		if filter.Actor != "" && !containsSubstring(log.Actor, filter.Actor) {
			continue
		}
		if filter.Action != "" && log.Action != filter.Action {
			continue
		}
		out = append(out, log)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func containsSubstring(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

// AccountInfo is the operator-facing account detail view.
type AccountInfo struct {
	Account            *exch.Account
	User               *exch.User
	Balances           []*exch.Balance
	RecentTransactions []*exch.Transaction
}

// AccountInfo assembles the account/user/balances/recent-transactions
// bundle an operator reviews when investigating a user.
func (s *Service) AccountInfo(adminID, accountID int64) (*AccountInfo, error) {
	if err := s.requireAdmin(adminID, "account_info"); err != nil {
		return nil, err
	}
	acct, ok := s.repo.GetAccount(accountID)
	if !ok {
		return nil, exch.NewEntityNotFound("account not found", "account", accountID)
	}
	user, ok := s.repo.GetUser(acct.UserID)
	if !ok {
		return nil, exch.NewEntityNotFound("user not found", "user", acct.UserID)
	}

	balances := s.repo.GetBalancesByAccount(accountID)
	txs := s.repo.GetTransactionsByUser(acct.UserID)
	sort.Slice(txs, func(i, j int) bool { return txs[i].CreatedAt.After(txs[j].CreatedAt) })
	if len(txs) > 10 {
		txs = txs[:10]
	}

	return &AccountInfo{Account: acct, User: user, Balances: balances, RecentTransactions: txs}, nil
}

// MarketOverview is the operator-facing dashboard snapshot.
type MarketOverview struct {
	Market       string
	Bids         []orderbook.PriceLevelSummary
	Asks         []orderbook.PriceLevelSummary
	RecentTrades []*exch.Trade
	PendingStops int
	OCOPairs     int
}

// MarketOverview reports the top of the book, the most recent trades,
// and engine bookkeeping counts (pending stops, live OCO pairs).
func (s *Service) MarketOverview(adminID int64, market string) (*MarketOverview, error) {
	if err := s.requireAdmin(adminID, "market_overview"); err != nil {
		return nil, err
	}

	bids, asks := s.engine.Snapshot()
	if len(bids) > 10 {
		bids = bids[:10]
	}
	if len(asks) > 10 {
		asks = asks[:10]
	}

	trades := s.repo.ListRecentTrades(20)

	return &MarketOverview{
		Market:       market,
		Bids:         bids,
		Asks:         asks,
		RecentTrades: trades,
		PendingStops: s.engine.PendingStopCount(),
		OCOPairs:     s.engine.OCOPairCount(),
	}, nil
}
