// Package store defines the persistence port the exchange core is built
// against. Its in-memory reference implementation lives in the memstore
// subpackage; a second implementation, backed by Pebble, lives in the
// pebblestore subpackage. Which one runs is selected by configuration
// rather than by code.
package store

import "github.com/altxchange/spotcore/pkg/exch"

// Scope is a transactional unit of work: a sequence of repository
// mutations that either all take effect (Commit) or none do (Rollback,
// including the implicit rollback a caller gets by never calling
// Commit). Nesting is not supported.
type Scope interface {
	Commit()
	Rollback()
}

// Repository is the persistence port every core component is written
// against. All reads return copies; callers mutate the copy and hand it
// back through the matching Update/Upsert call.
type Repository interface {
	NextID(table string) int64

	InsertUser(u *exch.User) error
	GetUser(id int64) (*exch.User, bool)
	GetUserByEmail(email string) (*exch.User, bool)
	UpdateUser(u *exch.User) error

	InsertAccount(a *exch.Account) error
	GetAccount(id int64) (*exch.Account, bool)
	GetAccountsByUser(userID int64) []*exch.Account
	UpdateAccount(a *exch.Account) error

	UpsertBalance(b *exch.Balance) error
	FindBalance(accountID int64, asset exch.Asset) (*exch.Balance, bool)
	GetBalancesByAccount(accountID int64) []*exch.Balance

	InsertOrder(o *exch.Order) error
	UpdateOrder(o *exch.Order) error
	GetOrder(id int64) (*exch.Order, bool)
	GetOrdersByUser(userID int64) []*exch.Order
	GetOrdersByAccount(accountID int64) []*exch.Order

	InsertTrade(t *exch.Trade) error
	GetTrade(id int64) (*exch.Trade, bool)
	GetTradesByUser(userID int64) []*exch.Trade
	// ListRecentTrades returns up to limit trades across all users,
	// newest first, for operator-facing market overviews.
	ListRecentTrades(limit int) []*exch.Trade

	InsertTransaction(t *exch.Transaction) error
	UpdateTransaction(t *exch.Transaction) error
	GetTransaction(id int64) (*exch.Transaction, bool)
	GetTransactionsByUser(userID int64) []*exch.Transaction
	// GetPendingWithdrawals returns every PENDING withdrawal transaction,
	// oldest first, for the admin approval queue.
	GetPendingWithdrawals() []*exch.Transaction

	InsertAuditLog(a *exch.AuditLog) error
	ListRecentAuditLogs(limit int) []*exch.AuditLog

	// Begin opens a transactional scope. Callers should always
	// `defer scope.Rollback()` immediately after Begin and call
	// scope.Commit() on the success path; Rollback after a successful
	// Commit is a no-op.
	Begin() Scope
}
