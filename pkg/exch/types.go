// Package exch holds the domain value types shared by every component of
// the exchange core: users, accounts, balances, orders, trades,
// transactions, audit log entries, and the closed error taxonomy they
// fail with.
package exch

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// OrderType distinguishes the admission path an order takes through the
// matching engine.
type OrderType string

const (
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeStop   OrderType = "STOP"
	OrderTypeOCO    OrderType = "OCO"
	OrderTypeMarket OrderType = "MARKET"
)

// TimeInForce selects the terminal handling of unfilled quantity.
type TimeInForce string

const (
	GTC TimeInForce = "GTC"
	IOC TimeInForce = "IOC"
	FOK TimeInForce = "FOK"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderOpen      OrderStatus = "OPEN"
	OrderPartial   OrderStatus = "PARTIAL"
	OrderFilled    OrderStatus = "FILLED"
	OrderCanceled  OrderStatus = "CANCELED"
)

// AccountStatus reflects whether an account may trade or withdraw.
type AccountStatus string

const (
	AccountActive AccountStatus = "ACTIVE"
	AccountFrozen AccountStatus = "FROZEN"
)

// TransactionType distinguishes a deposit from a withdrawal.
type TransactionType string

const (
	TxDeposit  TransactionType = "DEPOSIT"
	TxWithdraw TransactionType = "WITHDRAW"
)

// TransactionStatus is the lifecycle state of a Transaction.
type TransactionStatus string

const (
	TxPending   TransactionStatus = "PENDING"
	TxConfirmed TransactionStatus = "CONFIRMED"
	TxFailed    TransactionStatus = "FAILED"
)

// Asset identifies one leg of the market's trading pair. This core runs
// exactly one market, so only two asset values are ever in play, but the
// type stays an open string rather than a two-value enum so the base and
// quote symbols can be configured instead of hardcoded.
type Asset string

// User is an exchange login identity.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	// LastLogin is nil until RecordLogin is called; supplements spec.md's
	// User entity with the login timestamp original_source's admin
	// account_info read surfaces.
	LastLogin *time.Time
}

// Account is a user's single trading account.
type Account struct {
	ID       int64
	UserID   int64
	Status   AccountStatus
	KYCLevel int
	Frozen   bool
}

// Balance is one asset's available/locked ledger for an account.
type Balance struct {
	ID        int64
	AccountID int64
	Asset     Asset
	Available decimal.Decimal
	Locked    decimal.Decimal
	UpdatedAt time.Time
}

// Order is a single order in the book or in flight through the engine.
type Order struct {
	ID            int64
	UserID        int64
	AccountID     int64
	Market        string
	Side          Side
	Type          OrderType
	TimeInForce   TimeInForce
	Price         *decimal.Decimal // nil for a MARKET sell; a MARKET buy carries the best ask its lock was sized on
	Amount        decimal.Decimal
	Filled        decimal.Decimal
	StopPrice     *decimal.Decimal // set for STOP and the stop leg of OCO
	LinkOrderID   *int64           // OCO peer, if any
	Status        OrderStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Remaining is the unfilled quantity.
func (o *Order) Remaining() decimal.Decimal {
	return o.Amount.Sub(o.Filled)
}

// IsClosed reports whether the order can no longer receive fills.
func (o *Order) IsClosed() bool {
	return o.Status == OrderFilled || o.Status == OrderCanceled
}

// Trade is an immutable fill between a resting maker and an incoming taker.
type Trade struct {
	ID            int64
	BuyOrderID    int64
	SellOrderID   int64
	MakerOrderID  int64
	TakerOrderID  int64
	TakerSide     Side
	Price         decimal.Decimal
	Amount        decimal.Decimal
	Fee           decimal.Decimal
	CreatedAt     time.Time
}

// Transaction records a deposit or withdrawal against a user's balance.
type Transaction struct {
	ID            int64
	UserID        int64
	Asset         Asset
	Type          TransactionType
	Status        TransactionStatus
	Amount        decimal.Decimal
	Address       *string
	TxHash        *string
	Confirmations int
	ApproverID    *int64
	ApprovedAt    *time.Time
	RejectedAt    *time.Time
	Chain         string
	CreatedAt     time.Time
}

// AuditLog is a free-form record of an administrative action.
type AuditLog struct {
	ID        int64
	Actor     string
	Action    string
	Entity    string
	Metadata  map[string]any
	CreatedAt time.Time
}
