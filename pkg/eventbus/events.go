package eventbus

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/altxchange/spotcore/pkg/exch"
)

// OrderAccepted fires once an order clears validation and is admitted
// to the book (or the pending-stop list).
type OrderAccepted struct {
	Order exch.Order
}

// OrderStatusChanged fires whenever an order's status or filled amount
// changes: partial fill, full fill, cancellation, or rejection.
type OrderStatusChanged struct {
	Order     exch.Order
	FromState exch.OrderStatus
}

// TradeExecuted fires once per trade produced by the matching engine.
type TradeExecuted struct {
	Trade exch.Trade
}

// BalanceChanged fires whenever an account balance's available or
// locked amount is written.
type BalanceChanged struct {
	Balance exch.Balance
}

// AccountFrozen fires when an admin freezes an account.
type AccountFrozen struct {
	AccountID int64
	AdminID   int64
	Reason    string
	At        time.Time
}

// AccountUnfrozen fires when an admin lifts a freeze.
type AccountUnfrozen struct {
	AccountID int64
	AdminID   int64
	At        time.Time
}

// WithdrawalApproved fires on the approval that moves a withdrawal to
// CONFIRMED (the second of the two required approvals).
type WithdrawalApproved struct {
	TransactionID int64
	ApproverID    int64
	Amount        decimal.Decimal
}

// WithdrawalRejected fires when any admin rejects a pending withdrawal.
type WithdrawalRejected struct {
	TransactionID int64
	ApproverID    int64
	Reason        string
}

// OCOOrderCancelled fires when one leg of an OCO pair fills and the
// matching engine cancels its sibling.
type OCOOrderCancelled struct {
	CancelledOrderID int64
	TriggeringOrderID int64
}
