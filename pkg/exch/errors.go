package exch

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrorKind is the closed set of failure signals the core surfaces. No
// other error type escapes a core package; transport collaborators
// translate a Kind to their own status codes.
type ErrorKind string

const (
	InsufficientBalance ErrorKind = "INSUFFICIENT_BALANCE"
	InvalidOrder        ErrorKind = "INVALID_ORDER"
	EntityNotFound      ErrorKind = "ENTITY_NOT_FOUND"
	Settlement          ErrorKind = "SETTLEMENT_ERROR"
	OrderLink           ErrorKind = "ORDER_LINK_ERROR"
	StopOrder           ErrorKind = "STOP_ORDER_ERROR"
	AdminPermission     ErrorKind = "ADMIN_PERMISSION_ERROR"
	WithdrawalApproval  ErrorKind = "WITHDRAWAL_APPROVAL_ERROR"
)

// DomainError is the single error type every core package returns.
type DomainError struct {
	Kind    ErrorKind
	Message string
	Details map[string]any
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is lets callers match by kind via errors.Is(err, exch.ErrKind(exch.InvalidOrder)).
func (e *DomainError) Is(target error) bool {
	other, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

func newErr(kind ErrorKind, message string, details map[string]any) *DomainError {
	return &DomainError{Kind: kind, Message: message, Details: details}
}

func NewInsufficientBalance(message string, accountID int64, asset Asset, required, available decimal.Decimal) *DomainError {
	return newErr(InsufficientBalance, message, map[string]any{
		"account_id": accountID,
		"asset":      asset,
		"required":   required.String(),
		"available":  available.String(),
	})
}

func NewInvalidOrder(message string, orderID int64, validationErrors ...string) *DomainError {
	return newErr(InvalidOrder, message, map[string]any{
		"order_id":          orderID,
		"validation_errors": validationErrors,
	})
}

func NewEntityNotFound(message, entityType string, entityID int64) *DomainError {
	return newErr(EntityNotFound, message, map[string]any{
		"entity_type": entityType,
		"entity_id":   entityID,
	})
}

func NewSettlement(message string, tradeID, accountID int64) *DomainError {
	return newErr(Settlement, message, map[string]any{
		"trade_id":   tradeID,
		"account_id": accountID,
	})
}

func NewOrderLink(message string, orderID, linkedOrderID int64) *DomainError {
	return newErr(OrderLink, message, map[string]any{
		"order_id":        orderID,
		"linked_order_id": linkedOrderID,
	})
}

func NewStopOrder(message string, orderID int64, stopPrice decimal.Decimal) *DomainError {
	return newErr(StopOrder, message, map[string]any{
		"order_id":   orderID,
		"stop_price": stopPrice.String(),
	})
}

func NewAdminPermission(message string, adminID int64, operation string) *DomainError {
	return newErr(AdminPermission, message, map[string]any{
		"admin_id":  adminID,
		"operation": operation,
	})
}

func NewWithdrawalApproval(message string, transactionID, adminID int64) *DomainError {
	return newErr(WithdrawalApproval, message, map[string]any{
		"transaction_id": transactionID,
		"admin_id":       adminID,
	})
}

// ErrKind builds a bare sentinel usable with errors.Is(err, exch.ErrKind(exch.InvalidOrder)).
func ErrKind(kind ErrorKind) *DomainError {
	return &DomainError{Kind: kind}
}
