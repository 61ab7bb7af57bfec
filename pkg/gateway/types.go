package gateway

// ErrorResponse is the JSON body returned for any non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// PriceLevel is one aggregated book level, as JSON strings so decimal
// precision survives the wire.
type PriceLevel struct {
	Price  string `json:"price"`
	Amount string `json:"amount"`
}

// OrderbookSnapshot is the REST/WS representation of one side-pair of
// the book.
type OrderbookSnapshot struct {
	Market    string       `json:"market"`
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
	Timestamp string       `json:"timestamp"`
}

// CreateUserRequest is the body for POST /api/v1/users.
type CreateUserRequest struct {
	Email        string `json:"email"`
	PasswordHash string `json:"password_hash"`
}

// PlaceOrderRequest covers LIMIT, MARKET, STOP and OCO admission; the
// fields a given order type ignores are simply left zero-valued.
type PlaceOrderRequest struct {
	UserID         int64  `json:"user_id"`
	Side           string `json:"side"`
	Type           string `json:"type"`
	Price          string `json:"price,omitempty"`
	StopPrice      string `json:"stop_price,omitempty"`
	StopLimitPrice string `json:"stop_limit_price,omitempty"`
	Amount         string `json:"amount"`
	TimeInForce    string `json:"time_in_force,omitempty"`
}

// CancelOrderRequest is the body for POST /api/v1/orders/cancel.
type CancelOrderRequest struct {
	UserID  int64 `json:"user_id"`
	OrderID int64 `json:"order_id"`
}

// DepositRequest simulates an inbound chain deposit clearing.
type DepositRequest struct {
	UserID int64  `json:"user_id"`
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
	TxHash string `json:"tx_hash,omitempty"`
}

// WithdrawalRequest is the body for POST /api/v1/withdrawals.
type WithdrawalRequest struct {
	UserID  int64  `json:"user_id"`
	Asset   string `json:"asset"`
	Amount  string `json:"amount"`
	Address string `json:"address"`
}

// ApproveRejectRequest is the body for the admin withdrawal decision
// endpoints.
type ApproveRejectRequest struct {
	AdminID int64  `json:"admin_id"`
	TxID    int64  `json:"tx_id"`
	Reason  string `json:"reason,omitempty"`
}

// FreezeRequest is the body for POST /api/v1/admin/accounts/freeze.
type FreezeRequest struct {
	AdminID   int64  `json:"admin_id"`
	AccountID int64  `json:"account_id"`
	Reason    string `json:"reason,omitempty"`
}
