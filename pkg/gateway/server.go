// Package gateway is a thin REST/WebSocket demonstrator over the
// account, admin, and market-data services: JSON in, JSON out, no
// business logic of its own beyond request parsing and DomainError
// translation.
package gateway

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/shopspring/decimal"

	"github.com/altxchange/spotcore/pkg/account"
	"github.com/altxchange/spotcore/pkg/admin"
	"github.com/altxchange/spotcore/pkg/exch"
	"github.com/altxchange/spotcore/pkg/marketdata"
	"github.com/altxchange/spotcore/pkg/orderbook"
)

// Server exposes the exchange core over HTTP and WebSocket.
type Server struct {
	market  string
	account *account.Service
	admin   *admin.Service
	feed    *marketdata.Feed

	router *mux.Router
	hub    *hub
}

// NewServer wires a gateway for market's account/admin/feed services.
func NewServer(market string, acct *account.Service, adm *admin.Service, feed *marketdata.Feed) *Server {
	s := &Server{
		market:  market,
		account: acct,
		admin:   adm,
		feed:    feed,
		router:  mux.NewRouter(),
		hub:     newHub(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/users", s.handleCreateUser).Methods("POST")
	api.HandleFunc("/accounts/{userID}", s.handleGetAccount).Methods("GET")
	api.HandleFunc("/accounts/{userID}/balances/{asset}", s.handleGetBalance).Methods("GET")
	api.HandleFunc("/accounts/{userID}/login", s.handleRecordLogin).Methods("POST")

	api.HandleFunc("/deposits", s.handleDeposit).Methods("POST")
	api.HandleFunc("/withdrawals", s.handleRequestWithdrawal).Methods("POST")

	api.HandleFunc("/orders", s.handlePlaceOrder).Methods("POST")
	api.HandleFunc("/orders/cancel", s.handleCancelOrder).Methods("POST")
	api.HandleFunc("/accounts/{userID}/orders", s.handleGetOrders).Methods("GET")
	api.HandleFunc("/accounts/{userID}/trades", s.handleGetTrades).Methods("GET")

	api.HandleFunc("/markets/{symbol}/orderbook", s.handleGetOrderbook).Methods("GET")

	adminRoutes := api.PathPrefix("/admin").Subrouter()
	adminRoutes.HandleFunc("/withdrawals/pending", s.handleListPendingWithdrawals).Methods("GET")
	adminRoutes.HandleFunc("/withdrawals/approve", s.handleApproveWithdrawal).Methods("POST")
	adminRoutes.HandleFunc("/withdrawals/reject", s.handleRejectWithdrawal).Methods("POST")
	adminRoutes.HandleFunc("/accounts/freeze", s.handleFreezeAccount).Methods("POST")
	adminRoutes.HandleFunc("/accounts/unfreeze", s.handleFreezeAccount).Methods("POST")
	adminRoutes.HandleFunc("/accounts/{accountID}", s.handleAccountInfo).Methods("GET")
	adminRoutes.HandleFunc("/overview", s.handleMarketOverview).Methods("GET")
	adminRoutes.HandleFunc("/audit-logs", s.handleAuditLogs).Methods("GET")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Start runs the HTTP server on addr, blocking until it exits.
func (s *Server) Start(addr string) error {
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: false,
	})
	log.Printf("[gateway] listening on %s", addr)
	return http.ListenAndServe(addr, c.Handler(s.router))
}

// BroadcastBookUpdate pushes the current depth snapshot of both sides to
// every connected WebSocket client; the wiring binary calls this on every
// TradeExecuted and OrderStatusChanged event.
func (s *Server) BroadcastBookUpdate() {
	bids, asks := s.feed.OrderBookSnapshot()
	s.hub.broadcast(map[string]any{
		"type":      "orderbook",
		"market":    s.market,
		"bids":      toWireLevels(bids),
		"asks":      toWireLevels(asks),
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	user, err := s.account.CreateUser(req.Email, req.PasswordHash)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, user)
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	userID, err := pathInt64(r, "userID")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	acct, err := s.account.GetAccount(userID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, acct)
}

func (s *Server) handleRecordLogin(w http.ResponseWriter, r *http.Request) {
	userID, err := pathInt64(r, "userID")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	user, err := s.account.RecordLogin(userID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	userID, err := pathInt64(r, "userID")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	asset := exch.Asset(mux.Vars(r)["asset"])
	balance, err := s.account.GetBalance(userID, asset)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, balance)
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_amount", err.Error())
		return
	}
	var txHash *string
	if req.TxHash != "" {
		txHash = &req.TxHash
	}
	tx, err := s.account.CreditDeposit(req.UserID, exch.Asset(req.Asset), amount, txHash)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, tx)
}

func (s *Server) handleRequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req WithdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_amount", err.Error())
		return
	}
	tx, err := s.account.RequestWithdrawal(req.UserID, exch.Asset(req.Asset), amount, req.Address)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, tx)
}

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req PlaceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	side := exch.Side(req.Side)
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_amount", err.Error())
		return
	}

	var order *exch.Order
	switch exch.OrderType(req.Type) {
	case exch.OrderTypeLimit:
		price, perr := decimal.NewFromString(req.Price)
		if perr != nil {
			respondError(w, http.StatusBadRequest, "invalid_price", perr.Error())
			return
		}
		order, err = s.account.PlaceLimitOrder(req.UserID, side, price, amount, exch.TimeInForce(req.TimeInForce))
	case exch.OrderTypeMarket:
		order, err = s.account.PlaceMarketOrder(req.UserID, side, amount)
	case exch.OrderTypeStop:
		stopPrice, serr := decimal.NewFromString(req.StopPrice)
		if serr != nil {
			respondError(w, http.StatusBadRequest, "invalid_stop_price", serr.Error())
			return
		}
		limitPrice, lerr := decimal.NewFromString(req.Price)
		if lerr != nil {
			respondError(w, http.StatusBadRequest, "invalid_price", lerr.Error())
			return
		}
		order, err = s.account.PlaceStopOrder(req.UserID, side, stopPrice, limitPrice, amount)
	case exch.OrderTypeOCO:
		limitPrice, lerr := decimal.NewFromString(req.Price)
		stopPrice, serr := decimal.NewFromString(req.StopPrice)
		stopLimitPrice, slerr := decimal.NewFromString(req.StopLimitPrice)
		if lerr != nil || serr != nil || slerr != nil {
			respondError(w, http.StatusBadRequest, "invalid_price", "price, stop_price and stop_limit_price are all required for an OCO order")
			return
		}
		var limitLeg, stopLeg *exch.Order
		limitLeg, stopLeg, err = s.account.PlaceOCOOrder(req.UserID, side, limitPrice, stopPrice, stopLimitPrice, amount)
		if err != nil {
			respondDomainError(w, err)
			return
		}
		respondJSON(w, http.StatusCreated, map[string]*exch.Order{"limit_leg": limitLeg, "stop_leg": stopLeg})
		return
	default:
		respondError(w, http.StatusBadRequest, "invalid_order_type", "type must be one of LIMIT, MARKET, STOP, OCO")
		return
	}

	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, order)
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	var req CancelOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	cancelled, err := s.account.CancelOrder(req.UserID, req.OrderID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"cancelled": cancelled})
}

func (s *Server) handleGetOrders(w http.ResponseWriter, r *http.Request) {
	userID, err := pathInt64(r, "userID")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, s.account.GetUserOrders(userID, nil))
}

func (s *Server) handleGetTrades(w http.ResponseWriter, r *http.Request) {
	userID, err := pathInt64(r, "userID")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, s.account.GetUserTrades(userID, 50))
}

func (s *Server) handleGetOrderbook(w http.ResponseWriter, r *http.Request) {
	bids, asks := s.feed.OrderBookSnapshot()
	respondJSON(w, http.StatusOK, OrderbookSnapshot{
		Market:    mux.Vars(r)["symbol"],
		Bids:      toWireLevels(bids),
		Asks:      toWireLevels(asks),
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleListPendingWithdrawals(w http.ResponseWriter, r *http.Request) {
	adminID, err := queryInt64(r, "admin_id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	txs, err := s.admin.ListPendingWithdrawals(adminID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, txs)
}

func (s *Server) handleApproveWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req ApproveRejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	tx, err := s.admin.ApproveWithdrawal(req.AdminID, req.TxID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, tx)
}

func (s *Server) handleRejectWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req ApproveRejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	tx, err := s.admin.RejectWithdrawal(req.AdminID, req.TxID, req.Reason)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, tx)
}

func (s *Server) handleFreezeAccount(w http.ResponseWriter, r *http.Request) {
	var req FreezeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	var (
		acct *exch.Account
		err2 error
	)
	if r.URL.Path == "/api/v1/admin/accounts/unfreeze" {
		acct, err2 = s.admin.UnfreezeAccount(req.AdminID, req.AccountID)
	} else {
		acct, err2 = s.admin.FreezeAccount(req.AdminID, req.AccountID, req.Reason)
	}
	if err2 != nil {
		respondDomainError(w, err2)
		return
	}
	respondJSON(w, http.StatusOK, acct)
}

func (s *Server) handleAccountInfo(w http.ResponseWriter, r *http.Request) {
	adminID, err := queryInt64(r, "admin_id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	accountID, err := pathInt64(r, "accountID")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	info, err := s.admin.AccountInfo(adminID, accountID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, info)
}

func (s *Server) handleMarketOverview(w http.ResponseWriter, r *http.Request) {
	adminID, err := queryInt64(r, "admin_id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	overview, err := s.admin.MarketOverview(adminID, s.market)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, overview)
}

func (s *Server) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	adminID, err := queryInt64(r, "admin_id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	q := r.URL.Query()
	logs, err := s.admin.AuditLogs(adminID, admin.AuditLogFilter{
		Actor:  q.Get("actor"),
		Action: q.Get("action"),
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, logs)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, errCode, message string) {
	respondJSON(w, status, ErrorResponse{Error: errCode, Message: message})
}

// respondDomainError maps a *exch.DomainError's Kind to the HTTP status
// an API client should treat it as; any other error is a 500.
func respondDomainError(w http.ResponseWriter, err error) {
	var domainErr *exch.DomainError
	if !errors.As(err, &domainErr) {
		respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	status := http.StatusInternalServerError
	switch domainErr.Kind {
	case exch.InsufficientBalance:
		status = http.StatusUnprocessableEntity
	case exch.InvalidOrder, exch.StopOrder, exch.OrderLink:
		status = http.StatusBadRequest
	case exch.EntityNotFound:
		status = http.StatusNotFound
	case exch.AdminPermission:
		status = http.StatusForbidden
	case exch.WithdrawalApproval:
		status = http.StatusConflict
	}
	respondError(w, status, string(domainErr.Kind), domainErr.Message)
}

func toWireLevels(levels []orderbook.PriceLevelSummary) []PriceLevel {
	out := make([]PriceLevel, len(levels))
	for i, l := range levels {
		out[i] = PriceLevel{Price: l.Price.String(), Amount: l.Amount.String()}
	}
	return out
}
