// Package account is the settlement service: user/account lifecycle,
// deposits and withdrawals, order placement and its balance locking,
// trade settlement, and the post-order rebalancing pass that keeps a
// resting order's locked balance exactly matched to its remaining size.
package account

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/altxchange/spotcore/pkg/eventbus"
	"github.com/altxchange/spotcore/pkg/exch"
	"github.com/altxchange/spotcore/pkg/matching"
	"github.com/altxchange/spotcore/pkg/store"
)

// Service is the settlement layer for a single market. It is the only
// component allowed to move balances between available and locked.
type Service struct {
	Market     string
	BaseAsset  exch.Asset
	QuoteAsset exch.Asset
	FeeRate    decimal.Decimal

	repo   store.Repository
	bus    *eventbus.Bus
	engine *matching.Engine
}

// New returns a settlement service for market, wired to repo, bus and
// the matching engine that owns the market's book.
func New(market string, baseAsset, quoteAsset exch.Asset, feeRate decimal.Decimal, repo store.Repository, bus *eventbus.Bus, engine *matching.Engine) *Service {
	return &Service{
		Market:     market,
		BaseAsset:  baseAsset,
		QuoteAsset: quoteAsset,
		FeeRate:    feeRate,
		repo:       repo,
		bus:        bus,
		engine:     engine,
	}
}

// CreateUser registers a user, an account, and zero balances for both
// of the market's assets, all in one scope.
func (s *Service) CreateUser(email, passwordHash string) (*exch.User, error) {
	scope := s.repo.Begin()
	defer scope.Rollback()

	user := &exch.User{
		ID:           s.repo.NextID("users"),
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.repo.InsertUser(user); err != nil {
		return nil, err
	}

	account := &exch.Account{
		ID:     s.repo.NextID("accounts"),
		UserID: user.ID,
		Status: exch.AccountActive,
	}
	if err := s.repo.InsertAccount(account); err != nil {
		return nil, err
	}

	for _, asset := range []exch.Asset{s.BaseAsset, s.QuoteAsset} {
		balance := &exch.Balance{
			ID:        s.repo.NextID("balances"),
			AccountID: account.ID,
			Asset:     asset,
			Available: decimal.Zero,
			Locked:    decimal.Zero,
			UpdatedAt: time.Now().UTC(),
		}
		if err := s.repo.UpsertBalance(balance); err != nil {
			return nil, err
		}
	}

	scope.Commit()
	return user, nil
}

// RecordLogin stamps userID's User.LastLogin with the current time. It
// records that a login happened; verifying credentials is out of scope
// for this core and is the caller's responsibility.
func (s *Service) RecordLogin(userID int64) (*exch.User, error) {
	user, ok := s.repo.GetUser(userID)
	if !ok {
		return nil, exch.NewEntityNotFound("user not found", "user", userID)
	}
	now := time.Now().UTC()
	user.LastLogin = &now
	if err := s.repo.UpdateUser(user); err != nil {
		return nil, err
	}
	return user, nil
}

// GetAccount returns the account owned by userID.
func (s *Service) GetAccount(userID int64) (*exch.Account, error) {
	accounts := s.repo.GetAccountsByUser(userID)
	if len(accounts) == 0 {
		return nil, exch.NewEntityNotFound("account not found for user", "account", userID)
	}
	return accounts[0], nil
}

// GetBalance returns userID's balance in asset.
func (s *Service) GetBalance(userID int64, asset exch.Asset) (*exch.Balance, error) {
	account, err := s.GetAccount(userID)
	if err != nil {
		return nil, err
	}
	balance, ok := s.repo.FindBalance(account.ID, asset)
	if !ok {
		return nil, exch.NewEntityNotFound("balance not found", "balance", account.ID)
	}
	return balance, nil
}

// CreditDeposit adds amount to the user's available balance and records
// a CONFIRMED deposit transaction.
func (s *Service) CreditDeposit(userID int64, asset exch.Asset, amount decimal.Decimal, txHash *string) (*exch.Transaction, error) {
	account, err := s.GetAccount(userID)
	if err != nil {
		return nil, err
	}

	scope := s.repo.Begin()
	defer scope.Rollback()

	balance, err := s.ensureBalance(account.ID, asset)
	if err != nil {
		return nil, err
	}
	balance.Available = balance.Available.Add(amount)
	balance.UpdatedAt = time.Now().UTC()
	if err := s.repo.UpsertBalance(balance); err != nil {
		return nil, err
	}

	tx := &exch.Transaction{
		ID:            s.repo.NextID("transactions"),
		UserID:        userID,
		Asset:         asset,
		Type:          exch.TxDeposit,
		Status:        exch.TxConfirmed,
		Amount:        amount,
		TxHash:        txHash,
		Confirmations: 12,
		Chain:         "BSC",
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.repo.InsertTransaction(tx); err != nil {
		return nil, err
	}

	scope.Commit()
	s.bus.Publish(eventbus.BalanceChanged{Balance: *balance})
	return tx, nil
}

// RequestWithdrawal locks amount out of available and records a PENDING
// withdrawal transaction awaiting admin approval.
func (s *Service) RequestWithdrawal(userID int64, asset exch.Asset, amount decimal.Decimal, address string) (*exch.Transaction, error) {
	account, err := s.GetAccount(userID)
	if err != nil {
		return nil, err
	}

	scope := s.repo.Begin()
	defer scope.Rollback()

	balance, err := s.ensureBalance(account.ID, asset)
	if err != nil {
		return nil, err
	}
	if balance.Available.LessThan(amount) {
		return nil, exch.NewInsufficientBalance("insufficient funds for withdrawal", account.ID, asset, amount, balance.Available)
	}
	balance.Available = balance.Available.Sub(amount)
	balance.Locked = balance.Locked.Add(amount)
	balance.UpdatedAt = time.Now().UTC()
	if err := s.repo.UpsertBalance(balance); err != nil {
		return nil, err
	}

	tx := &exch.Transaction{
		ID:        s.repo.NextID("transactions"),
		UserID:    userID,
		Asset:     asset,
		Type:      exch.TxWithdraw,
		Status:    exch.TxPending,
		Amount:    amount,
		Address:   &address,
		Chain:     "BSC",
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.InsertTransaction(tx); err != nil {
		return nil, err
	}

	scope.Commit()
	s.bus.Publish(eventbus.BalanceChanged{Balance: *balance})
	return tx, nil
}

// CompleteWithdrawal releases the locked amount and marks tx CONFIRMED.
// Called by the admin service once a withdrawal clears its two-eyes
// approval and the wallet port has accepted the transfer.
func (s *Service) CompleteWithdrawal(txID int64, txHash string, confirmations int) (*exch.Transaction, error) {
	tx, ok := s.repo.GetTransaction(txID)
	if !ok {
		return nil, exch.NewEntityNotFound("transaction not found", "transaction", txID)
	}
	if tx.Type != exch.TxWithdraw {
		return nil, exch.NewInvalidOrder("transaction is not a withdrawal", txID)
	}

	account, err := s.GetAccount(tx.UserID)
	if err != nil {
		return nil, err
	}

	scope := s.repo.Begin()
	defer scope.Rollback()

	balance, err := s.ensureBalance(account.ID, tx.Asset)
	if err != nil {
		return nil, err
	}
	if balance.Locked.LessThan(tx.Amount) {
		return nil, exch.NewSettlement("locked balance lower than withdrawal amount", tx.ID, account.ID)
	}
	balance.Locked = balance.Locked.Sub(tx.Amount)
	balance.UpdatedAt = time.Now().UTC()
	if err := s.repo.UpsertBalance(balance); err != nil {
		return nil, err
	}

	tx.Status = exch.TxConfirmed
	tx.TxHash = &txHash
	tx.Confirmations = confirmations
	if err := s.repo.UpdateTransaction(tx); err != nil {
		return nil, err
	}

	scope.Commit()
	s.bus.Publish(eventbus.BalanceChanged{Balance: *balance})
	return tx, nil
}

// PlaceLimitOrder locks the required balance, persists the order OPEN,
// submits it to the engine, settles any resulting trades, and runs the
// post-order rebalancing pass.
func (s *Service) PlaceLimitOrder(userID int64, side exch.Side, price, amount decimal.Decimal, tif exch.TimeInForce) (*exch.Order, error) {
	return s.placeResting(userID, side, exch.OrderTypeLimit, &price, nil, amount, tif, func(e *matching.Engine, order exch.Order) ([]exch.Trade, error) {
		return e.SubmitLimit(order)
	})
}

// PlaceStopOrder locks against the order's stored limit price (the
// price it will rest at once triggered) and parks it in the engine's
// pending-stop list.
func (s *Service) PlaceStopOrder(userID int64, side exch.Side, stopPrice, limitPrice, amount decimal.Decimal) (*exch.Order, error) {
	return s.placeResting(userID, side, exch.OrderTypeStop, &limitPrice, &stopPrice, amount, exch.GTC, func(e *matching.Engine, order exch.Order) ([]exch.Trade, error) {
		return nil, e.SubmitStop(order)
	})
}

// PlaceMarketOrder locks a conservative estimate of the settlement cost
// (for a BUY, the current best ask times amount with fee headroom; for
// a SELL, simply the base amount) and sweeps the book immediately; any
// surplus lock is returned to available by the rebalancing pass once
// the order reaches its terminal FILLED/CANCELED state.
func (s *Service) PlaceMarketOrder(userID int64, side exch.Side, amount decimal.Decimal) (*exch.Order, error) {
	var estimatePrice *decimal.Decimal
	if side == exch.Buy {
		bids, asks := s.engine.Snapshot()
		_ = bids
		if len(asks) == 0 {
			return nil, exch.NewInvalidOrder("no resting liquidity to price a market buy", 0)
		}
		estimatePrice = &asks[0].Price
	}
	return s.placeResting(userID, side, exch.OrderTypeMarket, estimatePrice, nil, amount, exch.IOC, func(e *matching.Engine, order exch.Order) ([]exch.Trade, error) {
		return e.SubmitLimit(order)
	})
}

// PlaceOCOOrder registers a limit leg and a stop leg as a linked pair.
// Both legs share one lock, sized to cover whichever leg would require
// more (for a SELL this is the same amount either way; for a BUY it is
// the higher of the two prices) since at most one leg ever settles.
func (s *Service) PlaceOCOOrder(userID int64, side exch.Side, limitPrice, stopPrice, stopLimitPrice, amount decimal.Decimal) (limitLeg, stopLeg *exch.Order, err error) {
	account, err := s.GetAccount(userID)
	if err != nil {
		return nil, nil, err
	}
	if err := s.validateOrderInputs(account, amount, limitPrice); err != nil {
		return nil, nil, err
	}

	lockPrice := limitPrice
	if side == exch.Buy && stopLimitPrice.GreaterThan(lockPrice) {
		lockPrice = stopLimitPrice
	}
	lockAsset, lockAmount := s.lockRequirement(side, lockPrice, amount)

	scope := s.repo.Begin()
	defer scope.Rollback()

	balance, err := s.ensureBalance(account.ID, lockAsset)
	if err != nil {
		return nil, nil, err
	}
	if balance.Available.LessThan(lockAmount) {
		return nil, nil, exch.NewInsufficientBalance("insufficient available balance for OCO order", account.ID, lockAsset, lockAmount, balance.Available)
	}
	balance.Available = balance.Available.Sub(lockAmount)
	balance.Locked = balance.Locked.Add(lockAmount)
	balance.UpdatedAt = time.Now().UTC()
	if err := s.repo.UpsertBalance(balance); err != nil {
		return nil, nil, err
	}

	now := time.Now().UTC()
	limit := &exch.Order{
		ID: s.repo.NextID("orders"), UserID: userID, AccountID: account.ID,
		Market: s.Market, Side: side, Type: exch.OrderTypeOCO, TimeInForce: exch.GTC,
		Price: &limitPrice, Amount: amount, Status: exch.OrderOpen,
		CreatedAt: now, UpdatedAt: now,
	}
	stop := &exch.Order{
		ID: s.repo.NextID("orders"), UserID: userID, AccountID: account.ID,
		Market: s.Market, Side: side, Type: exch.OrderTypeOCO, TimeInForce: exch.GTC,
		Price: &stopLimitPrice, StopPrice: &stopPrice, Amount: amount, Status: exch.OrderOpen,
		CreatedAt: now, UpdatedAt: now,
	}
	limit.LinkOrderID = &stop.ID
	stop.LinkOrderID = &limit.ID
	if err := s.repo.InsertOrder(limit); err != nil {
		return nil, nil, err
	}
	if err := s.repo.InsertOrder(stop); err != nil {
		return nil, nil, err
	}

	scope.Commit()
	s.bus.Publish(eventbus.BalanceChanged{Balance: *balance})

	trades, err := s.engine.SubmitOCO(*limit, *stop)
	if err != nil {
		return nil, nil, err
	}
	if len(trades) > 0 {
		if err := s.settleTrades(trades); err != nil {
			return nil, nil, err
		}
	}
	if err := s.rebalanceOrder(limit.ID); err != nil {
		return nil, nil, err
	}
	if err := s.rebalanceOrder(stop.ID); err != nil {
		return nil, nil, err
	}
	return limit, stop, nil
}

type submitFunc func(*matching.Engine, exch.Order) ([]exch.Trade, error)

func (s *Service) placeResting(userID int64, side exch.Side, orderType exch.OrderType, price, stopPrice *decimal.Decimal, amount decimal.Decimal, tif exch.TimeInForce, submit submitFunc) (*exch.Order, error) {
	account, err := s.GetAccount(userID)
	if err != nil {
		return nil, err
	}
	var lockCheckPrice decimal.Decimal
	if price != nil {
		lockCheckPrice = *price
	}
	if err := s.validateOrderInputs(account, amount, lockCheckPrice); err != nil {
		return nil, err
	}

	lockAsset, lockAmount := s.lockRequirement(side, lockCheckPrice, amount)
	now := time.Now().UTC()

	scope := s.repo.Begin()
	defer scope.Rollback()

	balance, err := s.ensureBalance(account.ID, lockAsset)
	if err != nil {
		return nil, err
	}
	if balance.Available.LessThan(lockAmount) {
		return nil, exch.NewInsufficientBalance("insufficient available balance for order", account.ID, lockAsset, lockAmount, balance.Available)
	}
	balance.Available = balance.Available.Sub(lockAmount)
	balance.Locked = balance.Locked.Add(lockAmount)
	balance.UpdatedAt = now
	if err := s.repo.UpsertBalance(balance); err != nil {
		return nil, err
	}

	order := &exch.Order{
		ID:          s.repo.NextID("orders"),
		UserID:      userID,
		AccountID:   account.ID,
		Market:      s.Market,
		Side:        side,
		Type:        orderType,
		TimeInForce: tif,
		Price:       price,
		StopPrice:   stopPrice,
		Amount:      amount,
		Status:      exch.OrderOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.InsertOrder(order); err != nil {
		return nil, err
	}

	scope.Commit()
	s.bus.Publish(eventbus.BalanceChanged{Balance: *balance})

	trades, err := submit(s.engine, *order)
	if err != nil {
		return nil, err
	}
	if len(trades) > 0 {
		if err := s.settleTrades(trades); err != nil {
			return nil, err
		}
	}
	if err := s.rebalanceOrder(order.ID); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *Service) validateOrderInputs(account *exch.Account, amount, price decimal.Decimal) error {
	if account.Status == exch.AccountFrozen || account.Frozen {
		return exch.NewInvalidOrder("account is frozen", account.ID)
	}
	if !amount.IsPositive() {
		return exch.NewInvalidOrder("amount must be positive", 0)
	}
	if !price.IsZero() && !price.IsPositive() {
		return exch.NewInvalidOrder("price must be positive", 0)
	}
	return nil
}

// GetUserOrders returns userID's orders newest first, optionally
// filtered by status.
func (s *Service) GetUserOrders(userID int64, status *exch.OrderStatus) []*exch.Order {
	orders := s.repo.GetOrdersByUser(userID)
	if status == nil {
		return orders
	}
	var out []*exch.Order
	for _, o := range orders {
		if o.Status == *status {
			out = append(out, o)
		}
	}
	return out
}

// GetUserTrades returns up to limit of userID's trades, newest first.
func (s *Service) GetUserTrades(userID int64, limit int) []*exch.Trade {
	trades := s.repo.GetTradesByUser(userID)
	if limit > 0 && len(trades) > limit {
		trades = trades[:limit]
	}
	return trades
}

// CancelOrder cancels order orderID on behalf of userID and releases
// its locked funds. Reports false if the order doesn't belong to the
// user or isn't cancellable.
func (s *Service) CancelOrder(userID, orderID int64) (bool, error) {
	order, ok := s.repo.GetOrder(orderID)
	if !ok || order.UserID != userID {
		return false, nil
	}
	cancelled, err := s.engine.Cancel(orderID)
	if err != nil || !cancelled {
		return false, err
	}
	if err := s.releaseLockedFunds(order); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) releaseLockedFunds(order *exch.Order) error {
	asset, amount := s.lockRequirement(order.Side, valueOr(order.Price, decimal.Zero), order.Remaining())

	scope := s.repo.Begin()
	defer scope.Rollback()

	balance, err := s.ensureBalance(order.AccountID, asset)
	if err != nil {
		return err
	}
	balance.Locked = balance.Locked.Sub(amount)
	balance.Available = balance.Available.Add(amount)
	balance.UpdatedAt = time.Now().UTC()
	if err := s.repo.UpsertBalance(balance); err != nil {
		return err
	}
	scope.Commit()
	s.bus.Publish(eventbus.BalanceChanged{Balance: *balance})
	return nil
}

// settleTrades applies each trade's balance deltas: the buyer's quote
// lock shrinks by the slice it covers, the buyer receives base; the
// seller's base lock shrinks by the traded amount, the seller receives
// quote net of fee.
func (s *Service) settleTrades(trades []exch.Trade) error {
	scope := s.repo.Begin()
	defer scope.Rollback()

	now := time.Now().UTC()
	touched := make(map[int64]bool)

	for _, trade := range trades {
		buyOrder, ok := s.repo.GetOrder(trade.BuyOrderID)
		if !ok {
			return exch.NewEntityNotFound("buy order not found during settlement", "order", trade.BuyOrderID)
		}
		sellOrder, ok := s.repo.GetOrder(trade.SellOrderID)
		if !ok {
			return exch.NewEntityNotFound("sell order not found during settlement", "order", trade.SellOrderID)
		}
		touched[buyOrder.ID] = true
		touched[sellOrder.ID] = true

		notional := trade.Price.Mul(trade.Amount)
		quoteLockRelease := trade.Price.Mul(trade.Amount).Mul(decimal.NewFromInt(1).Add(s.FeeRate))

		buyQuote, err := s.ensureBalance(buyOrder.AccountID, s.QuoteAsset)
		if err != nil {
			return err
		}
		buyQuote.Locked = buyQuote.Locked.Sub(quoteLockRelease)
		if buyQuote.Locked.IsNegative() {
			return exch.NewSettlement("negative locked balance for buyer", trade.ID, buyOrder.AccountID)
		}
		buyQuote.UpdatedAt = now
		if err := s.repo.UpsertBalance(buyQuote); err != nil {
			return err
		}

		buyBase, err := s.ensureBalance(buyOrder.AccountID, s.BaseAsset)
		if err != nil {
			return err
		}
		buyBase.Available = buyBase.Available.Add(trade.Amount)
		buyBase.UpdatedAt = now
		if err := s.repo.UpsertBalance(buyBase); err != nil {
			return err
		}

		sellBase, err := s.ensureBalance(sellOrder.AccountID, s.BaseAsset)
		if err != nil {
			return err
		}
		sellBase.Locked = sellBase.Locked.Sub(trade.Amount)
		if sellBase.Locked.IsNegative() {
			return exch.NewSettlement("negative locked balance for seller", trade.ID, sellOrder.AccountID)
		}
		sellBase.UpdatedAt = now
		if err := s.repo.UpsertBalance(sellBase); err != nil {
			return err
		}

		sellQuote, err := s.ensureBalance(sellOrder.AccountID, s.QuoteAsset)
		if err != nil {
			return err
		}
		sellQuote.Available = sellQuote.Available.Add(notional.Mul(decimal.NewFromInt(1).Sub(s.FeeRate)))
		sellQuote.UpdatedAt = now
		if err := s.repo.UpsertBalance(sellQuote); err != nil {
			return err
		}

		s.bus.Publish(eventbus.BalanceChanged{Balance: *buyQuote})
		s.bus.Publish(eventbus.BalanceChanged{Balance: *buyBase})
		s.bus.Publish(eventbus.BalanceChanged{Balance: *sellBase})
		s.bus.Publish(eventbus.BalanceChanged{Balance: *sellQuote})
		s.bus.Publish(eventbus.OrderStatusChanged{Order: *buyOrder})
		s.bus.Publish(eventbus.OrderStatusChanged{Order: *sellOrder})
	}

	scope.Commit()

	for orderID := range touched {
		if err := s.rebalanceOrder(orderID); err != nil {
			return err
		}
	}
	return nil
}

// rebalanceOrder recomputes the expected locked amount for order and
// releases any surplus back to available.
func (s *Service) rebalanceOrder(orderID int64) error {
	order, ok := s.repo.GetOrder(orderID)
	if !ok {
		return nil
	}
	return s.rebalance(order)
}

func (s *Service) rebalance(order *exch.Order) error {
	expected := s.expectedLocked(order)
	asset := s.lockAssetFor(order.Side)

	scope := s.repo.Begin()
	defer scope.Rollback()

	balance, err := s.ensureBalance(order.AccountID, asset)
	if err != nil {
		return err
	}
	delta := balance.Locked.Sub(expected)
	if delta.IsNegative() {
		return exch.NewSettlement("locked balance below expected level", order.ID, order.AccountID)
	}
	if delta.IsPositive() {
		balance.Locked = balance.Locked.Sub(delta)
		balance.Available = balance.Available.Add(delta)
		balance.UpdatedAt = time.Now().UTC()
		if err := s.repo.UpsertBalance(balance); err != nil {
			return err
		}
		scope.Commit()
		s.bus.Publish(eventbus.BalanceChanged{Balance: *balance})
		return nil
	}
	scope.Commit()
	return nil
}

func (s *Service) expectedLocked(order *exch.Order) decimal.Decimal {
	remaining := order.Remaining()
	switch {
	case order.Status == exch.OrderCanceled || order.Status == exch.OrderFilled:
		remaining = decimal.Zero
	case order.Status == exch.OrderPartial && order.TimeInForce != exch.GTC:
		remaining = decimal.Zero
	}
	if order.Side == exch.Buy {
		price := valueOr(order.Price, decimal.Zero)
		return price.Mul(remaining).Mul(decimal.NewFromInt(1).Add(s.FeeRate))
	}
	return remaining
}

func (s *Service) lockAssetFor(side exch.Side) exch.Asset {
	if side == exch.Buy {
		return s.QuoteAsset
	}
	return s.BaseAsset
}

// lockRequirement returns the asset and amount a new order of side,
// price and amount must lock: a BUY reserves quote with fee headroom
// against the maker's (possibly more favorable) price; a SELL reserves
// the raw base amount.
func (s *Service) lockRequirement(side exch.Side, price, amount decimal.Decimal) (exch.Asset, decimal.Decimal) {
	if side == exch.Buy {
		return s.QuoteAsset, price.Mul(amount).Mul(decimal.NewFromInt(1).Add(s.FeeRate))
	}
	return s.BaseAsset, amount
}

func (s *Service) ensureBalance(accountID int64, asset exch.Asset) (*exch.Balance, error) {
	balance, ok := s.repo.FindBalance(accountID, asset)
	if ok {
		return balance, nil
	}
	balance = &exch.Balance{
		ID:        s.repo.NextID("balances"),
		AccountID: accountID,
		Asset:     asset,
		Available: decimal.Zero,
		Locked:    decimal.Zero,
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.repo.UpsertBalance(balance); err != nil {
		return nil, err
	}
	return balance, nil
}

func valueOr(p *decimal.Decimal, fallback decimal.Decimal) decimal.Decimal {
	if p == nil {
		return fallback
	}
	return *p
}
