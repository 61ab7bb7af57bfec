// Package matching is the price-time-priority matching engine for a
// single market: it holds the resting book for both sides plus the
// auxiliary bookkeeping stop and OCO orders need, and is the only
// component allowed to mutate order book state.
package matching

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/altxchange/spotcore/pkg/eventbus"
	"github.com/altxchange/spotcore/pkg/exch"
	"github.com/altxchange/spotcore/pkg/orderbook"
	"github.com/altxchange/spotcore/pkg/store"
)

// Engine is one market's matching state: bids, asks, pending stop
// orders, and the OCO link table. A single mutex serializes every
// operation against this market, matching the core's single-writer
// concurrency model.
type Engine struct {
	Market  string
	FeeRate decimal.Decimal

	repo store.Repository
	bus  *eventbus.Bus

	mu           sync.Mutex
	bids         *orderbook.Side
	asks         *orderbook.Side
	pendingStops []exch.Order
	ocoLinks     map[int64]int64 // bidirectional: leg id -> peer leg id
}

// New returns an empty engine for market, wired to repo for persistence
// and bus for event publication.
func New(market string, repo store.Repository, bus *eventbus.Bus, feeRate decimal.Decimal) *Engine {
	return &Engine{
		Market:   market,
		FeeRate:  feeRate,
		repo:     repo,
		bus:      bus,
		bids:     orderbook.NewSide(true),
		asks:     orderbook.NewSide(false),
		ocoLinks: make(map[int64]int64),
	}
}

// SubmitLimit runs the cross-and-rest flow for a LIMIT or MARKET order.
func (e *Engine) SubmitLimit(order exch.Order) ([]exch.Trade, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.submitLimitLocked(order)
}

// SubmitStop parks a STOP order in the pending-trigger list.
func (e *Engine) SubmitStop(order exch.Order) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.submitStopLocked(order)
}

// SubmitOCO registers limitLeg and stopLeg as a linked pair and admits
// each: the limit leg runs the normal cross-and-rest flow (it may fill
// immediately, in which case the stop leg is cancelled on the spot); the
// stop leg is parked. Callers must have already set LinkOrderID on each
// leg to point at the other.
func (e *Engine) SubmitOCO(limitLeg, stopLeg exch.Order) ([]exch.Trade, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if limitLeg.LinkOrderID == nil || *limitLeg.LinkOrderID != stopLeg.ID ||
		stopLeg.LinkOrderID == nil || *stopLeg.LinkOrderID != limitLeg.ID {
		return nil, exch.NewOrderLink("OCO legs must each carry the other's order ID", limitLeg.ID, stopLeg.ID)
	}

	e.ocoLinks[limitLeg.ID] = stopLeg.ID
	e.ocoLinks[stopLeg.ID] = limitLeg.ID

	if err := e.submitStopLocked(stopLeg); err != nil {
		delete(e.ocoLinks, limitLeg.ID)
		delete(e.ocoLinks, stopLeg.ID)
		return nil, err
	}
	trades, err := e.submitLimitLocked(limitLeg)
	if err != nil {
		return nil, err
	}
	return trades, nil
}

// Cancel removes a resting (OPEN/PARTIAL) order from the book or the
// pending-stop list. Reports whether an order was actually cancelled.
func (e *Engine) Cancel(orderID int64) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancelLocked(orderID)
}

func (e *Engine) cancelLocked(orderID int64) (bool, error) {
	order, ok := e.repo.GetOrder(orderID)
	if !ok {
		return false, nil
	}
	if order.Status != exch.OrderOpen && order.Status != exch.OrderPartial {
		return false, nil
	}

	removed := e.bids.Remove(orderID) || e.asks.Remove(orderID)
	if !removed {
		removed = e.removePendingStop(orderID)
	}
	if !removed {
		return false, nil
	}

	order.Status = exch.OrderCanceled
	order.UpdatedAt = time.Now().UTC()
	if err := e.repo.UpdateOrder(order); err != nil {
		return false, err
	}
	e.bus.Publish(eventbus.OrderStatusChanged{Order: *order})
	e.clearOCOLink(orderID)
	return true, nil
}

// Snapshot returns depth summaries for both sides, best price first.
func (e *Engine) Snapshot() (bids, asks []orderbook.PriceLevelSummary) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bids.Summary(), e.asks.Summary()
}

// PendingStopCount reports how many STOP orders (including unfired OCO
// stop legs) are parked awaiting trigger.
func (e *Engine) PendingStopCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pendingStops)
}

// OCOPairCount reports how many distinct OCO pairs are still linked.
func (e *Engine) OCOPairCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.ocoLinks) / 2
}

func (e *Engine) submitLimitLocked(order exch.Order) ([]exch.Trade, error) {
	switch order.Type {
	case exch.OrderTypeLimit, exch.OrderTypeMarket, exch.OrderTypeOCO:
	default:
		return nil, exch.NewInvalidOrder("submitLimitLocked requires a LIMIT, MARKET, or OCO limit leg", order.ID)
	}

	bookToMatch, counterSide := e.asks, e.bids
	if order.Side == exch.Sell {
		bookToMatch, counterSide = e.bids, e.asks
	}

	if order.TimeInForce == exch.FOK {
		if e.calculateFillable(order, bookToMatch).LessThan(order.Remaining()) {
			order.Status = exch.OrderCanceled
			order.UpdatedAt = time.Now().UTC()
			if err := e.repo.UpdateOrder(&order); err != nil {
				return nil, err
			}
			e.bus.Publish(eventbus.OrderStatusChanged{Order: order})
			return nil, nil
		}
	}

	var trades []exch.Trade
	remaining := order.Remaining()

	for remaining.IsPositive() {
		maker := bookToMatch.PeekBestOrderRef()
		if maker == nil || !priceCrossed(order, maker.Price) {
			break
		}

		tradeAmount := decimal.Min(remaining, maker.Remaining())
		tradePrice := *maker.Price

		now := time.Now().UTC()
		maker.Filled = maker.Filled.Add(tradeAmount)
		maker.UpdatedAt = now
		if maker.Remaining().IsZero() {
			maker.Status = exch.OrderFilled
			bookToMatch.PopBestOrder()
		} else {
			maker.Status = exch.OrderPartial
		}

		order.Filled = order.Filled.Add(tradeAmount)
		order.UpdatedAt = now
		remaining = order.Remaining()
		if remaining.IsZero() {
			order.Status = exch.OrderFilled
		} else {
			order.Status = exch.OrderPartial
		}

		fee := tradeAmount.Mul(e.FeeRate)
		trade := exch.Trade{
			ID:           e.repo.NextID("trades"),
			BuyOrderID:   order.ID,
			SellOrderID:  maker.ID,
			MakerOrderID: maker.ID,
			TakerOrderID: order.ID,
			TakerSide:    order.Side,
			Price:        tradePrice,
			Amount:       tradeAmount,
			Fee:          fee,
			CreatedAt:    now,
		}
		if order.Side == exch.Sell {
			trade.BuyOrderID, trade.SellOrderID = maker.ID, order.ID
		}
		if err := e.repo.InsertTrade(&trade); err != nil {
			return nil, err
		}
		trades = append(trades, trade)

		if err := e.repo.UpdateOrder(maker); err != nil {
			return nil, err
		}
		if err := e.repo.UpdateOrder(&order); err != nil {
			return nil, err
		}

		e.bus.Publish(eventbus.TradeExecuted{Trade: trade})
		e.bus.Publish(eventbus.OrderStatusChanged{Order: *maker})

		if maker.Status == exch.OrderFilled {
			e.cancelOCOPeer(maker.ID)
		}

		e.triggerStops(tradePrice)
	}

	switch {
	case order.Remaining().IsZero():
		order.Status = exch.OrderFilled
		order.UpdatedAt = time.Now().UTC()
		if err := e.repo.UpdateOrder(&order); err != nil {
			return nil, err
		}
		e.bus.Publish(eventbus.OrderStatusChanged{Order: order})
	case order.TimeInForce == exch.GTC && order.Type != exch.OrderTypeMarket:
		if order.Filled.IsZero() {
			order.Status = exch.OrderOpen
		} else {
			order.Status = exch.OrderPartial
		}
		counterSide.Add(order)
		if err := e.repo.UpdateOrder(&order); err != nil {
			return nil, err
		}
		e.bus.Publish(eventbus.OrderAccepted{Order: order})
		e.bus.Publish(eventbus.OrderStatusChanged{Order: order})
	default:
		// IOC remainder, or a MARKET order that swept the book dry:
		// whatever quantity is left does not rest.
		if order.Filled.IsZero() {
			order.Status = exch.OrderCanceled
		} else {
			order.Status = exch.OrderPartial
		}
		order.UpdatedAt = time.Now().UTC()
		if err := e.repo.UpdateOrder(&order); err != nil {
			return nil, err
		}
		e.bus.Publish(eventbus.OrderStatusChanged{Order: order})
	}

	if order.Status == exch.OrderFilled {
		e.cancelOCOPeer(order.ID)
	}

	return trades, nil
}

func (e *Engine) submitStopLocked(order exch.Order) error {
	switch order.Type {
	case exch.OrderTypeStop, exch.OrderTypeOCO:
	default:
		return exch.NewInvalidOrder("submitStopLocked requires a STOP order or an OCO stop leg", order.ID)
	}
	if order.StopPrice == nil {
		return exch.NewStopOrder("stop order requires a stop price", order.ID, decimal.Zero)
	}
	if !order.StopPrice.IsPositive() {
		return exch.NewStopOrder("stop order requires a positive stop price", order.ID, *order.StopPrice)
	}
	order.Status = exch.OrderOpen
	if err := e.repo.UpdateOrder(&order); err != nil {
		return err
	}
	e.pendingStops = append(e.pendingStops, order)
	e.bus.Publish(eventbus.OrderAccepted{Order: order})
	return nil
}

// triggerStops fires every pending STOP order whose condition the most
// recent trade price satisfies, re-submitting each as a LIMIT order.
func (e *Engine) triggerStops(lastTradePrice decimal.Decimal) {
	var fired []exch.Order
	var still []exch.Order
	for _, stop := range e.pendingStops {
		if stopTriggered(stop, lastTradePrice) {
			fired = append(fired, stop)
		} else {
			still = append(still, stop)
		}
	}
	e.pendingStops = still

	for _, stop := range fired {
		limit := stop
		limit.Type = exch.OrderTypeLimit
		limit.StopPrice = nil
		if _, err := e.submitLimitLocked(limit); err != nil {
			continue
		}
	}
}

func stopTriggered(stop exch.Order, lastTradePrice decimal.Decimal) bool {
	if stop.StopPrice == nil {
		return false
	}
	if stop.Side == exch.Buy {
		return lastTradePrice.GreaterThanOrEqual(*stop.StopPrice)
	}
	return lastTradePrice.LessThanOrEqual(*stop.StopPrice)
}

func (e *Engine) removePendingStop(orderID int64) bool {
	for i, o := range e.pendingStops {
		if o.ID == orderID {
			e.pendingStops = append(e.pendingStops[:i], e.pendingStops[i+1:]...)
			return true
		}
	}
	return false
}

// cancelOCOPeer cancels filledOrderID's linked sibling, if it still has
// one, and clears the link in both directions.
func (e *Engine) cancelOCOPeer(filledOrderID int64) {
	peerID, ok := e.ocoLinks[filledOrderID]
	if !ok {
		return
	}
	delete(e.ocoLinks, filledOrderID)
	delete(e.ocoLinks, peerID)

	peer, ok := e.repo.GetOrder(peerID)
	if !ok || (peer.Status != exch.OrderOpen && peer.Status != exch.OrderPartial) {
		return
	}

	removed := e.bids.Remove(peerID) || e.asks.Remove(peerID)
	if !removed {
		removed = e.removePendingStop(peerID)
	}
	if !removed {
		return
	}

	peer.Status = exch.OrderCanceled
	peer.UpdatedAt = time.Now().UTC()
	if err := e.repo.UpdateOrder(peer); err != nil {
		return
	}
	e.bus.Publish(eventbus.OCOOrderCancelled{CancelledOrderID: peer.ID, TriggeringOrderID: filledOrderID})
	e.bus.Publish(eventbus.OrderStatusChanged{Order: *peer})
}

func (e *Engine) clearOCOLink(orderID int64) {
	peerID, ok := e.ocoLinks[orderID]
	if !ok {
		return
	}
	delete(e.ocoLinks, orderID)
	delete(e.ocoLinks, peerID)
}

func (e *Engine) calculateFillable(order exch.Order, book *orderbook.Side) decimal.Decimal {
	toFill := order.Remaining()
	filled := decimal.Zero
	book.IteratePriceLevels(func(level *orderbook.PriceLevel) bool {
		if !priceCrossed(order, &level.Price) {
			return false
		}
		available := level.Remaining()
		fill := decimal.Min(toFill, available)
		filled = filled.Add(fill)
		toFill = toFill.Sub(fill)
		return toFill.IsPositive()
	})
	return filled
}

// priceCrossed reports whether order's limit (or lack of one, for a
// MARKET order) crosses a resting price.
func priceCrossed(order exch.Order, restingPrice *decimal.Decimal) bool {
	if restingPrice == nil {
		return true
	}
	if order.Type == exch.OrderTypeMarket || order.Price == nil {
		return true
	}
	if order.Side == exch.Buy {
		return order.Price.GreaterThanOrEqual(*restingPrice)
	}
	return order.Price.LessThanOrEqual(*restingPrice)
}
