// Package orderbook is the per-side, price-time-priority resting order
// book the matching engine rests unfilled GTC/PARTIAL orders on. Each
// side keeps its price levels in a single slice sorted by price; a
// level disappears the instant its last order is popped or removed.
package orderbook

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/altxchange/spotcore/pkg/exch"
)

// PriceLevel is every resting order at a single price, oldest first.
type PriceLevel struct {
	Price  decimal.Decimal
	Orders []exch.Order
}

// Remaining is the level's aggregate unfilled amount.
func (l *PriceLevel) Remaining() decimal.Decimal {
	total := decimal.Zero
	for _, o := range l.Orders {
		total = total.Add(o.Remaining())
	}
	return total
}

// Side is one side (bids or asks) of a single market's book. Prices are
// kept sorted ascending; BestPrice reads from whichever end represents
// the most aggressive price for that side.
type Side struct {
	IsBuy  bool
	levels []*PriceLevel // sorted ascending by Price
}

// NewSide returns an empty book side.
func NewSide(isBuy bool) *Side {
	return &Side{IsBuy: isBuy}
}

// search returns the index of the level at price, and whether it was
// found, via binary search over the ascending-sorted slice.
func (s *Side) search(price decimal.Decimal) (int, bool) {
	i := sort.Search(len(s.levels), func(i int) bool {
		return s.levels[i].Price.Cmp(price) >= 0
	})
	if i < len(s.levels) && s.levels[i].Price.Equal(price) {
		return i, true
	}
	return i, false
}

// Add rests order on this side at its limit price.
func (s *Side) Add(order exch.Order) {
	if order.Price == nil {
		panic("orderbook: Add requires a limit price")
	}
	i, found := s.search(*order.Price)
	if found {
		s.levels[i].Orders = append(s.levels[i].Orders, order)
		return
	}
	level := &PriceLevel{Price: *order.Price, Orders: []exch.Order{order}}
	s.levels = append(s.levels, nil)
	copy(s.levels[i+1:], s.levels[i:])
	s.levels[i] = level
}

func (s *Side) removeLevelAt(i int) {
	s.levels = append(s.levels[:i], s.levels[i+1:]...)
}

// bestIndex returns the index of the best-priced level: the last
// (highest-price) level for bids, the first (lowest-price) for asks.
func (s *Side) bestIndex() int {
	if len(s.levels) == 0 {
		return -1
	}
	if s.IsBuy {
		return len(s.levels) - 1
	}
	return 0
}

// BestPrice is the most aggressive resting price on this side, or nil
// if the side is empty.
func (s *Side) BestPrice() *decimal.Decimal {
	i := s.bestIndex()
	if i < 0 {
		return nil
	}
	p := s.levels[i].Price
	return &p
}

// PeekBestOrder returns the oldest order at the best price without
// removing it.
func (s *Side) PeekBestOrder() *exch.Order {
	i := s.bestIndex()
	if i < 0 || len(s.levels[i].Orders) == 0 {
		return nil
	}
	o := s.levels[i].Orders[0]
	return &o
}

// PeekBestOrderRef returns a pointer directly into the resting order at
// the best price, letting a caller mutate its fill state in place
// (e.g. while matching) without a separate update step. The pointer is
// only valid until the next call that mutates this side.
func (s *Side) PeekBestOrderRef() *exch.Order {
	i := s.bestIndex()
	if i < 0 || len(s.levels[i].Orders) == 0 {
		return nil
	}
	return &s.levels[i].Orders[0]
}

// PopBestOrder removes and returns the oldest order at the best price,
// dropping the level entirely once it empties.
func (s *Side) PopBestOrder() *exch.Order {
	i := s.bestIndex()
	if i < 0 {
		return nil
	}
	level := s.levels[i]
	if len(level.Orders) == 0 {
		s.removeLevelAt(i)
		return nil
	}
	o := level.Orders[0]
	level.Orders = level.Orders[1:]
	if len(level.Orders) == 0 {
		s.removeLevelAt(i)
	}
	return &o
}

// Remove deletes a single resting order by id, wherever it sits in the
// book (used for explicit order cancellation). Reports whether it was
// found.
func (s *Side) Remove(orderID int64) bool {
	for i, level := range s.levels {
		for j, o := range level.Orders {
			if o.ID != orderID {
				continue
			}
			level.Orders = append(level.Orders[:j], level.Orders[j+1:]...)
			if len(level.Orders) == 0 {
				s.removeLevelAt(i)
			}
			return true
		}
	}
	return false
}

// IteratePriceLevels walks levels from best to worst price.
func (s *Side) IteratePriceLevels(fn func(*PriceLevel) bool) {
	if s.IsBuy {
		for i := len(s.levels) - 1; i >= 0; i-- {
			if len(s.levels[i].Orders) > 0 && !fn(s.levels[i]) {
				return
			}
		}
		return
	}
	for i := 0; i < len(s.levels); i++ {
		if len(s.levels[i].Orders) > 0 && !fn(s.levels[i]) {
			return
		}
	}
}

// Summary returns (price, aggregate remaining amount) pairs, best price
// first, for every non-empty level — a depth snapshot for market data
// and the admin market overview.
func (s *Side) Summary() []PriceLevelSummary {
	var out []PriceLevelSummary
	s.IteratePriceLevels(func(l *PriceLevel) bool {
		out = append(out, PriceLevelSummary{Price: l.Price, Amount: l.Remaining()})
		return true
	})
	return out
}

// PriceLevelSummary is one row of a depth snapshot.
type PriceLevelSummary struct {
	Price  decimal.Decimal
	Amount decimal.Decimal
}
