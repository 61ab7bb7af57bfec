package orderbook

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/altxchange/spotcore/pkg/exch"
)

func price(s string) *decimal.Decimal {
	p := decimal.RequireFromString(s)
	return &p
}

func TestBidsBestPriceIsHighest(t *testing.T) {
	s := NewSide(true)
	s.Add(exch.Order{ID: 1, Price: price("10"), Amount: decimal.NewFromInt(1)})
	s.Add(exch.Order{ID: 2, Price: price("12"), Amount: decimal.NewFromInt(1)})
	s.Add(exch.Order{ID: 3, Price: price("11"), Amount: decimal.NewFromInt(1)})

	if got := s.BestPrice(); got == nil || !got.Equal(decimal.NewFromInt(12)) {
		t.Fatalf("expected best bid 12, got %v", got)
	}
}

func TestAsksBestPriceIsLowest(t *testing.T) {
	s := NewSide(false)
	s.Add(exch.Order{ID: 1, Price: price("10"), Amount: decimal.NewFromInt(1)})
	s.Add(exch.Order{ID: 2, Price: price("8"), Amount: decimal.NewFromInt(1)})

	if got := s.BestPrice(); got == nil || !got.Equal(decimal.NewFromInt(8)) {
		t.Fatalf("expected best ask 8, got %v", got)
	}
}

func TestSamePriceQueuesFIFO(t *testing.T) {
	s := NewSide(true)
	s.Add(exch.Order{ID: 1, Price: price("10"), Amount: decimal.NewFromInt(1)})
	s.Add(exch.Order{ID: 2, Price: price("10"), Amount: decimal.NewFromInt(1)})

	first := s.PopBestOrder()
	if first == nil || first.ID != 1 {
		t.Fatalf("expected order 1 to pop first, got %v", first)
	}
	second := s.PopBestOrder()
	if second == nil || second.ID != 2 {
		t.Fatalf("expected order 2 to pop second, got %v", second)
	}
	if s.BestPrice() != nil {
		t.Fatalf("expected side to be empty after popping both orders")
	}
}

func TestRemoveDropsEmptyLevel(t *testing.T) {
	s := NewSide(true)
	s.Add(exch.Order{ID: 1, Price: price("10"), Amount: decimal.NewFromInt(1)})

	if !s.Remove(1) {
		t.Fatalf("expected Remove to find order 1")
	}
	if s.BestPrice() != nil {
		t.Fatalf("expected side to be empty after removing its only order")
	}
	if s.Remove(1) {
		t.Fatalf("expected second Remove of the same id to report not found")
	}
}

func TestSummaryAggregatesPerLevelBestFirst(t *testing.T) {
	s := NewSide(true)
	s.Add(exch.Order{ID: 1, Price: price("10"), Amount: decimal.NewFromInt(3)})
	s.Add(exch.Order{ID: 2, Price: price("10"), Amount: decimal.NewFromInt(2)})
	s.Add(exch.Order{ID: 3, Price: price("11"), Amount: decimal.NewFromInt(1)})

	summary := s.Summary()
	if len(summary) != 2 {
		t.Fatalf("expected 2 aggregated levels, got %d", len(summary))
	}
	if !summary[0].Price.Equal(decimal.NewFromInt(11)) {
		t.Fatalf("expected best bid level 11 first, got %v", summary[0].Price)
	}
	if !summary[1].Amount.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("expected level at 10 to aggregate to 5, got %v", summary[1].Amount)
	}
}
