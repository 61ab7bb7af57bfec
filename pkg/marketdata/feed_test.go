package marketdata

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/altxchange/spotcore/pkg/eventbus"
	"github.com/altxchange/spotcore/pkg/exch"
	"github.com/altxchange/spotcore/pkg/matching"
	"github.com/altxchange/spotcore/pkg/store/memstore"
)

func newTestFeed(t *testing.T, capacity int) (*Feed, *eventbus.Bus) {
	t.Helper()
	repo := memstore.New()
	bus := eventbus.New(func(event any, r any) { t.Fatalf("handler panicked: %v", r) })
	engine := matching.New("ALT/USDT", repo, bus, decimal.RequireFromString("0.001"))
	return NewFeed(bus, engine, capacity), bus
}

func TestFeedRetainsRecentTrades(t *testing.T) {
	feed, bus := newTestFeed(t, 3)

	for i := int64(1); i <= 5; i++ {
		bus.Publish(eventbus.TradeExecuted{Trade: exch.Trade{ID: i}})
	}

	trades := feed.RecentTrades()
	if len(trades) != 3 {
		t.Fatalf("expected ring capped at 3, got %d", len(trades))
	}
	if trades[len(trades)-1].ID != 5 {
		t.Fatalf("expected newest trade last, got %+v", trades)
	}
	if trades[0].ID != 3 {
		t.Fatalf("expected oldest retained trade to be ID 3, got %d", trades[0].ID)
	}
}

func TestFeedRetainsOrderAcceptedAndStatusChanges(t *testing.T) {
	feed, bus := newTestFeed(t, 10)

	bus.Publish(eventbus.OrderAccepted{Order: exch.Order{ID: 1}})
	bus.Publish(eventbus.OrderStatusChanged{Order: exch.Order{ID: 1, Status: exch.OrderFilled}, FromState: exch.OrderOpen})

	if len(feed.RecentOrders()) != 1 {
		t.Fatalf("expected one accepted order recorded")
	}
	changes := feed.RecentStatusChanges()
	if len(changes) != 1 || changes[0].FromState != exch.OrderOpen {
		t.Fatalf("expected one status change recorded, got %+v", changes)
	}
}

func TestOrderBookSnapshotPassesThrough(t *testing.T) {
	feed, _ := newTestFeed(t, 10)
	bids, asks := feed.OrderBookSnapshot()
	if bids != nil || asks != nil {
		t.Fatalf("expected empty book snapshot on a fresh engine, got bids=%v asks=%v", bids, asks)
	}
}
