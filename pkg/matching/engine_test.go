package matching

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/altxchange/spotcore/pkg/eventbus"
	"github.com/altxchange/spotcore/pkg/exch"
	"github.com/altxchange/spotcore/pkg/store/memstore"
)

func newTestEngine(t *testing.T) (*Engine, *memstore.Store) {
	t.Helper()
	repo := memstore.New()
	bus := eventbus.New(func(event any, r any) { t.Fatalf("handler panicked: %v", r) })
	return New("ALT/USDT", repo, bus, decimal.RequireFromString("0.001")), repo
}

func limitOrder(repo *memstore.Store, side exch.Side, price, amount string, tif exch.TimeInForce) exch.Order {
	p := decimal.RequireFromString(price)
	return exch.Order{
		ID:          repo.NextID("orders"),
		Market:      "ALT/USDT",
		Side:        side,
		Type:        exch.OrderTypeLimit,
		TimeInForce: tif,
		Price:       &p,
		Amount:      decimal.RequireFromString(amount),
	}
}

func TestRestingGTCThenCrossingTrade(t *testing.T) {
	e, repo := newTestEngine(t)

	maker := limitOrder(repo, exch.Sell, "100", "5", exch.GTC)
	if err := repo.InsertOrder(&maker); err != nil {
		t.Fatal(err)
	}
	if _, err := e.SubmitLimit(maker); err != nil {
		t.Fatal(err)
	}

	taker := limitOrder(repo, exch.Buy, "100", "3", exch.GTC)
	if err := repo.InsertOrder(&taker); err != nil {
		t.Fatal(err)
	}
	trades, err := e.SubmitLimit(taker)
	if err != nil {
		t.Fatal(err)
	}
	if len(trades) != 1 || !trades[0].Amount.Equal(decimal.RequireFromString("3")) {
		t.Fatalf("expected one trade of amount 3, got %+v", trades)
	}

	resting, ok := repo.GetOrder(maker.ID)
	if !ok || resting.Status != exch.OrderPartial || !resting.Filled.Equal(decimal.RequireFromString("3")) {
		t.Fatalf("expected maker PARTIAL with filled 3, got %+v", resting)
	}

	takerPersisted, ok := repo.GetOrder(taker.ID)
	if !ok || takerPersisted.Status != exch.OrderFilled {
		t.Fatalf("expected taker FILLED, got %+v", takerPersisted)
	}
}

func TestFOKCancelsWhenInsufficientLiquidity(t *testing.T) {
	e, repo := newTestEngine(t)

	maker := limitOrder(repo, exch.Sell, "100", "2", exch.GTC)
	if err := repo.InsertOrder(&maker); err != nil {
		t.Fatal(err)
	}
	if _, err := e.SubmitLimit(maker); err != nil {
		t.Fatal(err)
	}

	taker := limitOrder(repo, exch.Buy, "100", "5", exch.FOK)
	if err := repo.InsertOrder(&taker); err != nil {
		t.Fatal(err)
	}
	trades, err := e.SubmitLimit(taker)
	if err != nil {
		t.Fatal(err)
	}
	if len(trades) != 0 {
		t.Fatalf("expected FOK to produce no trades, got %+v", trades)
	}
	persisted, ok := repo.GetOrder(taker.ID)
	if !ok || persisted.Status != exch.OrderCanceled {
		t.Fatalf("expected FOK order CANCELED, got %+v", persisted)
	}
}

func TestIOCCancelsRemainder(t *testing.T) {
	e, repo := newTestEngine(t)

	maker := limitOrder(repo, exch.Sell, "100", "2", exch.GTC)
	if err := repo.InsertOrder(&maker); err != nil {
		t.Fatal(err)
	}
	if _, err := e.SubmitLimit(maker); err != nil {
		t.Fatal(err)
	}

	taker := limitOrder(repo, exch.Buy, "100", "5", exch.IOC)
	if err := repo.InsertOrder(&taker); err != nil {
		t.Fatal(err)
	}
	trades, err := e.SubmitLimit(taker)
	if err != nil {
		t.Fatal(err)
	}
	if len(trades) != 1 {
		t.Fatalf("expected one trade before IOC cancels remainder, got %+v", trades)
	}
	persisted, ok := repo.GetOrder(taker.ID)
	if !ok || persisted.Status != exch.OrderPartial {
		t.Fatalf("expected IOC remainder order terminally PARTIAL, got %+v", persisted)
	}
}

func TestExplicitCancelRemovesRestingOrder(t *testing.T) {
	e, repo := newTestEngine(t)

	order := limitOrder(repo, exch.Buy, "90", "1", exch.GTC)
	if err := repo.InsertOrder(&order); err != nil {
		t.Fatal(err)
	}
	if _, err := e.SubmitLimit(order); err != nil {
		t.Fatal(err)
	}

	cancelled, err := e.Cancel(order.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !cancelled {
		t.Fatalf("expected cancel to succeed on a resting order")
	}
	persisted, ok := repo.GetOrder(order.ID)
	if !ok || persisted.Status != exch.OrderCanceled {
		t.Fatalf("expected order CANCELED, got %+v", persisted)
	}
	if again, _ := e.Cancel(order.ID); again {
		t.Fatalf("expected cancelling an already-cancelled order to be a no-op")
	}
}

func TestStopOrderTriggersOnQualifyingTrade(t *testing.T) {
	e, repo := newTestEngine(t)

	stopPrice := decimal.RequireFromString("105")
	limitPrice := decimal.RequireFromString("106")
	stop := exch.Order{
		ID:          repo.NextID("orders"),
		Market:      "ALT/USDT",
		Side:        exch.Buy,
		Type:        exch.OrderTypeStop,
		TimeInForce: exch.GTC,
		StopPrice:   &stopPrice,
		Price:       &limitPrice,
		Amount:      decimal.RequireFromString("1"),
	}
	if err := repo.InsertOrder(&stop); err != nil {
		t.Fatal(err)
	}
	if err := e.SubmitStop(stop); err != nil {
		t.Fatal(err)
	}
	if e.PendingStopCount() != 1 {
		t.Fatalf("expected 1 pending stop, got %d", e.PendingStopCount())
	}

	maker := limitOrder(repo, exch.Sell, "105", "3", exch.GTC)
	if err := repo.InsertOrder(&maker); err != nil {
		t.Fatal(err)
	}
	if _, err := e.SubmitLimit(maker); err != nil {
		t.Fatal(err)
	}

	triggerTaker := limitOrder(repo, exch.Buy, "105", "1", exch.GTC)
	if err := repo.InsertOrder(&triggerTaker); err != nil {
		t.Fatal(err)
	}
	if _, err := e.SubmitLimit(triggerTaker); err != nil {
		t.Fatal(err)
	}

	if e.PendingStopCount() != 0 {
		t.Fatalf("expected stop order to have fired, got %d still pending", e.PendingStopCount())
	}
	fired, ok := repo.GetOrder(stop.ID)
	if !ok {
		t.Fatalf("expected fired stop order to persist")
	}
	if fired.Type != exch.OrderTypeLimit {
		t.Fatalf("expected fired stop to be resubmitted as LIMIT, got %v", fired.Type)
	}
}

func TestOCOFillCancelsPeer(t *testing.T) {
	e, repo := newTestEngine(t)

	limitLeg := limitOrder(repo, exch.Sell, "110", "10", exch.GTC)
	limitLeg.Type = exch.OrderTypeOCO
	stopPrice := decimal.RequireFromString("90")
	stopLimitPrice := decimal.RequireFromString("89")
	stopLeg := exch.Order{
		ID:          repo.NextID("orders"),
		Market:      "ALT/USDT",
		Side:        exch.Sell,
		Type:        exch.OrderTypeOCO,
		TimeInForce: exch.GTC,
		StopPrice:   &stopPrice,
		Price:       &stopLimitPrice,
		Amount:      decimal.RequireFromString("10"),
	}
	limitLeg.LinkOrderID = &stopLeg.ID
	stopLeg.LinkOrderID = &limitLeg.ID
	if err := repo.InsertOrder(&limitLeg); err != nil {
		t.Fatal(err)
	}
	if err := repo.InsertOrder(&stopLeg); err != nil {
		t.Fatal(err)
	}

	if _, err := e.SubmitOCO(limitLeg, stopLeg); err != nil {
		t.Fatal(err)
	}
	if e.OCOPairCount() != 1 {
		t.Fatalf("expected 1 registered OCO pair, got %d", e.OCOPairCount())
	}

	taker := limitOrder(repo, exch.Buy, "110", "10", exch.GTC)
	if _, err := e.SubmitLimit(taker); err != nil {
		t.Fatal(err)
	}

	limitPersisted, ok := repo.GetOrder(limitLeg.ID)
	if !ok || limitPersisted.Status != exch.OrderFilled {
		t.Fatalf("expected limit leg FILLED, got %+v", limitPersisted)
	}
	stopPersisted, ok := repo.GetOrder(stopLeg.ID)
	if !ok || stopPersisted.Status != exch.OrderCanceled {
		t.Fatalf("expected stop leg CANCELED, got %+v", stopPersisted)
	}
	if e.PendingStopCount() != 0 {
		t.Fatalf("expected stop leg removed from pending list, got %d", e.PendingStopCount())
	}
	if e.OCOPairCount() != 0 {
		t.Fatalf("expected OCO pair cleared after resolution, got %d", e.OCOPairCount())
	}
}

func TestSubmitStopRejectsMissingStopPrice(t *testing.T) {
	e, repo := newTestEngine(t)

	limitPrice := decimal.RequireFromString("106")
	stop := exch.Order{
		ID:          repo.NextID("orders"),
		Market:      "ALT/USDT",
		Side:        exch.Buy,
		Type:        exch.OrderTypeStop,
		TimeInForce: exch.GTC,
		Price:       &limitPrice,
		Amount:      decimal.RequireFromString("1"),
	}
	err := e.SubmitStop(stop)
	if !errors.Is(err, exch.ErrKind(exch.StopOrder)) {
		t.Fatalf("expected a StopOrder domain error, got %v", err)
	}
}

func TestSubmitOCORejectsMismatchedLinks(t *testing.T) {
	e, repo := newTestEngine(t)

	limitLeg := limitOrder(repo, exch.Sell, "110", "10", exch.GTC)
	limitLeg.Type = exch.OrderTypeOCO
	stopPrice := decimal.RequireFromString("90")
	stopLimitPrice := decimal.RequireFromString("89")
	stopLeg := exch.Order{
		ID:          repo.NextID("orders"),
		Market:      "ALT/USDT",
		Side:        exch.Sell,
		Type:        exch.OrderTypeOCO,
		TimeInForce: exch.GTC,
		StopPrice:   &stopPrice,
		Price:       &stopLimitPrice,
		Amount:      decimal.RequireFromString("10"),
	}
	// Links deliberately left unset.

	_, err := e.SubmitOCO(limitLeg, stopLeg)
	if !errors.Is(err, exch.ErrKind(exch.OrderLink)) {
		t.Fatalf("expected an OrderLink domain error, got %v", err)
	}
	if e.OCOPairCount() != 0 {
		t.Fatalf("expected no OCO pair registered after a rejected link, got %d", e.OCOPairCount())
	}
}
