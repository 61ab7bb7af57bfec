package eventbus

import (
	"testing"

	"github.com/altxchange/spotcore/pkg/exch"
)

func TestSubscribeReceivesMatchingType(t *testing.T) {
	b := New(nil)
	var got []int64
	Subscribe(b, func(e OrderAccepted) {
		got = append(got, e.Order.ID)
	})
	Subscribe(b, func(e TradeExecuted) {
		t.Fatalf("unexpected TradeExecuted handler invocation")
	})

	b.Publish(OrderAccepted{Order: exch.Order{ID: 1}})

	if len(got) != 1 || got[0] != 1 {
		t.Fatalf("expected handler to receive order id 1, got %v", got)
	}
}

func TestPublishRunsHandlersInRegistrationOrder(t *testing.T) {
	b := New(nil)
	var order []int
	Subscribe(b, func(e TradeExecuted) { order = append(order, 1) })
	Subscribe(b, func(e TradeExecuted) { order = append(order, 2) })

	b.Publish(TradeExecuted{})

	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("expected handlers to run in registration order, got %v", order)
	}
}

func TestPanickingHandlerDoesNotBlockOthers(t *testing.T) {
	b := New(func(event any, r any) {})
	ran := false
	Subscribe(b, func(e TradeExecuted) { panic("boom") })
	Subscribe(b, func(e TradeExecuted) { ran = true })

	b.Publish(TradeExecuted{})

	if !ran {
		t.Fatalf("expected second handler to run despite first panicking")
	}
}
