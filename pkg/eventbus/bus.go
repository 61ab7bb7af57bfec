// Package eventbus is an in-process, synchronous publish/subscribe bus.
// Components publish the domain events defined in events.go as they
// happen (an order accepted, a trade settled, a withdrawal approved)
// and other components — market data fanout, the gateway's websocket
// hub — subscribe without the publisher needing to
// know who's listening.
package eventbus

import (
	"reflect"
	"sync"
)

// Bus dispatches published events to every handler registered for that
// event's concrete type. Publish is synchronous: handlers run on the
// publisher's goroutine, in registration order, before Publish returns.
// A handler that panics is recovered and does not prevent the remaining
// handlers from running.
type Bus struct {
	mu       sync.RWMutex
	handlers map[reflect.Type][]func(any)
	onPanic  func(event any, r any)
}

// New returns an empty Bus. onPanic, if non-nil, is called whenever a
// subscriber panics; it is typically wired to the logger.
func New(onPanic func(event any, r any)) *Bus {
	return &Bus{
		handlers: make(map[reflect.Type][]func(any)),
		onPanic:  onPanic,
	}
}

// Subscribe registers fn to run for every event of type T published
// after this call.
func Subscribe[T any](b *Bus, fn func(T)) {
	t := reflect.TypeOf(*new(T))
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[t] = append(b.handlers[t], func(e any) {
		fn(e.(T))
	})
}

// Publish dispatches event to every handler subscribed to its concrete
// type. Handlers with no subscribers are a no-op, not an error: most
// events have zero or one listener in any given deployment.
func (b *Bus) Publish(event any) {
	t := reflect.TypeOf(event)
	b.mu.RLock()
	hs := b.handlers[t]
	b.mu.RUnlock()

	for _, h := range hs {
		b.dispatch(event, h)
	}
}

func (b *Bus) dispatch(event any, h func(any)) {
	defer func() {
		if r := recover(); r != nil && b.onPanic != nil {
			b.onPanic(event, r)
		}
	}()
	h(event)
}
