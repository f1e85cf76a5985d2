// Package eventbus is the process-wide stream of device session events.
//
// Publishing never blocks the session worker: a subscriber whose channel is
// full misses the event. Consumers needing every event in order, relative to
// task callbacks, subscribe on the session queue instead.
package eventbus

import (
	"context"
	"errors"
	"sync"

	"github.com/cskr/pubsub/v2"
)

// ErrClosed is returned by Receive once a subscription is closed.
var ErrClosed = errors.New("subscription is closed")

// DefaultCapacity is the channel capacity of every subscription made on a
// bus created with NewBus(DefaultCapacity).
const DefaultCapacity = 64

// Handler carries session events from publishers to subscribers.
type Handler interface {
	Publish(ev Event, data any)
	Subscribe(ev Event) SubscriberID
}

// Bus is a Handler backed by a pubsub topic per event.
type Bus struct {
	ps *pubsub.PubSub[Event, any]
}

// NewBus returns a bus whose subscriptions buffer capacity events each.
func NewBus(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	return &Bus{ps: pubsub.New[Event, any](capacity)}
}

// Publish sends data to the subscribers of ev that have room for it.
func (b *Bus) Publish(ev Event, data any) {
	b.ps.TryPub(data, ev)
}

// Subscribe attaches a new subscription to ev.
func (b *Bus) Subscribe(ev Event) SubscriberID {
	ch := b.ps.Sub(ev)

	return SubscriberID{
		C:      ch,
		active: true,
		unsub: func() {
			// Unsub waits for the pubsub loop, which may be busy delivering.
			go b.ps.Unsub(ch, ev)
		},
	}
}

// Close detaches every subscription of the bus.
func (b *Bus) Close() {
	b.ps.Shutdown()
}

// disabled drops every event and hands out closed subscriptions.
type disabled struct{}

func (disabled) Publish(Event, any) {}

func (disabled) Subscribe(Event) SubscriberID {
	return closedSubscription()
}

var bus = struct {
	mu sync.RWMutex
	h  Handler
}{h: NewBus(DefaultCapacity)}

// Use replaces the process-wide handler. A nil handler disables events.
// Subscriptions made on the previous handler stay attached to it.
func Use(h Handler) {
	if h == nil {
		h = disabled{}
	}

	bus.mu.Lock()
	bus.h = h
	bus.mu.Unlock()
}

// Disable drops every event published from now on.
func Disable() {
	Use(nil)
}

func handler() Handler {
	bus.mu.RLock()
	defer bus.mu.RUnlock()

	return bus.h
}

// Publish sends data on the process-wide stream of ev.
func Publish(ev Event, data any) {
	if !ev.Valid() {
		return
	}

	handler().Publish(ev, data)
}

// Subscribe attaches to the process-wide stream of ev. An unknown event
// yields a closed subscription.
func Subscribe(ev Event) SubscriberID {
	if !ev.Valid() {
		return closedSubscription()
	}

	return handler().Subscribe(ev)
}

// Receive waits for the next value of type T on sub, skipping values of
// other types. It fails with ErrClosed once the subscription is closed,
// or with the context error.
func Receive[T any](ctx context.Context, sub *SubscriberID) (T, error) {
	var zero T

	for {
		select {
		case <-ctx.Done():
			return zero, ctx.Err()

		case data, ok := <-sub.C:
			if !ok {
				sub.active = false
				return zero, ErrClosed
			}

			if v, ok := data.(T); ok {
				return v, nil
			}
		}
	}
}

func closedSubscription() SubscriberID {
	ch := make(chan any)
	close(ch)

	return SubscriberID{C: ch}
}
