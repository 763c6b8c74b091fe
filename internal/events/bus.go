package events

import (
	"sync"
)

// Bus is a lightweight pub/sub broker using channels. Closure progress and
// transfer updates flow through it so notification and metrics consumers
// stay decoupled from the orchestrator.
type Bus struct {
	mu   sync.RWMutex
	subs map[Event][]chan any
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[Event][]chan any)}
}

// Subscribe registers a listener for an event and returns the channel and an
// unsubscribe function.
func (b *Bus) Subscribe(e Event, buffer int) (<-chan any, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan any, buffer)
	b.subs[e] = append(b.subs[e], ch)

	unsub := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[e]
		for i, c := range subs {
			if c == ch {
				close(c)
				b.subs[e] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}

	return ch, unsub
}

// SubscribeFunc drains a subscription on a background goroutine, invoking fn
// for each payload until the returned unsubscribe function is called.
func (b *Bus) SubscribeFunc(e Event, buffer int, fn func(payload any)) func() {
	ch, unsub := b.Subscribe(e, buffer)
	go func() {
		for payload := range ch {
			fn(payload)
		}
	}()
	return unsub
}

// Publish fan-outs the payload to subscribers asynchronously to avoid blocking.
func (b *Bus) Publish(e Event, payload any) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[e] {
		select {
		case ch <- payload:
		default:
			// drop if subscriber is slow; keep broker non-blocking
		}
	}
}
