// Package bus wraps an in-process event bus behind small interfaces, so
// packages can publish progress without caring who listens, and tests can
// pass a no-op.
package bus

import (
	eventbus "github.com/asaskevich/EventBus"
)

type Subscriber interface {
	Subscribe(topic string, fn any) error
	// SubscribeAsync delivers events on a separate goroutine per handler, so
	// slow handlers never block publishers.
	SubscribeAsync(topic string, fn any) error
	Unsubscribe(topic string, handler any) error
}

type Publisher interface {
	Publish(topic string, args ...any)
}

type Bus interface {
	Subscriber
	Publisher

	// WaitAsync blocks until all events delivered through SubscribeAsync
	// handlers have been processed.
	WaitAsync()
}

func New() Bus {
	return &EventBus{eventbus.New()}
}

type EventBus struct {
	bus eventbus.Bus
}

func (e *EventBus) Publish(topic string, args ...any) {
	e.bus.Publish(topic, args...)
}

func (e *EventBus) Subscribe(topic string, handler any) error {
	return e.bus.Subscribe(topic, handler)
}

func (e *EventBus) SubscribeAsync(topic string, handler any) error {
	return e.bus.SubscribeAsync(topic, handler, false)
}

func (e *EventBus) Unsubscribe(topic string, handler any) error {
	return e.bus.Unsubscribe(topic, handler)
}

func (e *EventBus) WaitAsync() {
	e.bus.WaitAsync()
}

type NoopBus struct{}

func (b *NoopBus) Publish(topic string, args ...any)              {}
func (b *NoopBus) Subscribe(topic string, handler any) error      { return nil }
func (b *NoopBus) SubscribeAsync(topic string, handler any) error { return nil }
func (b *NoopBus) Unsubscribe(topic string, handler any) error    { return nil }
func (b *NoopBus) WaitAsync()                                     {}
