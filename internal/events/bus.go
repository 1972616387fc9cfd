// Package events provides event sinks for committed insight transitions.
package events

import (
	"context"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"insightline/internal/engine"
)

var busDropped = promauto.NewCounter(prometheus.CounterOpts{
	Name: "insightline_bus_dropped_total",
	Help: "Events dropped because a bus subscriber buffer was full",
})

// Listener handles one delivered event.
type Listener func(engine.DomainEvent)

// Bus is an in-process pub/sub sink. Listeners run synchronously on the
// publisher goroutine; channel subscribers never block the publisher.
type Bus struct {
	mu        sync.RWMutex
	listeners map[string][]Listener
	global    []Listener
	subs      map[int]chan engine.DomainEvent
	nextID    int
	logger    *slog.Logger
}

var _ engine.EventSink = (*Bus)(nil)

func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		listeners: map[string][]Listener{},
		subs:      map[int]chan engine.DomainEvent{},
		logger:    logger,
	}
}

// On registers a listener for one event name.
func (b *Bus) On(name string, l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners[name] = append(b.listeners[name], l)
}

// OnAll registers a listener for every event.
func (b *Bus) OnAll(l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.global = append(b.global, l)
}

// Subscribe returns a buffered channel receiving every event and a cancel
// func that unregisters and closes it. Events are dropped when the buffer is full.
func (b *Bus) Subscribe(buffer int) (<-chan engine.DomainEvent, func()) {
	if buffer < 1 {
		buffer = 64
	}
	ch := make(chan engine.DomainEvent, buffer)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers reports the number of channel subscribers.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Bus) Publish(ctx context.Context, evt engine.DomainEvent) error {
	b.mu.RLock()
	listeners := append([]Listener(nil), b.listeners[evt.Name]...)
	listeners = append(listeners, b.global...)
	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
			busDropped.Inc()
			b.logger.WarnContext(ctx, "bus subscriber full, event dropped", "event", evt.Name, "insight_id", evt.EntityID)
		}
	}
	b.mu.RUnlock()

	for _, l := range listeners {
		b.safeInvoke(ctx, l, evt)
	}
	return nil
}

func (b *Bus) safeInvoke(ctx context.Context, l Listener, evt engine.DomainEvent) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.ErrorContext(ctx, "bus listener panicked", "event", evt.Name, "panic", r)
		}
	}()
	l(evt)
}
