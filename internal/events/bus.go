package events

import (
	"context"
	"fmt"
	"sync"
)

// Publisher is the narrow interface orchestrators use to emit events.
type Publisher interface {
	Publish(ctx context.Context, event *GuardianEvent) error
}

// Handler receives published events. Handlers run synchronously on the
// publisher's goroutine and must not block on long work.
type Handler func(ctx context.Context, event *GuardianEvent)

// Sink persists published events. The state store satisfies this.
type Sink interface {
	AppendEvent(ctx context.Context, event *GuardianEvent) error
}

// Bus delivers guardian events to subscribers and, when constructed with a
// sink, persists each event before fan-out. A Bus with a nil sink is the
// in-memory double used in tests.
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	all      []Handler
	sink     Sink
}

// NewBus creates a bus. sink may be nil for a purely in-memory bus.
func NewBus(sink Sink) *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
		sink:     sink,
	}
}

// Subscribe registers a handler for one event type.
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// SubscribeAll registers a handler for every event type.
func (b *Bus) SubscribeAll(handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, handler)
}

// Publish persists the event to the sink, then fans it out. A sink failure
// is returned and suppresses fan-out: subscribers only ever see events that
// made it into the audit feed.
func (b *Bus) Publish(ctx context.Context, event *GuardianEvent) error {
	if event == nil {
		return fmt.Errorf("event is required")
	}
	if !event.Type.IsValid() {
		return fmt.Errorf("invalid event type: %s", event.Type)
	}

	if b.sink != nil {
		if err := b.sink.AppendEvent(ctx, event); err != nil {
			return fmt.Errorf("failed to persist event: %w", err)
		}
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers[event.Type])+len(b.all))
	handlers = append(handlers, b.handlers[event.Type]...)
	handlers = append(handlers, b.all...)
	b.mu.RUnlock()

	for _, handler := range handlers {
		handler(ctx, event)
	}
	return nil
}
