package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/orgmembers/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Handler processes a published event.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc is an adapter to allow ordinary functions to be used as handlers.
type HandlerFunc func(ctx context.Context, event Event) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Bus is an in-process publisher dispatching each event to the handlers
// subscribed to its kind. Every handler runs on its own goroutine; failures
// and panics are logged and never reach the publisher.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Kind][]Handler
	inflight sync.WaitGroup
	logger   zerolog.Logger
}

// NewBus creates an empty bus.
func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{
		handlers: make(map[Kind][]Handler),
		logger:   logger,
	}
}

// Subscribe registers a handler for a single event kind.
func (b *Bus) Subscribe(kind Kind, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[kind] = append(b.handlers[kind], handler)
}

// SubscribeAll registers a handler for every event kind.
func (b *Bus) SubscribeAll(handler Handler) {
	for _, kind := range Kinds {
		b.Subscribe(kind, handler)
	}
}

// Publish dispatches event asynchronously and returns immediately.
func (b *Bus) Publish(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := b.handlers[event.Kind()]
	b.mu.RUnlock()

	attrs := metric.WithAttributes(attribute.String("kind", string(event.Kind())))
	telemetry.GetMetrics().EventsPublishedTotal.Add(ctx, 1, attrs)

	if len(handlers) == 0 {
		return
	}

	// Handlers outlive the request that raised the event.
	detached := context.WithoutCancel(ctx)

	for _, h := range handlers {
		b.inflight.Add(1)
		go func(h Handler) {
			defer b.inflight.Done()

			if err := b.dispatch(detached, h, event); err != nil {
				telemetry.GetMetrics().EventHandlerErrorsTotal.Add(detached, 1, attrs)
				b.logger.Error().
					Err(err).
					Str("kind", string(event.Kind())).
					Str("org_id", event.Meta().Organization.ID.String()).
					Msg("Event handler failed")
			}
		}(h)
	}
}

// Wait blocks until every handler dispatched so far has returned.
func (b *Bus) Wait() {
	b.inflight.Wait()
}

func (b *Bus) dispatch(ctx context.Context, h Handler, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h.Handle(ctx, event)
}
