package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/orbitreg/compliance-workflow/internal/domain/event"
)

// ErrClosed is returned when dispatching on a closed dispatcher
var ErrClosed = errors.New("dispatcher is closed")

// Dispatcher routes workflow events to registered handlers
type Dispatcher interface {
	// Subscribe registers a named handler for an event type, or AllEvents
	Subscribe(eventType event.Type, name string, handler Handler)

	// Unsubscribe removes a handler by name
	Unsubscribe(eventType event.Type, name string)

	// Dispatch runs every matching handler in registration order and returns
	// the joined handler errors. A failing handler does not stop the others.
	Dispatch(ctx context.Context, evt *event.Event) error

	// DispatchAsync runs matching handlers in goroutines without waiting
	DispatchAsync(ctx context.Context, evt *event.Event)

	// ListHandlers returns registered handlers for an event type
	ListHandlers(eventType event.Type) []HandlerInfo

	// Close shuts down the dispatcher and waits for async handlers
	Close() error
}

// eventDispatcher is the concrete implementation of Dispatcher
type eventDispatcher struct {
	mu       sync.RWMutex
	handlers map[event.Type][]HandlerInfo
	logger   *zap.Logger

	wg     sync.WaitGroup
	closed atomic.Bool
}

// Option configures the dispatcher
type Option func(*eventDispatcher)

// WithLogger sets a logger for the dispatcher
func WithLogger(logger *zap.Logger) Option {
	return func(d *eventDispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDispatcher creates a new event dispatcher
func NewDispatcher(opts ...Option) Dispatcher {
	d := &eventDispatcher{
		handlers: make(map[event.Type][]HandlerInfo),
		logger:   zap.NewNop(),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Subscribe registers a handler with a specific name
func (d *eventDispatcher) Subscribe(eventType event.Type, name string, handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.handlers[eventType] = append(d.handlers[eventType], HandlerInfo{
		Name:      name,
		EventType: eventType,
		Handler:   handler,
	})

	d.logger.Debug("Handler registered",
		zap.String("event_type", eventType.String()),
		zap.String("handler_name", name))
}

// Unsubscribe removes a handler by name
func (d *eventDispatcher) Unsubscribe(eventType event.Type, name string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	handlers := d.handlers[eventType]
	filtered := make([]HandlerInfo, 0, len(handlers))
	for _, h := range handlers {
		if h.Name != name {
			filtered = append(filtered, h)
		}
	}
	d.handlers[eventType] = filtered

	d.logger.Debug("Handler unregistered",
		zap.String("event_type", eventType.String()),
		zap.String("handler_name", name))
}

// matching returns the handlers for evt's type followed by wildcard handlers
func (d *eventDispatcher) matching(evt *event.Event) []HandlerInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()

	typed := d.handlers[evt.Type]
	all := d.handlers[AllEvents]
	out := make([]HandlerInfo, 0, len(typed)+len(all))
	out = append(out, typed...)
	return append(out, all...)
}

// Dispatch sends event to all registered handlers synchronously
func (d *eventDispatcher) Dispatch(ctx context.Context, evt *event.Event) error {
	if d.closed.Load() {
		return ErrClosed
	}

	handlers := d.matching(evt)
	d.logger.Debug("Dispatching event",
		zap.String("event_type", evt.Type.String()),
		zap.String("event_id", evt.ID),
		zap.Int("handler_count", len(handlers)))

	var errs []error
	for _, info := range handlers {
		if err := d.safeExecute(ctx, evt, info); err != nil {
			d.logger.Error("Handler error",
				zap.String("event_type", evt.Type.String()),
				zap.String("event_id", evt.ID),
				zap.String("handler_name", info.Name),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("handler %s failed: %w", info.Name, err))
		}
	}

	return errors.Join(errs...)
}

// DispatchAsync sends event to handlers asynchronously
func (d *eventDispatcher) DispatchAsync(ctx context.Context, evt *event.Event) {
	if d.closed.Load() {
		d.logger.Error("Cannot dispatch async event, dispatcher is closed",
			zap.String("event_type", evt.Type.String()),
			zap.String("event_id", evt.ID))
		return
	}

	for _, info := range d.matching(evt) {
		d.wg.Add(1)
		go func(h HandlerInfo) {
			defer d.wg.Done()

			if err := d.safeExecute(ctx, evt, h); err != nil {
				d.logger.Error("Async handler error",
					zap.String("event_type", evt.Type.String()),
					zap.String("event_id", evt.ID),
					zap.String("handler_name", h.Name),
					zap.Error(err))
			}
		}(info)
	}
}

// ListHandlers returns registered handlers for an event type
func (d *eventDispatcher) ListHandlers(eventType event.Type) []HandlerInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()

	handlers := d.handlers[eventType]
	result := make([]HandlerInfo, len(handlers))
	for i, h := range handlers {
		// Handler function is not exposed
		result[i] = HandlerInfo{Name: h.Name, EventType: h.EventType}
	}
	return result
}

// Close shuts down the dispatcher and waits for async handlers to complete
func (d *eventDispatcher) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return fmt.Errorf("dispatcher already closed")
	}

	d.logger.Info("Closing dispatcher, waiting for async handlers")
	d.wg.Wait()
	return nil
}

// safeExecute runs a handler with panic recovery
func (d *eventDispatcher) safeExecute(ctx context.Context, evt *event.Event, info HandlerInfo) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	return info.Handler(ctx, evt)
}
