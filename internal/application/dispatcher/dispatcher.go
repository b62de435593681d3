package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/garyjia/stock-approval/internal/domain/event"
)

const defaultQueueSize = 256

// Dispatcher delivers approval and stock events to subscribers.
//
// Dispatch runs handlers inline and stops at the first error. DispatchAsync
// and Publish hand events to a single delivery goroutine, so subscribers see
// committed events in the order they were published.
type Dispatcher interface {
	Subscribe(eventType event.Type, handler Handler)
	SubscribeNamed(eventType event.Type, name string, handler Handler)
	Unsubscribe(eventType event.Type, name string)

	Dispatch(ctx context.Context, evt *event.Event) error
	DispatchAsync(ctx context.Context, evt *event.Event)
	Publish(ctx context.Context, evts ...*event.Event)

	// ListHandlers returns registered handlers without their funcs
	ListHandlers(eventType event.Type) []HandlerInfo

	// Close stops accepting events and drains the delivery queue
	Close() error
}

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type delivery struct {
	ctx context.Context
	evt *event.Event
}

type eventDispatcher struct {
	mu       sync.RWMutex
	handlers map[event.Type][]HandlerInfo
	logger   Logger

	queueSize int
	queue     chan delivery
	done      chan struct{}

	// sendMu guards queue against a send racing Close
	sendMu sync.RWMutex
	closed bool
}

// Option configures the dispatcher
type Option func(*eventDispatcher)

// WithLogger sets a logger for the dispatcher
func WithLogger(logger Logger) Option {
	return func(d *eventDispatcher) {
		d.logger = logger
	}
}

// WithQueueSize bounds how many events may wait for async delivery before
// publishers block
func WithQueueSize(n int) Option {
	return func(d *eventDispatcher) {
		if n > 0 {
			d.queueSize = n
		}
	}
}

// NewDispatcher creates a dispatcher and starts its delivery goroutine
func NewDispatcher(opts ...Option) Dispatcher {
	d := &eventDispatcher{
		handlers:  make(map[event.Type][]HandlerInfo),
		queueSize: defaultQueueSize,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.queue = make(chan delivery, d.queueSize)

	go d.deliver()
	return d
}

func (d *eventDispatcher) Subscribe(eventType event.Type, handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.register(eventType, fmt.Sprintf("handler-%d", len(d.handlers[eventType])), handler)
}

func (d *eventDispatcher) SubscribeNamed(eventType event.Type, name string, handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.register(eventType, name, handler)
}

// register must be called with mu held
func (d *eventDispatcher) register(eventType event.Type, name string, handler Handler) {
	if !eventType.IsValid() {
		d.logError("Handler registered for unknown event type", "event_type", eventType, "handler_name", name)
	}
	d.handlers[eventType] = append(d.handlers[eventType], HandlerInfo{
		Name:      name,
		EventType: eventType,
		Handler:   handler,
	})
	d.logInfo("Handler registered", "event_type", eventType, "handler_name", name)
}

func (d *eventDispatcher) Unsubscribe(eventType event.Type, name string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	kept := d.handlers[eventType][:0:0]
	for _, h := range d.handlers[eventType] {
		if h.Name != name {
			kept = append(kept, h)
		}
	}
	d.handlers[eventType] = kept
	d.logInfo("Handler unregistered", "event_type", eventType, "handler_name", name)
}

func (d *eventDispatcher) snapshot(t event.Type) []HandlerInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.handlers[t]
}

func (d *eventDispatcher) Dispatch(ctx context.Context, evt *event.Event) error {
	d.sendMu.RLock()
	closed := d.closed
	d.sendMu.RUnlock()
	if closed {
		return fmt.Errorf("dispatcher is closed")
	}

	for _, info := range d.snapshot(evt.Type) {
		if err := d.safeExecute(ctx, evt, info); err != nil {
			d.logError("Handler error",
				"event_type", evt.Type,
				"approval_id", evt.ApprovalID,
				"handler_name", info.Name,
				"error", err,
			)
			return fmt.Errorf("handler %s failed: %w", info.Name, err)
		}
	}
	return nil
}

// DispatchAsync queues evt. Handlers run with a context detached from ctx's
// cancellation so a finished HTTP request does not abort them.
func (d *eventDispatcher) DispatchAsync(ctx context.Context, evt *event.Event) {
	d.sendMu.RLock()
	defer d.sendMu.RUnlock()

	if d.closed {
		d.logError("Cannot dispatch async event, dispatcher is closed",
			"event_type", evt.Type,
			"event_id", evt.ID,
		)
		return
	}
	d.queue <- delivery{ctx: context.WithoutCancel(ctx), evt: evt}
}

func (d *eventDispatcher) Publish(ctx context.Context, evts ...*event.Event) {
	for _, evt := range evts {
		if evt != nil {
			d.DispatchAsync(ctx, evt)
		}
	}
}

// deliver runs every queued event through its handlers. A failing handler is
// logged and does not stop the ones after it.
func (d *eventDispatcher) deliver() {
	defer close(d.done)

	for item := range d.queue {
		for _, info := range d.snapshot(item.evt.Type) {
			if err := d.safeExecute(item.ctx, item.evt, info); err != nil {
				d.logError("Async handler error",
					"event_type", item.evt.Type,
					"approval_id", item.evt.ApprovalID,
					"handler_name", info.Name,
					"error", err,
				)
			}
		}
	}
}

func (d *eventDispatcher) ListHandlers(eventType event.Type) []HandlerInfo {
	handlers := d.snapshot(eventType)
	out := make([]HandlerInfo, len(handlers))
	for i, h := range handlers {
		out[i] = HandlerInfo{Name: h.Name, EventType: h.EventType}
	}
	return out
}

func (d *eventDispatcher) Close() error {
	d.sendMu.Lock()
	if d.closed {
		d.sendMu.Unlock()
		return fmt.Errorf("dispatcher already closed")
	}
	d.closed = true
	pending := len(d.queue)
	close(d.queue)
	d.sendMu.Unlock()

	d.logInfo("Closing dispatcher, draining queue", "pending", pending)
	<-d.done
	d.logInfo("Dispatcher closed")
	return nil
}

func (d *eventDispatcher) safeExecute(ctx context.Context, evt *event.Event, info HandlerInfo) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
			d.logError("Handler panic recovered",
				"event_type", evt.Type,
				"handler_name", info.Name,
				"panic", r,
			)
		}
	}()
	return info.Handler(ctx, evt)
}

func (d *eventDispatcher) logInfo(msg string, kv ...interface{}) {
	if d.logger != nil {
		d.logger.Info(msg, kv...)
	}
}

func (d *eventDispatcher) logError(msg string, kv ...interface{}) {
	if d.logger != nil {
		d.logger.Error(msg, kv...)
	}
}
