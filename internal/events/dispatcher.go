package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventHandler handles a published event.
type EventHandler func(context.Context, Event) error

// Dispatcher interface allows event publication/subscription.
type Dispatcher interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(name EventName, handler EventHandler)
}

// inMemoryDispatcher is a simple synchronous dispatcher. Handlers run in
// registration order on the publisher's goroutine, one publish at a time,
// so every handler observes events in emission order.
type inMemoryDispatcher struct {
	mu        sync.RWMutex
	deliverMu sync.Mutex
	listeners map[EventName][]EventHandler
	logger    *zap.Logger
}

// NewInMemoryDispatcher creates a dispatcher instance.
func NewInMemoryDispatcher(logger *zap.Logger) Dispatcher {
	return newLocalDispatcher(logger)
}

func newLocalDispatcher(logger *zap.Logger) *inMemoryDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &inMemoryDispatcher{
		listeners: make(map[EventName][]EventHandler),
		logger:    logger,
	}
}

// Publish synchronously invokes handlers for the given event.
func (d *inMemoryDispatcher) Publish(ctx context.Context, event Event) error {
	stamp(&event)

	d.mu.RLock()
	handlers := append([]EventHandler{}, d.listeners[event.Name]...)
	handlers = append(handlers, d.listeners[AllEvents]...)
	d.mu.RUnlock()

	d.deliverMu.Lock()
	defer d.deliverMu.Unlock()
	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			d.logger.Warn("event handler failed",
				zap.String("event", string(event.Name)),
				zap.String("action", string(event.Action)),
				zap.Error(err))
		}
	}
	return nil
}

// Subscribe registers a handler for the given event name.
func (d *inMemoryDispatcher) Subscribe(name EventName, handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners[name] = append(d.listeners[name], handler)
}

func stamp(event *Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
}
