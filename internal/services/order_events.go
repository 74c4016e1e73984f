package services

import (
	"context"
	"maps"
	"sync"
	"time"
)

const (
	defaultEventTimeout = 10 * time.Second
	defaultEventBuffer  = 256
)

type queuedEvent struct {
	ctx   context.Context
	event OrderEvent
}

// eventDispatcher publishes order events off the request path. A single worker keeps events in
// enqueue order; when the buffer is full the event is dropped and logged.
type eventDispatcher struct {
	publisher OrderEventPublisher
	timeout   time.Duration
	logger    func(context.Context, string, map[string]any)

	queue   chan queuedEvent
	start   sync.Once
	pending sync.WaitGroup
}

func newEventDispatcher(publisher OrderEventPublisher, timeout time.Duration, buffer int, logger func(context.Context, string, map[string]any)) *eventDispatcher {
	if timeout <= 0 {
		timeout = defaultEventTimeout
	}
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}
	return &eventDispatcher{
		publisher: publisher,
		timeout:   timeout,
		logger:    logger,
		queue:     make(chan queuedEvent, buffer),
	}
}

// enqueue never blocks. The request context is detached from cancellation so request values
// such as the trace reach the publisher.
func (d *eventDispatcher) enqueue(ctx context.Context, event OrderEvent) {
	if d == nil || d.publisher == nil {
		return
	}
	if event.Metadata != nil {
		event.Metadata = maps.Clone(event.Metadata)
	}
	d.start.Do(func() { go d.run() })

	d.pending.Add(1)
	select {
	case d.queue <- queuedEvent{ctx: context.WithoutCancel(ctx), event: event}:
	default:
		d.pending.Done()
		d.logger(ctx, "order.event.dropped", map[string]any{
			"type":  event.Type,
			"order": event.OrderID,
		})
	}
}

func (d *eventDispatcher) run() {
	for item := range d.queue {
		d.publish(item)
		d.pending.Done()
	}
}

func (d *eventDispatcher) publish(item queuedEvent) {
	ctx, cancel := context.WithTimeout(item.ctx, d.timeout)
	defer cancel()
	if err := d.publisher.PublishOrderEvent(ctx, item.event); err != nil {
		d.logger(item.ctx, "order.event.publish.failed", map[string]any{
			"type":   item.event.Type,
			"order":  item.event.OrderID,
			"error":  err.Error(),
			"status": item.event.CurrentStatus,
		})
	}
}

// drain waits for queued events to be published or for ctx to end.
func (d *eventDispatcher) drain(ctx context.Context) error {
	if d == nil || d.publisher == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		d.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
