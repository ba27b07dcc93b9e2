package lum

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// DispatcherConfig tunes event delivery.
type DispatcherConfig struct {
	// QueueSize is the per-module event buffer. When a module's previous
	// handler has not returned and its buffer is full, further events for
	// that module are dropped with a warning. Zero means DefaultQueueSize.
	QueueSize int
}

const DefaultQueueSize = 64

func (c DispatcherConfig) withDefaults() DispatcherConfig {
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	return c
}

// DispatcherStats counts deliveries since the dispatcher was created.
type DispatcherStats struct {
	Delivered uint64
	Dropped   uint64
	Failed    uint64
}

// Dispatcher fans gateway events out to all Running modules.
//
// Delivery to different modules is concurrent and unordered; delivery to a
// single module is serialized in arrival order with at most one in-flight
// handler invocation. A handler panic or error is contained, logged with
// the offending module's identity, and never affects delivery to other
// modules or the gateway connection.
type Dispatcher struct {
	config    DispatcherConfig
	logger    Logger
	observers *ObserverRegistry

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	queues map[string]*moduleQueue

	delivered atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64
}

// moduleQueue serializes event delivery to one module. Its goroutine is the
// only consumer, guaranteeing per-module FIFO and no handler overlap.
type moduleQueue struct {
	name     string
	handler  EventHandler
	events   chan Event
	done     chan struct{}
	finished chan struct{}
}

// NewDispatcher creates a dispatcher. The observer registry is optional.
func NewDispatcher(config DispatcherConfig, observers *ObserverRegistry, logger Logger) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		config:    config.withDefaults(),
		logger:    logger,
		observers: observers,
		ctx:       ctx,
		cancel:    cancel,
		queues:    make(map[string]*moduleQueue),
	}
}

// Dispatch delivers one gateway event to every attached module. It never
// blocks on a slow module: events queue per module and are dropped with a
// warning when a module's queue is full.
func (d *Dispatcher) Dispatch(event Event) {
	d.mu.RLock()
	queues := make([]*moduleQueue, 0, len(d.queues))
	for _, q := range d.queues {
		queues = append(queues, q)
	}
	d.mu.RUnlock()

	for _, q := range queues {
		select {
		case q.events <- event:
		default:
			d.dropped.Add(1)
			d.logger.Warn("Event queue full, dropping event", "module", q.name, "event", event.ID)
		}
	}
}

// attach begins event delivery to a module that reached Running.
func (d *Dispatcher) attach(name string, handler EventHandler) {
	q := &moduleQueue{
		name:     name,
		handler:  handler,
		events:   make(chan Event, d.config.QueueSize),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}

	d.mu.Lock()
	if _, exists := d.queues[name]; exists {
		d.mu.Unlock()
		return
	}
	d.queues[name] = q
	d.mu.Unlock()

	go d.deliver(q)
	d.logger.Debug("Module attached to dispatcher", "module", name)
}

// detach stops event delivery to a module leaving Running. Queued events
// are discarded; an in-flight handler invocation finishes on its own.
func (d *Dispatcher) detach(name string) {
	d.mu.Lock()
	q, exists := d.queues[name]
	if exists {
		delete(d.queues, name)
	}
	d.mu.Unlock()

	if exists {
		close(q.done)
		d.logger.Debug("Module detached from dispatcher", "module", name)
	}
}

// Close stops all delivery goroutines and cancels the context passed to
// in-flight handlers.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	queues := d.queues
	d.queues = make(map[string]*moduleQueue)
	d.mu.Unlock()

	for _, q := range queues {
		close(q.done)
	}
	d.cancel()
}

// Stats returns delivery counters.
func (d *Dispatcher) Stats() DispatcherStats {
	return DispatcherStats{
		Delivered: d.delivered.Load(),
		Dropped:   d.dropped.Load(),
		Failed:    d.failed.Load(),
	}
}

// deliver is the per-module consumer goroutine. Processing one event at a
// time gives each module FIFO delivery with no handler overlap; a slow
// handler only delays its own module's subsequent events.
func (d *Dispatcher) deliver(q *moduleQueue) {
	defer close(q.finished)

	for {
		select {
		case <-q.done:
			return
		case event := <-q.events:
			// The select picks randomly when both channels are ready, so an
			// event queued before detach could still be drawn here. Detach
			// discards queued events; re-check before invoking.
			select {
			case <-q.done:
				return
			default:
			}
			d.invoke(q, event)
		}
	}
}

// invoke runs one handler invocation with panic containment.
func (d *Dispatcher) invoke(q *moduleQueue, event Event) {
	defer func() {
		if r := recover(); r != nil {
			d.failed.Add(1)
			d.logger.Error("Event handler panicked", "module", q.name, "event", event.ID, "panic", r, "stack", string(debug.Stack()))
			d.notifyFailure(q.name, event, fmt.Errorf("%w: panic: %v", ErrHandlerFailed, r))
		}
	}()

	if err := q.handler.HandleEvent(d.ctx, event); err != nil {
		d.failed.Add(1)
		d.logger.Error("Event handler failed", "module", q.name, "event", event.ID, "error", err)
		d.notifyFailure(q.name, event, fmt.Errorf("%w: %v", ErrHandlerFailed, err))
		return
	}
	d.delivered.Add(1)
}

func (d *Dispatcher) notifyFailure(module string, event Event, err error) {
	if d.observers == nil {
		return
	}
	ce := NewCloudEvent(EventTypeDispatchFailed, "lum/dispatcher", map[string]any{
		"module": module,
		"event":  event.ID,
		"error":  err.Error(),
	})
	d.observers.NotifyObservers(d.ctx, ce)
}
