// Observer pattern over CloudEvents for framework diagnostics. The
// orchestrator and dispatcher emit lifecycle and dispatch events here;
// modules can emit their own through the CapabilityEvents capability.
package lum

import (
	"context"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
)

// Observer receives CloudEvents emitted by the framework.
type Observer interface {
	// OnEvent is called for each matching event. Notification is
	// asynchronous; a slow observer never blocks lifecycle or dispatch.
	OnEvent(ctx context.Context, event cloudevents.Event) error

	// ObserverID returns a unique identifier used for registration
	// tracking and unregistration.
	ObserverID() string
}

// CloudEvent types emitted by the framework, in reverse domain notation.
const (
	EventTypeModuleRegistered   = "com.lum.module.registered"
	EventTypeModuleInitializing = "com.lum.module.initializing"
	EventTypeModuleStarted      = "com.lum.module.started"
	EventTypeModuleStopping     = "com.lum.module.stopping"
	EventTypeModuleStopped      = "com.lum.module.stopped"
	EventTypeModuleFailed       = "com.lum.module.failed"

	EventTypeApplicationStarted = "com.lum.application.started"
	EventTypeApplicationStopped = "com.lum.application.stopped"

	EventTypeDispatchFailed = "com.lum.dispatch.failed"
	EventTypeConfigChanged  = "com.lum.config.changed"
	EventTypeHealthDegraded = "com.lum.health.degraded"
)

// ObserverRegistry maintains observers and notifies them of CloudEvents.
// Notification happens in a goroutine per observer so emission never blocks
// the caller; observer errors are logged and otherwise ignored.
type ObserverRegistry struct {
	logger Logger

	mu      sync.RWMutex
	entries []observerEntry
}

type observerEntry struct {
	observer   Observer
	eventTypes map[string]struct{} // nil means all events
}

// NewObserverRegistry creates an empty registry.
func NewObserverRegistry(logger Logger) *ObserverRegistry {
	return &ObserverRegistry{logger: logger}
}

// RegisterObserver adds an observer. With no eventTypes it receives all
// events; otherwise only the listed types.
func (r *ObserverRegistry) RegisterObserver(observer Observer, eventTypes ...string) {
	entry := observerEntry{observer: observer}
	if len(eventTypes) > 0 {
		entry.eventTypes = make(map[string]struct{}, len(eventTypes))
		for _, t := range eventTypes {
			entry.eventTypes[t] = struct{}{}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
}

// UnregisterObserver removes an observer by ID. Idempotent.
func (r *ObserverRegistry) UnregisterObserver(observer Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := observer.ObserverID()
	kept := r.entries[:0]
	for _, entry := range r.entries {
		if entry.observer.ObserverID() != id {
			kept = append(kept, entry)
		}
	}
	r.entries = kept
}

// NotifyObservers sends the event to every matching observer. Each observer
// is notified on its own goroutine; errors are logged, never propagated.
func (r *ObserverRegistry) NotifyObservers(ctx context.Context, event cloudevents.Event) {
	r.mu.RLock()
	entries := make([]observerEntry, len(r.entries))
	copy(entries, r.entries)
	r.mu.RUnlock()

	for _, entry := range entries {
		if entry.eventTypes != nil {
			if _, ok := entry.eventTypes[event.Type()]; !ok {
				continue
			}
		}

		observer := entry.observer
		go func() {
			if err := observer.OnEvent(ctx, event); err != nil && r.logger != nil {
				r.logger.Debug("Observer returned error", "observer", observer.ObserverID(), "type", event.Type(), "error", err)
			}
		}()
	}
}

// NewCloudEvent builds a CloudEvent with a time-ordered ID, the given type
// and source, and an optional JSON payload.
func NewCloudEvent(eventType, source string, data any) cloudevents.Event {
	event := cloudevents.NewEvent()
	event.SetID(newCloudEventID())
	event.SetType(eventType)
	event.SetSource(source)
	event.SetTime(time.Now())
	event.SetSpecVersion(cloudevents.VersionV1)
	if data != nil {
		_ = event.SetData(cloudevents.ApplicationJSON, data)
	}
	return event
}

func newCloudEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return id.String()
}

// FunctionalObserver wraps a function as an Observer, for quick observer
// creation without a dedicated type.
type FunctionalObserver struct {
	id      string
	handler func(ctx context.Context, event cloudevents.Event) error
}

// NewFunctionalObserver creates an observer backed by the given function.
func NewFunctionalObserver(id string, handler func(ctx context.Context, event cloudevents.Event) error) *FunctionalObserver {
	return &FunctionalObserver{id: id, handler: handler}
}

func (f *FunctionalObserver) OnEvent(ctx context.Context, event cloudevents.Event) error {
	return f.handler(ctx, event)
}

func (f *FunctionalObserver) ObserverID() string {
	return f.id
}
