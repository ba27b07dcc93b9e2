package lum

import (
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
)

// Well-known capability keys registered by the bot itself.
const (
	// CapabilityStatus exposes the orchestrator's StatusReporter.
	CapabilityStatus = "lum.status"

	// CapabilityEvents exposes the bot's *ObserverRegistry so modules can
	// emit their own CloudEvents.
	CapabilityEvents = "lum.events"
)

// CapabilityRegistry stores type-keyed singleton services that modules may
// depend on, such as a shared data-store handle or HTTP client.
//
// Registration happens only before orchestration begins; the orchestrator
// freezes the registry at startup, after which lookups are lock-free and
// safe for unbounded concurrent use.
type CapabilityRegistry struct {
	mu      sync.RWMutex
	frozen  atomic.Bool
	entries map[string]any
}

// NewCapabilityRegistry creates an empty, unfrozen registry.
func NewCapabilityRegistry() *CapabilityRegistry {
	return &CapabilityRegistry{entries: make(map[string]any)}
}

// Register adds a capability under the given key. It fails with
// ErrDuplicateCapability if the key is already present and with
// ErrRegistryFrozen once orchestration has begun.
func (r *CapabilityRegistry) Register(key string, value any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Checked under mu so a Register racing with Freeze either completes
	// before the freeze or observes it; lock-free readers never see a
	// half-written map.
	if r.frozen.Load() {
		return fmt.Errorf("%w: %s", ErrRegistryFrozen, key)
	}

	if _, exists := r.entries[key]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateCapability, key)
	}
	r.entries[key] = value
	return nil
}

// Get returns the capability registered under key, or ErrCapabilityNotFound.
func (r *CapabilityRegistry) Get(key string) (any, error) {
	if !r.frozen.Load() {
		r.mu.RLock()
		defer r.mu.RUnlock()
	}

	value, exists := r.entries[key]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrCapabilityNotFound, key)
	}
	return value, nil
}

// Has reports whether a capability is registered under key.
func (r *CapabilityRegistry) Has(key string) bool {
	_, err := r.Get(key)
	return err == nil
}

// Keys returns all registered capability keys.
func (r *CapabilityRegistry) Keys() []string {
	if !r.frozen.Load() {
		r.mu.RLock()
		defer r.mu.RUnlock()
	}

	keys := make([]string, 0, len(r.entries))
	for key := range r.entries {
		keys = append(keys, key)
	}
	return keys
}

// Freeze closes the registry for registration. Called by the orchestrator
// when startup begins; after this point reads take no locks. Taking mu
// orders the freeze after any in-flight Register.
func (r *CapabilityRegistry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen.Store(true)
}

// GetCapability retrieves a capability by key with a checked cast to T.
// It fails with ErrCapabilityNotFound for unknown keys and with
// ErrCapabilityWrongType when the registered value is not a T.
func GetCapability[T any](r *CapabilityRegistry, key string) (T, error) {
	var zero T

	value, err := r.Get(key)
	if err != nil {
		return zero, err
	}

	typed, ok := value.(T)
	if !ok {
		return zero, fmt.Errorf("%w: capability %q of type %s cannot be used as %s",
			ErrCapabilityWrongType, key, reflect.TypeOf(value), reflect.TypeOf((*T)(nil)).Elem())
	}
	return typed, nil
}
