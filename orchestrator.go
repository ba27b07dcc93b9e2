package lum

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// OrchestratorConfig bounds the lifecycle operations.
type OrchestratorConfig struct {
	// InitTimeout bounds each module's Init. Zero means DefaultInitTimeout.
	InitTimeout time.Duration

	// StopTimeout is the grace period for each module's Stop. Zero means
	// DefaultStopTimeout.
	StopTimeout time.Duration
}

const (
	DefaultInitTimeout = 10 * time.Second
	DefaultStopTimeout = 10 * time.Second
)

func (c OrchestratorConfig) withDefaults() OrchestratorConfig {
	if c.InitTimeout <= 0 {
		c.InitTimeout = DefaultInitTimeout
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = DefaultStopTimeout
	}
	return c
}

// ModuleInstance owns one module's runtime state. Exactly one instance
// exists per registered module; the orchestrator is the only writer of its
// lifecycle state.
type ModuleInstance struct {
	module     Module
	descriptor ModuleDescriptor
	core       *CoreContext

	mu    sync.RWMutex
	state LifecycleState
	cause error
	seq   uint64 // monotonic counter value of the latest transition
}

// Descriptor returns the instance's immutable descriptor.
func (mi *ModuleInstance) Descriptor() ModuleDescriptor {
	return mi.descriptor
}

// State returns the current lifecycle state.
func (mi *ModuleInstance) State() LifecycleState {
	mi.mu.RLock()
	defer mi.mu.RUnlock()
	return mi.state
}

// FailureCause returns the recorded cause when the instance is Failed.
func (mi *ModuleInstance) FailureCause() error {
	mi.mu.RLock()
	defer mi.mu.RUnlock()
	return mi.cause
}

// TransitionSeq returns the monotonic counter value recorded at the latest
// state transition.
func (mi *ModuleInstance) TransitionSeq() uint64 {
	mi.mu.RLock()
	defer mi.mu.RUnlock()
	return mi.seq
}

// ModuleStatus is a point-in-time snapshot of one module's state.
type ModuleStatus struct {
	Name       string         `json:"name"`
	State      LifecycleState `json:"-"`
	StateLabel string         `json:"state"`
	Priority   Priority       `json:"-"`
	Essential  bool           `json:"essential"`
	Cause      string         `json:"cause,omitempty"`
	Transition uint64         `json:"transition"`
}

// Orchestrator drives registered modules through their lifecycle state
// machine: dependency-ordered sequential startup, reverse-order shutdown,
// and per-module failure isolation. It owns every ModuleInstance; the event
// dispatcher only ever sees read references.
type Orchestrator struct {
	config       OrchestratorConfig
	logger       Logger
	capabilities *CapabilityRegistry
	dispatcher   *Dispatcher
	observers    *ObserverRegistry
	runtime      *coreRuntime

	mu         sync.Mutex
	instances  map[string]*ModuleInstance
	order      []string // registration order
	startOrder []string // order in which modules reached Running
	started    bool

	transitions atomic.Uint64
	failures    chan ModuleStatus
}

// NewOrchestrator creates an orchestrator over the given capability
// registry. The dispatcher and observer registry are optional.
func NewOrchestrator(config OrchestratorConfig, capabilities *CapabilityRegistry, dispatcher *Dispatcher, observers *ObserverRegistry, logger Logger) *Orchestrator {
	o := &Orchestrator{
		config:       config.withDefaults(),
		logger:       logger,
		capabilities: capabilities,
		dispatcher:   dispatcher,
		observers:    observers,
		instances:    make(map[string]*ModuleInstance),
		failures:     make(chan ModuleStatus, 16),
	}
	o.runtime = &coreRuntime{
		capabilities: capabilities,
		logger:       logger,
		orch:         o,
	}
	return o
}

// Register adds a module. It fails with ErrDuplicateModule when a module
// with the same name is already registered and with ErrOrchestratorStarted
// once startup has begun.
func (o *Orchestrator) Register(m Module) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.started {
		return fmt.Errorf("%w: cannot register %s", ErrOrchestratorStarted, m.Name())
	}

	desc := describeModule(m)
	if _, exists := o.instances[desc.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateModule, desc.Name)
	}

	instance := &ModuleInstance{
		module:     m,
		descriptor: desc,
		state:      StateRegistered,
	}
	instance.core = &CoreContext{descriptor: desc, runtime: o.runtime}
	o.instances[desc.Name] = instance
	o.order = append(o.order, desc.Name)

	o.logger.Debug("Registered module", "module", desc.Name, "priority", desc.Priority, "dependencies", desc.Dependencies)
	o.notify(EventTypeModuleRegistered, desc.Name, nil)
	return nil
}

// Start initializes all registered modules in dependency order.
//
// Resolver errors (cycle, missing dependency) are fatal and returned before
// any module initializes. Per-module initialization failures are contained:
// the module and its transitive dependents become Failed, everything else
// continues to start. Start returns a non-nil error only for resolver
// errors or cancellation of ctx.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return ErrOrchestratorStarted
	}
	o.started = true

	descriptors := make([]ModuleDescriptor, 0, len(o.order))
	for _, name := range o.order {
		descriptors = append(descriptors, o.instances[name].descriptor)
	}
	o.mu.Unlock()

	order, err := resolveDependencies(descriptors, o.capabilities.Has)
	if err != nil {
		return fmt.Errorf("failed to resolve dependencies: %w", err)
	}
	o.logger.Debug("Module initialization order", "order", order)

	// No registrations past this point; reads are lock-free from here on.
	o.capabilities.Freeze()

	table := make(map[string]*ModuleInstance, len(o.instances))
	for name, instance := range o.instances {
		table[name] = instance
	}
	if err := o.runtime.modules.Set(table); err != nil {
		return err
	}

	for _, name := range order {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("startup aborted: %w", err)
		}
		o.startModule(ctx, o.instances[name])
	}

	return nil
}

// startModule drives a single module from Registered to Running or Failed.
// Initialization is strictly sequential across modules, so dependencies are
// either Running or Failed by the time their dependents are reached.
func (o *Orchestrator) startModule(ctx context.Context, instance *ModuleInstance) {
	name := instance.descriptor.Name

	if failedDep := o.failedDependencyOf(instance); failedDep != "" {
		cause := fmt.Errorf("%w: %s", ErrDependencyFailed, failedDep)
		o.transition(instance, StateFailed, cause)
		o.logger.Error("Module not started, dependency failed", "module", name, "dependency", failedDep)
		return
	}

	o.transition(instance, StateInitializing, nil)

	initCtx, cancel := context.WithTimeout(ctx, o.config.InitTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- instance.module.Init(initCtx, instance.core)
	}()

	var cause error
	select {
	case err := <-done:
		if errors.Is(err, context.DeadlineExceeded) {
			cause = fmt.Errorf("%w: after %s", ErrInitializationTimeout, o.config.InitTimeout)
		} else if err != nil {
			cause = fmt.Errorf("%w: %v", ErrInitializationFailed, err)
		}
	case <-initCtx.Done():
		// The init goroutine is cancelled through initCtx; a handler that
		// ignores cancellation keeps running in the background but its
		// result is discarded.
		cause = fmt.Errorf("%w: after %s", ErrInitializationTimeout, o.config.InitTimeout)
	}

	if cause != nil {
		o.transition(instance, StateFailed, cause)
		o.logger.Error("Module failed to initialize", "module", name, "error", cause)
		return
	}

	o.transition(instance, StateRunning, nil)
	o.mu.Lock()
	o.startOrder = append(o.startOrder, name)
	o.mu.Unlock()

	if handler, ok := instance.module.(EventHandler); ok && o.dispatcher != nil {
		o.dispatcher.attach(name, handler)
	}
	o.logger.Info("Module running", "module", name)
}

// failedDependencyOf returns the name of the first declared module
// dependency that is in the Failed state, or "".
func (o *Orchestrator) failedDependencyOf(instance *ModuleInstance) string {
	for _, dep := range instance.descriptor.Dependencies {
		if depInstance, ok := o.instances[dep]; ok && depInstance.State() == StateFailed {
			return dep
		}
	}
	return ""
}

// Stop tears modules down in strict reverse of the order in which they
// reached Running, regardless of dependency declarations. Each Stop gets the
// configured grace period; on expiry the module is force-marked Stopped and
// the timeout logged as a non-fatal warning. Teardown failures never abort
// the sweep; the aggregate set of teardown errors is returned at the end.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	reversed := make([]string, len(o.startOrder))
	copy(reversed, o.startOrder)
	o.mu.Unlock()
	slices.Reverse(reversed)

	var teardownErrs []error
	for _, name := range reversed {
		instance := o.instances[name]
		if instance.State() != StateRunning {
			o.logger.Debug("Module no longer running, skipping stop", "module", name, "state", instance.State())
			continue
		}

		if o.dispatcher != nil {
			o.dispatcher.detach(name)
		}
		o.transition(instance, StateStopping, nil)

		if err := o.stopModule(ctx, instance); err != nil {
			if errors.Is(err, ErrShutdownTimeout) {
				// Shutdown must complete even if a module hangs.
				o.logger.Warn("Module stop timed out, forcing stopped", "module", name, "timeout", o.config.StopTimeout)
				o.transition(instance, StateStopped, nil)
				continue
			}
			teardownErrs = append(teardownErrs, fmt.Errorf("module %s: %w", name, err))
			o.transition(instance, StateFailed, err)
			o.logger.Error("Module failed to stop", "module", name, "error", err)
			continue
		}

		o.transition(instance, StateStopped, nil)
		o.logger.Info("Module stopped", "module", name)
	}

	return errors.Join(teardownErrs...)
}

// stopModule runs one module's Stop under the grace period. Modules without
// teardown stop immediately.
func (o *Orchestrator) stopModule(ctx context.Context, instance *ModuleInstance) error {
	stoppable, ok := instance.module.(Stoppable)
	if !ok {
		return nil
	}

	stopCtx, cancel := context.WithTimeout(ctx, o.config.StopTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- stoppable.Stop(stopCtx)
	}()

	select {
	case err := <-done:
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: after %s", ErrShutdownTimeout, o.config.StopTimeout)
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrShutdownFailed, err)
		}
		return nil
	case <-stopCtx.Done():
		return fmt.Errorf("%w: after %s", ErrShutdownTimeout, o.config.StopTimeout)
	}
}

// failRunning marks a Running module Failed at runtime, detaching it from
// event delivery. Used by CoreContext.Fail when a module's background work
// dies unexpectedly. No-op for modules not currently Running.
func (o *Orchestrator) failRunning(name string, cause error) {
	instance, ok := o.instances[name]
	if !ok || instance.State() != StateRunning {
		return
	}

	if o.dispatcher != nil {
		o.dispatcher.detach(name)
	}
	o.transition(instance, StateFailed, cause)
	o.logger.Error("Module failed at runtime", "module", name, "error", cause)
}

// transition moves an instance into a new state, recording the monotonic
// transition counter and broadcasting diagnostics. Observer notification is
// asynchronous so it can never block lifecycle progress.
func (o *Orchestrator) transition(instance *ModuleInstance, state LifecycleState, cause error) {
	seq := o.transitions.Add(1)

	instance.mu.Lock()
	instance.state = state
	instance.cause = cause
	instance.seq = seq
	instance.mu.Unlock()

	name := instance.descriptor.Name
	o.logger.Debug("Module state transition", "module", name, "state", state, "seq", seq)

	switch state {
	case StateInitializing:
		o.notify(EventTypeModuleInitializing, name, nil)
	case StateRunning:
		o.notify(EventTypeModuleStarted, name, nil)
	case StateStopping:
		o.notify(EventTypeModuleStopping, name, nil)
	case StateStopped:
		o.notify(EventTypeModuleStopped, name, nil)
	case StateFailed:
		data := map[string]any{"error": fmt.Sprint(cause)}
		o.notify(EventTypeModuleFailed, name, data)

		status := o.statusOf(instance)
		select {
		case o.failures <- status:
		default:
			// A slow consumer must not block lifecycle progress.
		}
	}
}

// notify emits a lifecycle CloudEvent to the observer registry, if any.
func (o *Orchestrator) notify(eventType, module string, data map[string]any) {
	if o.observers == nil {
		return
	}
	event := NewCloudEvent(eventType, "lum/orchestrator", map[string]any{"module": module})
	if data != nil {
		payload := map[string]any{"module": module}
		for k, v := range data {
			payload[k] = v
		}
		event = NewCloudEvent(eventType, "lum/orchestrator", payload)
	}
	o.observers.NotifyObservers(context.Background(), event)
}

// Failures returns a channel receiving a status snapshot each time a module
// enters the Failed state. The channel is buffered and never blocks the
// orchestrator; slow consumers may miss intermediate notifications.
func (o *Orchestrator) Failures() <-chan ModuleStatus {
	return o.failures
}

// StartOrder returns the names of modules in the order they reached Running.
func (o *Orchestrator) StartOrder() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(o.startOrder)
}

func (o *Orchestrator) statusOf(instance *ModuleInstance) ModuleStatus {
	instance.mu.RLock()
	defer instance.mu.RUnlock()

	status := ModuleStatus{
		Name:       instance.descriptor.Name,
		State:      instance.state,
		StateLabel: instance.state.String(),
		Priority:   instance.descriptor.Priority,
		Essential:  instance.descriptor.Priority == PriorityEssential,
		Transition: instance.seq,
	}
	if instance.cause != nil {
		status.Cause = instance.cause.Error()
	}
	return status
}
