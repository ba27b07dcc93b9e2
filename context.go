package lum

import (
	"fmt"
	"reflect"
)

// coreRuntime is the state shared by every module's CoreContext. The module
// table is populated exactly once by the orchestrator, after dependency
// resolution and before the first Init.
type coreRuntime struct {
	capabilities *CapabilityRegistry
	logger       Logger
	orch         *Orchestrator
	modules      SetLock[map[string]*ModuleInstance]
}

// CoreContext is the read-mostly handle passed to every module at
// initialization. It exposes capability lookup and typed access to sibling
// modules. Only dependencies declared in the module's descriptor are
// reachable; the context holds no mutable shared state of its own.
type CoreContext struct {
	descriptor ModuleDescriptor
	runtime    *coreRuntime
}

// ModuleName returns the name of the module this context belongs to.
func (c *CoreContext) ModuleName() string {
	return c.descriptor.Name
}

// Logger returns the bot's logger.
func (c *CoreContext) Logger() Logger {
	return c.runtime.logger
}

// Capability looks up a capability by key, delegating to the bot's
// capability registry.
func (c *CoreContext) Capability(key string) (any, error) {
	return c.runtime.capabilities.Get(key)
}

// Fail reports an unrecoverable runtime failure of the owning module, for
// example a background goroutine that died unexpectedly. The module is
// transitioned to Failed and detached from event delivery; siblings are
// unaffected. No-op unless the module is currently Running.
func (c *CoreContext) Fail(cause error) {
	c.runtime.orch.failRunning(c.descriptor.Name, cause)
}

// module returns the named sibling module. The module must be declared as a
// dependency and be in the Running state.
func (c *CoreContext) module(name string) (Module, error) {
	if !c.descriptor.DependsOn(name) {
		return nil, fmt.Errorf("%w: module %q does not declare %q", ErrMissingDependency, c.descriptor.Name, name)
	}

	table, ok := c.runtime.modules.Get()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrModuleNotRunning, name)
	}
	instance, exists := table[name]
	if !exists {
		return nil, fmt.Errorf("%w: module %q requires %q", ErrMissingDependency, c.descriptor.Name, name)
	}
	if instance.State() != StateRunning {
		return nil, fmt.Errorf("%w: %s is %s", ErrModuleNotRunning, name, instance.State())
	}
	return instance.module, nil
}

// ModuleAs retrieves a sibling module by name with a checked cast to T.
// Only dependencies declared in the caller's descriptor are accessible;
// anything else fails with ErrMissingDependency. A module of the wrong
// concrete type fails with ErrModuleWrongType, never an unchecked cast.
func ModuleAs[T Module](c *CoreContext, name string) (T, error) {
	var zero T

	m, err := c.module(name)
	if err != nil {
		return zero, err
	}

	typed, ok := m.(T)
	if !ok {
		return zero, fmt.Errorf("%w: module %q of type %s cannot be used as %s",
			ErrModuleWrongType, name, reflect.TypeOf(m), reflect.TypeOf((*T)(nil)).Elem())
	}
	return typed, nil
}

// CapabilityAs retrieves a capability by key with a checked cast to T.
func CapabilityAs[T any](c *CoreContext, key string) (T, error) {
	return GetCapability[T](c.runtime.capabilities, key)
}
