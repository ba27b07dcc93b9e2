// Package lum provides the host framework for a modular chat bot.
// It connects a real-time gateway collaborator to a set of independently
// developed modules, managing their lifecycle, dependency ordering, and
// failure isolation.
//
// A bot is composed of modules that declare dependencies on each other and
// on shared capabilities (singleton services such as a data-store handle or
// an HTTP client). The framework resolves a dependency order, drives every
// module through its lifecycle state machine, and fans gateway events out to
// all running modules while keeping one misbehaving module from affecting
// the rest.
//
// Basic usage:
//
//	bot, err := lum.NewBotBuilder("lum").
//		WithLogger(logger).
//		WithCapability("datastore", store).
//		WithModule(mymodule.New()).
//		Build()
//	if err != nil {
//		log.Fatal(err)
//	}
//	os.Exit(bot.Run(context.Background()))
package lum

import "context"

// Module represents a registrable feature unit managed by the bot.
// All modules must implement this interface.
//
// A module encapsulates one piece of bot functionality. It interacts with
// shared services through the capability registry and with sibling modules
// through its CoreContext, never through package-level state.
type Module interface {
	// Name returns the unique identifier for this module. It is used for
	// dependency resolution and must be unique within one bot.
	Name() string

	// Init initializes the module. It is called in dependency order, so
	// every module named in Dependencies() is guaranteed to be Running
	// when Init is invoked. The context carries the configured
	// initialization timeout; implementations doing I/O should honor it.
	Init(ctx context.Context, core *CoreContext) error
}

// DependencyAware is an optional interface for modules that depend on other
// modules or capabilities. The returned keys are module names or capability
// keys; both are validated before any module initializes.
//
// Circular module dependencies cause startup to fail before any Init runs.
type DependencyAware interface {
	Dependencies() []string
}

// EventHandler is an optional interface for modules that consume gateway
// events. Only modules in the Running state receive events.
//
// Events are delivered to a single module strictly in arrival order, with
// at most one in-flight invocation per module. Delivery across different
// modules is concurrent and unordered.
type EventHandler interface {
	HandleEvent(ctx context.Context, event Event) error
}

// Stoppable is an optional interface for modules that need teardown.
// Stop is called during shutdown in reverse startup order and is bounded by
// the configured grace period; a module that exceeds it is force-marked
// Stopped so shutdown always completes.
type Stoppable interface {
	Stop(ctx context.Context) error
}

// Prioritized is an optional interface for modules that declare how their
// failure affects the whole bot. Modules that do not implement it are
// treated as PriorityOptional.
type Prioritized interface {
	Priority() Priority
}

// Priority classifies how essential a module is to the bot.
type Priority int

const (
	// PriorityOptional modules may fail without taking the bot down.
	PriorityOptional Priority = iota

	// PriorityEssential modules are required; the bot reports Unhealthy
	// and shuts down when one of them fails.
	PriorityEssential
)

func (p Priority) String() string {
	switch p {
	case PriorityEssential:
		return "essential"
	default:
		return "optional"
	}
}

// ModuleDescriptor captures the registration-time identity of a module.
// It is immutable after registration.
type ModuleDescriptor struct {
	// Name is the stable identity key, as returned by Module.Name().
	Name string

	// Dependencies holds module names and capability keys this module
	// requires, in declaration order.
	Dependencies []string

	// Priority declares how the module's failure affects the bot.
	Priority Priority
}

// DependsOn reports whether the descriptor declares the given key.
func (d ModuleDescriptor) DependsOn(key string) bool {
	for _, dep := range d.Dependencies {
		if dep == key {
			return true
		}
	}
	return false
}

// describeModule derives the immutable descriptor for a module by probing
// its optional interfaces.
func describeModule(m Module) ModuleDescriptor {
	desc := ModuleDescriptor{Name: m.Name()}
	if da, ok := m.(DependencyAware); ok {
		deps := da.Dependencies()
		desc.Dependencies = make([]string, len(deps))
		copy(desc.Dependencies, deps)
	}
	if p, ok := m.(Prioritized); ok {
		desc.Priority = p.Priority()
	}
	return desc
}
