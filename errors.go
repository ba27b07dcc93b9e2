package lum

import (
	"errors"
	"fmt"
	"strings"
)

// Framework errors
var (
	// Capability registry errors
	ErrDuplicateCapability = errors.New("capability already registered")
	ErrCapabilityNotFound  = errors.New("capability not found")
	ErrRegistryFrozen      = errors.New("capability registry is closed for registration")
	ErrCapabilityWrongType = errors.New("capability does not satisfy requested type")

	// Dependency resolution errors
	ErrDependencyCycle   = errors.New("dependency cycle detected")
	ErrMissingDependency = errors.New("missing dependency")

	// Lifecycle errors
	ErrDuplicateModule       = errors.New("module already registered")
	ErrOrchestratorStarted   = errors.New("orchestrator already started")
	ErrInitializationFailed  = errors.New("module initialization failed")
	ErrInitializationTimeout = errors.New("module initialization timed out")
	ErrDependencyFailed      = errors.New("dependency failed")
	ErrShutdownFailed        = errors.New("module shutdown failed")
	ErrShutdownTimeout       = errors.New("module shutdown timed out")
	ErrModuleNotRunning      = errors.New("module is not running")
	ErrModuleWrongType       = errors.New("module does not satisfy requested type")

	// Dispatch errors
	ErrHandlerFailed = errors.New("event handler failed")

	// Set-once cell errors
	ErrAlreadySet = errors.New("value already set")

	// Builder errors
	ErrLoggerNotSet = errors.New("logger not set")

	// Config errors
	ErrUnsupportedConfigFormat = errors.New("unsupported config file format")
)

// CycleError reports a dependency cycle found during resolution.
// Members holds the minimal set of module names participating in the cycle,
// in the order they were encountered.
type CycleError struct {
	Members []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%s: %s", ErrDependencyCycle, strings.Join(e.Members, " -> "))
}

// Unwrap allows errors.Is(err, ErrDependencyCycle) to match.
func (e *CycleError) Unwrap() error {
	return ErrDependencyCycle
}
