package lum

import (
	"fmt"
)

// dependency graph marks for the three-color depth-first search
type mark int

const (
	markUnvisited mark = iota
	markInProgress
	markDone
)

// resolveDependencies computes a startup order for the given descriptors:
// every module appears after all of its module dependencies. Dependency keys
// that name a registered capability are satisfied without adding an edge.
//
// It returns a *CycleError (matching ErrDependencyCycle) when the graph
// contains a cycle and ErrMissingDependency when a key names neither a
// module nor a capability. Modules with no ordering constraint relative to
// each other keep their registration order, so orchestration logs are
// deterministic across runs with identical input.
func resolveDependencies(descriptors []ModuleDescriptor, hasCapability func(string) bool) ([]string, error) {
	byName := make(map[string]ModuleDescriptor, len(descriptors))
	for _, desc := range descriptors {
		byName[desc.Name] = desc
	}

	result := make([]string, 0, len(descriptors))
	marks := make(map[string]mark, len(descriptors))
	stack := make([]string, 0, len(descriptors))

	var visit func(name string) error
	visit = func(name string) error {
		switch marks[name] {
		case markDone:
			return nil
		case markInProgress:
			// Back-edge: the cycle is the stack suffix starting at name.
			return &CycleError{Members: cycleMembers(stack, name)}
		}

		marks[name] = markInProgress
		stack = append(stack, name)

		for _, dep := range byName[name].Dependencies {
			if _, isModule := byName[dep]; isModule {
				if err := visit(dep); err != nil {
					return err
				}
				continue
			}
			if hasCapability != nil && hasCapability(dep) {
				continue
			}
			return fmt.Errorf("%w: module %q requires %q", ErrMissingDependency, name, dep)
		}

		stack = stack[:len(stack)-1]
		marks[name] = markDone
		result = append(result, name)
		return nil
	}

	for _, desc := range descriptors {
		if err := visit(desc.Name); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// cycleMembers extracts the minimal cycle from the DFS stack: the suffix
// beginning at the first occurrence of the revisited node.
func cycleMembers(stack []string, node string) []string {
	for i, name := range stack {
		if name == node {
			members := make([]string, len(stack)-i)
			copy(members, stack[i:])
			return members
		}
	}
	return []string{node}
}
