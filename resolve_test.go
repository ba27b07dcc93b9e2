package lum

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func descriptors(mods ...ModuleDescriptor) []ModuleDescriptor {
	return mods
}

func noCapabilities(string) bool { return false }

func indexOf(t *testing.T, order []string, name string) int {
	t.Helper()
	for i, n := range order {
		if n == name {
			return i
		}
	}
	t.Fatalf("module %s not in order %v", name, order)
	return -1
}

func TestResolveDependenciesOrdersDependenciesFirst(t *testing.T) {
	tests := []struct {
		name  string
		input []ModuleDescriptor
	}{
		{
			name: "chain",
			input: descriptors(
				ModuleDescriptor{Name: "c", Dependencies: []string{"b"}},
				ModuleDescriptor{Name: "b", Dependencies: []string{"a"}},
				ModuleDescriptor{Name: "a"},
			),
		},
		{
			name: "diamond",
			input: descriptors(
				ModuleDescriptor{Name: "d", Dependencies: []string{"b", "c"}},
				ModuleDescriptor{Name: "b", Dependencies: []string{"a"}},
				ModuleDescriptor{Name: "c", Dependencies: []string{"a"}},
				ModuleDescriptor{Name: "a"},
			),
		},
		{
			name: "fan out",
			input: descriptors(
				ModuleDescriptor{Name: "a"},
				ModuleDescriptor{Name: "b", Dependencies: []string{"a"}},
				ModuleDescriptor{Name: "c", Dependencies: []string{"a"}},
			),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order, err := resolveDependencies(tt.input, noCapabilities)
			require.NoError(t, err)
			require.Len(t, order, len(tt.input))

			for _, desc := range tt.input {
				for _, dep := range desc.Dependencies {
					assert.Greater(t, indexOf(t, order, desc.Name), indexOf(t, order, dep),
						"%s must come after its dependency %s", desc.Name, dep)
				}
			}
		})
	}
}

func TestResolveDependenciesStableByRegistrationOrder(t *testing.T) {
	input := descriptors(
		ModuleDescriptor{Name: "a"},
		ModuleDescriptor{Name: "b", Dependencies: []string{"a"}},
		ModuleDescriptor{Name: "c", Dependencies: []string{"a"}},
	)

	// Unconstrained modules keep registration order on every run.
	for i := 0; i < 10; i++ {
		order, err := resolveDependencies(input, noCapabilities)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c"}, order)
	}
}

func TestResolveDependenciesReportsCycle(t *testing.T) {
	input := descriptors(
		ModuleDescriptor{Name: "a", Dependencies: []string{"b"}},
		ModuleDescriptor{Name: "b", Dependencies: []string{"c"}},
		ModuleDescriptor{Name: "c", Dependencies: []string{"a"}},
	)

	order, err := resolveDependencies(input, noCapabilities)
	assert.Nil(t, order, "no partial order on cycle")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDependencyCycle)

	var cycle *CycleError
	require.ErrorAs(t, err, &cycle)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, cycle.Members)
}

func TestResolveDependenciesReportsMinimalCycle(t *testing.T) {
	// Only b and c form the cycle; a is an innocent entry point.
	input := descriptors(
		ModuleDescriptor{Name: "a", Dependencies: []string{"b"}},
		ModuleDescriptor{Name: "b", Dependencies: []string{"c"}},
		ModuleDescriptor{Name: "c", Dependencies: []string{"b"}},
	)

	_, err := resolveDependencies(input, noCapabilities)
	var cycle *CycleError
	require.ErrorAs(t, err, &cycle)
	assert.ElementsMatch(t, []string{"b", "c"}, cycle.Members)
}

func TestResolveDependenciesSelfCycle(t *testing.T) {
	input := descriptors(ModuleDescriptor{Name: "a", Dependencies: []string{"a"}})

	_, err := resolveDependencies(input, noCapabilities)
	var cycle *CycleError
	require.ErrorAs(t, err, &cycle)
	assert.Equal(t, []string{"a"}, cycle.Members)
}

func TestResolveDependenciesMissingDependency(t *testing.T) {
	input := descriptors(
		ModuleDescriptor{Name: "a", Dependencies: []string{"ghost"}},
	)

	order, err := resolveDependencies(input, noCapabilities)
	assert.Nil(t, order)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingDependency)
	assert.Contains(t, err.Error(), `module "a" requires "ghost"`)
}

func TestResolveDependenciesCapabilityKeysSatisfyWithoutEdges(t *testing.T) {
	input := descriptors(
		ModuleDescriptor{Name: "a", Dependencies: []string{"datastore"}},
		ModuleDescriptor{Name: "b", Dependencies: []string{"a", "httpclient"}},
	)
	hasCapability := func(key string) bool {
		return key == "datastore" || key == "httpclient"
	}

	order, err := resolveDependencies(input, hasCapability)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, order)
}

func TestResolveDependenciesEmptySet(t *testing.T) {
	order, err := resolveDependencies(nil, noCapabilities)
	require.NoError(t, err)
	assert.Empty(t, order)
}

func TestCycleErrorMatchesSentinel(t *testing.T) {
	err := &CycleError{Members: []string{"x", "y"}}
	assert.True(t, errors.Is(err, ErrDependencyCycle))
	assert.Contains(t, err.Error(), "x -> y")
}
