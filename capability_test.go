package lum

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	name string
}

func TestCapabilityRegistryRegisterAndGet(t *testing.T) {
	registry := NewCapabilityRegistry()

	store := &fakeStore{name: "primary"}
	require.NoError(t, registry.Register("datastore", store))

	value, err := registry.Get("datastore")
	require.NoError(t, err)
	assert.Same(t, store, value)
	assert.True(t, registry.Has("datastore"))
	assert.Contains(t, registry.Keys(), "datastore")
}

func TestCapabilityRegistryDuplicateKey(t *testing.T) {
	registry := NewCapabilityRegistry()

	require.NoError(t, registry.Register("datastore", &fakeStore{}))
	err := registry.Register("datastore", &fakeStore{})
	assert.ErrorIs(t, err, ErrDuplicateCapability)
}

func TestCapabilityRegistryNotFound(t *testing.T) {
	registry := NewCapabilityRegistry()

	_, err := registry.Get("missing")
	assert.ErrorIs(t, err, ErrCapabilityNotFound)
	assert.False(t, registry.Has("missing"))
}

func TestCapabilityRegistryFrozenRejectsWrites(t *testing.T) {
	registry := NewCapabilityRegistry()
	require.NoError(t, registry.Register("datastore", &fakeStore{}))

	registry.Freeze()

	err := registry.Register("late", &fakeStore{})
	assert.ErrorIs(t, err, ErrRegistryFrozen)

	// Existing entries stay readable after the freeze.
	_, err = registry.Get("datastore")
	assert.NoError(t, err)
}

func TestCapabilityRegistryConcurrentReadsAfterFreeze(t *testing.T) {
	registry := NewCapabilityRegistry()
	require.NoError(t, registry.Register("datastore", &fakeStore{}))
	registry.Freeze()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, err := registry.Get("datastore")
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()
}

func TestCapabilityRegistryRegisterRacingFreeze(t *testing.T) {
	registry := NewCapabilityRegistry()

	// Writers race the freeze; every Register either completes before the
	// freeze takes effect or is refused, never leaving a half-written map
	// behind the lock-free read path.
	var wg sync.WaitGroup
	accepted := make([]atomic.Bool, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if registry.Register(fmt.Sprintf("cap-%d", i), &fakeStore{}) == nil {
				accepted[i].Store(true)
			}
		}(i)
	}
	registry.Freeze()
	wg.Wait()

	err := registry.Register("late", &fakeStore{})
	assert.ErrorIs(t, err, ErrRegistryFrozen)

	for i := range accepted {
		key := fmt.Sprintf("cap-%d", i)
		if accepted[i].Load() {
			_, err := registry.Get(key)
			assert.NoError(t, err, key)
		} else {
			assert.False(t, registry.Has(key), key)
		}
	}
}

func TestGetCapabilityTypedAccess(t *testing.T) {
	registry := NewCapabilityRegistry()
	require.NoError(t, registry.Register("datastore", &fakeStore{name: "primary"}))

	store, err := GetCapability[*fakeStore](registry, "datastore")
	require.NoError(t, err)
	assert.Equal(t, "primary", store.name)
}

func TestGetCapabilityWrongType(t *testing.T) {
	registry := NewCapabilityRegistry()
	require.NoError(t, registry.Register("datastore", &fakeStore{}))

	_, err := GetCapability[*testLogger](registry, "datastore")
	assert.ErrorIs(t, err, ErrCapabilityWrongType)
}

func TestGetCapabilityUnknownKey(t *testing.T) {
	registry := NewCapabilityRegistry()

	_, err := GetCapability[*fakeStore](registry, "missing")
	assert.ErrorIs(t, err, ErrCapabilityNotFound)
}
