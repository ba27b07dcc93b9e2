package lum

import "sync"

// SetLock is a write-once cell: it starts empty, accepts exactly one value,
// and serves concurrent reads thereafter. Setting a second value fails with
// ErrAlreadySet rather than overwriting.
type SetLock[T any] struct {
	mu    sync.RWMutex
	set   bool
	value T
}

// Set stores the value. It fails with ErrAlreadySet if called twice.
func (l *SetLock[T]) Set(value T) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.set {
		return ErrAlreadySet
	}
	l.value = value
	l.set = true
	return nil
}

// Get returns the stored value and whether it has been set.
func (l *SetLock[T]) Get() (T, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.value, l.set
}

// IsSet reports whether a value has been stored.
func (l *SetLock[T]) IsSet() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.set
}
