package core

import "sync"

// WriteLock is the single mutual-exclusion primitive shared by reference
// across a registry family. Identity matters: forks compare equal by pointer.
type WriteLock struct {
	mu sync.Mutex
}

// NewWriteLock creates an unlocked write lock.
func NewWriteLock() *WriteLock { return &WriteLock{} }

// Do runs fn while holding the lock. The lock is released on every exit path,
// including panics inside fn.
func (l *WriteLock) Do(fn func() error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return fn()
}

// TryDo runs fn only if the lock is free. It reports whether fn ran.
func (l *WriteLock) TryDo(fn func() error) (bool, error) {
	if !l.mu.TryLock() {
		return false, nil
	}
	defer l.mu.Unlock()

	return true, fn()
}
