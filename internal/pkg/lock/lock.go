// Package lock provides per-user in-flight guards for economic requests.
// It only rejects duplicate concurrent requests from one user inside one
// process; balance and stock consistency come from database transactions.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrLockTimeout is returned when the user's lock was not released in time.
var ErrLockTimeout = errors.New("timed out waiting for user lock")

// userMutex is a one-slot semaphore with a reference count so idle entries
// can be dropped from the map.
type userMutex struct {
	slot     chan struct{}
	refCount int
}

// UserLock provides per-user locking keyed by user ID.
type UserLock struct {
	mu    sync.Mutex
	locks map[string]*userMutex
}

// NewUserLock creates a new UserLock instance.
func NewUserLock() *UserLock {
	return &UserLock{locks: make(map[string]*userMutex)}
}

func (ul *UserLock) acquireRef(userID string) *userMutex {
	ul.mu.Lock()
	defer ul.mu.Unlock()

	m, ok := ul.locks[userID]
	if !ok {
		m = &userMutex{slot: make(chan struct{}, 1)}
		ul.locks[userID] = m
	}
	m.refCount++
	return m
}

func (ul *UserLock) releaseRef(userID string, m *userMutex) {
	ul.mu.Lock()
	defer ul.mu.Unlock()

	m.refCount--
	if m.refCount == 0 {
		delete(ul.locks, userID)
	}
}

// TryLock attempts to acquire the lock without blocking.
// Returns true if the lock was acquired, false otherwise.
func (ul *UserLock) TryLock(userID string) bool {
	m := ul.acquireRef(userID)
	select {
	case m.slot <- struct{}{}:
		return true
	default:
		ul.releaseRef(userID, m)
		return false
	}
}

// LockWithTimeout waits up to timeout for the lock.
func (ul *UserLock) LockWithTimeout(ctx context.Context, userID string, timeout time.Duration) error {
	m := ul.acquireRef(userID)

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case m.slot <- struct{}{}:
		return nil
	case <-timeoutCtx.Done():
		ul.releaseRef(userID, m)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: user %s", ErrLockTimeout, userID)
	}
}

// Unlock releases the lock for a user. Unlocking a user that is not locked
// is a no-op.
func (ul *UserLock) Unlock(userID string) {
	ul.mu.Lock()
	m, ok := ul.locks[userID]
	ul.mu.Unlock()
	if !ok {
		return
	}

	select {
	case <-m.slot:
		ul.releaseRef(userID, m)
	default:
	}
}

// WithLock executes fn while holding the user's lock, waiting up to timeout.
func (ul *UserLock) WithLock(ctx context.Context, userID string, timeout time.Duration, fn func() error) error {
	if err := ul.LockWithTimeout(ctx, userID, timeout); err != nil {
		return err
	}
	defer ul.Unlock(userID)
	return fn()
}

// IsLocked checks if a user currently holds the lock.
// This is a point-in-time check and may change immediately after.
func (ul *UserLock) IsLocked(userID string) bool {
	ul.mu.Lock()
	m, ok := ul.locks[userID]
	ul.mu.Unlock()
	return ok && len(m.slot) == 1
}

// Len returns the number of users with a live entry.
func (ul *UserLock) Len() int {
	ul.mu.Lock()
	defer ul.mu.Unlock()
	return len(ul.locks)
}
