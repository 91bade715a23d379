// Package accountlock provides per-account mutual exclusion so that no two
// browser sessions drive the same login concurrently. The platform flags
// simultaneous logins on one account, and overlapping sessions would also
// race on the same feed state.
package accountlock

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Registry hands out one lock per account id.
type Registry struct {
	mu    sync.Mutex
	locks map[string]*semaphore.Weighted
}

// NewRegistry creates an empty lock registry.
func NewRegistry() *Registry {
	return &Registry{locks: make(map[string]*semaphore.Weighted)}
}

func (r *Registry) lock(accountID string) *semaphore.Weighted {
	r.mu.Lock()
	defer r.mu.Unlock()
	sem, ok := r.locks[accountID]
	if !ok {
		sem = semaphore.NewWeighted(1)
		r.locks[accountID] = sem
	}
	return sem
}

// Acquire blocks until the account's lock is held or ctx is done. On success
// the returned release function must be called exactly once.
func (r *Registry) Acquire(ctx context.Context, accountID string) (release func(), err error) {
	sem := r.lock(accountID)
	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	var once sync.Once
	return func() {
		once.Do(func() { sem.Release(1) })
	}, nil
}

// TryAcquire acquires the account's lock without blocking. It returns a nil
// release function when the lock is already held.
func (r *Registry) TryAcquire(accountID string) (release func(), ok bool) {
	sem := r.lock(accountID)
	if !sem.TryAcquire(1) {
		return nil, false
	}
	var once sync.Once
	return func() {
		once.Do(func() { sem.Release(1) })
	}, true
}
