// Package threadlock provides the per-thread logical lock the orchestrator
// holds for the duration of a turn: per-thread state is mutated by
// exactly one task at a time, while different threads proceed in parallel.
// Registry covers single-process deployments, where the guarantee is an
// in-process mutex; DistributedRegistry covers multi-process deployments,
// where it is a DynamoDB conditional write.
package threadlock

import (
	"context"
	"fmt"
	"sync"

	"groundedmemory/domain/ids"
)

// Locker serializes turns per thread. The orchestrator acquires exactly
// one Handle per turn and releases it when the turn ends, however it ends.
type Locker interface {
	Acquire(ctx context.Context, threadID ids.ThreadID) (*Handle, error)
}

// Handle is a held lock; the caller must call Release exactly once.
type Handle struct {
	release func()
}

func (h *Handle) Release() {
	h.release()
}

// Registry hands out one mutex per thread id, created lazily and retained
// for the process lifetime. Entries are never removed; thread ids are
// bounded by the set of conversations a deployment actually serves.
type Registry struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewRegistry() *Registry {
	return &Registry{locks: make(map[string]*sync.Mutex)}
}

func (r *Registry) mutexFor(threadID ids.ThreadID) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.locks[threadID.String()]
	if !ok {
		m = &sync.Mutex{}
		r.locks[threadID.String()] = m
	}
	return m
}

// Acquire blocks until the thread's lock is free or ctx is cancelled. A
// cancelled acquisition never takes the lock, so cancellation never leaves
// a dangling holder.
func (r *Registry) Acquire(ctx context.Context, threadID ids.ThreadID) (*Handle, error) {
	m := r.mutexFor(threadID)

	acquired := make(chan struct{})
	go func() {
		m.Lock()
		close(acquired)
	}()

	select {
	case <-acquired:
		return &Handle{release: m.Unlock}, nil
	case <-ctx.Done():
		// The goroutine above may still acquire the mutex later; release it
		// immediately so the turn that owns ctx never blocks a future one.
		go func() {
			<-acquired
			m.Unlock()
		}()
		return nil, fmt.Errorf("threadlock: acquire cancelled for thread %s: %w", threadID.String(), ctx.Err())
	}
}
