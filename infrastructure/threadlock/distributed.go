package threadlock

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"groundedmemory/domain/ids"
	ddb "groundedmemory/infrastructure/persistence/dynamodb"
)

const (
	// defaultLease bounds how long a crashed process can wedge a thread
	// before DynamoDB's TTL reaping (or the ExpiresAt condition) frees it.
	defaultLease = 30 * time.Second

	// defaultAcquireTimeout bounds how long a turn waits on a contended
	// thread before giving up; the caller's ctx can cut this shorter.
	defaultAcquireTimeout = 10 * time.Second
)

// DistributedRegistry implements Locker across processes by driving
// dynamodb.DistributedLock's conditional-write lease per thread id. Each
// registry instance is one lock owner; a deployment constructs one per
// orchestrator process.
type DistributedRegistry struct {
	service        *ddb.DistributedLock
	ownerID        string
	lease          time.Duration
	acquireTimeout time.Duration
	logger         *zap.Logger
}

// NewDistributedRegistry wraps a lock service for the given owner id
// (typically one generated id per process instance).
func NewDistributedRegistry(service *ddb.DistributedLock, ownerID string, logger *zap.Logger) *DistributedRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DistributedRegistry{
		service:        service,
		ownerID:        ownerID,
		lease:          defaultLease,
		acquireTimeout: defaultAcquireTimeout,
		logger:         logger,
	}
}

// Acquire claims the thread's cross-process lease, retrying contention
// until ctx is cancelled or the acquire timeout elapses. The returned
// Handle releases the lease; a release that fails remotely is logged and
// left to lease expiry, never surfaced to the turn that already finished.
func (r *DistributedRegistry) Acquire(ctx context.Context, threadID ids.ThreadID) (*Handle, error) {
	lock, err := r.service.TryAcquireLock(ctx, threadID.String(), r.ownerID, r.lease, r.acquireTimeout)
	if err != nil {
		return nil, fmt.Errorf("threadlock: acquire thread %s: %w", threadID.String(), err)
	}
	return &Handle{release: func() {
		if err := lock.Release(context.Background()); err != nil {
			r.logger.Warn("failed to release thread lock; lease will expire",
				zap.String("thread_id", threadID.String()),
				zap.Error(err),
			)
		}
	}}, nil
}
