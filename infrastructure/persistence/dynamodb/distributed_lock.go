package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

// ErrLockHeld reports that another live owner currently holds the thread's
// lock. Callers retry on this and fail fast on anything else.
var ErrLockHeld = errors.New("thread lock already held")

// DistributedLock provides the multi-process variant of the per-thread
// logical lock via DynamoDB conditional writes: the locked resource is a
// thread id, so a deployment running more than one orchestrator process
// still serializes turns on the same thread. Single-process deployments
// use infrastructure/threadlock's in-memory Registry instead;
// threadlock.DistributedRegistry adapts this type into the same Locker
// surface for the multi-process case.
type DistributedLock struct {
	client    *dynamodb.Client
	tableName string
	logger    *zap.Logger
}

// lockItem is the DynamoDB item shape for a held thread lock. The TTL
// attribute lets DynamoDB reap leases whose owner died without releasing.
type lockItem struct {
	PK         string // LOCK#<thread_id>
	SK         string // LOCK
	LockID     string // unique per acquisition
	Owner      string // orchestrator process instance
	AcquiredAt string // RFC3339
	ExpiresAt  string // RFC3339
	TTL        int64  // unix seconds, for DynamoDB TTL reaping
}

// NewDistributedLock creates a lock service over the given table.
func NewDistributedLock(client *dynamodb.Client, tableName string, logger *zap.Logger) *DistributedLock {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DistributedLock{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

// AcquireLock attempts a single conditional write claiming the thread's
// lock for ownerID, with the given lease duration. Returns ErrLockHeld
// when another unexpired owner holds it.
func (dl *DistributedLock) AcquireLock(ctx context.Context, threadID, ownerID string, lease time.Duration) (*Lock, error) {
	now := time.Now()
	item := lockItem{
		PK:         fmt.Sprintf("LOCK#%s", threadID),
		SK:         "LOCK",
		LockID:     fmt.Sprintf("%s_%d", ownerID, now.UnixNano()),
		Owner:      ownerID,
		AcquiredAt: now.Format(time.RFC3339),
		ExpiresAt:  now.Add(lease).Format(time.RFC3339),
		TTL:        now.Add(lease).Unix(),
	}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(dl.tableName),
		Item: map[string]types.AttributeValue{
			"PK":         &types.AttributeValueMemberS{Value: item.PK},
			"SK":         &types.AttributeValueMemberS{Value: item.SK},
			"LockID":     &types.AttributeValueMemberS{Value: item.LockID},
			"Owner":      &types.AttributeValueMemberS{Value: item.Owner},
			"AcquiredAt": &types.AttributeValueMemberS{Value: item.AcquiredAt},
			"ExpiresAt":  &types.AttributeValueMemberS{Value: item.ExpiresAt},
			"TTL":        &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", item.TTL)},
		},
		ConditionExpression: aws.String("attribute_not_exists(PK) OR ExpiresAt < :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberS{Value: item.AcquiredAt},
		},
	}

	if _, err := dl.client.PutItem(ctx, input); err != nil {
		var conditionalCheckFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionalCheckFailed) {
			dl.logger.Debug("thread lock contended",
				zap.String("thread_id", threadID),
				zap.String("owner", ownerID),
			)
			return nil, fmt.Errorf("%w: thread %s", ErrLockHeld, threadID)
		}
		return nil, fmt.Errorf("acquire thread lock: %w", err)
	}

	dl.logger.Debug("thread lock acquired",
		zap.String("thread_id", threadID),
		zap.String("lock_id", item.LockID),
		zap.String("owner", ownerID),
		zap.Duration("lease", lease),
	)

	return &Lock{
		service:   dl,
		threadID:  threadID,
		lockID:    item.LockID,
		ownerID:   ownerID,
		expiresAt: now.Add(lease),
	}, nil
}

// TryAcquireLock retries AcquireLock with backoff until it succeeds, ctx
// is cancelled, or the timeout elapses. Contention retries; any other
// error returns immediately.
func (dl *DistributedLock) TryAcquireLock(ctx context.Context, threadID, ownerID string, lease, timeout time.Duration) (*Lock, error) {
	deadline := time.Now().Add(timeout)
	retryInterval := 100 * time.Millisecond

	for time.Now().Before(deadline) {
		lock, err := dl.AcquireLock(ctx, threadID, ownerID, lease)
		if err == nil {
			return lock, nil
		}
		if !errors.Is(err, ErrLockHeld) {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryInterval):
			if retryInterval < time.Second {
				retryInterval = time.Duration(float64(retryInterval) * 1.5)
			}
		}
	}

	return nil, fmt.Errorf("timeout acquiring thread lock: %s", threadID)
}

// ReleaseLock deletes the lock item, conditional on still owning it. A
// lock already gone (expired and reaped, or released twice) is success.
func (dl *DistributedLock) ReleaseLock(ctx context.Context, threadID, lockID, ownerID string) error {
	input := &dynamodb.DeleteItemInput{
		TableName: aws.String(dl.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: fmt.Sprintf("LOCK#%s", threadID)},
			"SK": &types.AttributeValueMemberS{Value: "LOCK"},
		},
		ConditionExpression: aws.String("LockID = :lockId AND #owner = :owner"),
		ExpressionAttributeNames: map[string]string{
			"#owner": "Owner",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":lockId": &types.AttributeValueMemberS{Value: lockID},
			":owner":  &types.AttributeValueMemberS{Value: ownerID},
		},
	}

	if _, err := dl.client.DeleteItem(ctx, input); err != nil {
		var conditionalCheckFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionalCheckFailed) {
			dl.logger.Warn("thread lock already released or re-acquired elsewhere",
				zap.String("thread_id", threadID),
				zap.String("lock_id", lockID),
				zap.String("owner", ownerID),
			)
			return nil
		}
		return fmt.Errorf("release thread lock: %w", err)
	}

	dl.logger.Debug("thread lock released",
		zap.String("thread_id", threadID),
		zap.String("lock_id", lockID),
		zap.String("owner", ownerID),
	)

	return nil
}

// Lock is an acquired thread lock lease.
type Lock struct {
	service   *DistributedLock
	threadID  string
	lockID    string
	ownerID   string
	expiresAt time.Time
}

// Release releases the lock.
func (l *Lock) Release(ctx context.Context) error {
	return l.service.ReleaseLock(ctx, l.threadID, l.lockID, l.ownerID)
}

// IsExpired checks if the lease has lapsed.
func (l *Lock) IsExpired() bool {
	return time.Now().After(l.expiresAt)
}

// TimeUntilExpiry returns the time until the lease lapses.
func (l *Lock) TimeUntilExpiry() time.Duration {
	if l.IsExpired() {
		return 0
	}
	return time.Until(l.expiresAt)
}

// Extend pushes the lease out by additional time, conditional on still
// owning the lock, so a long turn can keep a live lease from lapsing
// under it.
func (l *Lock) Extend(ctx context.Context, additional time.Duration) error {
	newExpiry := l.expiresAt.Add(additional)
	input := &dynamodb.UpdateItemInput{
		TableName: aws.String(l.service.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: fmt.Sprintf("LOCK#%s", l.threadID)},
			"SK": &types.AttributeValueMemberS{Value: "LOCK"},
		},
		UpdateExpression:    aws.String("SET ExpiresAt = :expiresAt, #ttl = :ttl"),
		ConditionExpression: aws.String("LockID = :lockId AND #owner = :owner"),
		ExpressionAttributeNames: map[string]string{
			"#owner": "Owner",
			"#ttl":   "TTL",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":expiresAt": &types.AttributeValueMemberS{Value: newExpiry.Format(time.RFC3339)},
			":ttl":       &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", newExpiry.Unix())},
			":lockId":    &types.AttributeValueMemberS{Value: l.lockID},
			":owner":     &types.AttributeValueMemberS{Value: l.ownerID},
		},
	}

	if _, err := l.service.client.UpdateItem(ctx, input); err != nil {
		var conditionalCheckFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionalCheckFailed) {
			return fmt.Errorf("%w: thread %s", ErrLockHeld, l.threadID)
		}
		return fmt.Errorf("extend thread lock: %w", err)
	}

	l.expiresAt = newExpiry
	return nil
}
