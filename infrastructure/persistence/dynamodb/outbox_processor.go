package dynamodb

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"groundedmemory/application/ports"
	"groundedmemory/domain/contradiction"
	"groundedmemory/domain/events"
	"groundedmemory/domain/ids"
)

// OutboxProcessor drains ledger items Ledger.PendingItems has not yet
// delivered to an external reflection process: a ticker-driven batch loop
// over per-thread PendingItems queries, since the ledger is thread-scoped
// and there is no cross-thread read path to scan from.
type OutboxProcessor struct {
	ledger    *Ledger
	publisher ports.EventPublisher
	logger    *zap.Logger

	processingInterval time.Duration
	maxRetries          int

	mu          sync.Mutex
	retryCounts map[string]int
	processed   int64
	failed      int64

	stopChan    chan struct{}
	stoppedChan chan struct{}
}

func NewOutboxProcessor(ledger *Ledger, publisher ports.EventPublisher, logger *zap.Logger) *OutboxProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OutboxProcessor{
		ledger:              ledger,
		publisher:           publisher,
		logger:              logger,
		processingInterval:  5 * time.Second,
		maxRetries:          3,
		retryCounts:         make(map[string]int),
		stopChan:            make(chan struct{}),
		stoppedChan:         make(chan struct{}),
	}
}

// Start begins background processing for the given threads. There is no
// single "all pending events" query here - the ledger is thread-scoped, so
// the caller supplies the set of threads this process is responsible for
// reflecting.
func (op *OutboxProcessor) Start(ctx context.Context, threadIDs []ids.ThreadID) {
	op.logger.Info("starting ledger outbox processor",
		zap.Duration("interval", op.processingInterval),
		zap.Int("threadCount", len(threadIDs)),
	)
	go op.processLoop(ctx, threadIDs)
}

func (op *OutboxProcessor) Stop() {
	op.logger.Info("stopping ledger outbox processor")
	close(op.stopChan)
	<-op.stoppedChan
	op.logger.Info("ledger outbox processor stopped")
}

func (op *OutboxProcessor) processLoop(ctx context.Context, threadIDs []ids.ThreadID) {
	defer close(op.stoppedChan)

	ticker := time.NewTicker(op.processingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-op.stopChan:
			return
		case <-ticker.C:
			for _, threadID := range threadIDs {
				if err := op.processBatch(ctx, threadID); err != nil {
					op.logger.Error("error processing outbox batch",
						zap.String("threadID", threadID.String()), zap.Error(err))
				}
			}
		}
	}
}

func (op *OutboxProcessor) processBatch(ctx context.Context, threadID ids.ThreadID) error {
	pending, err := op.ledger.PendingItems(ctx, threadID)
	if err != nil {
		return fmt.Errorf("failed to get pending ledger items: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	op.logger.Debug("processing outbox batch", zap.String("threadID", threadID.String()), zap.Int("itemCount", len(pending)))
	for _, rec := range pending {
		op.processEvent(ctx, threadID, rec)
	}
	return nil
}

func (op *OutboxProcessor) processEvent(ctx context.Context, threadID ids.ThreadID, rec *contradiction.Record) {
	op.mu.Lock()
	exhausted := op.retryCounts[rec.ID().String()] >= op.maxRetries
	op.mu.Unlock()
	if exhausted {
		return
	}
	evt := toDomainEvent(rec)
	if err := op.publisher.PublishBatch(ctx, []events.DomainEvent{evt}); err != nil {
		op.markEventFailed(rec, err)
		return
	}
	op.markEventPublished(ctx, threadID, rec)
}

func (op *OutboxProcessor) markEventPublished(ctx context.Context, threadID ids.ThreadID, rec *contradiction.Record) {
	if err := op.ledger.MarkPublished(ctx, threadID, rec.ID()); err != nil {
		op.logger.Error("failed to mark ledger item as published",
			zap.String("contradictionID", rec.ID().String()), zap.Error(err))
		return
	}
	op.mu.Lock()
	delete(op.retryCounts, rec.ID().String())
	op.processed++
	op.mu.Unlock()
	op.logger.Debug("ledger item published", zap.String("contradictionID", rec.ID().String()))
}

func (op *OutboxProcessor) markEventFailed(rec *contradiction.Record, publishErr error) {
	op.mu.Lock()
	op.retryCounts[rec.ID().String()]++
	attempts := op.retryCounts[rec.ID().String()]
	op.failed++
	op.mu.Unlock()

	if attempts >= op.maxRetries {
		op.logger.Warn("ledger item permanently failed after max retries",
			zap.String("contradictionID", rec.ID().String()), zap.Int("attempts", attempts), zap.Error(publishErr))
		return
	}
	op.logger.Debug("ledger item publish failed, will retry",
		zap.String("contradictionID", rec.ID().String()), zap.Int("attempts", attempts), zap.Error(publishErr))
}

// GetStats returns processing counters for health/ops reporting.
func (op *OutboxProcessor) GetStats() map[string]interface{} {
	op.mu.Lock()
	defer op.mu.Unlock()
	return map[string]interface{}{
		"processed":         op.processed,
		"failed":            op.failed,
		"pendingRetryCount": len(op.retryCounts),
	}
}

// toDomainEvent converts a ledger record's current status into the same
// ContradictionStatusChanged event its originating TransitionTo call would
// have raised, so an external reflection process sees the same shape
// whether it consumes events live or catches up via the outbox.
func toDomainEvent(rec *contradiction.Record) events.DomainEvent {
	method := ""
	winning := ""
	if res := rec.Resolution(); res != nil {
		method = res.Method
		winning = res.WinningMemoryID.String()
	}
	return events.NewContradictionStatusChanged(rec.ID(), "", string(rec.Status()), method, winning, rec.UpdatedAt())
}
