// Package messaging holds ports.EventPublisher implementations.
// LogPublisher is the default for the in-memory and sqlite storage
// backends, where a single process is both producer and only consumer of
// its own domain events; it records events through the engine's structured
// logger rather than a broker nothing drains.
package messaging

import (
	"context"

	"go.uber.org/zap"

	"groundedmemory/domain/events"
)

// LogPublisher implements ports.EventPublisher by emitting one structured
// log line per event. It never returns an error: a logging sink has no
// failure mode worth surfacing to the caller that just committed a write.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) PublishBatch(_ context.Context, evts []events.DomainEvent) error {
	for _, evt := range evts {
		p.logger.Info("domain event",
			zap.String("event_type", evt.GetEventType()),
			zap.String("aggregate_id", evt.GetAggregateID()),
			zap.Time("timestamp", evt.GetTimestamp()),
		)
	}
	return nil
}
