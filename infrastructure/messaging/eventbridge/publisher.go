// Package eventbridge publishes domain events raised by the memory and
// contradiction aggregates onto AWS EventBridge, for deployments running the
// dynamodb storage backend where more than one consumer process may care
// about ledger transitions. Grounded directly on the sibling example
// repo's infrastructure/messaging/eventbridge/publisher.go: same
// batch-of-10 PutEvents chunking, same JSON-detail encoding, same
// failed-entry-count error reporting. Generalized from that repo's
// ports.EventBus (Publish/Subscribe/Unsubscribe) to this module's narrower
// ports.EventPublisher (PublishBatch only) since nothing in this engine
// subscribes to its own events in-process.
package eventbridge

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"go.uber.org/zap"

	"groundedmemory/application/ports"
	"groundedmemory/domain/events"
)

const eventSource = "groundedmemory.engine"

// Publisher implements ports.EventPublisher over an EventBridge custom bus.
type Publisher struct {
	client       *eventbridge.Client
	eventBusName string
	logger       *zap.Logger
}

func NewPublisher(client *eventbridge.Client, eventBusName string, logger *zap.Logger) ports.EventPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{client: client, eventBusName: eventBusName, logger: logger}
}

// PublishBatch implements ports.EventPublisher. EventBridge's PutEvents caps
// a single call at 10 entries, so batches larger than that are chunked.
func (p *Publisher) PublishBatch(ctx context.Context, evts []events.DomainEvent) error {
	if len(evts) == 0 {
		return nil
	}

	const batchSize = 10
	for i := 0; i < len(evts); i += batchSize {
		end := i + batchSize
		if end > len(evts) {
			end = len(evts)
		}
		if err := p.publishBatch(ctx, evts[i:end]); err != nil {
			return err
		}
	}
	return nil
}

func (p *Publisher) publishBatch(ctx context.Context, evts []events.DomainEvent) error {
	entries := make([]types.PutEventsRequestEntry, 0, len(evts))

	for _, evt := range evts {
		data, err := json.Marshal(evt)
		if err != nil {
			p.logger.Error("marshal domain event failed",
				zap.String("event_type", evt.GetEventType()),
				zap.Error(err))
			continue
		}
		entries = append(entries, types.PutEventsRequestEntry{
			EventBusName: aws.String(p.eventBusName),
			Source:       aws.String(eventSource),
			DetailType:   aws.String(evt.GetEventType()),
			Detail:       aws.String(string(data)),
			Time:         aws.Time(evt.GetTimestamp()),
			Resources:    []string{fmt.Sprintf("arn:groundedmemory:aggregate:%s", evt.GetAggregateID())},
		})
	}

	if len(entries) == 0 {
		return nil
	}

	result, err := p.client.PutEvents(ctx, &eventbridge.PutEventsInput{Entries: entries})
	if err != nil {
		return fmt.Errorf("eventbridge: publish events: %w", err)
	}

	if result.FailedEntryCount > 0 {
		for i, entry := range result.Entries {
			if entry.ErrorCode != nil {
				p.logger.Error("event publish entry failed",
					zap.String("event_type", evts[i].GetEventType()),
					zap.String("error_code", *entry.ErrorCode),
					zap.String("error_message", aws.ToString(entry.ErrorMessage)))
			}
		}
		return fmt.Errorf("eventbridge: %d of %d entries failed", result.FailedEntryCount, len(entries))
	}

	p.logger.Debug("published domain events", zap.Int("count", len(entries)), zap.String("event_bus", p.eventBusName))
	return nil
}
