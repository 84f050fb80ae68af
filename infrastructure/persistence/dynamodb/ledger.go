package dynamodb

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"groundedmemory/application/ports"
	"groundedmemory/domain/contradiction"
	"groundedmemory/domain/facts"
	"groundedmemory/domain/ids"
)

// Ledger implements ports.Ledger over the same DynamoDB table as
// MemoryStore, using a PK/SK + GSI1 layout with outbox PublishStatus
// bookkeeping. Each record is a single item: every status transition
// rewrites that item (PutItem on the same PK/SK) with PublishStatus reset to
// pending, so the table holds only a record's latest status, not its earlier
// ones. An external reflection process can scan PublishStatus for changes it
// has not yet delivered.
type Ledger struct {
	client    *dynamodb.Client
	tableName string
	logger    *zap.Logger
}

func NewLedger(client *dynamodb.Client, tableName string, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{client: client, tableName: tableName, logger: logger}
}

// PublishStatus mirrors event_store.go's outbox field for ledger status
// change events an external reflection process may subscribe to.
type PublishStatus string

const (
	PublishStatusPending   PublishStatus = "pending"
	PublishStatusPublished PublishStatus = "published"
	PublishStatusFailed    PublishStatus = "failed"
)

type ledgerItem struct {
	PK     string `dynamodbav:"PK"`
	SK     string `dynamodbav:"SK"`
	GSI1PK string `dynamodbav:"GSI1PK"`
	GSI1SK string `dynamodbav:"GSI1SK"`

	EntityType      string `dynamodbav:"EntityType"`
	ContradictionID string `dynamodbav:"ContradictionID"`
	ThreadID        string `dynamodbav:"ThreadID"`
	Slot            string `dynamodbav:"Slot"`
	OldMemoryID     string `dynamodbav:"OldMemoryID"`
	NewMemoryID     string `dynamodbav:"NewMemoryID"`
	OldValue        string `dynamodbav:"OldValue"`
	NewValue        string `dynamodbav:"NewValue"`
	Type            string `dynamodbav:"Type"`
	Status          string `dynamodbav:"Status"`
	Drift           float64 `dynamodbav:"Drift"`
	TrustOld        float64 `dynamodbav:"TrustOld"`
	TrustNew        float64 `dynamodbav:"TrustNew"`
	ConfOld         float64 `dynamodbav:"ConfOld"`
	ConfNew         float64 `dynamodbav:"ConfNew"`
	DetectedAt      string `dynamodbav:"DetectedAt"`
	UpdatedAt       string `dynamodbav:"UpdatedAt"`

	ResolutionMethod    string `dynamodbav:"ResolutionMethod,omitempty"`
	ResolutionMessageID string `dynamodbav:"ResolutionMessageID,omitempty"`
	ResolvedAt          string `dynamodbav:"ResolvedAt,omitempty"`
	WinningMemoryID     string `dynamodbav:"WinningMemoryID,omitempty"`

	PublishStatus string `dynamodbav:"PublishStatus"`
}

func ledgerPK(threadID string) string { return fmt.Sprintf("THREAD#%s", threadID) }
func ledgerSK(contradictionID string) string {
	return fmt.Sprintf("CONTRADICTION#%s", contradictionID)
}
func ledgerGSI1PK(threadID string) string { return fmt.Sprintf("CONTRAINDEX#%s", threadID) }

func toLedgerItem(r *contradiction.Record) ledgerItem {
	item := ledgerItem{
		PK:              ledgerPK(r.ThreadID().String()),
		SK:              ledgerSK(r.ID().String()),
		GSI1PK:          ledgerGSI1PK(r.ThreadID().String()),
		GSI1SK:          fmt.Sprintf("%s#%s", r.Status(), r.UpdatedAt().UTC().Format(time.RFC3339Nano)),
		EntityType:      "CONTRADICTION",
		ContradictionID: r.ID().String(),
		ThreadID:        r.ThreadID().String(),
		Slot:            string(r.Slot()),
		OldMemoryID:     r.OldMemoryID().String(),
		NewMemoryID:     r.NewMemoryID().String(),
		OldValue:        r.OldValue(),
		NewValue:        r.NewValue(),
		Type:            string(r.Type()),
		Status:          string(r.Status()),
		Drift:           r.Drift(),
		DetectedAt:      r.DetectedAt().UTC().Format(time.RFC3339Nano),
		UpdatedAt:       r.UpdatedAt().UTC().Format(time.RFC3339Nano),
		PublishStatus:   string(PublishStatusPending),
	}
	if res := r.Resolution(); res != nil {
		item.ResolutionMethod = res.Method
		item.ResolutionMessageID = res.MessageID
		item.ResolvedAt = res.ResolvedAt.UTC().Format(time.RFC3339Nano)
		item.WinningMemoryID = res.WinningMemoryID.String()
	}
	return item
}

func fromLedgerItem(item ledgerItem) (*contradiction.Record, error) {
	threadID, err := ids.NewThreadID(item.ThreadID)
	if err != nil {
		return nil, fmt.Errorf("dynamodb ledger: %w", err)
	}
	cID, err := ids.NewContradictionIDFromString(item.ContradictionID)
	if err != nil {
		return nil, fmt.Errorf("dynamodb ledger: %w", err)
	}
	oldMemID, err := ids.NewMemoryIDFromString(item.OldMemoryID)
	if err != nil {
		return nil, fmt.Errorf("dynamodb ledger: %w", err)
	}
	newMemID, err := ids.NewMemoryIDFromString(item.NewMemoryID)
	if err != nil {
		return nil, fmt.Errorf("dynamodb ledger: %w", err)
	}
	detectedAt, err := time.Parse(time.RFC3339Nano, item.DetectedAt)
	if err != nil {
		return nil, fmt.Errorf("dynamodb ledger: invalid detected_at: %w", err)
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, item.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("dynamodb ledger: invalid updated_at: %w", err)
	}

	var resolution *contradiction.Resolution
	if item.ResolutionMethod != "" {
		winning, err := ids.NewMemoryIDFromString(item.WinningMemoryID)
		if err != nil {
			return nil, fmt.Errorf("dynamodb ledger: invalid winning memory id: %w", err)
		}
		resolvedAt, err := time.Parse(time.RFC3339Nano, item.ResolvedAt)
		if err != nil {
			return nil, fmt.Errorf("dynamodb ledger: invalid resolved_at: %w", err)
		}
		resolution = &contradiction.Resolution{
			Method:          item.ResolutionMethod,
			MessageID:       item.ResolutionMessageID,
			ResolvedAt:      resolvedAt,
			WinningMemoryID: winning,
		}
	}

	return contradiction.Reconstruct(
		cID, threadID, facts.Slot(item.Slot), oldMemID, newMemID, item.OldValue, item.NewValue,
		contradiction.Type(item.Type), contradiction.Status(item.Status),
		item.Drift, item.TrustOld, item.TrustNew, item.ConfOld, item.ConfNew,
		detectedAt, updatedAt, resolution,
	), nil
}

func (l *Ledger) Record(ctx context.Context, r *contradiction.Record) (ids.ContradictionID, error) {
	item := toLedgerItem(r)
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return ids.ContradictionID{}, fmt.Errorf("dynamodb ledger: marshal: %w", err)
	}
	if _, err := l.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(l.tableName),
		Item:      av,
	}); err != nil {
		l.logger.Error("failed to record contradiction", zap.Error(err), zap.String("contradictionID", r.ID().String()))
		return ids.ContradictionID{}, fmt.Errorf("dynamodb ledger: put: %w", err)
	}
	return r.ID(), nil
}

func (l *Ledger) queryThread(ctx context.Context, threadID ids.ThreadID) ([]*contradiction.Record, error) {
	out, err := l.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(l.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: ledgerPK(threadID.String())},
			":prefix": &types.AttributeValueMemberS{Value: "CONTRADICTION#"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb ledger: query: %w", err)
	}
	records := make([]*contradiction.Record, 0, len(out.Items))
	for _, rawItem := range out.Items {
		var item ledgerItem
		if err := attributevalue.UnmarshalMap(rawItem, &item); err != nil {
			return nil, fmt.Errorf("dynamodb ledger: unmarshal: %w", err)
		}
		rec, err := fromLedgerItem(item)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func (l *Ledger) FindOpen(ctx context.Context, threadID ids.ThreadID) ([]*contradiction.Record, error) {
	all, err := l.queryThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	var out []*contradiction.Record
	for _, r := range all {
		if r.Status() == contradiction.StatusOpen || r.Status() == contradiction.StatusResolving {
			out = append(out, r)
		}
	}
	return out, nil
}

func (l *Ledger) HasOpenForMemory(ctx context.Context, threadID ids.ThreadID, memID ids.MemoryID) (bool, error) {
	open, err := l.FindOpen(ctx, threadID)
	if err != nil {
		return false, err
	}
	for _, r := range open {
		if r.OldMemoryID().Equals(memID) || r.NewMemoryID().Equals(memID) {
			return true, nil
		}
	}
	return false, nil
}

// Get looks up a single contradiction record by id, exported over the
// package-private get helper below.
func (l *Ledger) Get(ctx context.Context, threadID ids.ThreadID, id ids.ContradictionID) (*contradiction.Record, error) {
	return l.get(ctx, threadID, id)
}

func (l *Ledger) UpdateStatus(ctx context.Context, threadID ids.ThreadID, id ids.ContradictionID, newStatus contradiction.Status, resolution *contradiction.Resolution) error {
	rec, err := l.get(ctx, threadID, id)
	if err != nil {
		return err
	}
	if rec.Status() == newStatus {
		return nil
	}
	now := time.Now()
	if resolution != nil && !resolution.ResolvedAt.IsZero() {
		now = resolution.ResolvedAt
	}
	if err := rec.TransitionTo(newStatus, resolution, now); err != nil {
		return err
	}
	_, err = l.Record(ctx, rec)
	return err
}

func (l *Ledger) get(ctx context.Context, threadID ids.ThreadID, id ids.ContradictionID) (*contradiction.Record, error) {
	out, err := l.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(l.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: ledgerPK(threadID.String())},
			"SK": &types.AttributeValueMemberS{Value: ledgerSK(id.String())},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb ledger: get: %w", err)
	}
	if out.Item == nil {
		return nil, fmt.Errorf("dynamodb ledger: contradiction %s not found", id.String())
	}
	var item ledgerItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("dynamodb ledger: unmarshal: %w", err)
	}
	return fromLedgerItem(item)
}

// ResolveFromAssertion mirrors the in-memory backend's scan-and-match
// primitive for direct callers that bypass application/ledger.Service, which
// owns the FSM policy decisions and does not call this method.
func (l *Ledger) ResolveFromAssertion(ctx context.Context, threadID ids.ThreadID, newFacts map[facts.Slot]facts.ExtractedFact, newMemoryID ids.MemoryID) ([]ids.ContradictionID, error) {
	open, err := l.FindOpen(ctx, threadID)
	if err != nil {
		return nil, err
	}
	var resolved []ids.ContradictionID
	for _, r := range open {
		if r.Status() != contradiction.StatusOpen {
			continue
		}
		fact, ok := newFacts[r.Slot()]
		if !ok {
			continue
		}
		var winner ids.MemoryID
		switch fact.Value {
		case r.NewValue():
			winner = r.NewMemoryID()
		case r.OldValue():
			winner = r.OldMemoryID()
		default:
			continue
		}
		res := &contradiction.Resolution{Method: contradiction.MethodUserClarified, WinningMemoryID: winner}
		if err := r.TransitionTo(contradiction.StatusResolved, res, r.UpdatedAt()); err != nil {
			return resolved, err
		}
		if _, err := l.Record(ctx, r); err != nil {
			return resolved, err
		}
		resolved = append(resolved, r.ID())
	}
	_ = newMemoryID
	return resolved, nil
}

func (l *Ledger) GetResolved(ctx context.Context, threadID ids.ThreadID) ([]*contradiction.Record, error) {
	all, err := l.queryThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	var out []*contradiction.Record
	for _, r := range all {
		if r.Status() == contradiction.StatusResolved {
			out = append(out, r)
		}
	}
	return out, nil
}

func (l *Ledger) Summarize(ctx context.Context, threadID ids.ThreadID) (ports.LedgerSummary, error) {
	all, err := l.queryThread(ctx, threadID)
	if err != nil {
		return ports.LedgerSummary{}, err
	}
	var summary ports.LedgerSummary
	for _, r := range all {
		summary.Total++
		switch r.Status() {
		case contradiction.StatusOpen:
			summary.Open++
		case contradiction.StatusResolving:
			summary.Resolving++
		case contradiction.StatusResolved:
			summary.Resolved++
		case contradiction.StatusAccepted:
			summary.Accepted++
		case contradiction.StatusArchived:
			summary.Archived++
		}
		if r.Type() == contradiction.TypeDuplicate {
			summary.Duplicates++
		}
	}
	return summary, nil
}

// Reset deletes every contradiction item in the thread's partition.
// Test-harness only.
func (l *Ledger) Reset(ctx context.Context, threadID ids.ThreadID) error {
	out, err := l.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(l.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: ledgerPK(threadID.String())},
			":prefix": &types.AttributeValueMemberS{Value: "CONTRADICTION#"},
		},
		ProjectionExpression: aws.String("PK, SK"),
	})
	if err != nil {
		return fmt.Errorf("dynamodb ledger: query for reset: %w", err)
	}
	requests := make([]types.WriteRequest, 0, len(out.Items))
	for _, item := range out.Items {
		requests = append(requests, types.WriteRequest{DeleteRequest: &types.DeleteRequest{Key: item}})
	}
	for i := 0; i < len(requests); i += 25 {
		end := i + 25
		if end > len(requests) {
			end = len(requests)
		}
		if _, err := l.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{l.tableName: requests[i:end]},
		}); err != nil {
			return fmt.Errorf("dynamodb ledger: batch delete: %w", err)
		}
	}
	return nil
}

// PendingItems returns ledger items not yet delivered to an external
// reflection process, for OutboxProcessor to drain.
// PublishStatus is an infrastructure-only field absent from
// contradiction.Record, so this reads the raw items directly rather than
// going through queryThread's decode-everything path.
func (l *Ledger) PendingItems(ctx context.Context, threadID ids.ThreadID) ([]*contradiction.Record, error) {
	out, err := l.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(l.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		FilterExpression:       aws.String("PublishStatus = :pending"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":      &types.AttributeValueMemberS{Value: ledgerPK(threadID.String())},
			":prefix":  &types.AttributeValueMemberS{Value: "CONTRADICTION#"},
			":pending": &types.AttributeValueMemberS{Value: string(PublishStatusPending)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb ledger: query pending items: %w", err)
	}
	pending := make([]*contradiction.Record, 0, len(out.Items))
	for _, rawItem := range out.Items {
		var item ledgerItem
		if err := attributevalue.UnmarshalMap(rawItem, &item); err != nil {
			return nil, fmt.Errorf("dynamodb ledger: unmarshal: %w", err)
		}
		rec, err := fromLedgerItem(item)
		if err != nil {
			return nil, err
		}
		pending = append(pending, rec)
	}
	return pending, nil
}

// MarkPublished flips a ledger item's PublishStatus to "published" without
// altering its contradiction lifecycle status - a separate, infrastructure-
// only field, set via an UpdateItem rather than a full Record rewrite so it
// never raises a spurious domain event.
func (l *Ledger) MarkPublished(ctx context.Context, threadID ids.ThreadID, id ids.ContradictionID) error {
	_, err := l.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(l.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: ledgerPK(threadID.String())},
			"SK": &types.AttributeValueMemberS{Value: ledgerSK(id.String())},
		},
		UpdateExpression: aws.String("SET PublishStatus = :status"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status": &types.AttributeValueMemberS{Value: string(PublishStatusPublished)},
		},
	})
	if err != nil {
		return fmt.Errorf("dynamodb ledger: mark published: %w", err)
	}
	return nil
}
