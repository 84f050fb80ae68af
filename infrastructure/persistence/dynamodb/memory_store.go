package dynamodb

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"groundedmemory/application/ports"
	"groundedmemory/domain/config"
	"groundedmemory/domain/facts"
	"groundedmemory/domain/ids"
	"groundedmemory/domain/memory"
)

// MemoryStore implements ports.MemoryStore over a single DynamoDB table,
// grounded on graph_repository.go's PK/SK/GSI1 query-by-id pattern: items
// are keyed THREAD#<thread_id> / MEMORY#<memory_id>, with GSI1 keyed
// SLOT#<thread_id>#<slot> / MEMORY#<updated_at>#<memory_id> to answer
// GetBySlot without a table scan.
type MemoryStore struct {
	client    *dynamodb.Client
	tableName string
	logger    *zap.Logger
	cfg       *config.DomainConfig
}

// NewMemoryStore constructs a DynamoDB-backed MemoryStore.
func NewMemoryStore(client *dynamodb.Client, tableName string, cfg *config.DomainConfig, logger *zap.Logger) *MemoryStore {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryStore{client: client, tableName: tableName, cfg: cfg, logger: logger}
}

// memoryItem is the DynamoDB item shape for a Memory.
type memoryItem struct {
	PK     string `dynamodbav:"PK"`
	SK     string `dynamodbav:"SK"`
	GSI1PK string `dynamodbav:"GSI1PK,omitempty"`
	GSI1SK string `dynamodbav:"GSI1SK,omitempty"`

	EntityType string `dynamodbav:"EntityType"`
	MemoryID   string `dynamodbav:"MemoryID"`
	ThreadID   string `dynamodbav:"ThreadID"`
	Text       string `dynamodbav:"Text"`
	Vector     []float64 `dynamodbav:"Vector"`
	ModelID    string `dynamodbav:"ModelID"`
	Source     string `dynamodbav:"Source"`
	Trust      float64 `dynamodbav:"Trust"`
	Confidence float64 `dynamodbav:"Confidence"`
	Supersedes string `dynamodbav:"Supersedes,omitempty"`
	Active     bool   `dynamodbav:"Active"`
	Slot       string `dynamodbav:"Slot,omitempty"`
	CreatedAt  string `dynamodbav:"CreatedAt"`
	UpdatedAt  string `dynamodbav:"UpdatedAt"`
}

func memoryPK(threadID string) string          { return fmt.Sprintf("THREAD#%s", threadID) }
func memorySK(memoryID string) string          { return fmt.Sprintf("MEMORY#%s", memoryID) }
func slotGSI1PK(threadID string, slot facts.Slot) string {
	return fmt.Sprintf("SLOT#%s#%s", threadID, slot)
}
func slotGSI1SK(updatedAt time.Time, memoryID string) string {
	return fmt.Sprintf("MEMORY#%s#%s", updatedAt.UTC().Format(time.RFC3339Nano), memoryID)
}

func toItem(m *memory.Memory, slot facts.Slot) memoryItem {
	item := memoryItem{
		PK:         memoryPK(m.ThreadID().String()),
		SK:         memorySK(m.ID().String()),
		EntityType: "MEMORY",
		MemoryID:   m.ID().String(),
		ThreadID:   m.ThreadID().String(),
		Text:       m.Text(),
		Vector:     []float64(m.Vector()),
		ModelID:    m.ModelID(),
		Source:     string(m.Source()),
		Trust:      m.Trust(),
		Confidence: m.Confidence(),
		Active:     m.Active(),
		CreatedAt:  m.CreatedAt().UTC().Format(time.RFC3339Nano),
		UpdatedAt:  m.UpdatedAt().UTC().Format(time.RFC3339Nano),
	}
	if sup, ok := m.Supersedes(); ok {
		item.Supersedes = sup.String()
	}
	if slot != "" {
		item.Slot = string(slot)
		item.GSI1PK = slotGSI1PK(m.ThreadID().String(), slot)
		item.GSI1SK = slotGSI1SK(m.UpdatedAt(), m.ID().String())
	}
	return item
}

func fromItem(item memoryItem) (*memory.Memory, error) {
	threadID, err := ids.NewThreadID(item.ThreadID)
	if err != nil {
		return nil, fmt.Errorf("dynamodb memory store: %w", err)
	}
	memID, err := ids.NewMemoryIDFromString(item.MemoryID)
	if err != nil {
		return nil, fmt.Errorf("dynamodb memory store: %w", err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, item.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("dynamodb memory store: invalid created_at: %w", err)
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, item.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("dynamodb memory store: invalid updated_at: %w", err)
	}
	var supersedes *ids.MemoryID
	if item.Supersedes != "" {
		sup, err := ids.NewMemoryIDFromString(item.Supersedes)
		if err != nil {
			return nil, fmt.Errorf("dynamodb memory store: invalid supersedes id: %w", err)
		}
		supersedes = &sup
	}
	return memory.Reconstruct(
		memID, threadID, item.Text, memory.Vector(item.Vector), item.ModelID,
		memory.Source(item.Source), item.Trust, item.Confidence,
		createdAt, updatedAt, supersedes, item.Active,
	), nil
}

func (s *MemoryStore) Insert(ctx context.Context, m *memory.Memory) (ids.MemoryID, error) {
	return s.put(ctx, m, "")
}

func (s *MemoryStore) put(ctx context.Context, m *memory.Memory, slot facts.Slot) (ids.MemoryID, error) {
	item := toItem(m, slot)
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return ids.MemoryID{}, fmt.Errorf("dynamodb memory store: marshal: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      av,
	})
	if err != nil {
		s.logger.Error("failed to insert memory", zap.Error(err), zap.String("memoryID", m.ID().String()))
		return ids.MemoryID{}, fmt.Errorf("dynamodb memory store: put: %w", err)
	}
	return m.ID(), nil
}

// RecordSlot re-writes the memory item with its GSI1 slot keys populated,
// mirroring the in-memory backend's sidecar index but as an idempotent
// second write instead of a separate table. Matches the orchestrator's
// optional slotRecorder interface shape (no context, no error): a failed
// slot write degrades GetBySlot lookups for that memory but never fails
// the turn that produced it, the same "log but don't fail" policy applied
// to event publication.
func (s *MemoryStore) RecordSlot(threadID ids.ThreadID, slot facts.Slot, memID ids.MemoryID) {
	ctx := context.Background()
	m, err := s.Get(ctx, threadID, memID)
	if err != nil {
		s.logger.Warn("record slot: memory not found", zap.Error(err), zap.String("memoryID", memID.String()))
		return
	}
	if _, err := s.put(ctx, m, slot); err != nil {
		s.logger.Warn("record slot: write failed", zap.Error(err), zap.String("memoryID", memID.String()))
	}
}

func (s *MemoryStore) Get(ctx context.Context, threadID ids.ThreadID, id ids.MemoryID) (*memory.Memory, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: memoryPK(threadID.String())},
			"SK": &types.AttributeValueMemberS{Value: memorySK(id.String())},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb memory store: get: %w", err)
	}
	if out.Item == nil {
		return nil, fmt.Errorf("dynamodb memory store: memory %s not found", id.String())
	}
	var item memoryItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("dynamodb memory store: unmarshal: %w", err)
	}
	return fromItem(item)
}

func (s *MemoryStore) GetBySlot(ctx context.Context, threadID ids.ThreadID, slot facts.Slot) ([]*memory.Memory, error) {
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		IndexName:              aws.String("GSI1"),
		KeyConditionExpression: aws.String("GSI1PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: slotGSI1PK(threadID.String(), slot)},
		},
		ScanIndexForward: aws.Bool(false), // GSI1SK embeds updated_at; newest first
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb memory store: query by slot: %w", err)
	}
	results := make([]*memory.Memory, 0, len(out.Items))
	for _, rawItem := range out.Items {
		var item memoryItem
		if err := attributevalue.UnmarshalMap(rawItem, &item); err != nil {
			return nil, fmt.Errorf("dynamodb memory store: unmarshal: %w", err)
		}
		m, err := fromItem(item)
		if err != nil {
			return nil, err
		}
		results = append(results, m)
	}
	return results, nil
}

// Retrieve scans the thread's partition and ranks in process. A
// single-conversation partition is small enough that a Query by PK plus
// in-process scoring (identical weighting to the in-memory backend's
// score()) outperforms maintaining a secondary vector index in DynamoDB,
// which has no native similarity search.
func (s *MemoryStore) Retrieve(ctx context.Context, q ports.RetrievalQuery) ([]ports.ScoredMemory, error) {
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: memoryPK(q.ThreadID.String())},
			":prefix": &types.AttributeValueMemberS{Value: "MEMORY#"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb memory store: query: %w", err)
	}

	deprecated := make(map[string]bool)
	if q.ExcludeDeprecated && q.Ledger != nil {
		resolved, err := q.Ledger.GetResolved(ctx, q.ThreadID)
		if err == nil {
			for _, rec := range resolved {
				res := rec.Resolution()
				if res == nil || (res.Method != "user_clarified" && res.Method != "replaced") {
					continue
				}
				if rec.OldMemoryID().String() != res.WinningMemoryID.String() {
					deprecated[rec.OldMemoryID().String()] = true
				}
				if rec.NewMemoryID().String() != res.WinningMemoryID.String() {
					deprecated[rec.NewMemoryID().String()] = true
				}
			}
		}
	}

	now := time.Now()
	scored := make([]ports.ScoredMemory, 0, len(out.Items))
	for _, rawItem := range out.Items {
		var item memoryItem
		if err := attributevalue.UnmarshalMap(rawItem, &item); err != nil {
			return nil, fmt.Errorf("dynamodb memory store: unmarshal: %w", err)
		}
		m, err := fromItem(item)
		if err != nil {
			return nil, err
		}
		if !m.Active() || m.Trust() < q.MinTrust {
			continue
		}
		isDep := deprecated[m.ID().String()]
		if q.ExcludeDeprecated && isDep {
			continue
		}
		scored = append(scored, ports.ScoredMemory{Memory: m, Score: s.score(q.QueryVector, m, now, isDep)})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Memory.UpdatedAt().After(scored[j].Memory.UpdatedAt())
	})

	k := q.K
	if k <= 0 || k > len(scored) {
		k = len(scored)
	}
	return scored[:k], nil
}

func (s *MemoryStore) score(query memory.Vector, m *memory.Memory, now time.Time, deprecated bool) float64 {
	sim := 0.0
	if !query.IsZero() && !m.Vector().IsZero() {
		sim = query.Dot(m.Vector())
	}
	age := now.Sub(m.UpdatedAt())
	recency := recencyDecay(age, s.cfg.RecencyHalfLife)

	score := s.cfg.WeightSimilarity*sim +
		s.cfg.WeightTrust*m.Trust() +
		s.cfg.WeightConfidence*m.Confidence() +
		s.cfg.WeightRecency*recency
	if deprecated {
		score -= s.cfg.WeightDeprecated
	}
	return score
}

func recencyDecay(age, halfLife time.Duration) float64 {
	if halfLife <= 0 {
		return 1.0
	}
	return math.Pow(2, -float64(age)/float64(halfLife))
}

func (s *MemoryStore) Supersede(ctx context.Context, threadID ids.ThreadID, oldID ids.MemoryID, newMem *memory.Memory) (ids.MemoryID, error) {
	if _, err := s.Get(ctx, threadID, oldID); err != nil {
		return ids.MemoryID{}, err
	}
	newMem.LinkSupersedes(oldID)
	return s.Insert(ctx, newMem)
}

func (s *MemoryStore) SoftDelete(ctx context.Context, threadID ids.ThreadID, id ids.MemoryID) error {
	m, err := s.Get(ctx, threadID, id)
	if err != nil {
		return err
	}
	m.SoftDelete(time.Now())
	_, err = s.put(ctx, m, facts.Slot(""))
	return err
}

// Reset deletes every memory item in the thread's partition. Test-harness
// only. Paginates in batches of 25 to respect BatchWriteItem limits.
func (s *MemoryStore) Reset(ctx context.Context, threadID ids.ThreadID) error {
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: memoryPK(threadID.String())},
			":prefix": &types.AttributeValueMemberS{Value: "MEMORY#"},
		},
		ProjectionExpression: aws.String("PK, SK"),
	})
	if err != nil {
		return fmt.Errorf("dynamodb memory store: query for reset: %w", err)
	}

	requests := make([]types.WriteRequest, 0, len(out.Items))
	for _, item := range out.Items {
		requests = append(requests, types.WriteRequest{
			DeleteRequest: &types.DeleteRequest{Key: item},
		})
	}
	for i := 0; i < len(requests); i += 25 {
		end := i + 25
		if end > len(requests) {
			end = len(requests)
		}
		if _, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{s.tableName: requests[i:end]},
		}); err != nil {
			return fmt.Errorf("dynamodb memory store: batch delete: %w", err)
		}
	}
	return nil
}
