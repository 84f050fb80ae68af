// Package sqlite implements ports.MemoryStore and ports.Ledger over a
// local SQLite file for single-process/offline deployments: plain
// database/sql against modernc.org/sqlite, embeddings serialized as text,
// brute-force in-process similarity rather than a native vector index.
// The store's dimensionality is fixed at memory.Dim, not configurable.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"groundedmemory/application/ports"
	"groundedmemory/domain/config"
	"groundedmemory/domain/facts"
	"groundedmemory/domain/ids"
	"groundedmemory/domain/memory"
	"groundedmemory/infrastructure/persistence/schema"
)

// MemoryStore implements ports.MemoryStore over a single SQLite file.
// Every method opens and closes its own connection via database/sql's
// pool rather than
// holding one long-lived *sql.DB - modernc.org/sqlite tolerates this for
// the single-process, low-concurrency deployments this backend targets.
type MemoryStore struct {
	dbPath string
	cfg    *config.DomainConfig
}

var _ ports.MemoryStore = (*MemoryStore)(nil)

func NewMemoryStore(dbPath string, cfg *config.DomainConfig) *MemoryStore {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	return &MemoryStore{dbPath: dbPath, cfg: cfg}
}

func (s *MemoryStore) openDB() (*sql.DB, error) {
	return sql.Open("sqlite", s.dbPath)
}

// Init creates the schema if it does not already exist. Callers invoke
// this once at startup before handing the store to the orchestrator.
// Init brings the on-disk schema up to the current version, applying any
// pending migrations in order.
func (s *MemoryStore) Init(ctx context.Context) error {
	db, err := s.openDB()
	if err != nil {
		return fmt.Errorf("sqlite memory store: open: %w", err)
	}
	defer db.Close()

	evolver, err := schema.NewEvolver("memories", memoryMigrations()...)
	if err != nil {
		return fmt.Errorf("sqlite memory store: %w", err)
	}
	if err := evolver.EnsureCurrent(ctx, db); err != nil {
		return fmt.Errorf("sqlite memory store: %w", err)
	}
	return nil
}

func memoryMigrations() []schema.Migration {
	return []schema.Migration{
		{
			Version:     1,
			Description: "memories table, slot sidecar table and lookup index",
			Apply: func(ctx context.Context, db *sql.DB) error {
				if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS memories (
					id TEXT NOT NULL,
					thread_id TEXT NOT NULL,
					text TEXT NOT NULL,
					vector TEXT NOT NULL,
					model_id TEXT NOT NULL,
					source TEXT NOT NULL,
					trust REAL NOT NULL,
					confidence REAL NOT NULL,
					supersedes TEXT,
					active INTEGER NOT NULL,
					created_at INTEGER NOT NULL,
					updated_at INTEGER NOT NULL,
					PRIMARY KEY (thread_id, id)
				)`); err != nil {
					return err
				}
				if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS memory_slots (
					thread_id TEXT NOT NULL,
					slot TEXT NOT NULL,
					memory_id TEXT NOT NULL,
					recorded_at INTEGER NOT NULL
				)`); err != nil {
					return err
				}
				_, err := db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_memory_slots_lookup ON memory_slots (thread_id, slot)`)
				return err
			},
		},
		{
			Version:     2,
			Description: "updated_at index for latest-first slot reads",
			Apply: func(ctx context.Context, db *sql.DB) error {
				_, err := db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_memories_updated ON memories (thread_id, updated_at)`)
				return err
			},
		},
	}
}

func (s *MemoryStore) Insert(ctx context.Context, m *memory.Memory) (ids.MemoryID, error) {
	db, err := s.openDB()
	if err != nil {
		return ids.MemoryID{}, fmt.Errorf("sqlite memory store: open: %w", err)
	}
	defer db.Close()

	if err := insertRow(ctx, db, m); err != nil {
		return ids.MemoryID{}, err
	}
	return m.ID(), nil
}

func insertRow(ctx context.Context, db *sql.DB, m *memory.Memory) error {
	var supersedes sql.NullString
	if id, ok := m.Supersedes(); ok {
		supersedes = sql.NullString{String: id.String(), Valid: true}
	}
	active := 0
	if m.Active() {
		active = 1
	}
	_, err := db.ExecContext(ctx,
		`INSERT OR REPLACE INTO memories
		 (id, thread_id, text, vector, model_id, source, trust, confidence, supersedes, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID().String(), m.ThreadID().String(), m.Text(), serializeVector(m.Vector()), m.ModelID(), string(m.Source()),
		m.Trust(), m.Confidence(), supersedes, active, m.CreatedAt().UnixNano(), m.UpdatedAt().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("sqlite memory store: insert: %w", err)
	}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, threadID ids.ThreadID, id ids.MemoryID) (*memory.Memory, error) {
	db, err := s.openDB()
	if err != nil {
		return nil, fmt.Errorf("sqlite memory store: open: %w", err)
	}
	defer db.Close()

	row := db.QueryRowContext(ctx,
		`SELECT id, thread_id, text, vector, model_id, source, trust, confidence, supersedes, active, created_at, updated_at
		 FROM memories WHERE thread_id = ? AND id = ?`, threadID.String(), id.String())
	return scanMemory(row)
}

func scanMemory(row *sql.Row) (*memory.Memory, error) {
	var (
		idStr, threadIDStr, text, vectorText, modelID, source string
		trust, confidence                                     float64
		supersedes                                             sql.NullString
		active                                                 int
		createdAtNano, updatedAtNano                           int64
	)
	if err := row.Scan(&idStr, &threadIDStr, &text, &vectorText, &modelID, &source, &trust, &confidence, &supersedes, &active, &createdAtNano, &updatedAtNano); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("sqlite memory store: memory not found")
		}
		return nil, fmt.Errorf("sqlite memory store: scan: %w", err)
	}
	return rowToMemory(idStr, threadIDStr, text, vectorText, modelID, source, trust, confidence, supersedes, active, createdAtNano, updatedAtNano)
}

func rowToMemory(idStr, threadIDStr, text, vectorText, modelID, source string, trust, confidence float64, supersedes sql.NullString, active int, createdAtNano, updatedAtNano int64) (*memory.Memory, error) {
	memID, err := ids.NewMemoryIDFromString(idStr)
	if err != nil {
		return nil, fmt.Errorf("sqlite memory store: %w", err)
	}
	threadID, err := ids.NewThreadID(threadIDStr)
	if err != nil {
		return nil, fmt.Errorf("sqlite memory store: %w", err)
	}
	var supersedesID *ids.MemoryID
	if supersedes.Valid {
		parsed, err := ids.NewMemoryIDFromString(supersedes.String)
		if err != nil {
			return nil, fmt.Errorf("sqlite memory store: %w", err)
		}
		supersedesID = &parsed
	}
	return memory.Reconstruct(
		memID, threadID, text, deserializeVector(vectorText), modelID, memory.Source(source),
		trust, confidence, time.Unix(0, createdAtNano), time.Unix(0, updatedAtNano), supersedesID, active == 1,
	), nil
}

func (s *MemoryStore) GetBySlot(ctx context.Context, threadID ids.ThreadID, slot facts.Slot) ([]*memory.Memory, error) {
	db, err := s.openDB()
	if err != nil {
		return nil, fmt.Errorf("sqlite memory store: open: %w", err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx,
		`SELECT m.id, m.thread_id, m.text, m.vector, m.model_id, m.source, m.trust, m.confidence, m.supersedes, m.active, m.created_at, m.updated_at
		 FROM memory_slots s JOIN memories m ON m.thread_id = s.thread_id AND m.id = s.memory_id
		 WHERE s.thread_id = ? AND s.slot = ?
		 ORDER BY m.updated_at DESC`, threadID.String(), string(slot))
	if err != nil {
		return nil, fmt.Errorf("sqlite memory store: query by slot: %w", err)
	}
	defer rows.Close()

	var out []*memory.Memory
	for rows.Next() {
		m, err := scanMemoryRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanMemoryRows(rows *sql.Rows) (*memory.Memory, error) {
	var (
		idStr, threadIDStr, text, vectorText, modelID, source string
		trust, confidence                                     float64
		supersedes                                             sql.NullString
		active                                                 int
		createdAtNano, updatedAtNano                           int64
	)
	if err := rows.Scan(&idStr, &threadIDStr, &text, &vectorText, &modelID, &source, &trust, &confidence, &supersedes, &active, &createdAtNano, &updatedAtNano); err != nil {
		return nil, fmt.Errorf("sqlite memory store: scan: %w", err)
	}
	return rowToMemory(idStr, threadIDStr, text, vectorText, modelID, source, trust, confidence, supersedes, active, createdAtNano, updatedAtNano)
}

// RecordSlot matches the in-memory and DynamoDB backends' slotRecorder
// signature exactly: no context, no error return. This package carries no
// logger and the signature returns nothing, so a failed open or insert is
// silently dropped: the memory stays stored but GetBySlot does not find it
// under that slot.
func (s *MemoryStore) RecordSlot(threadID ids.ThreadID, slot facts.Slot, memID ids.MemoryID) {
	db, err := s.openDB()
	if err != nil {
		return
	}
	defer db.Close()
	_, _ = db.Exec(`INSERT INTO memory_slots (thread_id, slot, memory_id, recorded_at) VALUES (?, ?, ?, ?)`,
		threadID.String(), string(slot), memID.String(), time.Now().UnixNano())
}

func (s *MemoryStore) Retrieve(ctx context.Context, q ports.RetrievalQuery) ([]ports.ScoredMemory, error) {
	db, err := s.openDB()
	if err != nil {
		return nil, fmt.Errorf("sqlite memory store: open: %w", err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx,
		`SELECT id, thread_id, text, vector, model_id, source, trust, confidence, supersedes, active, created_at, updated_at
		 FROM memories WHERE thread_id = ? AND active = 1 AND trust >= ?`, q.ThreadID.String(), q.MinTrust)
	if err != nil {
		return nil, fmt.Errorf("sqlite memory store: retrieve: %w", err)
	}
	defer rows.Close()

	var all []*memory.Memory
	for rows.Next() {
		m, err := scanMemoryRows(rows)
		if err != nil {
			return nil, err
		}
		all = append(all, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	deprecated := make(map[string]bool)
	if q.ExcludeDeprecated && q.Ledger != nil {
		resolved, err := q.Ledger.GetResolved(ctx, q.ThreadID)
		if err == nil {
			for _, rec := range resolved {
				res := rec.Resolution()
				if res == nil {
					continue
				}
				if res.Method != "user_clarified" && res.Method != "replaced" {
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
	scored := make([]ports.ScoredMemory, 0, len(all))
	for _, m := range all {
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
		if !scored[i].Memory.UpdatedAt().Equal(scored[j].Memory.UpdatedAt()) {
			return scored[i].Memory.UpdatedAt().After(scored[j].Memory.UpdatedAt())
		}
		return scored[i].Memory.ID().String() > scored[j].Memory.ID().String()
	})

	k := q.K
	if k <= 0 || k > len(scored) {
		k = len(scored)
	}
	return scored[:k], nil
}

// score replicates the in-memory and DynamoDB backends' weighting formula
// exactly, so switching storage backends never changes ranking behavior.
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
	ratio := float64(age) / float64(halfLife)
	return math.Pow(2, -ratio)
}

func (s *MemoryStore) Supersede(ctx context.Context, threadID ids.ThreadID, oldID ids.MemoryID, newMem *memory.Memory) (ids.MemoryID, error) {
	db, err := s.openDB()
	if err != nil {
		return ids.MemoryID{}, fmt.Errorf("sqlite memory store: open: %w", err)
	}
	defer db.Close()

	var exists int
	err = db.QueryRowContext(ctx, `SELECT COUNT(1) FROM memories WHERE thread_id = ? AND id = ?`, threadID.String(), oldID.String()).Scan(&exists)
	if err != nil {
		return ids.MemoryID{}, fmt.Errorf("sqlite memory store: supersede lookup: %w", err)
	}
	if exists == 0 {
		return ids.MemoryID{}, fmt.Errorf("sqlite memory store: memory %s not found", oldID.String())
	}

	newMem.LinkSupersedes(oldID)
	if err := insertRow(ctx, db, newMem); err != nil {
		return ids.MemoryID{}, err
	}
	return newMem.ID(), nil
}

func (s *MemoryStore) SoftDelete(ctx context.Context, threadID ids.ThreadID, id ids.MemoryID) error {
	db, err := s.openDB()
	if err != nil {
		return fmt.Errorf("sqlite memory store: open: %w", err)
	}
	defer db.Close()

	res, err := db.ExecContext(ctx, `UPDATE memories SET active = 0, updated_at = ? WHERE thread_id = ? AND id = ?`,
		time.Now().UnixNano(), threadID.String(), id.String())
	if err != nil {
		return fmt.Errorf("sqlite memory store: soft delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite memory store: soft delete: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("sqlite memory store: memory %s not found", id.String())
	}
	return nil
}

// Reset destructively clears all memories for a thread. Test-harness only.
func (s *MemoryStore) Reset(ctx context.Context, threadID ids.ThreadID) error {
	db, err := s.openDB()
	if err != nil {
		return fmt.Errorf("sqlite memory store: open: %w", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, `DELETE FROM memories WHERE thread_id = ?`, threadID.String()); err != nil {
		return fmt.Errorf("sqlite memory store: reset: %w", err)
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM memory_slots WHERE thread_id = ?`, threadID.String()); err != nil {
		return fmt.Errorf("sqlite memory store: reset slots: %w", err)
	}
	return nil
}

// serializeVector/deserializeVector follow nevindra-oasis's text-encoded
// embedding pattern, swapped from []float32 to this domain's []float64.
func serializeVector(v memory.Vector) string {
	if len(v) == 0 {
		return ""
	}
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = strconv.FormatFloat(x, 'g', -1, 64)
	}
	return strings.Join(parts, ",")
}

func deserializeVector(s string) memory.Vector {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	v := make(memory.Vector, 0, len(parts))
	for _, p := range parts {
		x, err := strconv.ParseFloat(p, 64)
		if err != nil {
			continue
		}
		v = append(v, x)
	}
	return v
}
