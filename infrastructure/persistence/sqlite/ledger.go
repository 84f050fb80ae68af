package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"groundedmemory/application/ports"
	"groundedmemory/domain/contradiction"
	"groundedmemory/domain/facts"
	"groundedmemory/domain/ids"
	"groundedmemory/infrastructure/persistence/schema"
)

// Ledger implements ports.Ledger over the same SQLite file as MemoryStore.
// Like the in-memory and DynamoDB backends, every status transition
// rewrites the single row for that contradiction id in place rather than
// appending a new row, so history here lives only in the DomainEvent stream
// raised by Record.TransitionTo, not in the table itself; the FSM and event
// emission are identical across backends, only the storage encoding differs.
type Ledger struct {
	dbPath string
}

var _ ports.Ledger = (*Ledger)(nil)

func NewLedger(dbPath string) *Ledger {
	return &Ledger{dbPath: dbPath}
}

func (l *Ledger) openDB() (*sql.DB, error) {
	return sql.Open("sqlite", l.dbPath)
}

// Init creates the schema if it does not already exist.
// Init brings the on-disk schema up to the current version, applying any
// pending migrations in order.
func (l *Ledger) Init(ctx context.Context) error {
	db, err := l.openDB()
	if err != nil {
		return fmt.Errorf("sqlite ledger: open: %w", err)
	}
	defer db.Close()

	evolver, err := schema.NewEvolver("contradictions", ledgerMigrations()...)
	if err != nil {
		return fmt.Errorf("sqlite ledger: %w", err)
	}
	if err := evolver.EnsureCurrent(ctx, db); err != nil {
		return fmt.Errorf("sqlite ledger: %w", err)
	}
	return nil
}

func ledgerMigrations() []schema.Migration {
	return []schema.Migration{
		{
			Version:     1,
			Description: "contradictions table",
			Apply: func(ctx context.Context, db *sql.DB) error {
				_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS contradictions (
					id TEXT NOT NULL,
					thread_id TEXT NOT NULL,
					slot TEXT NOT NULL,
					old_memory_id TEXT NOT NULL,
					new_memory_id TEXT NOT NULL,
					old_value TEXT NOT NULL,
					new_value TEXT NOT NULL,
					type TEXT NOT NULL,
					status TEXT NOT NULL,
					drift REAL NOT NULL,
					trust_old REAL NOT NULL,
					trust_new REAL NOT NULL,
					conf_old REAL NOT NULL,
					conf_new REAL NOT NULL,
					detected_at INTEGER NOT NULL,
					updated_at INTEGER NOT NULL,
					resolution_method TEXT,
					resolution_message_id TEXT,
					resolved_at INTEGER,
					winning_memory_id TEXT,
					PRIMARY KEY (thread_id, id)
				)`)
				return err
			},
		},
		{
			Version:     2,
			Description: "status index for open-record scans",
			Apply: func(ctx context.Context, db *sql.DB) error {
				_, err := db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_contradictions_status ON contradictions (thread_id, status)`)
				return err
			},
		},
	}
}

func toRow(r *contradiction.Record) (args []interface{}) {
	var resMethod, resMessageID, winningID sql.NullString
	var resolvedAt sql.NullInt64
	if res := r.Resolution(); res != nil {
		resMethod = sql.NullString{String: res.Method, Valid: true}
		resMessageID = sql.NullString{String: res.MessageID, Valid: res.MessageID != ""}
		resolvedAt = sql.NullInt64{Int64: res.ResolvedAt.UnixNano(), Valid: !res.ResolvedAt.IsZero()}
		winningID = sql.NullString{String: res.WinningMemoryID.String(), Valid: true}
	}
	return []interface{}{
		r.ID().String(), r.ThreadID().String(), string(r.Slot()), r.OldMemoryID().String(), r.NewMemoryID().String(),
		r.OldValue(), r.NewValue(), string(r.Type()), string(r.Status()), r.Drift(),
		r.DetectedAt().UnixNano(), r.UpdatedAt().UnixNano(),
		resMethod, resMessageID, resolvedAt, winningID,
	}
}

func (l *Ledger) Record(ctx context.Context, r *contradiction.Record) (ids.ContradictionID, error) {
	db, err := l.openDB()
	if err != nil {
		return ids.ContradictionID{}, fmt.Errorf("sqlite ledger: open: %w", err)
	}
	defer db.Close()

	var trustOld, trustNew, confOld, confNew float64
	args := toRow(r)
	_, err = db.ExecContext(ctx,
		`INSERT OR REPLACE INTO contradictions
		 (id, thread_id, slot, old_memory_id, new_memory_id, old_value, new_value, type, status, drift,
		  trust_old, trust_new, conf_old, conf_new, detected_at, updated_at,
		  resolution_method, resolution_message_id, resolved_at, winning_memory_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		args[0], args[1], args[2], args[3], args[4], args[5], args[6], args[7], args[8], args[9],
		trustOld, trustNew, confOld, confNew, args[10], args[11], args[12], args[13], args[14], args[15],
	)
	if err != nil {
		return ids.ContradictionID{}, fmt.Errorf("sqlite ledger: record: %w", err)
	}
	return r.ID(), nil
}

func scanRecord(scan func(dest ...interface{}) error) (*contradiction.Record, error) {
	var (
		idStr, threadIDStr, slot, oldMemIDStr, newMemIDStr, oldValue, newValue, ctype, status string
		drift, trustOld, trustNew, confOld, confNew                                           float64
		detectedAtNano, updatedAtNano                                                         int64
		resMethod, resMessageID, winningIDStr                                                 sql.NullString
		resolvedAtNano                                                                        sql.NullInt64
	)
	if err := scan(&idStr, &threadIDStr, &slot, &oldMemIDStr, &newMemIDStr, &oldValue, &newValue, &ctype, &status, &drift,
		&trustOld, &trustNew, &confOld, &confNew, &detectedAtNano, &updatedAtNano,
		&resMethod, &resMessageID, &resolvedAtNano, &winningIDStr); err != nil {
		return nil, fmt.Errorf("sqlite ledger: scan: %w", err)
	}

	cID, err := ids.NewContradictionIDFromString(idStr)
	if err != nil {
		return nil, fmt.Errorf("sqlite ledger: %w", err)
	}
	threadID, err := ids.NewThreadID(threadIDStr)
	if err != nil {
		return nil, fmt.Errorf("sqlite ledger: %w", err)
	}
	oldMemID, err := ids.NewMemoryIDFromString(oldMemIDStr)
	if err != nil {
		return nil, fmt.Errorf("sqlite ledger: %w", err)
	}
	newMemID, err := ids.NewMemoryIDFromString(newMemIDStr)
	if err != nil {
		return nil, fmt.Errorf("sqlite ledger: %w", err)
	}

	var resolution *contradiction.Resolution
	if resMethod.Valid {
		var winning ids.MemoryID
		if winningIDStr.Valid {
			winning, err = ids.NewMemoryIDFromString(winningIDStr.String)
			if err != nil {
				return nil, fmt.Errorf("sqlite ledger: %w", err)
			}
		}
		var resolvedAt time.Time
		if resolvedAtNano.Valid {
			resolvedAt = time.Unix(0, resolvedAtNano.Int64)
		}
		resolution = &contradiction.Resolution{
			Method:          resMethod.String,
			MessageID:       resMessageID.String,
			ResolvedAt:      resolvedAt,
			WinningMemoryID: winning,
		}
	}

	return contradiction.Reconstruct(
		cID, threadID, facts.Slot(slot), oldMemID, newMemID, oldValue, newValue,
		contradiction.Type(ctype), contradiction.Status(status),
		drift, trustOld, trustNew, confOld, confNew,
		time.Unix(0, detectedAtNano), time.Unix(0, updatedAtNano), resolution,
	), nil
}

func (l *Ledger) queryThread(ctx context.Context, db *sql.DB, threadID ids.ThreadID) ([]*contradiction.Record, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, thread_id, slot, old_memory_id, new_memory_id, old_value, new_value, type, status, drift,
		        trust_old, trust_new, conf_old, conf_new, detected_at, updated_at,
		        resolution_method, resolution_message_id, resolved_at, winning_memory_id
		 FROM contradictions WHERE thread_id = ?`, threadID.String())
	if err != nil {
		return nil, fmt.Errorf("sqlite ledger: query: %w", err)
	}
	defer rows.Close()

	var out []*contradiction.Record
	for rows.Next() {
		rec, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (l *Ledger) FindOpen(ctx context.Context, threadID ids.ThreadID) ([]*contradiction.Record, error) {
	db, err := l.openDB()
	if err != nil {
		return nil, fmt.Errorf("sqlite ledger: open: %w", err)
	}
	defer db.Close()

	all, err := l.queryThread(ctx, db, threadID)
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

func (l *Ledger) get(ctx context.Context, db *sql.DB, threadID ids.ThreadID, id ids.ContradictionID) (*contradiction.Record, error) {
	row := db.QueryRowContext(ctx,
		`SELECT id, thread_id, slot, old_memory_id, new_memory_id, old_value, new_value, type, status, drift,
		        trust_old, trust_new, conf_old, conf_new, detected_at, updated_at,
		        resolution_method, resolution_message_id, resolved_at, winning_memory_id
		 FROM contradictions WHERE thread_id = ? AND id = ?`, threadID.String(), id.String())
	return scanRecord(row.Scan)
}

// Get looks up a single contradiction record by id, exported over the
// package-private scan helper above.
func (l *Ledger) Get(ctx context.Context, threadID ids.ThreadID, id ids.ContradictionID) (*contradiction.Record, error) {
	db, err := l.openDB()
	if err != nil {
		return nil, fmt.Errorf("sqlite ledger: open: %w", err)
	}
	defer db.Close()
	return l.get(ctx, db, threadID, id)
}

func (l *Ledger) UpdateStatus(ctx context.Context, threadID ids.ThreadID, id ids.ContradictionID, newStatus contradiction.Status, resolution *contradiction.Resolution) error {
	db, err := l.openDB()
	if err != nil {
		return fmt.Errorf("sqlite ledger: open: %w", err)
	}
	defer db.Close()

	rec, err := l.get(ctx, db, threadID, id)
	if err != nil {
		return fmt.Errorf("sqlite ledger: %w", err)
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

// ResolveFromAssertion mirrors the in-memory backend's scan-and-match
// primitive for direct callers that bypass application/ledger.Service,
// which owns the FSM policy decisions and does not call this method.
func (l *Ledger) ResolveFromAssertion(ctx context.Context, threadID ids.ThreadID, newFacts map[facts.Slot]facts.ExtractedFact, newMemoryID ids.MemoryID) ([]ids.ContradictionID, error) {
	db, err := l.openDB()
	if err != nil {
		return nil, fmt.Errorf("sqlite ledger: open: %w", err)
	}
	defer db.Close()

	open, err := l.queryThread(ctx, db, threadID)
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
	db, err := l.openDB()
	if err != nil {
		return nil, fmt.Errorf("sqlite ledger: open: %w", err)
	}
	defer db.Close()

	all, err := l.queryThread(ctx, db, threadID)
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
	db, err := l.openDB()
	if err != nil {
		return ports.LedgerSummary{}, fmt.Errorf("sqlite ledger: open: %w", err)
	}
	defer db.Close()

	all, err := l.queryThread(ctx, db, threadID)
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

// Reset deletes every contradiction row for a thread. Test-harness only.
func (l *Ledger) Reset(ctx context.Context, threadID ids.ThreadID) error {
	db, err := l.openDB()
	if err != nil {
		return fmt.Errorf("sqlite ledger: open: %w", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, `DELETE FROM contradictions WHERE thread_id = ?`, threadID.String()); err != nil {
		return fmt.Errorf("sqlite ledger: reset: %w", err)
	}
	return nil
}
