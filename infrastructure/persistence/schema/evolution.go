// Package schema applies ordered, versioned migrations to a SQL-backed
// store and records what ran, so an on-disk database created by an older
// build is upgraded in place at startup instead of failing on a missing
// column. History is append-only; there is no down path, since a
// governance store is never rolled back in place - operators restore a
// snapshot instead.
package schema

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"
)

// Migration is one forward schema step. Versions are dense and ascending
// per scope; version 1 bootstraps an empty database.
type Migration struct {
	Version     int
	Description string
	Apply       func(ctx context.Context, db *sql.DB) error
}

// AppliedVersion is one row of the recorded migration history.
type AppliedVersion struct {
	Version     int
	Description string
	AppliedAt   time.Time
}

// Evolver owns the ordered migration set for one logical store. The scope
// name keys the history table, so several stores (memories, contradictions)
// can share a single database file without clashing version counters.
type Evolver struct {
	scope      string
	migrations []Migration
}

// NewEvolver validates that the migration set is dense from version 1 and
// returns an Evolver for the scope.
func NewEvolver(scope string, migrations ...Migration) (*Evolver, error) {
	if scope == "" {
		return nil, fmt.Errorf("schema: scope must not be empty")
	}
	sorted := append([]Migration(nil), migrations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })
	for i, m := range sorted {
		if m.Version != i+1 {
			return nil, fmt.Errorf("schema %s: migrations must be dense from 1, got version %d at position %d", scope, m.Version, i)
		}
		if m.Apply == nil {
			return nil, fmt.Errorf("schema %s: migration %d has no Apply function", scope, m.Version)
		}
	}
	return &Evolver{scope: scope, migrations: sorted}, nil
}

const historyTableDDL = `CREATE TABLE IF NOT EXISTS schema_versions (
	scope TEXT NOT NULL,
	version INTEGER NOT NULL,
	description TEXT NOT NULL,
	applied_at INTEGER NOT NULL,
	PRIMARY KEY (scope, version)
)`

// CurrentVersion reports the highest applied version for the scope; 0 for
// a fresh database.
func (e *Evolver) CurrentVersion(ctx context.Context, db *sql.DB) (int, error) {
	if _, err := db.ExecContext(ctx, historyTableDDL); err != nil {
		return 0, fmt.Errorf("schema %s: ensure history table: %w", e.scope, err)
	}
	var v sql.NullInt64
	if err := db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_versions WHERE scope = ?`, e.scope).Scan(&v); err != nil {
		return 0, fmt.Errorf("schema %s: read current version: %w", e.scope, err)
	}
	return int(v.Int64), nil
}

// EnsureCurrent applies every pending migration in order, recording each
// one in the history table as it lands. Safe to call on every startup.
func (e *Evolver) EnsureCurrent(ctx context.Context, db *sql.DB) error {
	current, err := e.CurrentVersion(ctx, db)
	if err != nil {
		return err
	}
	for _, m := range e.migrations {
		if m.Version <= current {
			continue
		}
		if err := m.Apply(ctx, db); err != nil {
			return fmt.Errorf("schema %s: migration %d (%s): %w", e.scope, m.Version, m.Description, err)
		}
		if _, err := db.ExecContext(ctx,
			`INSERT INTO schema_versions (scope, version, description, applied_at) VALUES (?, ?, ?, ?)`,
			e.scope, m.Version, m.Description, time.Now().Unix(),
		); err != nil {
			return fmt.Errorf("schema %s: record migration %d: %w", e.scope, m.Version, err)
		}
	}
	return nil
}

// History returns the applied versions for the scope, oldest first.
func (e *Evolver) History(ctx context.Context, db *sql.DB) ([]AppliedVersion, error) {
	if _, err := db.ExecContext(ctx, historyTableDDL); err != nil {
		return nil, fmt.Errorf("schema %s: ensure history table: %w", e.scope, err)
	}
	rows, err := db.QueryContext(ctx,
		`SELECT version, description, applied_at FROM schema_versions WHERE scope = ? ORDER BY version`, e.scope)
	if err != nil {
		return nil, fmt.Errorf("schema %s: read history: %w", e.scope, err)
	}
	defer rows.Close()

	var out []AppliedVersion
	for rows.Next() {
		var v AppliedVersion
		var appliedAt int64
		if err := rows.Scan(&v.Version, &v.Description, &appliedAt); err != nil {
			return nil, fmt.Errorf("schema %s: scan history row: %w", e.scope, err)
		}
		v.AppliedAt = time.Unix(appliedAt, 0)
		out = append(out, v)
	}
	return out, rows.Err()
}
