package schema_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"groundedmemory/infrastructure/persistence/schema"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "schema_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func tableMigration(name string) schema.Migration {
	return schema.Migration{
		Version:     1,
		Description: "create " + name,
		Apply: func(ctx context.Context, db *sql.DB) error {
			_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+name+` (id TEXT PRIMARY KEY)`)
			return err
		},
	}
}

func TestNewEvolver_RejectsSparseVersions(t *testing.T) {
	m := tableMigration("things")
	m.Version = 2

	_, err := schema.NewEvolver("things", m)
	assert.Error(t, err, "a migration set must start at version 1")

	_, err = schema.NewEvolver("", tableMigration("things"))
	assert.Error(t, err, "scope is required")
}

func TestEnsureCurrent_AppliesPendingInOrder(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	var applied []int
	mk := func(version int, stmt string) schema.Migration {
		return schema.Migration{
			Version:     version,
			Description: "step",
			Apply: func(ctx context.Context, db *sql.DB) error {
				applied = append(applied, version)
				_, err := db.ExecContext(ctx, stmt)
				return err
			},
		}
	}

	e, err := schema.NewEvolver("things",
		mk(2, `CREATE INDEX IF NOT EXISTS idx_things ON things (id)`),
		mk(1, `CREATE TABLE IF NOT EXISTS things (id TEXT PRIMARY KEY)`),
	)
	require.NoError(t, err)

	require.NoError(t, e.EnsureCurrent(ctx, db))
	assert.Equal(t, []int{1, 2}, applied, "migrations run lowest version first regardless of registration order")

	current, err := e.CurrentVersion(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, 2, current)

	// A second run has nothing to do.
	require.NoError(t, e.EnsureCurrent(ctx, db))
	assert.Equal(t, []int{1, 2}, applied)
}

func TestEnsureCurrent_ScopesAreIndependent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	a, err := schema.NewEvolver("alpha", tableMigration("alpha"))
	require.NoError(t, err)
	require.NoError(t, a.EnsureCurrent(ctx, db))

	b, err := schema.NewEvolver("beta", tableMigration("beta"))
	require.NoError(t, err)

	current, err := b.CurrentVersion(ctx, db)
	require.NoError(t, err)
	assert.Zero(t, current, "another scope's history must not advance this scope")

	require.NoError(t, b.EnsureCurrent(ctx, db))
	hist, err := b.History(ctx, db)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, 1, hist[0].Version)
}
