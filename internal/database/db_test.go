package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnect_SQLiteAppliesMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "steamprofiles.db")

	db, err := Connect(path)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Ping(context.Background()))

	var tables []string
	err = db.Select(&tables, `SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY name`)
	require.NoError(t, err)
	assert.Contains(t, tables, "steam_profiles")
	assert.Contains(t, tables, "comments")
	assert.Contains(t, tables, "schema_migrations")
}

func TestConnect_ReopenIsNoChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "steamprofiles.db")

	db, err := Connect(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Connect("sqlite://" + path)
	require.NoError(t, err)
	defer db.Close()
}

func TestWithTx(t *testing.T) {
	db, err := Connect(filepath.Join(t.TempDir(), "tx.db"))
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	insert := func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO comments (steam_id, created_at) VALUES (?, ?)`, "7656", 1)
		return err
	}

	t.Run("commits on success", func(t *testing.T) {
		require.NoError(t, db.WithTx(ctx, insert))

		var count int
		require.NoError(t, db.Get(&count, `SELECT COUNT(*) FROM comments`))
		assert.Equal(t, 1, count)
	})

	t.Run("rolls back on error", func(t *testing.T) {
		err := db.WithTx(ctx, func(tx *sqlx.Tx) error {
			if err := insert(tx); err != nil {
				return err
			}
			return assert.AnError
		})
		assert.ErrorIs(t, err, assert.AnError)

		var count int
		require.NoError(t, db.Get(&count, `SELECT COUNT(*) FROM comments`))
		assert.Equal(t, 1, count)
	})
}

func TestIsPostgres(t *testing.T) {
	assert.True(t, isPostgres("postgres://u:p@localhost/db"))
	assert.False(t, isPostgres("./steamprofiles.db"))
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t, "data.db?_busy_timeout=5000&_foreign_keys=on", sqliteDSN("data.db"))
	assert.Equal(t, "data.db?cache=shared&_busy_timeout=5000&_foreign_keys=on", sqliteDSN("data.db?cache=shared"))
}

func TestConnect_SQLiteWithQueryString(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "q.db")

	db, err := Connect(path + "?cache=shared")
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Ping(context.Background()))
}
