package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rep4rep/steam-commenter/internal/database"
	"github.com/rep4rep/steam-commenter/internal/model"
	"github.com/rep4rep/steam-commenter/internal/util"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Connect(filepath.Join(t.TempDir(), "profiles.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestRepo(t *testing.T, cipher *util.Cipher) (*profileRepo, *database.DB) {
	db := setupTestDB(t)
	repo := NewProfileRepository(db.DB, cipher).(*profileRepo)
	return repo, db
}

func TestProfileRepository_Upsert(t *testing.T) {
	ctx := context.Background()

	t.Run("inserts new account", func(t *testing.T) {
		repo, _ := newTestRepo(t, nil)

		acc, err := repo.Upsert(ctx, model.UpsertAccountParams{
			Username:     "alice",
			Password:     "pw",
			SharedSecret: "secret",
			SteamID:      "76561198000000001",
			Cookies:      `["a=b"]`,
		})

		require.NoError(t, err)
		assert.NotZero(t, acc.ID)
		assert.Equal(t, "alice", acc.Username)
		assert.Equal(t, "pw", acc.Password)
		assert.Equal(t, "secret", acc.SharedSecret)
		assert.Equal(t, "76561198000000001", acc.SteamID)
		assert.Nil(t, acc.LastCommentAt)
	})

	t.Run("updates existing account keyed by steam id", func(t *testing.T) {
		repo, _ := newTestRepo(t, nil)

		first, err := repo.Upsert(ctx, model.UpsertAccountParams{
			Username: "alice", Password: "old", SharedSecret: "secret", SteamID: "76561198000000001",
		})
		require.NoError(t, err)

		second, err := repo.Upsert(ctx, model.UpsertAccountParams{
			Username: "alice", Password: "new", SteamID: "76561198000000001", Cookies: "c",
		})
		require.NoError(t, err)

		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, "new", second.Password)
		assert.Equal(t, "secret", second.SharedSecret, "empty secret keeps stored one")
		assert.Equal(t, "c", second.Cookies)

		all, err := repo.FindAll(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("claims username row once steam id is known", func(t *testing.T) {
		repo, _ := newTestRepo(t, nil)

		first, err := repo.Upsert(ctx, model.UpsertAccountParams{Username: "bob", Password: "pw"})
		require.NoError(t, err)
		assert.Empty(t, first.SteamID)

		second, err := repo.Upsert(ctx, model.UpsertAccountParams{
			Username: "bob", Password: "pw", SteamID: "76561198000000002",
		})
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, "76561198000000002", second.SteamID)
	})

	t.Run("encrypts secrets at rest", func(t *testing.T) {
		cipher, err := util.NewCipher(testKey)
		require.NoError(t, err)
		repo, db := newTestRepo(t, cipher)

		_, err = repo.Upsert(ctx, model.UpsertAccountParams{
			Username: "carol", Password: "pw", SharedSecret: "secret", SteamID: "76561198000000003",
		})
		require.NoError(t, err)

		var stored string
		require.NoError(t, db.GetContext(ctx, &stored, `SELECT password FROM steam_profiles WHERE username = 'carol'`))
		assert.NotEqual(t, "pw", stored)

		acc, err := repo.FindByUsername(ctx, "carol")
		require.NoError(t, err)
		assert.Equal(t, "pw", acc.Password)
		assert.Equal(t, "secret", acc.SharedSecret)
	})
}

func TestProfileRepository_Find(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t, nil)

	for _, p := range []model.UpsertAccountParams{
		{Username: "alice", Password: "a", SteamID: "76561198000000001"},
		{Username: "bob", Password: "b", SteamID: "76561198000000002"},
	} {
		_, err := repo.Upsert(ctx, p)
		require.NoError(t, err)
	}

	t.Run("lists in insertion order", func(t *testing.T) {
		all, err := repo.FindAll(ctx)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "alice", all[0].Username)
		assert.Equal(t, "bob", all[1].Username)
	})

	t.Run("finds by steam id", func(t *testing.T) {
		acc, err := repo.FindBySteamID(ctx, "76561198000000002")
		require.NoError(t, err)
		require.NotNil(t, acc)
		assert.Equal(t, "bob", acc.Username)
	})

	t.Run("returns nil for unknown username", func(t *testing.T) {
		acc, err := repo.FindByUsername(ctx, "nobody")
		require.NoError(t, err)
		assert.Nil(t, acc)
	})
}

func TestProfileRepository_DeleteByUsername(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t, nil)

	_, err := repo.Upsert(ctx, model.UpsertAccountParams{Username: "alice", Password: "a", SteamID: "76561198000000001"})
	require.NoError(t, err)

	n, err := repo.DeleteByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = repo.DeleteByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	all, err := repo.FindAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestProfileRepository_Comments(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t, nil)
	steamID := "76561198000000001"

	_, err := repo.Upsert(ctx, model.UpsertAccountParams{Username: "alice", Password: "a", SteamID: steamID})
	require.NoError(t, err)

	now := time.Unix(1700000000, 0)
	repo.now = func() time.Time { return now.Add(-30 * time.Hour) }
	require.NoError(t, repo.RecordComment(ctx, steamID))

	repo.now = func() time.Time { return now.Add(-2 * time.Hour) }
	require.NoError(t, repo.RecordComment(ctx, steamID))
	require.NoError(t, repo.RecordComment(ctx, steamID))

	count, err := repo.CountCommentsSince(ctx, steamID, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = repo.CountCommentsSince(ctx, "76561198000000099", now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	acc, err := repo.FindBySteamID(ctx, steamID)
	require.NoError(t, err)
	require.NotNil(t, acc.LastCommentAt)
	assert.Equal(t, now.Add(-2*time.Hour).Unix(), acc.LastCommentAt.Unix())
}

func TestProfileRepository_WithTx(t *testing.T) {
	ctx := context.Background()
	repo, db := newTestRepo(t, nil)

	err := db.WithTx(ctx, func(tx *sqlx.Tx) error {
		_, err := repo.WithTx(tx).Upsert(ctx, model.UpsertAccountParams{Username: "alice", Password: "a"})
		return err
	})
	require.NoError(t, err)

	acc, err := repo.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.NotNil(t, acc)
}
