package cacheentries

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/pantryclient/internal/client/migrations"
	"github.com/dmitrijs2005/pantryclient/internal/client/models"
	"github.com/dmitrijs2005/pantryclient/internal/dbx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := dbx.OpenSQLite(context.Background(), ":memory:", migrations.Migrations)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func entry(key, data string, ttl time.Duration) models.CacheEntry {
	return models.CacheEntry{Key: key, Data: []byte(data), StoredAt: base, ExpiresAt: base.Add(ttl)}
}

func TestUpsertAndGet(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Upsert(ctx, entry("recipes:list", `[1,2]`, time.Minute)))

	got, ok, err := r.Get(ctx, "recipes:list")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "recipes:list", got.Key)
	assert.Equal(t, []byte(`[1,2]`), got.Data)
	assert.True(t, got.StoredAt.Equal(base))
	assert.True(t, got.ExpiresAt.Equal(base.Add(time.Minute)))
}

func TestGet_Missing(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))

	_, ok, err := r.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUpsert_LastWriterWins(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Upsert(ctx, entry("k", `"a"`, time.Minute)))
	require.NoError(t, r.Upsert(ctx, entry("k", `"b"`, 2*time.Minute)))

	got, _, err := r.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte(`"b"`), got.Data)
	assert.True(t, got.ExpiresAt.Equal(base.Add(2*time.Minute)))
}

func TestDeletePrefix(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	for _, k := range []string{"profile:me", "profile:avatar", "profile_x", "recipes:list"} {
		require.NoError(t, r.Upsert(ctx, entry(k, `{}`, time.Minute)))
	}

	n, err := r.DeletePrefix(ctx, "profile:")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// "_" must be matched literally, not as a LIKE wildcard.
	n, err = r.DeletePrefix(ctx, "profile_")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, ok, _ := r.Get(ctx, "recipes:list")
	assert.True(t, ok)
}

func TestDeleteExpiredAndStats(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Upsert(ctx, entry("old", `"1234"`, time.Second)))
	require.NoError(t, r.Upsert(ctx, entry("new", `"5678"`, time.Hour)))

	now := base.Add(time.Minute)
	s, err := r.Stats(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, models.CacheStats{Total: 2, Expired: 1, Valid: 1, ApproxBytes: int64(len("old") + 6 + len("new") + 6)}, s)

	n, err := r.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	s, err = r.Stats(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), s.Total)
	assert.Equal(t, int64(0), s.Expired)
}

func TestDeleteAndClear(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Upsert(ctx, entry("a", `1`, time.Minute)))
	require.NoError(t, r.Upsert(ctx, entry("b", `2`, time.Minute)))

	require.NoError(t, r.Delete(ctx, "a"))
	require.NoError(t, r.Delete(ctx, "a"))
	_, ok, _ := r.Get(ctx, "a")
	assert.False(t, ok)

	require.NoError(t, r.Clear(ctx))
	s, err := r.Stats(ctx, base)
	require.NoError(t, err)
	assert.Zero(t, s.Total)
	assert.Zero(t, s.ApproxBytes)
}

func TestUpsert_StorageError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO cache_entries").WillReturnError(errors.New("disk full"))

	r := NewSQLiteRepository(db)
	err = r.Upsert(context.Background(), entry("k", `1`, time.Minute))
	require.ErrorContains(t, err, "failed to upsert cache entry[k]")
	require.ErrorContains(t, err, "disk full")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStats_StorageError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT").WillReturnError(errors.New("locked"))

	_, err = NewSQLiteRepository(db).Stats(context.Background(), base)
	require.ErrorContains(t, err, "failed to compute cache stats")
}
