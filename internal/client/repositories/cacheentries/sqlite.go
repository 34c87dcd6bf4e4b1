package cacheentries

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/pantryclient/internal/client/models"
	"github.com/dmitrijs2005/pantryclient/internal/dbx"
)

// SQLiteRepository implements Repository over a dbx.DBTX.
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Upsert writes the whole entry in one statement; last writer wins.
func (r *SQLiteRepository) Upsert(ctx context.Context, e models.CacheEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO cache_entries (key, data, stored_at, expires_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			data = excluded.data,
			stored_at = excluded.stored_at,
			expires_at = excluded.expires_at
	`, e.Key, e.Data, e.StoredAt.UnixMilli(), e.ExpiresAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to upsert cache entry[%s]: %w", e.Key, err)
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, key string) (models.CacheEntry, bool, error) {
	var (
		e                   models.CacheEntry
		storedAt, expiresAt int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT key, data, stored_at, expires_at FROM cache_entries WHERE key = ?`, key,
	).Scan(&e.Key, &e.Data, &storedAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.CacheEntry{}, false, nil
	}
	if err != nil {
		return models.CacheEntry{}, false, fmt.Errorf("failed to get cache entry[%s]: %w", key, err)
	}
	e.StoredAt = time.UnixMilli(storedAt)
	e.ExpiresAt = time.UnixMilli(expiresAt)
	return e, true, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to delete cache entry[%s]: %w", key, err)
	}
	return nil
}

// DeletePrefix removes every key starting with prefix and returns the count.
func (r *SQLiteRepository) DeletePrefix(ctx context.Context, prefix string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE key LIKE ? ESCAPE '\'`, escapeLike(prefix)+"%")
	if err != nil {
		return 0, fmt.Errorf("failed to delete cache prefix[%s]: %w", prefix, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM cache_entries`)
	if err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	return nil
}

// DeleteExpired removes entries whose expires_at is before now.
func (r *SQLiteRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE expires_at < ?`, now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to sweep cache: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Stats counts entries and approximates their size as len(key)+len(data).
func (r *SQLiteRepository) Stats(ctx context.Context, now time.Time) (models.CacheStats, error) {
	var s models.CacheStats
	err := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN expires_at < ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(LENGTH(key) + LENGTH(data)), 0)
		FROM cache_entries
	`, now.UnixMilli()).Scan(&s.Total, &s.Expired, &s.ApproxBytes)
	if err != nil {
		return models.CacheStats{}, fmt.Errorf("failed to compute cache stats: %w", err)
	}
	s.Valid = s.Total - s.Expired
	return s, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
