// Package cacheentries persists cached API payloads in the SQLite
// cache_entries table. Timestamps are stored as Unix milliseconds.
package cacheentries

import (
	"context"
	"time"

	"github.com/dmitrijs2005/pantryclient/internal/client/models"
)

// Repository stores cache entries. Get reports found=false for a missing key.
type Repository interface {
	Upsert(ctx context.Context, e models.CacheEntry) error
	Get(ctx context.Context, key string) (models.CacheEntry, bool, error)
	Delete(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) (int64, error)
	Clear(ctx context.Context) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	Stats(ctx context.Context, now time.Time) (models.CacheStats, error)
}
