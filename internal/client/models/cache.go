// Package models defines client-side records persisted in the local database.
package models

import "time"

// CacheEntry is one cached API payload.
type CacheEntry struct {
	// Key is the opaque key derived from the logical operation (e.g. "recipes:list").
	Key string

	// Data is the JSON-encoded cached value.
	Data []byte

	// StoredAt is when the value was written.
	StoredAt time.Time

	// ExpiresAt is the end of the entry's freshness window. Reads after it are
	// stale but the row stays until deleted or swept.
	ExpiresAt time.Time
}

// Expired reports whether the entry is past its freshness window at now.
func (e CacheEntry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// CacheStats summarises the cache table at a point in time.
type CacheStats struct {
	Total       int64 `json:"total"`
	Expired     int64 `json:"expired"`
	Valid       int64 `json:"valid"`
	ApproxBytes int64 `json:"approx_bytes"`
}
