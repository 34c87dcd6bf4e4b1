// Package metadata is the SQLite key/value store backing small client records
// such as the sealed credential and the key-derivation salt.
package metadata

import (
	"context"
)

// Repository is a byte-valued key/value store. Get reports found=false for a
// missing key; Delete of a missing key is not an error.
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) (map[string][]byte, error)
	Clear(ctx context.Context) error
}
