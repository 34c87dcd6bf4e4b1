package cache

import (
	"context"
	"time"
)

// Loader fetches the authoritative value for a cache key.
type Loader[T any] func(ctx context.Context) (T, error)

// Load is a typed fresh read.
func Load[T any](ctx context.Context, s *Store, key string) (T, bool, error) {
	var v T
	ok, err := s.Get(ctx, key, &v)
	return v, ok, err
}

// CacheFirst serves a fresh cached value without calling load and refreshes
// the entry in the background. On a miss it calls load synchronously, caches
// the result and returns it; load errors are returned as is.
func CacheFirst[T any](ctx context.Context, s *Store, key string, ttl time.Duration, load Loader[T]) (T, bool, error) {
	var cached T
	ok, err := s.Get(ctx, key, &cached)
	if err != nil {
		s.logger.Warn(ctx, "cache read failed, treating as miss", "key", key, "error", err)
	}
	if ok {
		s.goBackground(ctx, func(ctx context.Context) {
			gen := s.Generation()
			v, err := load(ctx)
			if err != nil {
				s.logger.Warn(ctx, "background refresh failed", "key", key, "error", err)
				return
			}
			s.store(ctx, gen, key, v, ttl)
		})
		return cached, true, nil
	}

	gen := s.Generation()
	v, err := load(ctx)
	if err != nil {
		var zero T
		return zero, false, err
	}
	s.store(ctx, gen, key, v, ttl)
	return v, true, nil
}

// NetworkFirst calls load and caches its result. When load fails it falls back
// to the cached value regardless of expiry; with nothing cached the load error
// is returned and ok is false.
func NetworkFirst[T any](ctx context.Context, s *Store, key string, ttl time.Duration, load Loader[T]) (T, bool, error) {
	gen := s.Generation()
	v, loadErr := load(ctx)
	if loadErr == nil {
		s.store(ctx, gen, key, v, ttl)
		return v, true, nil
	}

	var stale T
	ok, err := s.GetStale(ctx, key, &stale)
	if err != nil {
		s.logger.Warn(ctx, "stale cache read failed", "key", key, "error", err)
	}
	if !ok {
		var zero T
		return zero, false, loadErr
	}

	s.logger.Info(ctx, "serving stale cache entry", "key", key, "error", loadErr)
	return stale, true, nil
}

// store writes a freshly loaded value unless the cache was invalidated while
// it loaded. A failed write is logged only: the caller already has the data.
func (s *Store) store(ctx context.Context, gen uint64, key string, v any, ttl time.Duration) {
	written, err := s.SetIfCurrent(ctx, gen, key, v, ttl)
	switch {
	case err != nil:
		s.logger.Warn(ctx, "cache write failed", "key", key, "error", err)
	case !written:
		s.logger.Debug(ctx, "dropped load that overlapped an invalidation", "key", key)
	}
}
