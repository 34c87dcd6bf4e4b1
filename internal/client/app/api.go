package app

import (
	"context"
	"time"

	"github.com/dmitrijs2005/pantryclient/internal/client/cache"
	"github.com/dmitrijs2005/pantryclient/internal/client/transport"
)

// CacheFirst serves key from the cache when fresh and revalidates it from
// GET path in the background. On a miss the request is made synchronously.
// A zero ttl uses the configured cache TTL.
func CacheFirst[T any](ctx context.Context, a *App, key, path string, ttl time.Duration, opts ...transport.RequestOption) (T, bool, error) {
	return cache.CacheFirst(ctx, a.Cache, key, ttl, getter[T](a, path, opts))
}

// NetworkFirst requests GET path and caches the result under key. When the
// request fails the cached value is returned, stale or not, with found set.
func NetworkFirst[T any](ctx context.Context, a *App, key, path string, ttl time.Duration, opts ...transport.RequestOption) (T, bool, error) {
	return cache.NetworkFirst(ctx, a.Cache, key, ttl, getter[T](a, path, opts))
}

func getter[T any](a *App, path string, opts []transport.RequestOption) cache.Loader[T] {
	return func(ctx context.Context) (T, error) {
		res := transport.Get[T](ctx, a.API, path, opts...)
		if !res.Success {
			var zero T
			return zero, res.Err()
		}
		return res.Data, nil
	}
}
