// Package profile caches the signed-in user's profile. The payload is kept
// opaque; only the avatar URL is ever rewritten locally.
package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/pantryclient/internal/client/cache"
	"github.com/dmitrijs2005/pantryclient/internal/client/transport"
	"github.com/dmitrijs2005/pantryclient/internal/logging"
)

const (
	// Namespace prefixes every profile cache key.
	Namespace = "profile:"
	Key       = Namespace + "me"

	mePath     = "/users/me"
	avatarPath = "/users/me/avatar"
)

type Options struct {
	TTL time.Duration
	// UploadTimeout bounds avatar uploads. Defaults to transport.LongTimeout.
	UploadTimeout time.Duration
	Logger        logging.Logger
	Now           func() time.Time
}

type Service struct {
	api    *transport.Client
	cache  *cache.Store
	ttl    time.Duration
	upload time.Duration
	logger logging.Logger
	now    func() time.Time
}

func NewService(api *transport.Client, store *cache.Store, opts Options) *Service {
	s := &Service{api: api, cache: store, ttl: opts.TTL, upload: opts.UploadTimeout, logger: opts.Logger, now: opts.Now}
	if s.upload <= 0 {
		s.upload = transport.LongTimeout
	}
	if s.logger == nil {
		s.logger = logging.Nop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Current returns the cached profile when fresh, refreshing it in the
// background, or fetches it.
func (s *Service) Current(ctx context.Context) (json.RawMessage, error) {
	p, _, err := cache.CacheFirst(ctx, s.cache, Key, s.ttl, s.fetch)
	return p, err
}

// Refresh fetches the profile, falling back to the cached copy when the
// backend cannot be reached.
func (s *Service) Refresh(ctx context.Context) (json.RawMessage, error) {
	p, _, err := cache.NetworkFirst(ctx, s.cache, Key, s.ttl, s.fetch)
	return p, err
}

// Prefetch warms the cache.
func (s *Service) Prefetch(ctx context.Context) error {
	_, err := s.Refresh(ctx)
	return err
}

// Update sends patch to the backend and caches the profile it returns.
func (s *Service) Update(ctx context.Context, patch any) (json.RawMessage, error) {
	gen := s.cache.Generation()
	res := transport.Put[json.RawMessage](ctx, s.api, mePath, patch)
	if !res.Success {
		return nil, fmt.Errorf("failed to update profile: %w", res.Err())
	}
	s.store(ctx, gen, res.Data)
	return res.Data, nil
}

// UploadAvatar uploads a new picture and caches the returned profile with a
// cache-busting marker on its avatar URL.
func (s *Service) UploadAvatar(ctx context.Context, fileName, contentType string, r io.Reader) (json.RawMessage, error) {
	gen := s.cache.Generation()
	res := transport.Upload[json.RawMessage](ctx, s.api, avatarPath, []transport.Part{
		{Field: "avatar", FileName: fileName, ContentType: contentType, Reader: r},
	}, transport.WithTimeout(s.upload))
	if !res.Success {
		return nil, fmt.Errorf("failed to upload avatar: %w", res.Err())
	}

	p, found, err := BustAvatar(res.Data, s.now())
	if err != nil {
		s.logger.Warn(ctx, "could not mark avatar url", "error", err)
		p = res.Data
	} else if !found {
		s.logger.Debug(ctx, "profile has no avatar url")
	}
	s.store(ctx, gen, p)
	return p, nil
}

// Clear drops every cached profile entry.
func (s *Service) Clear(ctx context.Context) error {
	_, err := s.cache.DeletePrefix(ctx, Namespace)
	return err
}

func (s *Service) fetch(ctx context.Context) (json.RawMessage, error) {
	res := transport.Get[json.RawMessage](ctx, s.api, mePath)
	if !res.Success {
		return nil, res.Err()
	}
	return res.Data, nil
}

// store caches p unless the profile was cleared since gen was taken.
func (s *Service) store(ctx context.Context, gen uint64, p json.RawMessage) {
	written, err := s.cache.SetIfCurrent(ctx, gen, Key, p, s.ttl)
	if err != nil {
		s.logger.Warn(ctx, "failed to cache profile", "error", err)
	} else if !written {
		s.logger.Debug(ctx, "profile cleared during request, not cached")
	}
}
