// Package cache is the client's persistent response cache. Entries carry their
// own expiry; fresh reads ignore expired entries while stale reads return them
// until they are deleted, cleared or swept.
package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/pantryclient/internal/client/models"
	"github.com/dmitrijs2005/pantryclient/internal/client/repositories/cacheentries"
	"github.com/dmitrijs2005/pantryclient/internal/logging"
)

const (
	DefaultTTL            = 5 * time.Minute
	DefaultRefreshTimeout = 60 * time.Second
)

// Entry is a cached value as stored, before decoding.
type Entry struct {
	Key       string
	Data      json.RawMessage
	StoredAt  time.Time
	ExpiresAt time.Time
}

// Fresh reports whether the entry may be served by a fresh read at now.
func (e Entry) Fresh(now time.Time) bool {
	return !now.After(e.ExpiresAt)
}

type Stats = models.CacheStats

type Options struct {
	// DefaultTTL applies to Set calls with a non-positive ttl.
	DefaultTTL time.Duration
	// RefreshTimeout bounds each background refresh started by CacheFirst.
	RefreshTimeout time.Duration
	Logger         logging.Logger
	Now            func() time.Time
}

type Store struct {
	repo           cacheentries.Repository
	ttl            time.Duration
	refreshTimeout time.Duration
	logger         logging.Logger
	now            func() time.Time

	locks keyLock

	// gen advances on every invalidation. Loaded values are only written
	// if no invalidation happened since their load began.
	genMu sync.RWMutex
	gen   uint64

	bgMu   sync.Mutex
	closed bool
	bg     sync.WaitGroup
}

func NewStore(repo cacheentries.Repository, opts Options) *Store {
	s := &Store{
		repo:           repo,
		ttl:            opts.DefaultTTL,
		refreshTimeout: opts.RefreshTimeout,
		logger:         opts.Logger,
		now:            opts.Now,
	}
	if s.ttl <= 0 {
		s.ttl = DefaultTTL
	}
	if s.refreshTimeout <= 0 {
		s.refreshTimeout = DefaultRefreshTimeout
	}
	if s.logger == nil {
		s.logger = logging.Nop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Set stores value as JSON under key for ttl (the default TTL if ttl <= 0).
func (s *Store) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := encode(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache value[%s]: %w", key, err)
	}
	if ttl <= 0 {
		ttl = s.ttl
	}

	unlock := s.locks.lock(key)
	defer unlock()

	now := s.now()
	return s.repo.Upsert(ctx, models.CacheEntry{
		Key:       key,
		Data:      data,
		StoredAt:  now,
		ExpiresAt: now.Add(ttl),
	})
}

// Lookup returns the raw entry regardless of freshness.
func (s *Store) Lookup(ctx context.Context, key string) (Entry, bool, error) {
	e, ok, err := s.repo.Get(ctx, key)
	if err != nil || !ok {
		return Entry{}, false, err
	}
	return Entry{Key: e.Key, Data: e.Data, StoredAt: e.StoredAt, ExpiresAt: e.ExpiresAt}, true, nil
}

// Get decodes the entry into dst if it is still fresh. An expired entry is
// reported as a miss but left in place for GetStale.
func (s *Store) Get(ctx context.Context, key string, dst any) (bool, error) {
	return s.get(ctx, key, dst, true)
}

// GetStale decodes the entry into dst whatever its expiry.
func (s *Store) GetStale(ctx context.Context, key string, dst any) (bool, error) {
	return s.get(ctx, key, dst, false)
}

func (s *Store) get(ctx context.Context, key string, dst any, freshOnly bool) (bool, error) {
	e, ok, err := s.Lookup(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if freshOnly && !e.Fresh(s.now()) {
		return false, nil
	}
	if err := json.Unmarshal(e.Data, dst); err != nil {
		return false, fmt.Errorf("failed to decode cache value[%s]: %w", key, err)
	}
	return true, nil
}

// Has reports whether a fresh entry exists for key.
func (s *Store) Has(ctx context.Context, key string) bool {
	e, ok, err := s.Lookup(ctx, key)
	return err == nil && ok && e.Fresh(s.now())
}

func (s *Store) Delete(ctx context.Context, key string) error {
	defer s.invalidate()()

	unlock := s.locks.lock(key)
	defer unlock()

	return s.repo.Delete(ctx, key)
}

// DeletePrefix removes every entry whose key starts with prefix.
func (s *Store) DeletePrefix(ctx context.Context, prefix string) (int64, error) {
	defer s.invalidate()()
	return s.repo.DeletePrefix(ctx, prefix)
}

func (s *Store) Clear(ctx context.Context) error {
	defer s.invalidate()()
	return s.repo.Clear(ctx)
}

// Generation identifies the current invalidation epoch. Take it before
// fetching a value that SetIfCurrent will store.
func (s *Store) Generation() uint64 {
	s.genMu.RLock()
	defer s.genMu.RUnlock()
	return s.gen
}

// SetIfCurrent stores value like Set unless the store was invalidated after
// gen was taken or ctx is already done. It reports whether value was written.
func (s *Store) SetIfCurrent(ctx context.Context, gen uint64, key string, value any, ttl time.Duration) (bool, error) {
	s.genMu.RLock()
	defer s.genMu.RUnlock()

	if s.gen != gen || ctx.Err() != nil {
		return false, nil
	}
	if err := s.Set(ctx, key, value, ttl); err != nil {
		return false, err
	}
	return true, nil
}

// invalidate blocks conditional writes and advances the generation. The
// returned func releases them once the deletion is done.
func (s *Store) invalidate() func() {
	s.genMu.Lock()
	s.gen++
	return s.genMu.Unlock
}

// SweepExpired deletes every expired entry and returns how many were removed.
func (s *Store) SweepExpired(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpired(ctx, s.now())
}

func (s *Store) Stats(ctx context.Context) (Stats, error) {
	return s.repo.Stats(ctx, s.now())
}

// encode marshals value to JSON without HTML escaping. Raw JSON is stored
// verbatim.
func encode(value any) ([]byte, error) {
	if raw, ok := value.(json.RawMessage); ok {
		if !json.Valid(raw) {
			return nil, errors.New("invalid raw JSON")
		}
		return raw, nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(value); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Wait blocks until every background refresh has finished.
func (s *Store) Wait() {
	s.bg.Wait()
}

// Close stops new background refreshes and drains running ones. The
// repository is owned by the caller.
func (s *Store) Close() error {
	s.bgMu.Lock()
	s.closed = true
	s.bgMu.Unlock()

	s.Wait()
	return nil
}

// goBackground runs fn detached from the caller's context with the store's
// refresh timeout. Nothing is started once the store is closed.
func (s *Store) goBackground(ctx context.Context, fn func(ctx context.Context)) {
	s.bgMu.Lock()
	if s.closed {
		s.bgMu.Unlock()
		return
	}
	s.bg.Add(1)
	s.bgMu.Unlock()

	go func() {
		defer s.bg.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.refreshTimeout)
		defer cancel()

		fn(ctx)
	}()
}
