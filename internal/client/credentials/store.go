// Package credentials keeps the session credential (bearer token, expiry and
// optional refresh token) sealed in the local database.
//
// A credential is only ever handed out while it is strictly before its expiry.
// Reading an expired credential deletes it.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/pantryclient/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/pantryclient/internal/common"
	"github.com/dmitrijs2005/pantryclient/internal/cryptox"
	"github.com/dmitrijs2005/pantryclient/internal/logging"
	"github.com/golang-jwt/jwt/v5"
)

const credentialKey = "credential"

// DefaultGrace is the near-expiry window used when Options.Grace is zero.
const DefaultGrace = 5 * time.Minute

// ErrInvalidTTL is returned by SetCredential when the resulting expiry would
// not be in the future.
var ErrInvalidTTL = errors.New("credential must expire in the future")

var errUnreadable = errors.New("credential record unreadable")

// Credential is the persisted session record. It is always replaced whole.
type Credential struct {
	Token        string    `json:"token"`
	ExpiresAt    time.Time `json:"expires_at"`
	RefreshToken string    `json:"refresh_token,omitempty"`
}

type Options struct {
	// Grace is the near-expiry window.
	Grace  time.Duration
	Logger logging.Logger
	Now    func() time.Time
}

// Store is safe for concurrent use. Reads share a lock; writes, clears and
// lazy eviction are serialized.
type Store struct {
	mu     sync.RWMutex
	repo   metadata.Repository
	sealer *cryptox.Sealer
	grace  time.Duration
	logger logging.Logger
	now    func() time.Time
}

func NewStore(repo metadata.Repository, sealer *cryptox.Sealer, opts Options) *Store {
	s := &Store{
		repo:   repo,
		sealer: sealer,
		grace:  opts.Grace,
		logger: opts.Logger,
		now:    opts.Now,
	}
	if s.grace <= 0 {
		s.grace = DefaultGrace
	}
	if s.logger == nil {
		s.logger = logging.Nop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// SetCredential replaces the stored credential with one expiring at now+ttl.
// When token is a JWT whose exp claim is earlier, the claim is used instead.
// A failed write is reported as common.ErrStorageFailure.
func (s *Store) SetCredential(ctx context.Context, token string, ttl time.Duration, refreshToken string) error {
	if ttl <= 0 {
		return ErrInvalidTTL
	}

	now := s.now()
	expiresAt := now.Add(ttl)
	if exp, ok := tokenExpiry(token); ok && exp.Before(expiresAt) {
		expiresAt = exp
	}
	if !expiresAt.After(now) {
		return ErrInvalidTTL
	}

	sealed, err := s.sealer.Seal(Credential{Token: token, ExpiresAt: expiresAt, RefreshToken: refreshToken})
	if err != nil {
		return fmt.Errorf("failed to seal credential: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.Set(ctx, credentialKey, sealed); err != nil {
		return fmt.Errorf("%w: %w", common.ErrStorageFailure, err)
	}
	return nil
}

// Credential returns the stored credential, or nil when there is none or it
// has expired. An expired or unreadable record is deleted.
func (s *Store) Credential(ctx context.Context) (*Credential, error) {
	s.mu.RLock()
	c, err := s.load(ctx)
	s.mu.RUnlock()

	switch {
	case errors.Is(err, errUnreadable):
		s.logger.Warn(ctx, "discarding unreadable credential", "error", err)
		s.evict(ctx)
		return nil, nil
	case err != nil:
		return nil, err
	case c == nil:
		return nil, nil
	case s.now().Before(c.ExpiresAt):
		return c, nil
	}

	s.evict(ctx)
	return nil, nil
}

// Token returns the current bearer token, if any. It never fails.
func (s *Store) Token(ctx context.Context) (string, bool) {
	c, err := s.Credential(ctx)
	if err != nil {
		s.logger.Error(ctx, "credential read failed", "error", err)
		return "", false
	}
	if c == nil {
		return "", false
	}
	return c.Token, true
}

// HasCredential reports whether a usable credential is stored.
func (s *Store) HasCredential(ctx context.Context) bool {
	_, ok := s.Token(ctx)
	return ok
}

// IsNearExpiry is true when there is no credential or it expires within the
// grace window.
func (s *Store) IsNearExpiry(ctx context.Context) bool {
	c, err := s.Credential(ctx)
	if err != nil || c == nil {
		return true
	}
	return c.ExpiresAt.Sub(s.now()) <= s.grace
}

// Clear removes the credential. Failures are logged.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.Delete(ctx, credentialKey); err != nil {
		s.logger.Error(ctx, "failed to clear credential", "error", err)
	}
}

func (s *Store) load(ctx context.Context) (*Credential, error) {
	sealed, ok, err := s.repo.Get(ctx, credentialKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrStorageFailure, err)
	}
	if !ok {
		return nil, nil
	}

	var c Credential
	if err := s.sealer.Open(sealed, &c); err != nil {
		return nil, fmt.Errorf("%w: %w", errUnreadable, err)
	}
	return &c, nil
}

// evict deletes the record if it is still expired or unreadable once the
// write lock is held. A concurrent SetCredential may have replaced it.
func (s *Store) evict(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.load(ctx)
	if err != nil && !errors.Is(err, errUnreadable) {
		s.logger.Error(ctx, "credential read failed", "error", err)
		return
	}
	if c != nil && s.now().Before(c.ExpiresAt) {
		return
	}
	if err := s.repo.Delete(ctx, credentialKey); err != nil {
		s.logger.Error(ctx, "failed to evict credential", "error", err)
	}
}

// tokenExpiry extracts the exp claim of a JWT without verifying it. The
// signature is the server's business; only the expiry is of interest here.
func tokenExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
