// Package session owns the login state of the client: it stores credentials
// on login, watches them for approaching expiry, and is the single place
// where forced logout (expiry or a 401 from the backend) converges.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/pantryclient/internal/client/credentials"
	"github.com/dmitrijs2005/pantryclient/internal/logging"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultCheckInterval  = 5 * time.Minute
	DefaultRefreshTimeout = 60 * time.Second
	logoutFlight          = "logout"
)

// Credentials is the subset of the credential store the session drives.
type Credentials interface {
	SetCredential(ctx context.Context, token string, ttl time.Duration, refreshToken string) error
	Credential(ctx context.Context) (*credentials.Credential, error)
	IsNearExpiry(ctx context.Context) bool
	Clear(ctx context.Context)
}

// Profile is the locally cached user profile.
type Profile interface {
	// Prefetch refreshes the cached profile from the backend.
	Prefetch(ctx context.Context) error
	// Clear drops every cached profile entry.
	Clear(ctx context.Context) error
}

type Config struct {
	Credentials Credentials
	// Profile is optional.
	Profile        Profile
	CheckInterval  time.Duration
	RefreshTimeout time.Duration
	Logger         logging.Logger
}

// State is a snapshot of the session as seen by the UI.
type State struct {
	Active        bool
	HasCredential bool
	NearExpiry    bool
	ExpiresAt     time.Time
}

type Session struct {
	creds          Credentials
	profile        Profile
	interval       time.Duration
	refreshTimeout time.Duration
	logger         logging.Logger

	active atomic.Bool
	flight singleflight.Group

	// stateMu orders login against logout. scopeCancel ends the background
	// work of the current login.
	stateMu     sync.Mutex
	scopeCancel context.CancelFunc

	cbMu     sync.RWMutex
	onLogout func()

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	bg sync.WaitGroup
}

func New(cfg Config) (*Session, error) {
	if cfg.Credentials == nil {
		return nil, errors.New("session: credential store is nil")
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = DefaultCheckInterval
	}
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = DefaultRefreshTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}

	return &Session{
		creds:          cfg.Credentials,
		profile:        cfg.Profile,
		interval:       cfg.CheckInterval,
		refreshTimeout: cfg.RefreshTimeout,
		logger:         cfg.Logger,
	}, nil
}

// SetUnauthorizedCallback registers the function called once per active
// session when it is forcibly ended. A later call replaces the earlier one.
func (s *Session) SetUnauthorizedCallback(fn func()) {
	s.cbMu.Lock()
	s.onLogout = fn
	s.cbMu.Unlock()
}

// Start resumes a session persisted by a previous run and begins watching for
// expiry. Calling Start on a running session is a no-op.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return nil
	}
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	if c, err := s.creds.Credential(ctx); err != nil {
		s.logger.Warn(ctx, "could not read stored credential", "error", err)
	} else if c != nil {
		s.active.Store(true)
		s.logger.Info(ctx, "resumed session", "expires_at", c.ExpiresAt)
	}

	go func() {
		defer close(done)
		s.CheckExpiry(loopCtx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				s.CheckExpiry(loopCtx)
			}
		}
	}()

	return nil
}

// Stop halts the expiry watcher and waits for background work to finish.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	finished := make(chan struct{})
	go func() {
		if done != nil {
			<-done
		}
		s.bg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CheckExpiry logs out an active session whose credential is gone or about to
// expire.
func (s *Session) CheckExpiry(ctx context.Context) {
	if !s.active.Load() {
		return
	}
	if s.creds.IsNearExpiry(ctx) {
		s.logger.Info(ctx, "credential near expiry, logging out")
		s.Logout(ctx)
	}
}

// Login stores the credential and marks the session active. The cached profile
// is then refreshed in the background; failure there does not affect login.
func (s *Session) Login(ctx context.Context, token string, ttl time.Duration, refreshToken string) error {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	if err := s.creds.SetCredential(ctx, token, ttl, refreshToken); err != nil {
		return fmt.Errorf("login did not complete: %w", err)
	}
	s.active.Store(true)

	if s.scopeCancel != nil {
		s.scopeCancel()
	}
	scope, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.scopeCancel = cancel

	if s.profile != nil {
		s.goBackground(scope, "profile refresh", s.profile.Prefetch)
	}
	return nil
}

// Logout wipes the credential and the cached profile. Concurrent callers join
// the logout already in flight. The callback fires only if a session was
// active. Failures are logged, never returned.
func (s *Session) Logout(ctx context.Context) {
	_, _, _ = s.flight.Do(logoutFlight, func() (any, error) {
		s.logout(context.WithoutCancel(ctx))
		return nil, nil
	})
}

// HandleUnauthorized is the request pipeline's 401 hook.
func (s *Session) HandleUnauthorized(ctx context.Context) {
	s.logger.Warn(ctx, "backend rejected credential")
	s.Logout(ctx)
}

func (s *Session) logout(ctx context.Context) {
	s.stateMu.Lock()
	if s.scopeCancel != nil {
		s.scopeCancel()
		s.scopeCancel = nil
	}
	s.creds.Clear(ctx)
	wasActive := s.active.Swap(false)
	if s.profile != nil {
		if err := s.profile.Clear(ctx); err != nil {
			s.logger.Error(ctx, "failed to clear cached profile", "error", err)
		}
	}
	s.stateMu.Unlock()

	if !wasActive {
		return
	}
	s.cbMu.RLock()
	cb := s.onLogout
	s.cbMu.RUnlock()
	if cb == nil {
		return
	}

	defer func() {
		if p := recover(); p != nil {
			s.logger.Error(ctx, "logout callback panicked", "panic", p)
		}
	}()
	cb()
}

// State reports the current session state.
func (s *Session) State(ctx context.Context) State {
	st := State{Active: s.active.Load(), NearExpiry: s.creds.IsNearExpiry(ctx)}

	c, err := s.creds.Credential(ctx)
	if err == nil && c != nil {
		st.HasCredential = true
		st.ExpiresAt = c.ExpiresAt
	}
	return st
}

// goBackground runs fn under ctx, which must already be detached from the
// caller, bounded by the refresh timeout.
func (s *Session) goBackground(ctx context.Context, name string, fn func(ctx context.Context) error) {
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		defer func() {
			if p := recover(); p != nil {
				s.logger.Error(ctx, name+" panicked", "panic", p)
			}
		}()

		ctx, cancel := context.WithTimeout(ctx, s.refreshTimeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			s.logger.Warn(ctx, name+" failed", "error", err)
		}
	}()
}
