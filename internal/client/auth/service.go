// Package auth implements the account flows against the backend: login,
// registration, e-mail verification, logout and account deletion. Tokens the
// backend issues are handed to the session.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/pantryclient/internal/client/transport"
	"github.com/dmitrijs2005/pantryclient/internal/common"
	"github.com/dmitrijs2005/pantryclient/internal/logging"
)

const (
	DefaultCredentialTTL = 24 * time.Hour

	loginPath    = "/auth/login"
	registerPath = "/auth/register"
	verifyPath   = "/auth/verify"
	logoutPath   = "/auth/logout"
	accountPath  = "/users/me"

	logoutNotifyTimeout = 5 * time.Second
)

// Session receives the credential on successful authentication.
type Session interface {
	Login(ctx context.Context, token string, ttl time.Duration, refreshToken string) error
	Logout(ctx context.Context)
}

// Tokens is the backend's authentication payload. ExpiresIn is in seconds.
type Tokens struct {
	Token        string `json:"token"`
	ExpiresIn    int64  `json:"expiresIn,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// Registration is the outcome of Register.
type Registration struct {
	Email                string `json:"email"`
	VerificationRequired bool   `json:"verificationRequired"`
	Tokens
}

type Options struct {
	// CredentialTTL applies when the backend does not say how long a token lives.
	CredentialTTL time.Duration
	Logger        logging.Logger
}

type Service struct {
	api     *transport.Client
	session Session
	ttl     time.Duration
	logger  logging.Logger
}

func NewService(api *transport.Client, session Session, opts Options) *Service {
	s := &Service{api: api, session: session, ttl: opts.CredentialTTL, logger: opts.Logger}
	if s.ttl <= 0 {
		s.ttl = DefaultCredentialTTL
	}
	if s.logger == nil {
		s.logger = logging.Nop()
	}
	return s
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

// Login authenticates with e-mail and password and starts a session.
func (s *Service) Login(ctx context.Context, email, password string) error {
	res := transport.Post[Tokens](ctx, s.api, loginPath, credentialsRequest{Email: email, Password: password})
	if !res.Success {
		return fmt.Errorf("login failed: %w", res.Err())
	}
	return s.establish(ctx, res.Data)
}

// Register creates an account. When the backend signs the user in right away
// the session is started too.
func (s *Service) Register(ctx context.Context, email, password, name string) (Registration, error) {
	res := transport.Post[Registration](ctx, s.api, registerPath,
		credentialsRequest{Email: email, Password: password, Name: name})
	if !res.Success {
		return Registration{}, fmt.Errorf("registration failed: %w", res.Err())
	}

	reg := res.Data
	if reg.Token != "" {
		if err := s.establish(ctx, reg.Tokens); err != nil {
			return reg, err
		}
	}
	return reg, nil
}

// VerifyEmail confirms an account with the code sent by e-mail and starts a
// session.
func (s *Service) VerifyEmail(ctx context.Context, email, code string) error {
	res := transport.Post[Tokens](ctx, s.api, verifyPath, map[string]string{"email": email, "code": code})
	if !res.Success {
		return fmt.Errorf("verification failed: %w", res.Err())
	}
	return s.establish(ctx, res.Data)
}

// Logout tells the backend (best effort) and ends the local session.
func (s *Service) Logout(ctx context.Context) {
	res := transport.Post[json.RawMessage](ctx, s.api, logoutPath, nil, transport.WithTimeout(logoutNotifyTimeout))
	if !res.Success {
		s.logger.Debug(ctx, "backend logout failed", "kind", res.Kind, "message", res.Message)
	}
	s.session.Logout(ctx)
}

// DeleteAccount deletes the account on the backend, then wipes the session.
func (s *Service) DeleteAccount(ctx context.Context) error {
	res := transport.Delete[json.RawMessage](ctx, s.api, accountPath)
	if !res.Success {
		return fmt.Errorf("account deletion failed: %w", res.Err())
	}
	s.session.Logout(ctx)
	return nil
}

func (s *Service) establish(ctx context.Context, t Tokens) error {
	if t.Token == "" {
		return fmt.Errorf("%w: backend returned no token", common.ErrInvalidToken)
	}
	ttl := s.ttl
	if t.ExpiresIn > 0 {
		ttl = time.Duration(t.ExpiresIn) * time.Second
	}
	return s.session.Login(ctx, t.Token, ttl, t.RefreshToken)
}
