package devserver

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/dmitrijs2005/pantryclient/internal/common"
	"github.com/dmitrijs2005/pantryclient/internal/logging"
)

var (
	errNotFound     = errors.New("not found")
	errConflict     = errors.New("account already exists")
	errUnauthorized = errors.New("invalid credentials")
	errInvalidInput = errors.New("invalid input")
	errInvalidCode  = errors.New("invalid verification code")
	errUnverified   = errors.New("account is not verified")
)

// TokenPair is what a successful authentication returns.
type TokenPair struct {
	Token        string `json:"token"`
	ExpiresIn    int64  `json:"expiresIn"`
	RefreshToken string `json:"refreshToken"`
}

// Registration is the register endpoint payload. Tokens are empty when the
// account still needs verification.
type Registration struct {
	Email                string `json:"email"`
	VerificationRequired bool   `json:"verificationRequired"`
	*TokenPair
}

// Service implements the backend operations on top of the in-memory store.
type Service struct {
	store  *memoryStore
	cfg    Config
	secret []byte
	logger logging.Logger
	now    func() time.Time
}

func NewService(cfg Config, logger logging.Logger) *Service {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Service{
		store:  newMemoryStore(),
		cfg:    cfg,
		secret: []byte(cfg.SecretKey),
		logger: logger,
		now:    time.Now,
	}
}

func (s *Service) Register(ctx context.Context, email, password, name string) (*Registration, error) {
	email = normalizeEmail(email)
	if !strings.Contains(email, "@") || len(password) < 6 {
		return nil, fmt.Errorf("%w: a valid e-mail and a password of at least 6 characters are required", errInvalidInput)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	u, err := s.store.create(&User{
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		Verified:     !s.cfg.RequireVerification,
		CreatedAt:    s.now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	if s.cfg.RequireVerification {
		code, err := verificationCode()
		if err != nil {
			return nil, err
		}
		s.store.setCode(email, code)
		s.logger.Info(ctx, "verification code issued", "email", email, "code", code)
		return &Registration{Email: email, VerificationRequired: true}, nil
	}

	pair, err := s.issue(u.ID)
	if err != nil {
		return nil, err
	}
	return &Registration{Email: email, TokenPair: pair}, nil
}

// PendingCode returns the verification code waiting for email.
func (s *Service) PendingCode(email string) (string, bool) {
	return s.store.pendingCode(email)
}

func (s *Service) Verify(ctx context.Context, email, code string) (*TokenPair, error) {
	if !s.store.takeCode(email, code) {
		return nil, errInvalidCode
	}
	u, err := s.store.byLogin(email)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.update(u.ID, func(u *User) { u.Verified = true }); err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "account verified", "user_id", u.ID)
	return s.issue(u.ID)
}

func (s *Service) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	u, err := s.store.byLogin(email)
	if err != nil {
		if errors.Is(err, errNotFound) {
			return nil, errUnauthorized
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)) != nil {
		return nil, errUnauthorized
	}
	if !u.Verified {
		return nil, errUnverified
	}
	s.logger.Debug(ctx, "login", "user_id", u.ID)
	return s.issue(u.ID)
}

// Logout revokes the presented access token and the user's refresh tokens.
func (s *Service) Logout(ctx context.Context, claims *Claims) {
	until := s.now()
	if claims.ExpiresAt != nil {
		until = claims.ExpiresAt.Time
	}
	s.store.revoke(claims.ID, until, s.now())
	s.store.dropRefresh(claims.UserID)
	s.logger.Debug(ctx, "logout", "user_id", claims.UserID)
}

// Authenticate validates a bearer token.
func (s *Service) Authenticate(token string) (*Claims, error) {
	claims, err := ParseToken(token, s.secret, s.now())
	if err != nil {
		return nil, err
	}
	if s.store.isRevoked(claims.ID) {
		return nil, errInvalidToken
	}
	if _, err := s.store.get(claims.UserID); err != nil {
		return nil, errInvalidToken
	}
	return claims, nil
}

func (s *Service) Profile(userID string) (*User, error) {
	return s.store.get(userID)
}

// ProfilePatch lists the profile members a client may change.
type ProfilePatch struct {
	Name        *string         `json:"name"`
	Preferences json.RawMessage `json:"preferences"`
}

func (s *Service) UpdateProfile(userID string, p ProfilePatch) (*User, error) {
	return s.store.update(userID, func(u *User) {
		if p.Name != nil {
			u.Name = strings.TrimSpace(*p.Name)
		}
		if len(p.Preferences) > 0 {
			u.Preferences = p.Preferences
		}
	})
}

func (s *Service) DeleteAccount(ctx context.Context, userID string) error {
	if err := s.store.delete(userID); err != nil {
		return err
	}
	s.logger.Info(ctx, "account deleted", "user_id", userID)
	return nil
}

// SetAvatar stores the picture and points the profile at avatarURL.
func (s *Service) SetAvatar(userID, contentType string, data []byte, avatarURL string) (*User, error) {
	s.store.putAvatar(userID, avatar{ContentType: contentType, Data: data})
	return s.store.update(userID, func(u *User) { u.AvatarURL = avatarURL })
}

func (s *Service) Avatar(userID string) (string, []byte, bool) {
	a, ok := s.store.getAvatar(userID)
	return a.ContentType, a.Data, ok
}

func (s *Service) Recipes(userID string) []Recipe {
	return s.store.listRecipes(userID)
}

// GenerateRecipes produces a couple of recipes from ingredients and saves them.
func (s *Service) GenerateRecipes(ctx context.Context, userID string, ingredients []string) ([]Recipe, error) {
	var clean []string
	for _, in := range ingredients {
		if in = strings.TrimSpace(in); in != "" {
			clean = append(clean, in)
		}
	}
	if len(clean) == 0 {
		return nil, fmt.Errorf("%w: at least one ingredient is required", errInvalidInput)
	}

	if s.cfg.GenerateDelay > 0 {
		select {
		case <-time.After(s.cfg.GenerateDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	now := s.now().UTC()
	recipes := []Recipe{
		{
			ID:          uuid.NewString(),
			Title:       strings.Join(clean, " & ") + " skillet",
			Ingredients: clean,
			Steps:       []string{"Prepare the ingredients.", "Cook everything in a hot pan.", "Season and serve."},
			CreatedAt:   now,
		},
		{
			ID:          uuid.NewString(),
			Title:       clean[0] + " salad",
			Ingredients: clean,
			Steps:       []string{"Chop the ingredients.", "Toss with dressing."},
			CreatedAt:   now,
		},
	}
	s.store.addRecipes(userID, recipes)
	return recipes, nil
}

func (s *Service) issue(userID string) (*TokenPair, error) {
	token, _, err := GenerateToken(userID, s.secret, s.cfg.TokenTTL, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}
	refresh, err := common.MakeRandHexString(32)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}
	s.store.addRefresh(refresh, userID)

	return &TokenPair{
		Token:        token,
		ExpiresIn:    int64(s.cfg.TokenTTL / time.Second),
		RefreshToken: refresh,
	}, nil
}

func verificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("failed to generate verification code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
