package devserver

import (
	"time"

	"github.com/spf13/pflag"
)

// Config holds the development backend settings.
type Config struct {
	Addr      string
	SecretKey string
	// TokenTTL is the lifetime of issued access tokens.
	TokenTTL time.Duration
	// RequireVerification makes registration return a pending account that
	// must be confirmed through /auth/verify. The code is logged.
	RequireVerification bool
	// MaxAvatarSize caps avatar uploads in bytes.
	MaxAvatarSize int64
	// GenerateDelay simulates a slow generation endpoint.
	GenerateDelay time.Duration
}

// LoadDefaults populates Config with development defaults. They are not
// meant for production.
func (c *Config) LoadDefaults() {
	c.Addr = "127.0.0.1:8080"
	c.SecretKey = "dev-secret-key"
	c.TokenTTL = time.Hour
	c.RequireVerification = false
	c.MaxAvatarSize = 2 << 20
	c.GenerateDelay = 0
}

// BindFlags registers the server flags on fs.
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&c.Addr, "addr", "a", c.Addr, "address and port to listen on")
	fs.StringVarP(&c.SecretKey, "secret", "s", c.SecretKey, "HMAC secret for signing access tokens")
	fs.DurationVarP(&c.TokenTTL, "token-ttl", "t", c.TokenTTL, "access token lifetime")
	fs.BoolVar(&c.RequireVerification, "require-verification", c.RequireVerification, "require e-mail verification after registration")
	fs.Int64Var(&c.MaxAvatarSize, "max-avatar-size", c.MaxAvatarSize, "maximum avatar upload size in bytes")
	fs.DurationVar(&c.GenerateDelay, "generate-delay", c.GenerateDelay, "artificial delay for recipe generation")
}
