package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dmitrijs2005/pantryclient/internal/client/app"
	"github.com/dmitrijs2005/pantryclient/internal/client/retry"
	"github.com/dmitrijs2005/pantryclient/internal/client/transport"
	"github.com/dmitrijs2005/pantryclient/internal/common"
)

// Fetch strategies accepted by Shell.Get.
const (
	StrategyNetwork      = "network"
	StrategyCacheFirst   = "cache-first"
	StrategyNetworkFirst = "network-first"
)

// Shell runs user commands against an open App and prints the outcome.
type Shell struct {
	app    *app.App
	reader *bufio.Reader
	out    io.Writer
}

func NewShell(a *app.App, in io.Reader, out io.Writer) *Shell {
	s := &Shell{app: a, reader: bufio.NewReader(in), out: out}
	a.SetUnauthorizedCallback(func() {
		printWarn(s.out, "Your session has ended. Please log in again.")
	})
	return s
}

func (s *Shell) isLoggedIn() bool {
	return s.app.Session.State(context.Background()).HasCredential
}

func (s *Shell) status() string {
	st := s.app.Session.State(context.Background())
	switch {
	case !st.HasCredential:
		return "signed out"
	case st.NearExpiry:
		return "expiring"
	default:
		return "signed in"
	}
}

// ask returns v, or prompts for it when empty.
func (s *Shell) ask(v, prompt string) (string, error) {
	if v != "" {
		return v, nil
	}
	return GetSimpleText(s.reader, prompt, s.out)
}

func (s *Shell) password(v string) ([]byte, error) {
	if v != "" {
		return []byte(v), nil
	}
	return GetPassword(s.reader, s.out)
}

// fail prints err and returns it so that cobra sets the exit status.
func (s *Shell) fail(what string, err error) error {
	var te *transport.Error
	if errors.As(err, &te) && te.Message != "" {
		printErr(s.out, "%s: %s", what, te.Message)
	} else {
		printErr(s.out, "%s: %v", what, err)
	}
	return err
}

func (s *Shell) Register(ctx context.Context, email, name, password string) error {
	email, err := s.ask(email, "Enter email")
	if err != nil {
		return err
	}
	name, err = s.ask(name, "Enter your name")
	if err != nil {
		return err
	}
	pw, err := s.password(password)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(pw)

	reg, err := s.app.Auth.Register(ctx, email, string(pw), name)
	if err != nil {
		return s.fail("Registration failed", err)
	}
	if reg.VerificationRequired {
		printInfo(s.out, "Account created. Check %s for a verification code, then run verify.", reg.Email)
		return nil
	}
	printOK(s.out, "Account created, you are signed in.")
	return nil
}

func (s *Shell) Verify(ctx context.Context, email, code string) error {
	email, err := s.ask(email, "Enter email")
	if err != nil {
		return err
	}
	code, err = s.ask(code, "Enter verification code")
	if err != nil {
		return err
	}
	if err := s.app.Auth.VerifyEmail(ctx, email, code); err != nil {
		return s.fail("Verification failed", err)
	}
	printOK(s.out, "E-mail verified, you are signed in.")
	return nil
}

func (s *Shell) Login(ctx context.Context, email, password string) error {
	email, err := s.ask(email, "Enter email")
	if err != nil {
		return err
	}
	pw, err := s.password(password)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(pw)

	if err := s.app.Auth.Login(ctx, email, string(pw)); err != nil {
		return s.fail("Login failed", err)
	}
	printOK(s.out, "Login successful.")
	return nil
}

func (s *Shell) Logout(ctx context.Context) error {
	s.app.Auth.Logout(ctx)
	printOK(s.out, "Logged out.")
	return nil
}

func (s *Shell) Status(ctx context.Context) error {
	st := s.app.Session.State(ctx)
	if !st.HasCredential {
		printInfo(s.out, "Not signed in.")
		return nil
	}
	printOK(s.out, "Signed in until %s.", st.ExpiresAt.Local().Format(time.RFC1123))
	if st.NearExpiry {
		printWarn(s.out, "The session is about to expire.")
	}
	return nil
}

func (s *Shell) Profile(ctx context.Context, refresh bool) error {
	var (
		raw json.RawMessage
		err error
	)
	if refresh {
		raw, err = s.app.Profile.Refresh(ctx)
	} else {
		raw, err = s.app.Profile.Current(ctx)
	}
	if err != nil {
		return s.fail("Could not load profile", err)
	}
	printJSON(s.out, raw)
	return nil
}

func (s *Shell) UpdateProfile(ctx context.Context, name string) error {
	raw, err := s.app.Profile.Update(ctx, map[string]string{"name": name})
	if err != nil {
		return s.fail("Profile update failed", err)
	}
	printJSON(s.out, raw)
	return nil
}

func (s *Shell) UploadAvatar(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return s.fail("Cannot open file", err)
	}
	defer f.Close()

	ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	raw, err := s.app.Profile.UploadAvatar(ctx, filepath.Base(path), ct, f)
	if err != nil {
		return s.fail("Avatar upload failed", err)
	}
	printJSON(s.out, raw)
	return nil
}

func (s *Shell) Recipes(ctx context.Context) error {
	raw, err := s.app.Recipes(ctx)
	if err != nil {
		return s.fail("Could not load recipes", err)
	}
	printJSON(s.out, raw)
	return nil
}

func (s *Shell) Generate(ctx context.Context, ingredients []string) error {
	if len(ingredients) == 0 {
		var err error
		ingredients, err = GetLines(s.reader, "Enter ingredients, one per line", s.out)
		if err != nil {
			return err
		}
	}
	printInfo(s.out, "Generating recipes...")
	raw, err := s.app.GenerateRecipes(ctx, ingredients)
	if err != nil {
		return s.fail("Generation failed", err)
	}
	printJSON(s.out, raw)
	return nil
}

// Get fetches path with the given strategy and prints the payload.
func (s *Shell) Get(ctx context.Context, path, strategy, key string, ttl time.Duration, retries uint64) error {
	if key == "" {
		key = "get:" + path
	}

	var (
		raw   json.RawMessage
		found bool
		err   error
	)
	switch strategy {
	case "", StrategyNetwork:
		p := retry.DefaultPolicy()
		p.MaxRetries = retries
		p.RetryTimeouts = true
		res := retry.Do(ctx, p, func(ctx context.Context) transport.Result[json.RawMessage] {
			return transport.Get[json.RawMessage](ctx, s.app.API, path)
		})
		raw, found, err = res.Data, res.Success, res.Err()
	case StrategyCacheFirst:
		raw, found, err = app.CacheFirst[json.RawMessage](ctx, s.app, key, path, ttl)
	case StrategyNetworkFirst:
		raw, found, err = app.NetworkFirst[json.RawMessage](ctx, s.app, key, path, ttl)
	default:
		return fmt.Errorf("unknown strategy %q", strategy)
	}
	if err != nil {
		return s.fail("Request failed", err)
	}
	if !found {
		printInfo(s.out, "No data.")
		return nil
	}
	printJSON(s.out, raw)
	return nil
}

func (s *Shell) CacheStats(ctx context.Context) error {
	st, err := s.app.Cache.Stats(ctx)
	if err != nil {
		return s.fail("Could not read cache", err)
	}
	fmt.Fprintf(s.out, "entries: %d (valid %d, expired %d), ~%d bytes\n", st.Total, st.Valid, st.Expired, st.ApproxBytes)
	return nil
}

func (s *Shell) CacheSweep(ctx context.Context) error {
	n, err := s.app.Cache.SweepExpired(ctx)
	if err != nil {
		return s.fail("Sweep failed", err)
	}
	printOK(s.out, "Removed %d expired entries.", n)
	return nil
}

func (s *Shell) CacheClear(ctx context.Context) error {
	if err := s.app.Cache.Clear(ctx); err != nil {
		return s.fail("Clear failed", err)
	}
	printOK(s.out, "Cache cleared.")
	return nil
}
