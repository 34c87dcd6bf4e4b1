package cli

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/pantryclient/internal/buildinfo"
	"github.com/dmitrijs2005/pantryclient/internal/client/app"
	"github.com/dmitrijs2005/pantryclient/internal/client/config"
	"github.com/dmitrijs2005/pantryclient/internal/logging"
)

// runtime is shared by every subcommand of one root command.
type runtime struct {
	cfg     *config.Config
	in      io.Reader
	noColor bool
	// appOpts is a test seam.
	appOpts app.Options
}

// withShell opens the client for the duration of one command.
func (rt *runtime) withShell(fn func(ctx context.Context, s *Shell, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		if rt.noColor {
			color.NoColor = true
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		logger, err := logging.New(logging.Options{
			Backend: rt.cfg.LogBackend,
			Level:   rt.cfg.LogLevel,
			Format:  rt.cfg.LogFormat,
			Writer:  cmd.ErrOrStderr(),
		})
		if err != nil {
			return err
		}

		a, err := app.NewApp(ctx, rt.cfg, logger, rt.appOpts)
		if err != nil {
			return err
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			if cerr := a.Close(closeCtx); cerr != nil && err == nil {
				err = cerr
			}
		}()

		if err := a.Start(ctx); err != nil {
			return err
		}
		return fn(ctx, NewShell(a, rt.in, cmd.OutOrStdout()), cmd, args)
	}
}

// NewRootCmd builds the pantry command tree. cfg already holds defaults, the
// config file and the environment; flags are bound on top of it.
func NewRootCmd(cfg *config.Config, in io.Reader) *cobra.Command {
	return newRootCmd(&runtime{cfg: cfg, in: in})
}

func newRootCmd(rt *runtime) *cobra.Command {
	root := &cobra.Command{
		Use:          "pantry",
		Short:        "Pantry API client",
		Long:         "pantry talks to the Pantry backend: sign in, manage your profile and generate recipes.",
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return rt.cfg.Validate()
		},
	}

	config.BindFlags(root.PersistentFlags(), rt.cfg)
	root.PersistentFlags().BoolVar(&rt.noColor, "no-color", false, "disable colored output")

	root.Version = buildinfo.Version
	root.SetVersionTemplate(fmt.Sprintf("pantry version %s\n", buildinfo.Version))

	root.AddCommand(
		newRegisterCmd(rt),
		newVerifyCmd(rt),
		newLoginCmd(rt),
		newLogoutCmd(rt),
		newStatusCmd(rt),
		newProfileCmd(rt),
		newRecipesCmd(rt),
		newGetCmd(rt),
		newCacheCmd(rt),
		newShellCmd(rt),
		newVersionCmd(),
	)
	return root
}

func newRegisterCmd(rt *runtime) *cobra.Command {
	var email, name, password string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: rt.withShell(func(ctx context.Context, s *Shell, _ *cobra.Command, _ []string) error {
			return s.Register(ctx, email, name, password)
		}),
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "account e-mail (prompted when empty)")
	cmd.Flags().StringVarP(&name, "name", "n", "", "display name (prompted when empty)")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (prompted when empty)")
	return cmd
}

func newVerifyCmd(rt *runtime) *cobra.Command {
	var email, code string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Confirm an e-mail address with the code sent after registration",
		Args:  cobra.NoArgs,
		RunE: rt.withShell(func(ctx context.Context, s *Shell, _ *cobra.Command, _ []string) error {
			return s.Verify(ctx, email, code)
		}),
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "account e-mail (prompted when empty)")
	cmd.Flags().StringVar(&code, "code", "", "verification code (prompted when empty)")
	return cmd
}

func newLoginCmd(rt *runtime) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in",
		Args:  cobra.NoArgs,
		RunE: rt.withShell(func(ctx context.Context, s *Shell, _ *cobra.Command, _ []string) error {
			return s.Login(ctx, email, password)
		}),
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "account e-mail (prompted when empty)")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (prompted when empty)")
	return cmd
}

func newLogoutCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and wipe the stored credential",
		Args:  cobra.NoArgs,
		RunE: rt.withShell(func(ctx context.Context, s *Shell, _ *cobra.Command, _ []string) error {
			return s.Logout(ctx)
		}),
	}
}

func newStatusCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the session state",
		Args:  cobra.NoArgs,
		RunE: rt.withShell(func(ctx context.Context, s *Shell, _ *cobra.Command, _ []string) error {
			return s.Status(ctx)
		}),
	}
}

func newProfileCmd(rt *runtime) *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show your profile",
		Args:  cobra.NoArgs,
		RunE: rt.withShell(func(ctx context.Context, s *Shell, _ *cobra.Command, _ []string) error {
			return s.Profile(ctx, refresh)
		}),
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "fetch from the backend, falling back to the cached copy")

	var name string
	update := &cobra.Command{
		Use:   "update",
		Short: "Change your profile",
		Args:  cobra.NoArgs,
		RunE: rt.withShell(func(ctx context.Context, s *Shell, _ *cobra.Command, _ []string) error {
			return s.UpdateProfile(ctx, name)
		}),
	}
	update.Flags().StringVarP(&name, "name", "n", "", "new display name")
	_ = update.MarkFlagRequired("name")

	avatar := &cobra.Command{
		Use:   "avatar <file>",
		Short: "Upload a new profile picture",
		Args:  cobra.ExactArgs(1),
		RunE: rt.withShell(func(ctx context.Context, s *Shell, _ *cobra.Command, args []string) error {
			return s.UploadAvatar(ctx, args[0])
		}),
	}

	cmd.AddCommand(update, avatar)
	return cmd
}

func newRecipesCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recipes",
		Short: "List your saved recipes",
		Args:  cobra.NoArgs,
		RunE: rt.withShell(func(ctx context.Context, s *Shell, _ *cobra.Command, _ []string) error {
			return s.Recipes(ctx)
		}),
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "generate [ingredient...]",
		Short: "Generate recipes from ingredients (prompted when none are given)",
		RunE: rt.withShell(func(ctx context.Context, s *Shell, _ *cobra.Command, args []string) error {
			return s.Generate(ctx, args)
		}),
	})
	return cmd
}

func newGetCmd(rt *runtime) *cobra.Command {
	var (
		strategy, key string
		ttl           time.Duration
		retries       uint64
	)
	cmd := &cobra.Command{
		Use:   "get <path>",
		Short: "GET an API path and print the JSON payload",
		Args:  cobra.ExactArgs(1),
		RunE: rt.withShell(func(ctx context.Context, s *Shell, _ *cobra.Command, args []string) error {
			return s.Get(ctx, args[0], strategy, key, ttl, retries)
		}),
	}
	cmd.Flags().StringVar(&strategy, "strategy", StrategyNetwork, "network, cache-first or network-first")
	cmd.Flags().StringVar(&key, "key", "", "cache key (default get:<path>)")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "cache lifetime (default: configured cache TTL)")
	cmd.Flags().Uint64Var(&retries, "retries", 0, "retries on 429, 503 or timeout (network strategy)")
	return cmd
}

func newCacheCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Show local cache statistics",
		Args:  cobra.NoArgs,
		RunE: rt.withShell(func(ctx context.Context, s *Shell, _ *cobra.Command, _ []string) error {
			return s.CacheStats(ctx)
		}),
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "sweep",
			Short: "Remove expired entries",
			Args:  cobra.NoArgs,
			RunE: rt.withShell(func(ctx context.Context, s *Shell, _ *cobra.Command, _ []string) error {
				return s.CacheSweep(ctx)
			}),
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Remove every cached entry",
			Args:  cobra.NoArgs,
			RunE: rt.withShell(func(ctx context.Context, s *Shell, _ *cobra.Command, _ []string) error {
				return s.CacheClear(ctx)
			}),
		},
	)
	return cmd
}

func newShellCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Interactive mode (type 'help' for commands)",
		Args:  cobra.NoArgs,
		RunE: rt.withShell(func(ctx context.Context, s *Shell, cmd *cobra.Command, _ []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), "Welcome to the Pantry CLI (type 'help' for commands)")
			runREPL(ctx, s, s.reader, cmd.OutOrStdout())
			return nil
		}),
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		// version works without a valid configuration
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			buildinfo.PrintBuildData(cmd.OutOrStdout())
		},
	}
}
