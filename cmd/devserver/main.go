package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/pantryclient/internal/buildinfo"
	"github.com/dmitrijs2005/pantryclient/internal/devserver"
	"github.com/dmitrijs2005/pantryclient/internal/logging"
)

func main() {
	var (
		cfg      devserver.Config
		logLevel string
		backend  string
	)
	cfg.LoadDefaults()

	root := &cobra.Command{
		Use:          "devserver",
		Short:        "In-memory Pantry backend for local development",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			buildinfo.PrintBuildData(cmd.OutOrStdout())

			logger, err := logging.New(logging.Options{Backend: backend, Level: logLevel, Writer: cmd.ErrOrStderr()})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
			defer stop()

			return devserver.NewServer(cfg, logger).Run(ctx)
		},
	}
	cfg.BindFlags(root.Flags())
	root.Flags().StringVar(&backend, "log-backend", "slog", "logging backend: slog or zap")
	root.Flags().StringVar(&logLevel, "log-level", "info", "log level")
	root.Version = buildinfo.Version

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
