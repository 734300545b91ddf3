package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mohammad-safakhou/ori/config"
	"github.com/mohammad-safakhou/ori/internal/runtime"
	srv "github.com/mohammad-safakhou/ori/internal/server"
)

func serveCMD(cfgPath *string) *cobra.Command {
	var serveAddr string
	var autoMigrate bool
	var migDir string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts []config.LoadOption
			if serveAddr != "" {
				opts = append(opts, config.WithOverride("server.address", serveAddr))
			}
			cfg, err := config.Load(*cfgPath, opts...)
			if err != nil {
				return err
			}
			logger, err := runtime.NewLogger(cfg.General)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			if autoMigrate && cfg.Storage.Driver == "postgres" {
				dsn, err := runtime.BuildPostgresDSN(cfg)
				if err != nil {
					return err
				}
				if err := srv.Migrate(migDir, dsn, "up", 0); err != nil {
					return err
				}
				logger.Info("migrations applied", zap.String("dir", migDir))
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.Run(ctx, cfg, version, logger)
		},
	}
	serve.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.address)")
	serve.Flags().BoolVar(&autoMigrate, "migrate", true, "apply migrations before serving")
	serve.Flags().StringVar(&migDir, "migrations", "file://migrations", "migrations source")
	return serve
}
