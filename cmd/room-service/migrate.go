package main

import (
	"context"
	"errors"

	"hkms/internal/config"
	"hkms/internal/logging"
	"hkms/internal/store/postgres"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending SQL migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load(viper.GetViper())
		logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, serviceName)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		if cfg.DatabaseURL == "" {
			return errors.New("db_dsn is required to run migrations")
		}
		ctx := context.Background()
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()

		applied, err := postgres.Migrate(ctx, pool, cfg.MigrationsDir)
		if err != nil {
			return err
		}
		logger.Info("migrations applied", zap.Strings("files", applied), zap.String("dir", cfg.MigrationsDir))
		return nil
	},
}
