package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/openhumans/loggather/config"
	"github.com/openhumans/loggather/repositories/postgres"
)

// MigrateCmd returns the migrate command: creates the tables if missing
func MigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			logger, err := initLogger()
			if err != nil {
				return err
			}
			defer logger.Sync()

			cfg, err := config.New(ctx)
			if err != nil {
				return err
			}

			db, err := postgres.NewDB(cfg.Database, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.InitSchema(ctx); err != nil {
				return err
			}

			logger.Info("schema up to date", zap.String("database", cfg.Database.LogString()))
			return nil
		},
	}
}
