package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/openhumans/loggather/app"
	"github.com/openhumans/loggather/config"
	"github.com/openhumans/loggather/internal/observability"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "loggather",
		Short: "Export Open Humans data access logs to member storage",
		Long: `loggather retrieves a member's data access logs from Open Humans,
groups them by project, and stores one CSV per project and log type.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(ServeCmd())
	rootCmd.AddCommand(WorkerCmd())
	rootCmd.AddCommand(RetrieveCmd())
	rootCmd.AddCommand(MigrateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initLogger builds the process logger from LOG_LEVEL and LOG_FORMAT
func initLogger() (*zap.Logger, error) {
	return observability.NewLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
}

// bootstrap loads configuration and wires every dependency
func bootstrap(ctx context.Context) (*app.Dependencies, error) {
	logger, err := initLogger()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	cfg, err := config.New(ctx)
	if err != nil {
		logger.Error("failed to load configuration", zap.Error(err))
		return nil, err
	}

	logger.Info("configuration loaded",
		zap.String("environment", cfg.Environment),
		zap.String("storage_backend", cfg.Storage.Backend))

	deps, err := app.NewDependencies(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize dependencies", zap.Error(err))
		return nil, err
	}
	return deps, nil
}
