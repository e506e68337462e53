package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// WorkerCmd returns the worker command: drains the retrieval queue without
// serving HTTP
func WorkerCmd() *cobra.Command {
	var concurrency int

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run retrieval workers only",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			deps, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer deps.Close(context.Background())

			if concurrency > 0 {
				deps.Config.Worker.Concurrency = concurrency
			}

			pool := deps.NewPool()
			if err := pool.Start(); err != nil {
				return err
			}

			<-ctx.Done()
			deps.Logger.Info("shutdown signal received")

			if err := pool.Stop(deps.Config.Server.ShutdownTimeout); err != nil {
				deps.Logger.Warn("worker pool did not stop cleanly", zap.Error(err))
				return err
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "number of workers (defaults to WORKER_CONCURRENCY)")
	return cmd
}
