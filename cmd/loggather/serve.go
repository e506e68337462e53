package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/openhumans/loggather/routes"
	"github.com/openhumans/loggather/services/retrieval"
)

// ServeCmd returns the serve command: HTTP API plus embedded workers
func ServeCmd() *cobra.Command {
	var withWorkers bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the HTTP API. Retrieval workers run in the same process unless
--workers=false is given, in which case a separate "loggather worker"
process must drain the queue.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			deps, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer deps.Close(context.Background())

			logger := deps.Logger
			cfg := deps.Config

			var pool *retrieval.Pool
			if withWorkers {
				pool = deps.NewPool()
				if err := pool.Start(); err != nil {
					return err
				}
			}

			srv := &http.Server{
				Addr:         cfg.Server.Address(),
				Handler:      routes.SetupRoutes(deps),
				ReadTimeout:  cfg.Server.ReadTimeout,
				WriteTimeout: cfg.Server.WriteTimeout,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case <-ctx.Done():
				logger.Info("shutdown signal received")
			case err := <-errCh:
				if err != nil {
					logger.Error("http server failed", zap.Error(err))
					return err
				}
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("http server shutdown failed", zap.Error(err))
			}
			if pool != nil {
				if err := pool.Stop(cfg.Server.ShutdownTimeout); err != nil {
					logger.Warn("worker pool did not stop cleanly", zap.Error(err))
				}
			}

			logger.Info("server stopped")
			return nil
		},
	}

	cmd.Flags().BoolVar(&withWorkers, "workers", true, "run retrieval workers in this process")
	return cmd
}
