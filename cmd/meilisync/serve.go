package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/meilisync/internal/metrics"
	"github.com/kailas-cloud/meilisync/internal/store"
	chiTransport "github.com/kailas-cloud/meilisync/internal/transport/chi"
	healthuc "github.com/kailas-cloud/meilisync/internal/usecase/health"
	"github.com/kailas-cloud/meilisync/internal/version"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the admin HTTP API.",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, true, func(ctx context.Context, _ *cobra.Command, _ []string, a *app) error {
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, a)
		}),
	}
}

// adminHandler assembles the admin router for a wired app.
func adminHandler(a *app) http.Handler {
	metrics.RegisterSyncMetrics()

	var cpPinger healthuc.Pinger
	if a.redis != nil {
		cpPinger = a.redis
	}
	health := healthuc.New(
		healthuc.PingFunc(a.client.Ping),
		healthuc.PingFunc(func(ctx context.Context) error { return store.Ping(ctx, a.db) }),
		cpPinger,
	)
	server := chiTransport.NewServer(a.client, a.checkpoint, health, a.logger)
	return chiTransport.NewRouter(server, a.cfg.Auth.APIKeys)
}

func serve(ctx context.Context, a *app) error {
	a.logger.Info("Starting meilisync admin server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", a.env),
		zap.Int("http_port", a.cfg.HTTP.Port),
		zap.String("meilisearch", a.cfg.Settings().URL()),
		zap.String("db_driver", a.cfg.Database.Driver),
	)

	addr := fmt.Sprintf(":%d", a.cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      adminHandler(a),
		ReadTimeout:  time.Duration(a.cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(a.cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
		a.logger.Info("Received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(a.cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("Error during shutdown", zap.Error(err))
		return err
	}
	a.logger.Info("Server stopped gracefully")
	return nil
}
