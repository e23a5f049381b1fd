package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/loadgenie/loadgenie/internal/api/rest"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE:  serve,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("Starting loadgenie", "version", Version, "environment", cfg.Environment)

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if version, err := a.runner.CheckInstallation(ctx); err != nil {
		slog.Warn("k6 is not available, test runs will fail until it is installed", "binary", cfg.Runner.Binary, "error", err)
	} else {
		slog.Info("Found k6", "version", version)
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	limiter := rest.NewRateLimiter(cfg.RateLimit.RunsPerMinute, cfg.RateLimit.Burst)
	defer limiter.Stop()

	router := gin.New()
	router.Use(gin.Recovery())
	rest.RegisterRoutes(router, rest.NewHandler(rest.Deps{
		Runner:    a.runner,
		Store:     a.store,
		Generator: a.generator,
		Limiter:   limiter,
		Gatherer:  a.registry,
	}))

	// Runs block the request for up to the k6 timeout.
	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Runner.Timeout() + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	slog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Server shutdown complete")
	return nil
}
