package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"depot/internal/server/api"
	"depot/internal/server/auth"
	"depot/internal/server/config"
	"depot/internal/server/database"
	"depot/internal/server/metrics"
	"depot/internal/server/service"
	"depot/internal/server/storage"
)

func main() {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)
	slog.Info("configuration loaded", "config", cfg)

	tokens, err := auth.NewTokenService([]byte(cfg.JWTSecret))
	if err != nil {
		slog.Error("failed to initialize token service", "error", err)
		os.Exit(1)
	}

	// Connect to database
	ctx := context.Background()
	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Run migrations
	if err := db.RunMigrations(ctx); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("database migrations complete")

	// Initialize storage
	store, err := newStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialize storage", "backend", cfg.StorageBackend, "error", err)
		os.Exit(1)
	}
	slog.Info("file storage initialized", "backend", cfg.StorageBackend)

	// Initialize repository and services
	repo := database.NewRepository(db)
	gateway := service.NewAuthGateway(repo, tokens)
	transfer := service.NewFileTransferService(store, repo, repo)

	if err := gateway.EnsureAdmin(ctx, cfg.AdminPassword); err != nil {
		slog.Error("failed to bootstrap admin account", "error", err)
		os.Exit(1)
	}
	if !cfg.UploadRequireAuth {
		slog.Warn("uploads accept anonymous requests; set UPLOAD_REQUIRE_AUTH=true to require a bearer token")
	}

	// Start cleanup service
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	cleanup := storage.NewCleanupService(repo, store, cfg.SweepInterval, cfg.SweepGrace)
	cleanup.Start(cleanupCtx)

	// Setup HTTP router
	m := metrics.New()
	handler := api.NewHandler(gateway, transfer, db, repo, m, cfg.MaxUploadBytes)
	e := api.SetupRouter(handler, tokens, m, cfg)

	// Start server in a goroutine
	go func() {
		addr := fmt.Sprintf(":%s", cfg.Port)
		slog.Info("starting server", "addr", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server stopped", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutting down", "signal", sig)

	// Stop accepting new requests, finish in-flight with 30s timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	// Stop cleanup service
	cleanupCancel()
	cleanup.Wait()

	slog.Info("server exited cleanly")
}

func newStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	var store storage.Store
	switch cfg.StorageBackend {
	case config.BackendS3:
		client, err := storage.NewS3Client(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		store = storage.NewS3Store(client, cfg.S3.Bucket, cfg.S3.Prefix)
	default:
		store = storage.NewFileSystemStore(cfg.StoragePath)
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	return store, nil
}
