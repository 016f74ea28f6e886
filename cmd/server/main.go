// Package main is the entrypoint for the docpipe API server.
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

	"github.com/google/uuid"

	"docpipe/internal/ai"
	"docpipe/internal/api"
	"docpipe/internal/api/handler"
	mw "docpipe/internal/api/middleware"
	"docpipe/internal/blob"
	"docpipe/internal/cache"
	"docpipe/internal/config"
	"docpipe/internal/pipeline"
	"docpipe/internal/store"
	"docpipe/pkg/models"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config — fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "ai_provider", cfg.AI.Provider, "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Open the blob store
	blobs, err := blob.New(cfg.Blob.Dir)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}
	slog.Info("blob store ready", "dir", cfg.Blob.Dir)

	// 6. Create AI provider and orchestrator
	provider, err := ai.NewProvider(cfg.AI)
	if err != nil {
		return fmt.Errorf("create AI provider: %w", err)
	}
	slog.Info("AI provider initialized", "provider", provider.Name())

	pgStore := store.NewPostgresStore(pool)
	orchestrator := ai.NewOrchestrator(provider, pgStore, redisCache, cfg.AI)

	// 7. Create the pipeline coordinator
	coordinator := pipeline.New(pgStore, redisCache, blobs, orchestrator, cfg)

	// 8. Bootstrap an admin key on first run
	if err := bootstrapAdminKey(ctx, pgStore); err != nil {
		return fmt.Errorf("bootstrap admin key: %w", err)
	}

	// 9. Build router with dependencies
	auth := mw.NewAuth(pgStore)
	rateLimit := mw.NewRateLimit(redisCache, 60)

	deps := api.Dependencies{
		Auth:      auth,
		RateLimit: rateLimit,

		HealthHandler: handler.NewHealthHandler(pgStore, redisCache),

		UploadHandler:    handler.NewUploadHandler(coordinator, cfg.Upload.MaxBytes),
		ListJobsHandler:  handler.NewListJobsHandler(pgStore),
		JobStatusHandler: handler.NewJobStatusHandler(coordinator),
		CancelHandler:    handler.NewCancelJobHandler(coordinator),
		ResumeHandler:    handler.NewResumeJobHandler(coordinator),
		DeleteJobHandler: handler.NewDeleteJobHandler(coordinator),

		ListArtifactsHandler:    handler.NewListArtifactsHandler(pgStore),
		DownloadArtifactHandler: handler.NewDownloadArtifactHandler(pgStore, blobs),

		CreateKeyHandler: handler.NewCreateKeyHandler(pgStore),
		ListKeysHandler:  handler.NewListKeysHandler(pgStore),
		RevokeKeyHandler: handler.NewRevokeKeyHandler(pgStore),
	}

	router := api.NewRouter(deps)

	// 10. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	// Let in-flight pipeline jobs finish before closing the stores.
	slog.Info("waiting for running jobs...")
	coordinator.Wait()

	slog.Info("server stopped gracefully")
	return nil
}

// bootstrapAdminKey creates the first admin API key on an empty database.
// The raw key is logged exactly once and never recoverable afterwards.
func bootstrapAdminKey(ctx context.Context, st store.Store) error {
	count, err := st.CountAPIKeys(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	raw, hash, prefix, err := handler.GenerateAPIKey()
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	key := &models.APIKey{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		Name:      "bootstrap-admin",
		KeyHash:   hash,
		KeyPrefix: prefix,
		Scopes:    []string{"admin", "jobs"},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := st.CreateAPIKey(ctx, key); err != nil {
		return err
	}

	slog.Warn("bootstrap admin API key created, store it now: it will not be shown again",
		"key", raw, "key_prefix", prefix)
	return nil
}
