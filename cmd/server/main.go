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

	"github.com/kkdai/youtube/v2"
	"golang.org/x/sync/errgroup"

	h "github.com/veranemoloko/media-downloader/internal/api/http"
	"github.com/veranemoloko/media-downloader/internal/cache"
	"github.com/veranemoloko/media-downloader/internal/capability"
	cfgpkg "github.com/veranemoloko/media-downloader/internal/config"
	repo "github.com/veranemoloko/media-downloader/internal/repository"
	svc "github.com/veranemoloko/media-downloader/internal/service"
	"github.com/veranemoloko/media-downloader/internal/storage"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := cfgpkg.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := cfgpkg.SetupLogger(cfg)
	youtube.Logger = logger.With("component", "youtube")
	logger.Info("configuration loaded successfully", "port", cfg.HTTPPort)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var mirror svc.Mirror
	if cfg.RedisAddr != "" {
		rdb, err := cache.Connect(ctx, cfg.RedisAddr)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer rdb.Close()
		mirror = cache.NewTaskMirror(rdb, cfg.RedisTTL)
		logger.Info("task mirror enabled", "addr", cfg.RedisAddr, "ttl", cfg.RedisTTL)
	}

	files := storage.NewFileStorage(cfg.TempDir, cfg.StorageDir, logger)
	tasks := repo.NewTaskRegistry()
	taskService := svc.NewTaskService(tasks, files, cfg.YtDlpPath, mirror, logger)

	ytClient := capability.NewCachingClient(&youtube.Client{HTTPClient: &http.Client{}})
	direct := capability.NewYtClient(ytClient, logger)
	registry := capability.NewRegistry(
		direct,
		capability.NewStreamURL(ytClient, &http.Client{}, logger),
		capability.NewYtDlpTemp(cfg.YtDlpPath, files, nil, logger),
		capability.NewYtDlpTask(taskService),
	)
	logger.Info("capabilities registered", "order", registry.Names())

	orchestrator := svc.NewOrchestrator(registry, direct, cfg.MetadataTimeout, logger)
	handler := h.NewHandler(orchestrator, taskService, files, cfg.SSEHeartbeat, logger)
	limiter := h.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, logger)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      h.NewRouter(handler, limiter),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server starting", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return taskService.RunJanitor(gctx, cfg.SweepInterval, cfg.TaskRetention)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		} else {
			logger.Info("server stopped gracefully")
		}

		if err := taskService.Shutdown(shutdownCtx); err != nil {
			logger.Warn("detached tasks still running at exit", "error", err)
		}
		return nil
	})

	return g.Wait()
}
