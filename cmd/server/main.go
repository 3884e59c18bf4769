package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ai-voice-chat/backend/internal/grpc"
	"ai-voice-chat/backend/pkg/config"
	"ai-voice-chat/backend/pkg/di"
	"ai-voice-chat/backend/pkg/logger"
	"ai-voice-chat/backend/pkg/observability"
	"ai-voice-chat/backend/pkg/router"
	"ai-voice-chat/backend/pkg/secrets"
)

func main() {
	// Load configuration (reads .env when present)
	cfg := config.New()

	// Initialize structured logger
	logConfig := logger.DefaultConfig()
	logConfig.Level = cfg.Logging.Level
	logConfig.JSON = cfg.Logging.Format != "text"

	log := logger.New(logConfig)
	logger.SetGlobal(log)

	log.Info("Starting application",
		"version", cfg.Server.Version,
		"env", cfg.Server.Env,
		"storage", cfg.Storage.Backend,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// API keys may live in Vault rather than the environment
	if err := secrets.Init(log, cfg.Vault.Enabled); err != nil {
		log.LogError(err, "Failed to initialize secrets manager")
		os.Exit(1)
	}
	secrets.ApplyAPIKeys(ctx, secrets.Default(), cfg)

	if cfg.Observability.TracingEnabled {
		shutdown, err := observability.SetupTracing(cfg.Observability.ServiceName, cfg.Server.Version, os.Stdout)
		if err != nil {
			log.LogError(err, "Failed to initialize tracing")
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.LogError(err, "Failed to flush traces")
			}
		}()
	}

	if cfg.Observability.MetricsEnabled {
		if _, err := observability.SetupMetrics(cfg.Observability.ServiceName, cfg.Server.Version); err != nil {
			log.LogError(err, "Failed to initialize metrics")
			os.Exit(1)
		}
	}

	// Initialize dependency injection container
	container, err := di.New(ctx, cfg, log)
	if err != nil {
		log.LogError(err, "Failed to initialize dependency container")
		os.Exit(1)
	}
	defer func() {
		if err := container.Close(); err != nil {
			log.LogError(err, "Failed to close storage")
		}
	}()

	if !container.Generator.Configured() {
		log.Warn("No generation API key configured, replies will use fallbacks")
	}

	// Health checks feed both the HTTP endpoint and the gRPC health service
	if cfg.Server.GRPCPort != "" {
		grpcServer := grpc.NewServer(log)
		container.Health.OnChange(grpcServer.SetHealthy)
		go func() {
			if err := grpcServer.ListenAndServe(ctx, cfg.Server.GRPCPort); err != nil {
				log.LogError(err, "gRPC server failed")
			}
		}()
	}
	container.Health.Start(ctx)

	// Initialize and setup router
	r := router.New(container)
	r.SetupRoutes()
	r.Start(ctx)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("Server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.LogError(err, "Server failed to start")
			stop()
		}
	}()

	// Block until we receive a signal
	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.LogError(err, "Server forced to shutdown")
	}

	log.Info("Server exited gracefully")
}
