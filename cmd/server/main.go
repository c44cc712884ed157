package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cmsrelay/internal/cleanup"
	"github.com/cmsrelay/internal/config"
	"github.com/cmsrelay/internal/github"
	"github.com/cmsrelay/internal/http"
	"github.com/cmsrelay/internal/logger"
	"github.com/cmsrelay/internal/service"
	"github.com/cmsrelay/internal/store"
	"github.com/joho/godotenv"
)

const shutdownTimeout = 30 * time.Second

func main() {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	// Optional, a missing file is fine
	envErr := godotenv.Load(envFile)

	cfg, err := config.Load()
	if err != nil {
		logger.InitLogger(os.Getenv("APP_ENV"), true).Error("failed to load config", "error", err)
		os.Exit(1)
	}

	appLogger := logger.InitLogger(cfg.Environment, cfg.JSONLogs())
	if envErr != nil {
		appLogger.Debug("no env file loaded", "file", envFile)
	}

	appLogger.Info("relay configuration loaded",
		"listen_address", cfg.ServerAddress,
		"base_path", cfg.OAuth.BasePath,
		"client_id", logger.RedactClientID(cfg.GitHub.ClientID),
		"confidential", cfg.GitHub.ClientSecret != "",
		"state_store", cfg.State.Store,
		"message_format", cfg.OAuth.MessageFormat,
		"allowed_origins", len(cfg.CORS.AllowedOrigins),
	)
	if cfg.GitHub.ClientID == "" {
		appLogger.Warn("GITHUB_CLIENT_ID is not set, every login will fail with missing_client_id")
	}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		appLogger.Warn("CORS_ALLOWED_ORIGINS is empty, logins that send an origin or site_id will be rejected and the rest will post to any window")
	}
	if cfg.OAuth.PublicCallbackBase == "" {
		appLogger.Warn("PUBLIC_CALLBACK_BASE is not set, the callback URL is derived from each request",
			"trust_proxy_headers", cfg.OAuth.TrustProxyHeaders)
	}

	stateStore, err := store.New(cfg, appLogger)
	if err != nil {
		appLogger.Error("failed to initialize state store", "error", err)
		os.Exit(1)
	}

	janitor, err := store.NewJanitor(stateStore, cfg.State.PurgeInterval, appLogger)
	if err != nil {
		appLogger.Error("failed to schedule state purge", "error", err)
		os.Exit(1)
	}
	janitor.Start()

	exchanger := github.NewExchanger(cfg.GitHub, appLogger)
	relayService := service.NewRelayService(cfg, stateStore, exchanger, appLogger)
	server := http.NewServer(cfg, relayService, appLogger)

	go func() {
		appLogger.Info("relay listening", "address", cfg.ServerAddress)
		if err := server.Run(); err != nil {
			appLogger.Error("relay server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("shutting down relay...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Stop purging before the store goes away
	cm := cleanup.NewCleanupManager(appLogger)
	_, err = cm.Run(ctx, []cleanup.CleanupOperation{
		{
			Name: "Stop state purge",
			Executor: func(ctx context.Context) error {
				janitor.Stop(ctx)
				return nil
			},
		},
		{
			Name:     "Drain HTTP server",
			Executor: server.Shutdown,
			OnError: func(err error) {
				appLogger.Warn("in-flight requests were cut off", "error", err)
			},
		},
		{
			Name: "Close state store",
			Executor: func(context.Context) error {
				return stateStore.Close()
			},
		},
	})
	if err != nil {
		os.Exit(1)
	}
	appLogger.Info("relay stopped")
}
