package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wa-bridge/internal/appsync"
	"wa-bridge/internal/cache"
	"wa-bridge/internal/config"
	"wa-bridge/internal/filestore"
	"wa-bridge/internal/handlers"
	"wa-bridge/internal/httpserver"
	"wa-bridge/internal/logging"
	"wa-bridge/internal/message"
	"wa-bridge/internal/metrics"
	"wa-bridge/internal/repo"
	"wa-bridge/internal/whatsapp"
	"wa-bridge/migrations"

	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel)
	logger.Info("starting wa-bridge", "env", cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricRegistry := metrics.Registry(cfg.MetricsNamespace)

	repository, err := repo.New(ctx, cfg.DatabaseURL, cfg.DatabaseSchema, logger)
	if err != nil {
		return fmt.Errorf("init repository: %w", err)
	}
	defer repository.Close()

	if err := repository.RunMigrations(ctx, migrations.Files); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrated")

	var tokenCache handlers.TokenCache
	if cfg.RedisAddr != "" {
		redisClient := cache.New(cache.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			UseTLS:   cfg.RedisTLS,
		}, logger)
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("failed closing redis", "error", err)
			}
		}()
		if err := redisClient.Ping(ctx); err != nil {
			logger.Warn("redis ping failed", "error", err)
		}
		tokenCache = redisClient
	}

	waClient := whatsapp.New(whatsapp.Config{
		BaseURL: cfg.WhatsAppAPIURL,
		Timeout: cfg.WhatsAppTimeout,
	}, logger, metricRegistry)

	backend := appsync.New(appsync.Config{
		APIURL:  cfg.AppSyncAPIURL,
		APIKey:  cfg.AppSyncAPIKey,
		Timeout: cfg.AppSyncTimeout,
	}, logger, metricRegistry)

	files := filestore.New(filestore.Config{
		ServiceURL: cfg.FileStorageURL,
		Timeout:    cfg.FileStorageTimeout,
	}, logger)

	normalizer := message.NewNormalizer(waClient, files, logger)

	inbound := handlers.NewInboundHandler(logger, metricRegistry, repository, backend, waClient, normalizer, tokenCache, cfg.BotTokenTTL)
	operator := handlers.NewOperatorHandler(logger, metricRegistry, repository, backend, waClient)
	notification := handlers.NewNotificationHandler(logger, metricRegistry, repository, waClient)
	template := handlers.NewTemplateHandler(logger, metricRegistry, repository, backend, waClient)
	templateList := handlers.NewTemplateListHandler(logger, metricRegistry, repository, waClient)

	httpSrv := httpserver.New(cfg.HTTPListenAddr, logger, httpserver.Handlers{
		InboundWebhook:  inbound,
		OperatorMessage: operator,
		Notification:    notification,
		Template:        template,
		TemplateList:    templateList,
	}, cfg.PublicBasePath)

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.Start(); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	return nil
}
