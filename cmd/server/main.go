// Package main provides the API server entry point for the portfolio holdings service.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/portfolio-holdings/internal/api"
	"github.com/portfolio-holdings/internal/config"
	"github.com/portfolio-holdings/internal/logging"
	"github.com/portfolio-holdings/internal/service"
	"github.com/portfolio-holdings/internal/storage"
)

func main() {
	fmt.Println("Portfolio Holdings API Server")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logger := logging.NewLoggerWithOptions(logging.Options{
		Level:      logging.ParseLogLevel(cfg.Logging.Level),
		Format:     logging.ParseLogFormat(cfg.Logging.Format),
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	logging.SetGlobalLogger(logger)
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

	// Connect to Postgres
	logger.Info("Connecting to databases...")
	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	// ClickHouse is only needed as a ledger source or mirror
	var clickhouse *storage.ClickHouseDB
	if cfg.Ledger.Backend == config.LedgerBackendClickHouse || cfg.Ledger.Mirror {
		clickhouse, err = storage.NewClickHouseDB(&cfg.Database.ClickHouse)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to ClickHouse")
		}
		defer clickhouse.Close()
	}

	// Initialize repositories
	transactionRepo := storage.NewTransactionRepository(postgres)
	securityRepo := storage.NewSecurityRepository(postgres)
	accountRepo := storage.NewAccountRepository(postgres)
	positionRepo := storage.NewPositionRepository(postgres)
	priceRepo := storage.NewPriceSnapshotRepository(postgres)

	var ledgerReader service.TransactionReader = transactionRepo
	var mirror service.LedgerMirror
	if clickhouse != nil {
		ledgerRepo := storage.NewClickHouseLedgerRepository(clickhouse)
		if cfg.Ledger.Backend == config.LedgerBackendClickHouse {
			ledgerReader = ledgerRepo
		}
		// writes always land in Postgres; ClickHouse receives a copy
		mirror = ledgerRepo
	}

	// Initialize holdings cache
	var cache storage.HoldingsCache
	switch cfg.Cache.Backend {
	case config.CacheBackendRedis:
		redis, err := storage.NewRedisCache(&cfg.Database.Redis)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to Redis")
		}
		defer redis.Close()
		cache = storage.NewRedisHoldingsCache(redis, cfg.Cache.TTL, logger)
	default:
		cache = storage.NewLocalHoldingsCache(cfg.Cache.TTL, cfg.Cache.SweepInterval)
	}

	logger.WithFields(map[string]interface{}{
		"ledger": cfg.Ledger.Backend,
		"mirror": mirror != nil,
		"cache":  cfg.Cache.Backend,
	}).Info("Storage initialized")

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Initialize services
	holdingsService, err := service.NewHoldingsService(service.HoldingsServiceConfig{
		Positions:    positionRepo,
		Transactions: ledgerReader,
		Securities:   securityRepo,
		Accounts:     accountRepo,
		Prices:       priceRepo,
		Cache:        cache,
		CacheTTL:     cfg.Cache.TTL,
		Metrics:      service.NewMetrics(registry),
		Logger:       logger,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create holdings service")
	}

	ledgerService, err := service.NewLedgerService(service.LedgerServiceConfig{
		Transactions: transactionRepo,
		Accounts:     accountRepo,
		Prices:       priceRepo,
		Positions:    positionRepo,
		Holders:      transactionRepo,
		Mirror:       mirror,
		Invalidator:  holdingsService,
		Logger:       logger,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create ledger service")
	}

	logger.Info("Services initialized")

	serverConfig := &api.ServerConfig{
		Host:              cfg.Server.Host,
		Port:              cfg.Server.Port,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       60 * time.Second,
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
	}

	server := api.NewServer(serverConfig, holdingsService, ledgerService, registry, logger)

	// Start server in a goroutine
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Server started successfully")

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	logger.Info("Server exited")
}
