package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/CryptoGift-Wallets-DAO/gift-indexer/internal/application/services"
	"github.com/CryptoGift-Wallets-DAO/gift-indexer/internal/config"
	"github.com/CryptoGift-Wallets-DAO/gift-indexer/internal/infrastructure/cache"
	"github.com/CryptoGift-Wallets-DAO/gift-indexer/internal/infrastructure/database"
	"github.com/CryptoGift-Wallets-DAO/gift-indexer/internal/infrastructure/ethereum"
	"github.com/CryptoGift-Wallets-DAO/gift-indexer/internal/presentation/handlers"
	"github.com/CryptoGift-Wallets-DAO/gift-indexer/internal/presentation/middleware"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger := setupLogger(cfg.Log.Level)
	defer logger.Sync()

	logger.Info("Starting gift-indexer API",
		zap.Int("port", cfg.API.Port),
		zap.String("read_mode", cfg.API.ReadMode),
	)

	// Connect to database
	db, err := database.NewPostgresDB(cfg.Database, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Connect to Redis cache (optional)
	var redisCache *cache.RedisCache
	redisCache, err = cache.NewRedisCache(cfg.Redis, cfg.API.CacheTTL, logger)
	if err != nil {
		logger.Warn("Failed to connect to Redis, running without cache", zap.Error(err))
		redisCache = nil
	} else {
		defer redisCache.Close()
	}

	// Connect to Ethereum node; verify and chain read-mode need it
	decoder, err := ethereum.NewDecoder(common.HexToAddress(cfg.Contract.Address))
	if err != nil {
		logger.Fatal("Failed to create event decoder", zap.Error(err))
	}
	ethClient, err := ethereum.NewClient(cfg.Ethereum, cfg.Contract, cfg.Indexer, decoder, logger)
	if err != nil {
		logger.Fatal("Failed to connect to Ethereum node", zap.Error(err))
	}
	defer ethClient.Close()

	// Create repositories
	mappingRepo := database.NewMappingRepo(db.DB())
	dlqRepo := database.NewDLQRepo(db.DB())

	// Create services
	mappingService := services.NewMappingService(mappingRepo, ethClient, decoder, redisCache, cfg.API, cfg.Contract.DeploymentBlock, logger)
	statsService := services.NewStatsService(mappingRepo, dlqRepo, redisCache, logger)

	// Create handlers
	mappingHandler := handlers.NewMappingHandler(mappingService, logger)
	statsHandler := handlers.NewStatsHandler(statsService, logger)

	var cacheChecker handlers.HealthChecker
	if redisCache != nil {
		cacheChecker = redisCache
	}
	healthHandler := handlers.NewHealthHandler(
		handlers.HealthCheck{Name: "database", Checker: db, Required: true},
		handlers.HealthCheck{Name: "cache", Checker: cacheChecker, Required: false},
	)

	// Setup router
	r := chi.NewRouter()

	// Middleware stack
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Metrics())
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RateLimiter(cfg.API.RateLimitRPS))

	// Health endpoints
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Get("/live", healthHandler.Live)
	r.Handle("/metrics", promhttp.Handler())

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		mappingHandler.RegisterRoutes(r)
		statsHandler.RegisterRoutes(r)
	})

	// Start server
	addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
	}

	// Run server in goroutine
	go func() {
		logger.Info("API server starting", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server error", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("Received shutdown signal, shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), cfg.API.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server shutdown error", zap.Error(err))
	}

	logger.Info("Server stopped")
}

func setupLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, _ := config.Build()
	return logger
}
