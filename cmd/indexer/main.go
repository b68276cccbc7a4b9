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

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/CryptoGift-Wallets-DAO/gift-indexer/internal/application/services"
	"github.com/CryptoGift-Wallets-DAO/gift-indexer/internal/config"
	"github.com/CryptoGift-Wallets-DAO/gift-indexer/internal/infrastructure/database"
	"github.com/CryptoGift-Wallets-DAO/gift-indexer/internal/infrastructure/ethereum"
	"github.com/CryptoGift-Wallets-DAO/gift-indexer/internal/presentation/handlers"
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

	logger.Info("Starting gift-indexer",
		zap.String("contract", cfg.Contract.Address),
		zap.Uint64("deployment_block", cfg.Contract.DeploymentBlock),
		zap.String("rpc_url", cfg.Ethereum.RPCURL),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to database and apply schema
	db, err := database.NewPostgresDB(cfg.Database, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		logger.Fatal("Failed to migrate database", zap.Error(err))
	}

	// Event decoder for the configured contract
	decoder, err := ethereum.NewDecoder(common.HexToAddress(cfg.Contract.Address))
	if err != nil {
		logger.Fatal("Failed to create event decoder", zap.Error(err))
	}

	// Connect to Ethereum node
	ethClient, err := ethereum.NewClient(cfg.Ethereum, cfg.Contract, cfg.Indexer, decoder, logger)
	if err != nil {
		logger.Fatal("Failed to connect to Ethereum node", zap.Error(err))
	}
	defer ethClient.Close()

	// Create repositories
	mappingRepo := database.NewMappingRepo(db.DB())
	checkpointRepo := database.NewCheckpointRepo(db.DB())
	dlqRepo := database.NewDLQRepo(db.DB())

	// Create engine components
	processor := services.NewProcessor(decoder, ethClient, mappingRepo, dlqRepo, logger)
	backfill := services.NewBackfillService(ethClient, processor, checkpointRepo, cfg.Indexer, cfg.Contract.DeploymentBlock, logger)
	stream := services.NewStreamService(ethClient, ethClient, processor, checkpointRepo, cfg.Indexer, logger)
	reconciler := services.NewReconcilerService(ethClient, decoder, mappingRepo, dlqRepo, cfg.Reconciler, logger)
	health := services.NewHealthService(mappingRepo, dlqRepo, ethClient.Batcher(), stream, reconciler, cfg.Health, logger)

	orchestrator := services.NewOrchestrator(ethClient, backfill, stream, reconciler, health, mappingRepo, logger)

	if err := orchestrator.Start(ctx); err != nil {
		logger.Fatal("Failed to start engine", zap.Error(err))
	}

	// Start metrics/status server
	go startMetricsServer(cfg.Indexer.MetricsPort, orchestrator, db, ethClient, logger)

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("Received shutdown signal, stopping engine...")

	orchestrator.Shutdown()

	logger.Info("Indexer stopped")
}

// chainChecker adapts the Ethereum client's health probe to the
// handler's HealthChecker interface
type chainChecker struct {
	client *ethereum.Client
}

func (c chainChecker) HealthCheck(ctx context.Context) error {
	health := c.client.CheckHealth(ctx)
	if !health.PrimaryOK {
		return errors.New(health.PrimaryError)
	}
	return nil
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

func startMetricsServer(port int, orchestrator *services.Orchestrator, db *database.PostgresDB, ethClient *ethereum.Client, logger *zap.Logger) {
	statusHandler := handlers.NewStatusHandler(orchestrator, logger)
	healthHandler := handlers.NewHealthHandler(
		handlers.HealthCheck{Name: "database", Checker: db, Required: true},
		handlers.HealthCheck{Name: "chain", Checker: chainChecker{ethClient}, Required: false},
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/status", statusHandler.GetStatus)
	mux.HandleFunc("/health", healthHandler.Health)
	mux.HandleFunc("/live", healthHandler.Live)

	addr := fmt.Sprintf(":%d", port)
	logger.Info("Starting metrics server", zap.String("addr", addr))

	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Metrics server error", zap.Error(err))
	}
}
