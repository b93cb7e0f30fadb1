package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/louissarvin/reloop/internal/adapter"
	"github.com/louissarvin/reloop/internal/config"
	"github.com/louissarvin/reloop/internal/logger"
	"github.com/louissarvin/reloop/internal/messaging"
	"github.com/louissarvin/reloop/internal/projector"
	"github.com/louissarvin/reloop/internal/providers/ethereum"
	"github.com/louissarvin/reloop/internal/providers/jetstream"
	"github.com/louissarvin/reloop/internal/store"
)

var (
	configFile = flag.String("config", "", "Path to configuration file")
	envPath    = flag.String("env", "config/", "Path to environment files")
)

func main() {
	flag.Parse()

	// Load configuration
	config.ChdirRepoRoot()
	cfg, err := config.LoadIndexerConfig(*configFile, *envPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize logger with sentry integration
	err = logger.Initialize(logger.Config{
		Debug:           cfg.Debug,
		SentryDSN:       cfg.SentryDSN,
		BreadcrumbLevel: zapcore.InfoLevel,
		Tags: map[string]string{
			"service": "reloop-indexer",
		},
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)
	logger.InfoCtx(ctx, "Starting ReLoop Indexer")

	// Connect to database
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{})
	if err != nil {
		logger.FatalCtx(ctx, "Failed to connect to database", zap.Error(err), zap.String("dsn", cfg.Database.DSN()))
	}

	// Configure connection pool
	if err := store.ConfigureConnectionPool(db, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime, cfg.Database.ConnMaxIdleTime); err != nil {
		logger.FatalCtx(ctx, "Failed to configure connection pool", zap.Error(err))
	}

	// Migrate schema
	if err := store.AutoMigrate(db); err != nil {
		logger.FatalCtx(ctx, "Failed to migrate database schema", zap.Error(err))
	}
	logger.InfoCtx(ctx, "Connected to database")

	// Initialize store
	dataStore := store.NewPGStore(db)

	// Initialize adapters
	clockAdapter := adapter.NewClock()
	jsonAdapter := adapter.NewJSON()

	// Initialize ethereum client
	ethDialer := adapter.NewEthClientDialer()
	adapterEthClient, err := ethDialer.Dial(ctx, cfg.Ethereum.RPCURL)
	if err != nil {
		logger.FatalCtx(ctx, "Failed to dial Ethereum RPC", zap.Error(err), zap.String("rpc_url", cfg.Ethereum.RPCURL))
	}
	ethereumClient := ethereum.NewClient(cfg.Ethereum.ChainID, adapterEthClient)

	// Initialize NATS publisher when a broker is configured
	var natsPublisher messaging.Publisher
	if cfg.NATS.URL != "" {
		natsPublisher, err = jetstream.NewPublisher(
			ctx,
			jetstream.Config{
				URL:            cfg.NATS.URL,
				StreamName:     cfg.NATS.StreamName,
				SubjectPrefix:  cfg.NATS.SubjectPrefix,
				MaxReconnects:  cfg.NATS.MaxReconnects,
				ReconnectWait:  cfg.NATS.ReconnectWait,
				ConnectionName: cfg.NATS.ConnectionName,
			}, adapter.NewNatsJetStream(), jsonAdapter)
		if err != nil {
			logger.FatalCtx(ctx, "Failed to create NATS publisher", zap.Error(err), zap.String("url", cfg.NATS.URL))
		}
		defer natsPublisher.Close()
		logger.InfoCtx(ctx, "Connected to NATS JetStream")
	} else {
		logger.WarnCtx(ctx, "NATS URL not configured, events will not be published")
	}

	// Create projector
	proj := projector.New(projector.Config{
		Chain:           cfg.Ethereum.ChainID,
		RWAContract:     cfg.Ethereum.RWAContractAddress,
		MetadataTimeout: cfg.Ethereum.MetadataTimeout,
	}, dataStore, ethereumClient, natsPublisher)

	// Create poller
	poller := ethereum.NewPoller(ethereum.Config{
		ChainID:             cfg.Ethereum.ChainID,
		RWAContract:         cfg.Ethereum.RWAContractAddress,
		MarketplaceContract: cfg.Ethereum.MarketplaceContractAddress,
		StartBlock:          cfg.Ethereum.StartBlock,
		PollInterval:        cfg.Ethereum.PollInterval,
		BlockBatchSize:      cfg.Ethereum.BlockBatchSize,
		WorkerPoolSize:      cfg.Worker.WorkerPoolSize,
		WorkerQueueSize:     cfg.Worker.WorkerQueueSize,
	}, ethereumClient, clockAdapter)
	defer poller.Close()

	// Resume strictly after the last committed event
	cursor, err := dataStore.GetEventCursor(ctx, cfg.Ethereum.ChainID)
	if err != nil {
		logger.FatalCtx(ctx, "Failed to load event cursor", zap.Error(err))
	}
	if cursor != nil {
		logger.InfoCtx(ctx, "Resuming from cursor", zap.String("cursor", cursor.String()))
	} else {
		logger.InfoCtx(ctx, "No cursor found, starting from configured block",
			zap.Uint64("start_block", cfg.Ethereum.StartBlock))
	}

	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Channel for poller errors
	errCh := make(chan error, 1)

	// Start the poller
	go func() {
		if err := poller.Run(ctx, cursor, proj.Handle); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or error
	if natsPublisher != nil {
		select {
		case sig := <-sigCh:
			logger.InfoCtx(ctx, "Received shutdown signal", zap.String("signal", sig.String()))
			cancel()
		case <-natsPublisher.CloseChan():
			logger.InfoCtx(ctx, "NATS connection closed unexpectedly")
			cancel()
		case err := <-errCh:
			logger.ErrorCtx(ctx, err, zap.String("component", "poller"))
			cancel()
		}
	} else {
		select {
		case sig := <-sigCh:
			logger.InfoCtx(ctx, "Received shutdown signal", zap.String("signal", sig.String()))
			cancel()
		case err := <-errCh:
			logger.ErrorCtx(ctx, err, zap.String("component", "poller"))
			cancel()
		}
	}

	// Give some time for graceful shutdown
	time.Sleep(time.Second)

	// Use non-context logger for final shutdown message since context is already canceled
	logger.Info("ReLoop Indexer stopped")
}
