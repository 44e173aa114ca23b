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

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/0xmhha/pns-indexer/abi"
	"github.com/0xmhha/pns-indexer/api"
	"github.com/0xmhha/pns-indexer/cache"
	"github.com/0xmhha/pns-indexer/client"
	"github.com/0xmhha/pns-indexer/eventbus"
	"github.com/0xmhha/pns-indexer/fetch"
	"github.com/0xmhha/pns-indexer/indexer"
	"github.com/0xmhha/pns-indexer/internal/config"
	"github.com/0xmhha/pns-indexer/internal/constants"
	"github.com/0xmhha/pns-indexer/internal/logger"
	"github.com/0xmhha/pns-indexer/projection"
	"github.com/0xmhha/pns-indexer/storage"
)

var (
	// Version information (injected at build time)
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	var (
		configFile      = flag.String("config", "", "Path to configuration file (YAML)")
		showVersion     = flag.Bool("version", false, "Show version information and exit")
		rpcEndpoint     = flag.String("rpc", "", "Chain RPC endpoint URL")
		dbDSN           = flag.String("db", "", "Projection database DSN")
		checkpointPath  = flag.String("checkpoint", "", "Pebble checkpoint directory")
		deploymentBlock = flag.Uint64("deployment-block", 0, "Block the registry contracts were deployed at")
		batchSize       = flag.Uint64("batch-size", 0, "Number of blocks per scan window")
		interval        = flag.Duration("interval", 0, "Scan interval")
		logLevel        = flag.String("log-level", "", "Log level (debug, info, warn, error)")
		logFormat       = flag.String("log-format", "", "Log format (json, console)")
		autoStart       = flag.Bool("start", false, "Start periodic scanning at boot")
		resyncFrom      = flag.Uint64("resync-from", 0, "Rescan from this block once, then exit")

		enableAPI = flag.Bool("api", false, "Enable admin API server")
		apiHost   = flag.String("api-host", "", "Admin API server host")
		apiPort   = flag.Int("api-port", 0, "Admin API server port")
	)

	flag.Parse()

	if *showVersion {
		fmt.Printf("pns-indexer version %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", buildTime)
		os.Exit(0)
	}

	if err := loadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load .env: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configFile, func(c *config.Config) {
		if *rpcEndpoint != "" {
			c.RPC.Endpoint = *rpcEndpoint
		}
		if *dbDSN != "" {
			c.Database.DSN = *dbDSN
		}
		if *checkpointPath != "" {
			c.Checkpoint.Path = *checkpointPath
		}
		if *deploymentBlock > 0 {
			c.Indexer.DeploymentBlock = *deploymentBlock
		}
		if *batchSize > 0 {
			c.Indexer.BatchSize = *batchSize
		}
		if *interval > 0 {
			c.Indexer.Interval = *interval
		}
		if *logLevel != "" {
			c.Log.Level = *logLevel
		}
		if *logFormat != "" {
			c.Log.Format = *logFormat
		}
		if *autoStart {
			c.Indexer.AutoStart = true
		}
		if *enableAPI {
			c.API.Enabled = true
		}
		if *apiHost != "" {
			c.API.Host = *apiHost
		}
		if *apiPort > 0 {
			c.API.Port = *apiPort
		}
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log, *resyncFrom); err != nil {
		log.Error("Indexer stopped with error", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
}

// run wires every component and blocks until a shutdown signal arrives.
// A non-zero resyncFrom performs a single rescan and returns.
func run(cfg *config.Config, log *zap.Logger, resyncFrom uint64) error {
	log.Info("Starting PNS indexer",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("build_time", buildTime),
		zap.String("rpc_endpoint", cfg.RPC.Endpoint),
		zap.String("checkpoint_backend", cfg.Checkpoint.Backend),
		zap.String("db_dialect", cfg.Database.Dialect),
		zap.Uint64("deployment_block", cfg.Indexer.DeploymentBlock),
		zap.Uint64("batch_size", cfg.Indexer.BatchSize),
		zap.Duration("interval", cfg.Indexer.Interval),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ethClient, err := client.NewClient(&client.Config{
		Endpoint: cfg.RPC.Endpoint,
		Timeout:  cfg.RPC.Timeout,
		Logger:   logger.WithComponent(log, "client"),
	})
	if err != nil {
		return fmt.Errorf("failed to create RPC client: %w", err)
	}
	defer ethClient.Close()

	chainID, err := ethClient.GetChainID(ctx)
	if err != nil {
		return fmt.Errorf("failed to get chain ID: %w", err)
	}
	log.Info("Connected to chain", zap.String("chain_id", chainID.String()))

	db, err := storage.OpenSQL(&storage.SQLConfig{
		Dialect:      cfg.Database.Dialect,
		DSN:          cfg.Database.DSN,
		MaxIdleConns: cfg.Database.MaxIdleConns,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		Logger:       logger.WithComponent(log, "sql"),
	})
	if err != nil {
		return fmt.Errorf("failed to open projection database: %w", err)
	}
	defer func() {
		if err := storage.CloseSQL(db); err != nil {
			log.Error("Failed to close projection database", zap.Error(err))
		}
	}()
	if err := storage.InitTables(db); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	checkpointStore, err := openCheckpointStore(cfg, db, logger.WithComponent(log, "checkpoint"))
	if err != nil {
		return err
	}
	defer func() {
		if err := checkpointStore.Close(); err != nil {
			log.Error("Failed to close checkpoint store", zap.Error(err))
		}
	}()
	tracker := storage.NewCheckpointTracker(checkpointStore, cfg.Indexer.DeploymentBlock,
		logger.WithComponent(log, "checkpoint"))

	domainCache, closeCache, err := openCache(cfg)
	if err != nil {
		return err
	}
	defer closeCache()

	publisher, err := openPublisher(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Error("Failed to close notifier", zap.Error(err))
		}
	}()

	contracts, err := cfg.MonitoredContracts()
	if err != nil {
		return err
	}
	decoder, err := abi.NewDecoder(contracts)
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}
	for _, c := range decoder.Contracts() {
		log.Info("Monitoring contract",
			zap.String("name", c.Name),
			zap.String("role", string(c.Role)),
			zap.String("address", c.Address.Hex()))
	}

	fetcher, err := fetch.NewLogFetcher(ethClient, &fetch.Config{
		LogChunkSize:  cfg.Indexer.LogChunkSize,
		MaxRetries:    cfg.Indexer.MaxRetries,
		RetryDelay:    cfg.Indexer.RetryDelay,
		ContractDelay: cfg.Indexer.ContractDelay,
		RateLimit:     cfg.Indexer.RateLimit,
		RateBurst:     cfg.Indexer.RateBurst,
	}, logger.WithComponent(log, "fetch"))
	if err != nil {
		return fmt.Errorf("failed to create log fetcher: %w", err)
	}

	projectionStore := storage.NewProjectionStore(db, logger.WithComponent(log, "projection-store"))
	applier := projection.NewApplier(
		projectionStore,
		domainCache,
		publisher,
		&projection.Config{RootName: cfg.Indexer.RootName},
		logger.WithComponent(log, "projection"),
	)

	scheduler, err := indexer.NewScheduler(tracker, fetcher, decoder, applier, &indexer.Config{
		Interval:          cfg.Indexer.Interval,
		BatchSize:         cfg.Indexer.BatchSize,
		MaxBatchesPerTick: cfg.Indexer.MaxBatchesPerTick,
	}, logger.WithComponent(log, "scheduler"))
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	if resyncFrom > 0 {
		log.Info("Running one-off resync", zap.Uint64("from_block", resyncFrom))
		if err := scheduler.Resync(ctx, resyncFrom); err != nil {
			return fmt.Errorf("resync failed: %w", err)
		}
		st := scheduler.Status()
		log.Info("Resync complete",
			zap.Uint64("last_processed_block", st.LastProcessedBlock),
			zap.Uint64("events_processed", st.TotalEventsProcessed))
		return nil
	}

	var apiServer *api.Server
	if cfg.API.Enabled {
		apiConfig := api.DefaultConfig()
		apiConfig.Host = cfg.API.Host
		apiConfig.Port = cfg.API.Port
		apiConfig.AdminKeys = cfg.API.AdminKeys
		apiConfig.EnableRateLimit = cfg.API.EnableRateLimit
		apiConfig.RateLimitPerSecond = cfg.API.RateLimitPerSecond
		apiConfig.RateLimitBurst = cfg.API.RateLimitBurst

		reader := cache.NewCachedReader(projectionStore, domainCache, logger.WithComponent(log, "cache"))
		apiServer, err = api.NewServer(ctx, apiConfig, scheduler, reader, logger.WithComponent(log, "api"))
		if err != nil {
			return fmt.Errorf("failed to create API server: %w", err)
		}
		go func() {
			if err := apiServer.Start(); err != nil {
				log.Error("API server failed", zap.Error(err))
			}
		}()
		if len(cfg.API.AdminKeys) == 0 {
			log.Warn("Admin API has no keys configured; start, stop and resync are unauthenticated")
		}
	}

	if cfg.Indexer.AutoStart {
		scheduler.Start(ctx)
	} else {
		log.Info("Scheduler idle; start it with POST /start or -start")
	}

	<-ctx.Done()
	log.Info("Shutting down gracefully...")

	if apiServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.DefaultShutdownTimeout)
		defer cancel()
		if err := apiServer.Stop(shutdownCtx); err != nil {
			log.Error("Failed to stop API server gracefully", zap.Error(err))
		}
	}

	// lets an in-flight tick finish before storage closes
	scheduler.Stop()

	st := scheduler.Status()
	log.Info("Final statistics",
		zap.Uint64("last_processed_block", st.LastProcessedBlock),
		zap.Uint64("events_processed", st.TotalEventsProcessed),
	)
	log.Info("Indexer stopped")
	return nil
}

// openCheckpointStore opens the pebble or SQL checkpoint backend
func openCheckpointStore(cfg *config.Config, db *gorm.DB, log *zap.Logger) (storage.CheckpointStore, error) {
	switch cfg.Checkpoint.Backend {
	case "sql":
		return storage.NewSQLCheckpointStore(db, cfg.Checkpoint.ID), nil
	default:
		pebbleCfg := storage.DefaultConfig(cfg.Checkpoint.Path)
		pebbleCfg.Cache = cfg.Checkpoint.CacheMB
		pebbleCfg.MaxOpenFiles = cfg.Checkpoint.MaxOpenFiles
		store, err := storage.NewPebbleCheckpointStore(pebbleCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open checkpoint store: %w", err)
		}
		store.SetLogger(log)
		log.Info("Checkpoint store opened", zap.String("path", cfg.Checkpoint.Path))
		return store, nil
	}
}

// openCache builds the domain cache the applier invalidates and the API reads through
func openCache(cfg *config.Config) (cache.Cache, func(), error) {
	switch cfg.Cache.Backend {
	case "redis":
		c, err := cache.NewRedisCache(cache.RedisConfig{
			Addresses: cfg.Cache.Redis.Addresses,
			Password:  cfg.Cache.Redis.Password,
			DB:        cfg.Cache.Redis.DB,
			KeyPrefix: cfg.Cache.KeyPrefix,
			TTL:       cfg.Cache.TTL,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create redis cache: %w", err)
		}
		return c, func() { _ = c.Close() }, nil
	case "lru":
		c, err := cache.NewLocalCache(cfg.Cache.Size)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create local cache: %w", err)
		}
		return c, func() {}, nil
	default:
		return cache.Noop{}, func() {}, nil
	}
}

// openPublisher builds the post-commit notification sink
func openPublisher(ctx context.Context, cfg *config.Config, log *zap.Logger) (eventbus.Publisher, error) {
	n := cfg.Notifier
	switch n.Type {
	case "kafka":
		p, err := eventbus.NewKafkaPublisher(eventbus.KafkaConfig{
			Brokers:      n.Kafka.Brokers,
			Topic:        n.Kafka.Topic,
			Compression:  n.Kafka.Compression,
			RequiredAcks: n.Kafka.RequiredAcks,
			BatchTimeout: n.Kafka.BatchTimeout,
		}, logger.WithComponent(log, "notifier"))
		if err != nil {
			return nil, fmt.Errorf("failed to create kafka notifier: %w", err)
		}
		return p, nil
	case "redis":
		p, err := eventbus.NewRedisPublisher(eventbus.RedisConfig{
			Addresses: n.Redis.Addresses,
			Password:  n.Redis.Password,
			DB:        n.Redis.DB,
			Channel:   n.Channel,
		}, logger.WithComponent(log, "notifier"))
		if err != nil {
			return nil, fmt.Errorf("failed to create redis notifier: %w", err)
		}
		return p, nil
	case "local":
		p := eventbus.NewLocalPublisher(n.BufferSize)
		go logChanges(ctx, p, logger.WithComponent(log, "notifier"))
		return p, nil
	default:
		return eventbus.Noop{}, nil
	}
}

// logChanges is the in-process consumer for the local notifier
func logChanges(ctx context.Context, p *eventbus.LocalPublisher, log *zap.Logger) {
	ch, unsubscribe := p.Subscribe()
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			published, dropped := p.Stats()
			log.Info("Local notifier stopped",
				zap.Uint64("published", published),
				zap.Uint64("dropped", dropped))
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			log.Debug("Domain changed",
				zap.String("kind", string(msg.Kind)),
				zap.String("name_hash", msg.NameHash),
				zap.Uint64("block", msg.BlockNumber),
				zap.String("tx_hash", msg.TxHash),
				zap.Duration("lag", time.Since(msg.Timestamp)))
		}
	}
}

// loadDotEnv loads environment variables from a .env file if it exists.
func loadDotEnv() error {
	info, err := os.Stat(".env")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to stat .env: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf(".env exists but is a directory")
	}
	if err := godotenv.Load(".env"); err != nil {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}
