package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/domainetf/domainperp/internal/blob/s3"
	"github.com/domainetf/domainperp/internal/cache/redis"
	"github.com/domainetf/domainperp/internal/config"
	"github.com/domainetf/domainperp/internal/domain"
	"github.com/domainetf/domainperp/internal/notify"
	"github.com/domainetf/domainperp/internal/oracle"
	"github.com/domainetf/domainperp/internal/settlement"
	"github.com/domainetf/domainperp/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Stores. Liquidations is the concrete store because the archival loop
	// needs ListBefore and DeleteBefore in addition to the domain interface.
	Positions    domain.PositionStore
	Liquidations *postgres.LiquidationStore

	// Caches and messaging
	PriceCache domain.PriceCache
	SignalBus  domain.SignalBus

	// Oracle aggregation
	Oracle *oracle.Aggregator

	// Settlement. Nil in oracle mode; a dry-run settler otherwise unless
	// liquidate mode with dry_run disabled.
	Settler domain.Settler

	// Blob storage
	BlobWriter domain.BlobWriter
	Archiver   domain.Archiver

	// Notifications
	Notifier *notify.Notifier
}

// needsPostgres returns true for modes that require a database connection.
// Oracle mode only aggregates and publishes prices and runs stateless.
func needsPostgres(mode string) bool {
	switch mode {
	case "monitor", "liquidate":
		return true
	default:
		return false
	}
}

// needsS3 returns true when the mode and configuration require object
// storage. Archival reads the liquidation history, so it also needs Postgres.
func needsS3(cfg *config.Config) bool {
	return cfg.Archive.Enabled && needsPostgres(cfg.Mode)
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL (only for modes that need persistence) ---
	if needsPostgres(cfg.Mode) {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.Positions = postgres.NewPositionStore(pool)
		deps.Liquidations = postgres.NewLiquidationStore(pool)
	}

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.PriceCache = redis.NewPriceCache(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)

	// --- Oracle aggregator ---
	var sources []oracle.Source
	for _, sc := range cfg.Oracle.Sources {
		if !sc.Enabled {
			continue
		}
		sources = append(sources, oracle.NewHTTPSource(oracle.SourceConfig{
			Name:     sc.Name,
			Weight:   sc.Weight,
			Endpoint: sc.Endpoint,
			Enabled:  sc.Enabled,
		}))
	}
	deps.Oracle = oracle.NewAggregator(
		sources,
		deps.PriceCache,
		deps.SignalBus,
		cfg.Oracle.PollInterval.Duration,
		logger,
	)

	// --- Settlement (only for modes that execute or report liquidations) ---
	if needsPostgres(cfg.Mode) {
		if cfg.Mode == "liquidate" && !cfg.Settlement.DryRun {
			key, err := settlement.LoadSignerKey(settlement.KeySource{
				RawHex:            cfg.Settlement.PrivateKey,
				EncryptedFilePath: cfg.Settlement.EncryptedKeyPath,
				Password:          cfg.Settlement.KeyPassword,
			})
			if err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: settlement key: %w", err)
			}
			chain, err := settlement.NewChainSettler(
				ctx,
				cfg.Settlement.RPCURL,
				cfg.Settlement.ContractAddress,
				key,
				logger,
			)
			if err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: settlement: %w", err)
			}
			closers = append(closers, chain.Close)
			deps.Settler = chain
		} else {
			deps.Settler = settlement.NewNoopSettler(logger)
		}
	}

	// --- S3 blob storage (only when archival is enabled) ---
	if needsS3(cfg) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, deps.Liquidations)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
