package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	s3blob "github.com/authensus/marketd/internal/blob/s3"
	"github.com/authensus/marketd/internal/cache/redis"
	"github.com/authensus/marketd/internal/config"
	"github.com/authensus/marketd/internal/crypto"
	"github.com/authensus/marketd/internal/domain"
	"github.com/authensus/marketd/internal/ledger"
	"github.com/authensus/marketd/internal/notify"
	"github.com/authensus/marketd/internal/service"
	"github.com/authensus/marketd/internal/store/postgres"
	"github.com/authensus/marketd/internal/tokenmint"
	"github.com/authensus/marketd/internal/treasury"
)

// Dependencies bundles everything the application modes need to operate. It
// is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// In-process cores
	Ledger *ledger.Ledger
	Escrow *treasury.Escrow
	Mint   *tokenmint.Service

	// Stores
	MarketStore   *postgres.MarketStore
	StakeStore    *postgres.StakeStore
	TreasuryStore *postgres.TreasuryStore
	TokenStore    *postgres.TokenStore
	AuditStore    *postgres.AuditStore

	// Redis
	MarketCache domain.MarketCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	// Services
	MarketSvc   *service.MarketService
	TreasurySvc *service.TreasuryService
	TokenSvc    *service.TokenService

	// Authority signing key; nil when no key is configured.
	Signer *crypto.Signer

	// Notifications
	Notifier *notify.Notifier
	Watcher  *notify.Watcher
}

// needsS3 returns true for modes that require object storage.
func needsS3(cfg *config.Config) bool {
	switch cfg.Mode {
	case "archive":
		return true
	case "full":
		return cfg.Archive.Enabled
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Authority key (optional; read-only deployments run without one) ---
	if cfg.Authority.PrivateKey != "" || cfg.Authority.EncryptedKeyPath != "" {
		keyHex, err := crypto.LoadKey(crypto.KeyConfig{
			RawPrivateKey:    cfg.Authority.PrivateKey,
			EncryptedKeyPath: cfg.Authority.EncryptedKeyPath,
			KeyPassword:      cfg.Authority.KeyPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: authority key: %w", err)
		}
		signer, err := crypto.NewSigner(keyHex)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: authority signer: %w", err)
		}
		deps.Signer = signer
	}

	// --- PostgreSQL ---
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
	deps.MarketStore = postgres.NewMarketStore(pool)
	deps.StakeStore = postgres.NewStakeStore(pool)
	deps.TreasuryStore = postgres.NewTreasuryStore(pool)
	deps.TokenStore = postgres.NewTokenStore(pool)
	deps.AuditStore = postgres.NewAuditStore(pool)

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

	deps.MarketCache = redis.NewMarketCache(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)

	// --- S3 blob storage (only for modes that archive) ---
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
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.Archiver = s3blob.NewArchiver(
			deps.BlobWriter,
			deps.MarketStore,
			deps.StakeStore,
			deps.AuditStore,
			deps.AuditStore,
			cfg.Archive.Prefix,
		)
	}

	// --- In-process cores ---
	deps.Ledger = ledger.New()
	deps.Escrow = treasury.New()

	var mintAuthority common.Address
	if deps.Signer != nil {
		mintAuthority = deps.Signer.Address()
	}
	deps.Mint = tokenmint.New(mintAuthority)

	// --- Services ---
	deps.TreasurySvc = service.NewTreasuryService(deps.Escrow, deps.TreasuryStore, deps.AuditStore, logger)
	deps.TokenSvc = service.NewTokenService(deps.Mint, deps.TokenStore, deps.AuditStore, logger)
	deps.MarketSvc = service.NewMarketService(
		deps.Ledger,
		deps.MarketStore,
		deps.StakeStore,
		deps.MarketCache,
		deps.SignalBus,
		deps.LockManager,
		deps.AuditStore,
		deps.TreasurySvc,
		logger,
	)

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
	deps.Watcher = notify.NewWatcher(deps.SignalBus, deps.Notifier, logger)

	return deps, cleanup, nil
}
