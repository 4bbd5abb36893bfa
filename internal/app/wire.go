package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/quantlab/papertrader/internal/blob/s3"
	"github.com/quantlab/papertrader/internal/cache/redis"
	"github.com/quantlab/papertrader/internal/config"
	"github.com/quantlab/papertrader/internal/domain"
	"github.com/quantlab/papertrader/internal/ledger"
	"github.com/quantlab/papertrader/internal/marketdata"
	"github.com/quantlab/papertrader/internal/notify"
	"github.com/quantlab/papertrader/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Stores
	LedgerStore    domain.LedgerStore
	LimitStore     domain.LimitOrderStore
	SettingsStore  domain.SettingsStore
	ReasoningStore domain.ReasoningStore
	HistoryStore   domain.HistoryStore
	WatchlistStore domain.WatchlistStore

	// Caches and messaging
	QuoteCache  domain.QuoteCache
	RateLimiter domain.RateLimiter
	Bus         domain.EventBus

	// Market data
	Quotes    ledger.Quoter
	History   domain.HistoryProvider
	Headlines domain.HeadlineProvider
	Macro     domain.MacroProvider
	Scanner   *marketdata.Scanner

	// Blob storage (nil unless archiving is enabled)
	Archiver *s3blob.TrailArchiver

	// Notifications
	Notifier *notify.Notifier
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
	ledgerStore := postgres.NewLedgerStore(pool)
	settingsStore := postgres.NewSettingsStore(pool)
	deps.LedgerStore = ledgerStore
	deps.LimitStore = postgres.NewLimitOrderStore(pool)
	deps.SettingsStore = settingsStore
	deps.ReasoningStore = postgres.NewReasoningStore(pool)
	deps.HistoryStore = postgres.NewHistoryStore(pool)
	deps.WatchlistStore = postgres.NewWatchlistStore(pool)

	// Seed the singleton rows so a fresh database is immediately usable.
	if err := ledgerStore.EnsureSeeded(ctx, ledger.DefaultStartingCash); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: seed account: %w", err)
	}
	if err := settingsStore.EnsureSeeded(ctx, defaultSettings()); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: seed settings: %w", err)
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

	quoteTTL := cfg.Redis.QuoteTTL.Duration
	if quoteTTL <= 0 {
		quoteTTL = time.Minute
	}
	deps.QuoteCache = redis.NewQuoteCache(redisClient, quoteTTL)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.Bus = redis.NewBus(redisClient, logger)

	// --- Market data ---
	timeout := cfg.MarketData.RequestTimeout.Duration
	yahoo := marketdata.NewYahooClient(timeout)
	quoteSvc := marketdata.NewQuoteService(yahoo, deps.QuoteCache, logger)
	quoteSvc.SetBus(deps.Bus)
	deps.Quotes = quoteSvc
	deps.History = yahoo
	deps.Headlines = marketdata.NewNewsClient("", cfg.MarketData.NewsAPIKey, timeout)
	deps.Macro = marketdata.NewMacroClient("", cfg.MarketData.AlphaVantageAPIKey, timeout)
	deps.Scanner = marketdata.NewScanner(yahoo, logger)

	// --- S3 blob storage (only when trail archiving is on) ---
	if cfg.Archive.Enabled {
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
		deps.Archiver = s3blob.NewTrailArchiver(
			s3blob.NewWriter(s3Client),
			deps.ReasoningStore,
			deps.HistoryStore,
		)
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
	deps.Notifier = notify.New(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}

// defaultSettings is what a fresh install starts with: agent off, volatile
// universe off, manual trading only.
func defaultSettings() domain.AgentSettings {
	return domain.AgentSettings{
		Enabled:         false,
		IncludeVolatile: false,
		FullControl:     false,
		ConfidenceFloor: 0.18,
		Weights:         domain.DefaultWeights(),
		UpdatedAt:       time.Now().UTC(),
	}
}
