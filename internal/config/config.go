// Package config defines the top-level configuration for the paper trader
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by PAPERTRADER_* environment
// variables.
type Config struct {
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	MarketData MarketDataConfig `toml:"marketdata"`
	Agent      AgentConfig      `toml:"agent"`
	Ensemble   EnsembleConfig   `toml:"ensemble"`
	Archive    ArchiveConfig    `toml:"archive"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// PostgresConfig holds database connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds quote cache connection parameters.
type RedisConfig struct {
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	QuoteTTL   duration `toml:"quote_ttl"`
}

// S3Config holds object storage parameters for trail archives.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// MarketDataConfig holds external data provider parameters.
type MarketDataConfig struct {
	NewsAPIKey         string   `toml:"news_api_key"`
	AlphaVantageAPIKey string   `toml:"alpha_vantage_api_key"`
	SentimentEndpoint  string   `toml:"sentiment_endpoint"`
	RequestTimeout     duration `toml:"request_timeout"`
}

// AgentConfig holds the trading agent's cadence and risk parameters.
type AgentConfig struct {
	Interval                   duration `toml:"interval"`
	ProviderTimeout            duration `toml:"provider_timeout"`
	MaxConcurrent              int      `toml:"max_concurrent"`
	NormalSymbols              []string `toml:"normal_symbols"`
	VolatileSymbols            []string `toml:"volatile_symbols"`
	TopVolatileN               int      `toml:"top_volatile_n"`
	HistoryDays                int      `toml:"history_days"`
	HeadlineLimit              int      `toml:"headline_limit"`
	VolatileCapPct             float64  `toml:"volatile_cap_pct"`
	DefaultVolatileStopLossPct float64  `toml:"default_volatile_stop_loss_pct"`
}

// EnsembleConfig holds the decision engine's tuning constants.
type EnsembleConfig struct {
	BuyThreshold      float64 `toml:"buy_threshold"`
	SellThreshold     float64 `toml:"sell_threshold"`
	MaxVolatility     float64 `toml:"max_volatility"`
	MaxSpreadPct      float64 `toml:"max_spread_pct"`
	KellyFraction     float64 `toml:"kelly_fraction"`
	MaxPositionPct    float64 `toml:"max_position_pct"`
	FullControlMaxPct float64 `toml:"full_control_max_pct"`
	Dampening         bool    `toml:"dampening"`
}

// ArchiveConfig holds cold-storage parameters for the audit trails.
type ArchiveConfig struct {
	Enabled       bool   `toml:"enabled"`
	RetentionDays int    `toml:"retention_days"`
	Cron          string `toml:"cron"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	APIKey      string   `toml:"api_key"`
	CORSOrigins []string `toml:"cors_origins"`
	RateLimit   int      `toml:"rate_limit"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration wraps time.Duration so TOML files can say "5m" or "30s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns the built-in configuration, suitable for local runs
// against a default Postgres and Redis.
func Defaults() Config {
	return Config{
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "papertrader",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  8,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 8,
			QuoteTTL: duration{30 * time.Second},
		},
		MarketData: MarketDataConfig{
			RequestTimeout: duration{10 * time.Second},
		},
		Agent: AgentConfig{
			Interval:                   duration{5 * time.Minute},
			ProviderTimeout:            duration{8 * time.Second},
			MaxConcurrent:              4,
			TopVolatileN:               5,
			HistoryDays:                60,
			HeadlineLimit:              10,
			VolatileCapPct:             0.15,
			DefaultVolatileStopLossPct: 5.0,
		},
		Ensemble: EnsembleConfig{
			BuyThreshold:      0.05,
			SellThreshold:     0.05,
			MaxVolatility:     0.50,
			MaxSpreadPct:      0.02,
			KellyFraction:     0.25,
			MaxPositionPct:    0.20,
			FullControlMaxPct: 0.50,
			Dampening:         true,
		},
		Archive: ArchiveConfig{
			RetentionDays: 90,
			Cron:          "0 3 1 * *",
		},
		Server: ServerConfig{
			Enabled:   true,
			Port:      8080,
			RateLimit: 60,
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"serve": true, // HTTP API only
	"agent": true, // scheduler only, no HTTP
	"once":  true, // single agent cycle, then exit
	"full":  true, // HTTP API + scheduler
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, agent, once, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	if c.Archive.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archive is enabled")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty when archive is enabled")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
	}

	if c.Agent.Interval.Duration < time.Second {
		errs = append(errs, "agent: interval must be at least 1s")
	}
	if c.Agent.MaxConcurrent < 1 {
		errs = append(errs, "agent: max_concurrent must be >= 1")
	}
	if c.Agent.VolatileCapPct <= 0 || c.Agent.VolatileCapPct > 1 {
		errs = append(errs, "agent: volatile_cap_pct must be in (0, 1]")
	}

	if c.Ensemble.BuyThreshold < 0 || c.Ensemble.SellThreshold < 0 {
		errs = append(errs, "ensemble: thresholds must not be negative")
	}
	if c.Ensemble.KellyFraction <= 0 || c.Ensemble.KellyFraction > 1 {
		errs = append(errs, "ensemble: kelly_fraction must be in (0, 1]")
	}
	if c.Ensemble.MaxPositionPct <= 0 || c.Ensemble.MaxPositionPct > 1 {
		errs = append(errs, "ensemble: max_position_pct must be in (0, 1]")
	}
	if c.Ensemble.FullControlMaxPct < c.Ensemble.MaxPositionPct {
		errs = append(errs, "ensemble: full_control_max_pct must be >= max_position_pct")
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 1 {
			errs = append(errs, "server: rate_limit must be >= 1")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
