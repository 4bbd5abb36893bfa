package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies PAPERTRADER_* environment variable overrides,
// and returns the final Config. The result has NOT been validated; callers
// should invoke Config.Validate() after Load. An empty path skips the file
// and uses defaults plus the environment.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// .env is optional; missing files are ignored.
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// applyEnvOverrides reads well-known PAPERTRADER_* environment variables and
// overwrites the corresponding Config fields when set. This lets operators
// inject secrets at deploy time without touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Postgres.DSN, "PAPERTRADER_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "PAPERTRADER_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "PAPERTRADER_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "PAPERTRADER_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "PAPERTRADER_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "PAPERTRADER_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "PAPERTRADER_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "PAPERTRADER_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "PAPERTRADER_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "PAPERTRADER_POSTGRES_RUN_MIGRATIONS")

	setStr(&cfg.Redis.Addr, "PAPERTRADER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PAPERTRADER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PAPERTRADER_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "PAPERTRADER_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "PAPERTRADER_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "PAPERTRADER_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.QuoteTTL, "PAPERTRADER_REDIS_QUOTE_TTL")

	setStr(&cfg.S3.Endpoint, "PAPERTRADER_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "PAPERTRADER_S3_REGION")
	setStr(&cfg.S3.Bucket, "PAPERTRADER_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "PAPERTRADER_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "PAPERTRADER_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "PAPERTRADER_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "PAPERTRADER_S3_FORCE_PATH_STYLE")

	setStr(&cfg.MarketData.NewsAPIKey, "PAPERTRADER_MARKETDATA_NEWS_API_KEY")
	setStr(&cfg.MarketData.AlphaVantageAPIKey, "PAPERTRADER_MARKETDATA_ALPHA_VANTAGE_API_KEY")
	setStr(&cfg.MarketData.SentimentEndpoint, "PAPERTRADER_MARKETDATA_SENTIMENT_ENDPOINT")
	setDuration(&cfg.MarketData.RequestTimeout, "PAPERTRADER_MARKETDATA_REQUEST_TIMEOUT")

	setDuration(&cfg.Agent.Interval, "PAPERTRADER_AGENT_INTERVAL")
	setDuration(&cfg.Agent.ProviderTimeout, "PAPERTRADER_AGENT_PROVIDER_TIMEOUT")
	setInt(&cfg.Agent.MaxConcurrent, "PAPERTRADER_AGENT_MAX_CONCURRENT")
	setStringSlice(&cfg.Agent.NormalSymbols, "PAPERTRADER_AGENT_NORMAL_SYMBOLS")
	setStringSlice(&cfg.Agent.VolatileSymbols, "PAPERTRADER_AGENT_VOLATILE_SYMBOLS")
	setInt(&cfg.Agent.TopVolatileN, "PAPERTRADER_AGENT_TOP_VOLATILE_N")
	setInt(&cfg.Agent.HistoryDays, "PAPERTRADER_AGENT_HISTORY_DAYS")
	setInt(&cfg.Agent.HeadlineLimit, "PAPERTRADER_AGENT_HEADLINE_LIMIT")
	setFloat64(&cfg.Agent.VolatileCapPct, "PAPERTRADER_AGENT_VOLATILE_CAP_PCT")
	setFloat64(&cfg.Agent.DefaultVolatileStopLossPct, "PAPERTRADER_AGENT_DEFAULT_VOLATILE_STOP_LOSS_PCT")

	setFloat64(&cfg.Ensemble.BuyThreshold, "PAPERTRADER_ENSEMBLE_BUY_THRESHOLD")
	setFloat64(&cfg.Ensemble.SellThreshold, "PAPERTRADER_ENSEMBLE_SELL_THRESHOLD")
	setFloat64(&cfg.Ensemble.MaxVolatility, "PAPERTRADER_ENSEMBLE_MAX_VOLATILITY")
	setFloat64(&cfg.Ensemble.MaxSpreadPct, "PAPERTRADER_ENSEMBLE_MAX_SPREAD_PCT")
	setFloat64(&cfg.Ensemble.KellyFraction, "PAPERTRADER_ENSEMBLE_KELLY_FRACTION")
	setFloat64(&cfg.Ensemble.MaxPositionPct, "PAPERTRADER_ENSEMBLE_MAX_POSITION_PCT")
	setFloat64(&cfg.Ensemble.FullControlMaxPct, "PAPERTRADER_ENSEMBLE_FULL_CONTROL_MAX_PCT")
	setBool(&cfg.Ensemble.Dampening, "PAPERTRADER_ENSEMBLE_DAMPENING")

	setBool(&cfg.Archive.Enabled, "PAPERTRADER_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "PAPERTRADER_ARCHIVE_RETENTION_DAYS")
	setStr(&cfg.Archive.Cron, "PAPERTRADER_ARCHIVE_CRON")

	setBool(&cfg.Server.Enabled, "PAPERTRADER_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "PAPERTRADER_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "PAPERTRADER_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "PAPERTRADER_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimit, "PAPERTRADER_SERVER_RATE_LIMIT")

	setStr(&cfg.Notify.TelegramToken, "PAPERTRADER_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "PAPERTRADER_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "PAPERTRADER_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "PAPERTRADER_NOTIFY_EVENTS")

	setStr(&cfg.Mode, "PAPERTRADER_MODE")
	setStr(&cfg.LogLevel, "PAPERTRADER_LOG_LEVEL")
}

// Typed env-var helpers. Each only mutates the target when the variable is
// present and non-empty.

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
