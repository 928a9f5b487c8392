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
// built-in defaults, applies WHALEBOT_* environment variable overrides, and
// returns the final Config. A missing file is not an error; the worker can
// run from defaults plus environment variables alone. The returned Config has
// NOT been validated; the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known WHALEBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Poll loop ──
	setDuration(&cfg.Poll.Interval, "WHALEBOT_POLL_INTERVAL")
	setInt(&cfg.Poll.MaxTrades, "WHALEBOT_POLL_MAX_TRADES")
	setFloat64(&cfg.Poll.MinNotionalHint, "WHALEBOT_POLL_MIN_NOTIONAL_HINT")
	setFloat64(&cfg.Poll.MinNotionalHint, "WHALEBOT_GLOBAL_MIN_NOTIONAL_USD") // compatibility alias
	setDuration(&cfg.Poll.ReloadInterval, "WHALEBOT_POLL_RELOAD_INTERVAL")

	// ── Dedup ──
	setDuration(&cfg.Dedup.TTL, "WHALEBOT_DEDUP_TTL")

	// ── Dispatch ──
	setDuration(&cfg.Dispatch.GlobalInterval, "WHALEBOT_DISPATCH_GLOBAL_INTERVAL")
	setDuration(&cfg.Dispatch.PerChatInterval, "WHALEBOT_DISPATCH_PER_CHAT_INTERVAL")
	setInt(&cfg.Dispatch.MaxAttempts, "WHALEBOT_DISPATCH_MAX_ATTEMPTS")
	setDuration(&cfg.Dispatch.TransientDelay, "WHALEBOT_DISPATCH_TRANSIENT_DELAY")
	setInt(&cfg.Dispatch.QueueWarnDepth, "WHALEBOT_DISPATCH_QUEUE_WARN_DEPTH")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "WHALEBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "WHALEBOT_DATABASE_URL") // compatibility alias
	setInt(&cfg.Postgres.MaxConns, "WHALEBOT_POSTGRES_MAX_CONNS")
	setInt(&cfg.Postgres.MinConns, "WHALEBOT_POSTGRES_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "WHALEBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "WHALEBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "WHALEBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "WHALEBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "WHALEBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "WHALEBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "WHALEBOT_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.MetadataTTL, "WHALEBOT_REDIS_METADATA_TTL")
	setDuration(&cfg.Redis.LockTTL, "WHALEBOT_REDIS_LOCK_TTL")

	// ── Telegram ──
	setStr(&cfg.Telegram.Token, "WHALEBOT_TELEGRAM_TOKEN")
	setStr(&cfg.Telegram.Token, "WHALEBOT_TELEGRAM_BOT_TOKEN") // compatibility alias
	setStr(&cfg.Telegram.TokenFile, "WHALEBOT_TELEGRAM_TOKEN_FILE")
	setStr(&cfg.Telegram.TokenPassword, "WHALEBOT_TELEGRAM_TOKEN_PASSWORD")
	setStr(&cfg.Telegram.APIBase, "WHALEBOT_TELEGRAM_API_BASE")

	// ── Polymarket ──
	setStr(&cfg.Polymarket.DataAPI, "WHALEBOT_POLYMARKET_DATA_API")
	setStr(&cfg.Polymarket.GammaAPI, "WHALEBOT_POLYMARKET_GAMMA_API")
	setFloat64(&cfg.Polymarket.RequestsPerSecond, "WHALEBOT_POLYMARKET_REQUESTS_PER_SECOND")
	setInt(&cfg.Polymarket.Burst, "WHALEBOT_POLYMARKET_BURST")
	setDuration(&cfg.Polymarket.Timeout, "WHALEBOT_POLYMARKET_TIMEOUT")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "WHALEBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "WHALEBOT_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "WHALEBOT_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "WHALEBOT_SERVER_CORS_ORIGINS")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "WHALEBOT_ARCHIVE_ENABLED")
	setStr(&cfg.Archive.Endpoint, "WHALEBOT_ARCHIVE_ENDPOINT")
	setStr(&cfg.Archive.Region, "WHALEBOT_ARCHIVE_REGION")
	setStr(&cfg.Archive.Bucket, "WHALEBOT_ARCHIVE_BUCKET")
	setStr(&cfg.Archive.AccessKey, "WHALEBOT_ARCHIVE_ACCESS_KEY")
	setStr(&cfg.Archive.SecretKey, "WHALEBOT_ARCHIVE_SECRET_KEY")
	setBool(&cfg.Archive.ForcePathStyle, "WHALEBOT_ARCHIVE_FORCE_PATH_STYLE")
	setInt(&cfg.Archive.RetentionDays, "WHALEBOT_ARCHIVE_RETENTION_DAYS")
	setStr(&cfg.Archive.Cron, "WHALEBOT_ARCHIVE_CRON")

	// ── Notify ──
	setStr(&cfg.Notify.OpsChatID, "WHALEBOT_NOTIFY_OPS_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "WHALEBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "WHALEBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "WHALEBOT_MODE")
	setStr(&cfg.LogLevel, "WHALEBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

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
