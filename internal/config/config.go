// Package config defines the top-level configuration for the whalebot worker
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by WHALEBOT_* environment variables.
type Config struct {
	Poll       PollConfig       `toml:"poll"`
	Dedup      DedupConfig      `toml:"dedup"`
	Dispatch   DispatchConfig   `toml:"dispatch"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	Telegram   TelegramConfig   `toml:"telegram"`
	Polymarket PolymarketConfig `toml:"polymarket"`
	Server     ServerConfig     `toml:"server"`
	Archive    ArchiveConfig    `toml:"archive"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// PollConfig tunes the cursor/poll loop.
type PollConfig struct {
	// Interval is the fixed sleep between poll cycles.
	Interval duration `toml:"interval"`
	// MaxTrades bounds the fetch window requested from the Data API.
	MaxTrades int `toml:"max_trades"`
	// MinNotionalHint is passed to the Data API as a server-side filter so
	// dust fills never cross the wire. Zero disables the hint.
	MinNotionalHint float64 `toml:"min_notional_hint"`
	// ReloadInterval is the periodic filter-reload fallback; the Redis
	// reload flag triggers an immediate reload between cycles regardless.
	ReloadInterval duration `toml:"reload_interval"`
}

// DedupConfig tunes the processed-fill window.
type DedupConfig struct {
	// TTL is the processed-fill record lifetime. It must exceed the maximum
	// plausible overlap between consecutive fetch windows.
	TTL duration `toml:"ttl"`
}

// DispatchConfig tunes the notification dispatcher.
type DispatchConfig struct {
	GlobalInterval  duration `toml:"global_interval"`
	PerChatInterval duration `toml:"per_chat_interval"`
	MaxAttempts     int      `toml:"max_attempts"`
	TransientDelay  duration `toml:"transient_delay"`
	// QueueWarnDepth triggers a warning log when the backlog exceeds it.
	QueueWarnDepth int `toml:"queue_warn_depth"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	MaxConns      int    `toml:"max_conns"`
	MinConns      int    `toml:"min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr        string   `toml:"addr"`
	Password    string   `toml:"password"`
	DB          int      `toml:"db"`
	PoolSize    int      `toml:"pool_size"`
	MaxRetries  int      `toml:"max_retries"`
	TLSEnabled  bool     `toml:"tls_enabled"`
	MetadataTTL duration `toml:"metadata_ttl"`
	LockTTL     duration `toml:"lock_ttl"`
}

// TelegramConfig holds the bot credentials used for subscriber alerts. The
// token resolves from Token first, then from the encrypted TokenFile.
type TelegramConfig struct {
	Token         string `toml:"token"`
	TokenFile     string `toml:"token_file"`
	TokenPassword string `toml:"token_password"`
	APIBase       string `toml:"api_base"`
}

// PolymarketConfig holds the upstream API endpoints and request pacing.
type PolymarketConfig struct {
	DataAPI           string   `toml:"data_api"`
	GammaAPI          string   `toml:"gamma_api"`
	RequestsPerSecond float64  `toml:"requests_per_second"`
	Burst             int      `toml:"burst"`
	Timeout           duration `toml:"timeout"`
}

// ServerConfig holds the ops HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	APIKey      string   `toml:"api_key"`
	CORSOrigins []string `toml:"cors_origins"`
}

// ArchiveConfig holds the S3-compatible alert-archive parameters. When
// disabled, housekeeping still purges expired dedup records but nothing is
// uploaded.
type ArchiveConfig struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	ForcePathStyle bool   `toml:"force_path_style"`
	RetentionDays  int    `toml:"retention_days"`
	Cron           string `toml:"cron"`
}

// NotifyConfig holds operator notification channels. These are lifecycle
// messages for whoever runs the worker, not subscriber alerts.
type NotifyConfig struct {
	OpsChatID         string   `toml:"ops_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Poll: PollConfig{
			Interval:        duration{10 * time.Second},
			MaxTrades:       1000,
			MinNotionalHint: 0,
			ReloadInterval:  duration{60 * time.Second},
		},
		Dedup: DedupConfig{
			TTL: duration{15 * time.Minute},
		},
		Dispatch: DispatchConfig{
			GlobalInterval:  duration{34 * time.Millisecond},
			PerChatInterval: duration{time.Second},
			MaxAttempts:     3,
			TransientDelay:  duration{time.Second},
			QueueWarnDepth:  1000,
		},
		Postgres: PostgresConfig{
			MaxConns:      10,
			MinConns:      2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:        "localhost:6379",
			DB:          0,
			PoolSize:    20,
			MaxRetries:  3,
			MetadataTTL: duration{24 * time.Hour},
			LockTTL:     duration{30 * time.Second},
		},
		Telegram: TelegramConfig{
			APIBase: "https://api.telegram.org",
		},
		Polymarket: PolymarketConfig{
			DataAPI:           "https://data-api.polymarket.com",
			GammaAPI:          "https://gamma-api.polymarket.com",
			RequestsPerSecond: 5,
			Burst:             10,
			Timeout:           duration{15 * time.Second},
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8090,
			CORSOrigins: []string{},
		},
		Archive: ArchiveConfig{
			Enabled:        false,
			Region:         "us-east-1",
			ForcePathStyle: true,
			RetentionDays:  90,
			Cron:           "0 4 1 * *",
		},
		Notify: NotifyConfig{
			Events: []string{},
		},
		Mode:     "all",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"all":    true,
	"worker": true,
	"server": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
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
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: all, worker, server)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	needsWorker := c.Mode != "server"

	// Poll loop
	if c.Poll.Interval.Duration <= 0 {
		errs = append(errs, "poll: interval must be positive")
	}
	if c.Poll.MaxTrades < 1 {
		errs = append(errs, "poll: max_trades must be >= 1")
	}
	if c.Poll.MinNotionalHint < 0 {
		errs = append(errs, "poll: min_notional_hint must not be negative")
	}
	if c.Poll.ReloadInterval.Duration <= 0 {
		errs = append(errs, "poll: reload_interval must be positive")
	}

	// Dedup window
	if c.Dedup.TTL.Duration <= 0 {
		errs = append(errs, "dedup: ttl must be positive")
	} else if needsWorker && c.Dedup.TTL.Duration <= c.Poll.Interval.Duration {
		errs = append(errs, "dedup: ttl must exceed poll.interval, otherwise re-fetched fills alert twice")
	}

	// Dispatcher
	if c.Dispatch.GlobalInterval.Duration <= 0 {
		errs = append(errs, "dispatch: global_interval must be positive")
	}
	if c.Dispatch.PerChatInterval.Duration <= 0 {
		errs = append(errs, "dispatch: per_chat_interval must be positive")
	}
	if c.Dispatch.MaxAttempts < 1 {
		errs = append(errs, "dispatch: max_attempts must be >= 1")
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		errs = append(errs, "postgres: dsn is required")
	}
	if c.Postgres.MaxConns < 1 {
		errs = append(errs, "postgres: max_conns must be >= 1")
	}
	if c.Postgres.MinConns < 0 || c.Postgres.MinConns > c.Postgres.MaxConns {
		errs = append(errs, "postgres: min_conns must be between 0 and max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}
	if c.Redis.LockTTL.Duration <= 0 {
		errs = append(errs, "redis: lock_ttl must be positive")
	}

	// Telegram — the worker cannot dispatch without a resolvable token.
	if needsWorker {
		if c.Telegram.Token == "" && c.Telegram.TokenFile == "" {
			errs = append(errs, "telegram: either token or token_file must be set for mode "+c.Mode)
		}
		if c.Telegram.TokenFile != "" && c.Telegram.Token == "" && c.Telegram.TokenPassword == "" {
			errs = append(errs, "telegram: token_password is required when token_file is set")
		}
	}
	if c.Telegram.APIBase == "" {
		errs = append(errs, "telegram: api_base must not be empty")
	}

	// Polymarket
	if c.Polymarket.DataAPI == "" {
		errs = append(errs, "polymarket: data_api must not be empty")
	}
	if c.Polymarket.GammaAPI == "" {
		errs = append(errs, "polymarket: gamma_api must not be empty")
	}
	if c.Polymarket.RequestsPerSecond <= 0 {
		errs = append(errs, "polymarket: requests_per_second must be positive")
	}
	if c.Polymarket.Timeout.Duration <= 0 {
		errs = append(errs, "polymarket: timeout must be positive")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	// Archive
	if c.Archive.Enabled {
		if c.Archive.Bucket == "" {
			errs = append(errs, "archive: bucket must not be empty when enabled")
		}
		if c.Archive.Region == "" {
			errs = append(errs, "archive: region must not be empty when enabled")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1 when enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
