package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/time/rate"

	s3blob "github.com/calweaver/whalebot/internal/blob/s3"
	"github.com/calweaver/whalebot/internal/cache/redis"
	"github.com/calweaver/whalebot/internal/config"
	"github.com/calweaver/whalebot/internal/crypto"
	"github.com/calweaver/whalebot/internal/domain"
	"github.com/calweaver/whalebot/internal/notify"
	"github.com/calweaver/whalebot/internal/platform/polymarket"
	"github.com/calweaver/whalebot/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency the application modes
// need to operate. It is constructed by Wire and torn down by the returned
// cleanup function.
type Dependencies struct {
	// Stores
	Markers       domain.MarkerStore
	Dedup         domain.DedupStore
	Filters       domain.FilterStore
	TagCategories domain.TagCategoryStore
	Alerts        domain.AlertStore

	// Caches and coordination
	MarketCache domain.MarketCache
	TagCache    domain.TagCache
	SignalBus   domain.SignalBus
	LockManager domain.LockManager

	// Upstream clients (nil in server mode)
	Data  *polymarket.DataClient
	Gamma *polymarket.GammaClient

	// Alert archival (nil unless archive.enabled)
	Archiver domain.AlertArchiver

	// Delivery
	Sink     domain.Sink // nil in server mode
	Notifier *notify.Notifier
}

// runsWorker returns true for modes that run the poll loop and dispatcher.
func runsWorker(mode string) bool {
	return strings.ToLower(mode) != "server"
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

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		MaxConns: cfg.Postgres.MaxConns,
		MinConns: cfg.Postgres.MinConns,
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
	deps.Markers = postgres.NewMarkerStore(pool)
	deps.Dedup = postgres.NewDedupStore(pool)
	deps.Filters = postgres.NewFilterStore(pool, logger)
	deps.TagCategories = postgres.NewTagCategoryStore(pool)
	deps.Alerts = postgres.NewAlertStore(pool)

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

	deps.MarketCache = redis.NewMarketCache(redisClient, cfg.Redis.MetadataTTL.Duration)
	deps.TagCache = redis.NewTagCache(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)

	// The ops server only reads: alert log, status, and the Redis alert
	// channel. Upstream clients, the Telegram sink, and the archive writer
	// exist solely for the worker loop.
	if runsWorker(cfg.Mode) {
		// --- Polymarket clients, sharing one request budget ---
		limiter := rate.NewLimiter(rate.Limit(cfg.Polymarket.RequestsPerSecond), cfg.Polymarket.Burst)
		deps.Data = polymarket.NewDataClient(cfg.Polymarket.DataAPI, limiter)
		deps.Data.SetTimeout(cfg.Polymarket.Timeout.Duration)
		deps.Gamma = polymarket.NewGammaClient(cfg.Polymarket.GammaAPI, limiter)
		deps.Gamma.SetTimeout(cfg.Polymarket.Timeout.Duration)

		// --- Telegram sink ---
		token, err := crypto.LoadSecret(crypto.SecretConfig{
			RawValue:      cfg.Telegram.Token,
			EncryptedPath: cfg.Telegram.TokenFile,
			Password:      cfg.Telegram.TokenPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: telegram token: %w", err)
		}
		sink := notify.NewTelegramSinkWithBase(token, cfg.Telegram.APIBase)
		deps.Sink = sink

		// --- S3 alert archive ---
		if cfg.Archive.Enabled {
			s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
				Endpoint:       cfg.Archive.Endpoint,
				Region:         cfg.Archive.Region,
				Bucket:         cfg.Archive.Bucket,
				AccessKey:      cfg.Archive.AccessKey,
				SecretKey:      cfg.Archive.SecretKey,
				UseSSL:         true,
				ForcePathStyle: cfg.Archive.ForcePathStyle,
			})
			if err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: s3: %w", err)
			}
			closers = append(closers, func() { _ = s3Client.Close() })

			deps.Archiver = s3blob.NewArchiver(
				s3blob.NewWriter(s3Client), s3blob.NewReader(s3Client), deps.Alerts, logger,
			)
		}

		// --- Operator notifications ---
		var senders []notify.Sender
		if cfg.Notify.OpsChatID != "" {
			senders = append(senders, notify.NewTelegramSenderWithSink(sink, cfg.Notify.OpsChatID))
		}
		if cfg.Notify.DiscordWebhookURL != "" {
			senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL, "whalebot"))
		}
		deps.Notifier = notify.NewNotifier(senders, notifyEvents(cfg.Notify.Events), logger)
	}

	return deps, cleanup, nil
}

func notifyEvents(names []string) []notify.Event {
	events := make([]notify.Event, 0, len(names))
	for _, n := range names {
		events = append(events, notify.Event(n))
	}
	return events
}
