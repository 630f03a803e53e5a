package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jcarden/arbscan/internal/audit"
	s3blob "github.com/jcarden/arbscan/internal/blob/s3"
	"github.com/jcarden/arbscan/internal/cache/redis"
	"github.com/jcarden/arbscan/internal/config"
	"github.com/jcarden/arbscan/internal/domain"
	"github.com/jcarden/arbscan/internal/match"
	"github.com/jcarden/arbscan/internal/notify"
	"github.com/jcarden/arbscan/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function. Optional backends (Postgres, Redis, S3) leave
// their fields nil when disabled.
type Dependencies struct {
	Matcher *match.Matcher
	Audit   *audit.Log

	// Postgres
	History domain.OpportunityStore

	// Redis
	OddsCache   domain.OddsCache
	SignalBus   domain.SignalBus
	LockManager domain.LockManager
	RateLimiter domain.RateLimiter

	// S3
	BlobWriter domain.BlobWriter
	Archiver   *s3blob.Archiver

	Notifier *notify.Notifier
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

	// --- Team reference tables and canonical-game registry ---
	tables, err := match.LoadTables()
	if err != nil {
		return nil, nil, fmt.Errorf("wire: team tables: %w", err)
	}
	deps.Matcher = match.NewMatcher(tables)

	// --- Local audit log (always on; the record of truth for closed opps) ---
	auditLog, err := audit.Open(cfg.Audit.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: audit log: %w", err)
	}
	deps.Audit = auditLog

	// --- PostgreSQL (optional history store) ---
	if cfg.Postgres.Enabled {
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

		deps.History = postgres.NewOpportunityStore(pgClient.Pool())
	}

	// --- Redis (optional: odds cache, signal bus, lock, rate limiter) ---
	if cfg.Redis.Enabled {
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

		deps.OddsCache = redis.NewOddsCache(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
	}

	// --- S3 blob storage (optional audit archive) ---
	if cfg.S3.Enabled {
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

		writer := s3blob.NewWriter(s3Client)
		deps.BlobWriter = writer
		deps.Archiver = s3blob.NewArchiver(writer, auditLog, cfg.Audit.ArchiveInterval.Duration, logger)
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
