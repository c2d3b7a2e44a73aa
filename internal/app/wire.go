package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	s3blob "github.com/tradeforge/robotengine/internal/blob/s3"
	"github.com/tradeforge/robotengine/internal/cache/redis"
	"github.com/tradeforge/robotengine/internal/config"
	"github.com/tradeforge/robotengine/internal/metrics"
	"github.com/tradeforge/robotengine/internal/notify"
	"github.com/tradeforge/robotengine/internal/store/postgres"
)

// Dependencies bundles the infrastructure the operating modes need. It is
// constructed by Wire and torn down by the returned cleanup function. Fields
// are nil when the selected mode does not use them.
type Dependencies struct {
	StateStore *postgres.RobotStateStore
	EventStore *postgres.SignalEventStore
	SignalBus  *redis.SignalBus
	StateCache *redis.StateCache
	Archiver   *s3blob.Archiver
	Notifier   *notify.Notifier

	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
}

// needsPostgres reports whether mode persists state and events.
func needsPostgres(mode string) bool {
	return mode == "live" || mode == "serve"
}

// needsRedis reports whether mode publishes signals and caches state.
func needsRedis(mode string) bool {
	return mode == "live" || mode == "serve"
}

// Wire constructs the concrete infrastructure for cfg.Mode and returns it
// together with a cleanup function to call on shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	mode := strings.ToLower(cfg.Mode)

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	registry := prometheus.NewRegistry()
	deps := &Dependencies{
		Registry: registry,
		Metrics:  metrics.New(registry),
	}

	if needsPostgres(mode) {
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
		deps.StateStore = postgres.NewRobotStateStore(pool)
		deps.EventStore = postgres.NewSignalEventStore(pool)
	}

	if needsRedis(mode) {
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

		deps.SignalBus = redis.NewSignalBus(redisClient)
		deps.StateCache = redis.NewStateCache(redisClient)
	}

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
		deps.Archiver = s3blob.NewArchiver(s3Client)
	}

	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	deps.Notifier = notify.NewNotifier(senders, logger)

	logger.InfoContext(ctx, "dependencies wired",
		slog.Bool("postgres", deps.StateStore != nil),
		slog.Bool("redis", deps.SignalBus != nil),
		slog.Bool("s3", deps.Archiver != nil),
	)
	return deps, cleanup, nil
}
