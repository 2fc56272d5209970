package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/postpilot/internal/config"
	"github.com/hitoshi/postpilot/internal/database"
	"github.com/hitoshi/postpilot/internal/events"
	"github.com/hitoshi/postpilot/internal/lock"
	"github.com/hitoshi/postpilot/internal/metrics"
	"github.com/hitoshi/postpilot/internal/publish"
	"github.com/hitoshi/postpilot/internal/reddit"
	"github.com/hitoshi/postpilot/internal/repository"
	"github.com/hitoshi/postpilot/internal/security"
	"github.com/hitoshi/postpilot/internal/worker/reconcile"
)

// reconcileLockKey は同期ティックの排他に使うRedisキー。
const reconcileLockKey = "postpilot:reconcile:tick"

// components はserveとworkerが共有する依存関係。
type components struct {
	db        *sqlx.DB
	registry  *prometheus.Registry
	collector *metrics.Collector
	publisher events.Publisher
	redis     *redis.Client

	users       *repository.PostgresUserRepo
	contents    *repository.PostgresContentRepo
	revocations *repository.PostgresRevocationRepo

	reddit    *reddit.Client
	scheduler *reconcile.Scheduler
	publish   *publish.Service
}

// buildComponents はDB接続を開き、共有の依存関係を組み立てる。
// withLock がtrueの場合、REDIS_URLが設定されていればRedisロックをスケジューラに設定する。
func buildComponents(ctx context.Context, cfg *config.Config, logger *slog.Logger, withLock bool) (*components, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	logger.Info("database connection established")

	c := &components{
		db:          db,
		registry:    metrics.NewRegistry(),
		users:       repository.NewPostgresUserRepo(db),
		contents:    repository.NewPostgresContentRepo(db),
		revocations: repository.NewPostgresRevocationRepo(db),
	}
	c.collector = metrics.NewCollector(c.registry)

	c.publisher = events.Nop{}
	if cfg.RabbitMQURL != "" {
		mq, err := events.NewRabbitMQ(cfg.RabbitMQURL, cfg.RabbitMQExchange, logger)
		if err != nil {
			c.close()
			return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
		}
		c.publisher = mq
		logger.Info("event publishing enabled", slog.String("exchange", cfg.RabbitMQExchange))
	}

	c.reddit = reddit.NewClient(reddit.Config{
		ClientID:          cfg.RedditClientID,
		ClientSecret:      cfg.RedditClientSecret,
		RedirectURL:       cfg.RedditRedirectURL,
		UserAgent:         cfg.RedditUserAgent,
		Timeout:           cfg.RedditTimeout,
		RequestsPerMinute: cfg.RedditRequestsPerMinute,
	}, logger, c.collector)

	opts := []reconcile.Option{
		reconcile.WithPublisher(c.publisher),
		reconcile.WithRecorder(c.collector),
	}
	if withLock {
		locker, err := c.newLocker(ctx, cfg, logger)
		if err != nil {
			c.close()
			return nil, err
		}
		opts = append(opts, reconcile.WithLocker(locker))
	}
	c.scheduler = reconcile.NewScheduler(c.contents, c.reddit, logger, reconcile.Config{
		Interval:      cfg.ReconcileInterval,
		MaxConcurrent: cfg.ReconcileMaxConcurrent,
		ItemTimeout:   cfg.ReconcileItemTimeout,
		Policy: reconcile.Policy{
			YoungAge:      cfg.ReconcileYoungAge,
			YoungInterval: cfg.ReconcileYoungInterval,
			OldInterval:   cfg.ReconcileOldInterval,
		},
	}, opts...)

	c.publish = publish.NewService(
		c.users, c.contents, repository.NewTransactionManager(db),
		c.reddit, security.NewContentSanitizer(), logger,
		publish.Config{DefaultSubreddit: cfg.RedditSubreddit, PersistTimeout: cfg.PublishPersistTimeout},
		publish.WithPublisher(c.publisher),
		publish.WithRecorder(c.collector),
		publish.WithRefresher(c.scheduler),
	)

	return c, nil
}

// newLocker はREDIS_URLが設定されていればRedisロック、なければプロセス内ロックを返す。
func (c *components) newLocker(ctx context.Context, cfg *config.Config, logger *slog.Logger) (lock.Locker, error) {
	if cfg.RedisURL == "" {
		logger.Info("REDIS_URL is not set; reconcile ticks are not coordinated across workers")
		return &lock.Local{}, nil
	}
	client, err := lock.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	c.redis = client
	// TTLはティック間隔と同じにする。ティックがそれより長引いた場合は次のティックと重なり得る。
	return lock.NewRedisLock(client, reconcileLockKey, cfg.ReconcileInterval), nil
}

func (c *components) close() {
	if c.publisher != nil {
		if err := c.publisher.Close(); err != nil {
			slog.Warn("failed to close event publisher", slog.String("error", err.Error()))
		}
	}
	if c.redis != nil {
		c.redis.Close()
	}
	c.db.Close()
}
