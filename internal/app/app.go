// Package app はpostpilotの起動処理と依存関係のワイヤリングを行う。
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/postpilot/internal/auth"
	"github.com/hitoshi/postpilot/internal/config"
	"github.com/hitoshi/postpilot/internal/database"
	"github.com/hitoshi/postpilot/internal/handler"
	"github.com/hitoshi/postpilot/internal/logger"
	"github.com/hitoshi/postpilot/internal/metrics"
	"github.com/hitoshi/postpilot/internal/middleware"
	"github.com/hitoshi/postpilot/internal/token"
	"github.com/hitoshi/postpilot/internal/user"
	"github.com/hitoshi/postpilot/internal/worker/cleanup"
)

const shutdownTimeout = 30 * time.Second

// Init は環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, *slog.Logger, error) {
	// 設定読み込み前にログを使えるようにする
	logger.SetupDefault(w, slog.LevelInfo)

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel)), nil
}

// Run はアプリケーションのメインエントリーポイント。argsにはos.Args[1:]を渡す。
// SIGINTまたはSIGTERMを受信するとコンテキストをキャンセルし、グレースフルに終了する。
func Run(w io.Writer, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return NewCLI(w).RunContext(ctx, append([]string{"postpilot"}, args...))
}

// runServe はAPIサーバーモードで起動する。
func runServe(ctx context.Context, w io.Writer) error {
	cfg, log, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}
	log.Info("starting application",
		slog.String("command", "serve"),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	// APIプロセスの手動同期はティックロックを取らない
	c, err := buildComponents(ctx, cfg, log, false)
	if err != nil {
		return err
	}
	defer c.close()

	tokens, err := token.NewService(cfg.AccessTokenSecret, cfg.RefreshTokenSecret,
		token.WithTTL(cfg.AccessTokenTTL, cfg.RefreshTokenTTL))
	if err != nil {
		return fmt.Errorf("failed to create token service: %w", err)
	}

	authService := auth.NewService(
		auth.NewGoogleIDTokenVerifier(ctx, cfg.GoogleClientID),
		tokens, c.users, c.revocations,
	)

	rateLimiter := middleware.NewRateLimiter(middleware.PerMinuteRateLimiterConfig(
		cfg.RateLimitGeneral, cfg.RateLimitPublish, cfg.RateLimitLogin,
	))
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            log,
		AccessVerifier:    tokens,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Observer:          c.collector,
		Cookies: handler.CookieConfig{
			Domain:     cfg.CookieDomain,
			Secure:     cfg.CookieSecure,
			AccessTTL:  tokens.AccessTTL(),
			RefreshTTL: tokens.RefreshTTL(),
		},
		AuthService:    authService,
		RedditService:  c.publish,
		ContentService: c.publish,
		UserService:    user.NewService(c.users, log),
		HealthDB:       c.db,
		MetricsHandler: metrics.Handler(c.registry),
	})

	return serveHTTP(ctx, log, &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	})
}

// runWorker はワーカーモードで起動する。
// 同期スケジューラをメインgoroutineで実行し、失効リストのクリーンアップをバックグラウンドで実行する。
// /health と /metrics は同じポートで公開する。
func runWorker(ctx context.Context, w io.Writer) error {
	cfg, log, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}
	log.Info("starting application", slog.String("command", "worker"))

	c, err := buildComponents(ctx, cfg, log, true)
	if err != nil {
		return err
	}
	defer c.close()

	r := chi.NewRouter()
	r.Get("/health", handler.NewHealthHandler(c.db))
	r.Method(http.MethodGet, "/metrics", metrics.Handler(c.registry))
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := serveHTTP(ctx, log, server); err != nil {
			log.Error("worker http server failed", slog.String("error", err.Error()))
		}
	}()

	cleanupJob := cleanup.NewCleanupJob(c.revocations, c.collector, log)
	go cleanupJob.StartLoop(ctx, cfg.RevocationCleanupInterval)

	log.Info("worker starting",
		slog.Duration("reconcile_interval", cfg.ReconcileInterval),
		slog.Int("max_concurrent", cfg.ReconcileMaxConcurrent),
		slog.Bool("distributed_lock", cfg.RedisURL != ""),
	)

	// ctxのキャンセルで戻る
	c.scheduler.Start(ctx)

	log.Info("worker stopped gracefully")
	return nil
}

// serveHTTP はctxがキャンセルされるまでサーバーを動かし、その後グレースフルシャットダウンする。
func serveHTTP(ctx context.Context, log *slog.Logger, server *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info("http server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down http server...")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	log.Info("http server stopped gracefully")
	return nil
}

// runMigrateUp はすべての未適用マイグレーションを順番に適用する。
func runMigrateUp(w io.Writer) error {
	cfg, log, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}
	log.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)
	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	log.Info("database migrations completed successfully")
	return nil
}

// runMigrateDown は指定ステップ数だけマイグレーションを巻き戻す。
func runMigrateDown(w io.Writer, steps int) error {
	cfg, log, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}
	log.Info("rolling back database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		slog.Int("steps", steps),
	)
	if err := database.RollbackMigrations(cfg.DatabaseURL, steps); err != nil {
		return fmt.Errorf("rollback failed: %w", err)
	}
	log.Info("database rollback completed successfully")
	return nil
}

// runMigrateVersion は現在のスキーマバージョンをログに出力する。
func runMigrateVersion(w io.Writer) error {
	cfg, log, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}
	version, dirty, err := database.MigrationVersion(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to read migration version: %w", err)
	}
	log.Info("database migration version",
		slog.Uint64("version", uint64(version)),
		slog.Bool("dirty", dirty),
	)
	return nil
}

// runHealthcheck は /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(ctx context.Context, endpoint string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
