package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// MinSecretLength は署名鍵に要求する最小バイト長。
const MinSecretLength = 32

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Google identity
	GoogleClientID string

	// Token
	AccessTokenSecret  string
	RefreshTokenSecret string
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration

	// Reddit
	RedditClientID          string
	RedditClientSecret      string
	RedditRedirectURL       string
	RedditUserAgent         string
	RedditSubreddit         string
	RedditTimeout           time.Duration
	RedditRequestsPerMinute int
	PublishPersistTimeout   time.Duration

	// Reconcile
	ReconcileInterval      time.Duration
	ReconcileMaxConcurrent int
	ReconcileItemTimeout   time.Duration
	ReconcileYoungAge      time.Duration
	ReconcileYoungInterval time.Duration
	ReconcileOldInterval   time.Duration

	// Rate Limit
	RateLimitGeneral int
	RateLimitPublish int
	RateLimitLogin   int

	// Revocation cleanup
	RevocationCleanupInterval time.Duration

	// Optional infrastructure
	RedisURL         string
	RabbitMQURL      string
	RabbitMQExchange string

	// Logging
	LogLevel string

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに .env があれば先に読み込む（既存の環境変数は上書きしない）。
// 必須環境変数が未設定の場合、または署名鍵が不正な場合はエラーを返す。
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	// Required fields
	var missing []string
	required := func(key string) string {
		v := os.Getenv(key)
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}

	cfg.DatabaseURL = required("DATABASE_URL")
	cfg.GoogleClientID = required("GOOGLE_CLIENT_ID")
	cfg.AccessTokenSecret = required("ACCESS_TOKEN_SECRET")
	cfg.RefreshTokenSecret = required("REFRESH_TOKEN_SECRET")
	cfg.RedditClientID = required("REDDIT_CLIENT_ID")
	cfg.RedditClientSecret = required("REDDIT_CLIENT_SECRET")
	cfg.RedditRedirectURL = required("REDDIT_REDIRECT_URL")
	cfg.BaseURL = required("BASE_URL")

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	if err := validateSecrets(cfg.AccessTokenSecret, cfg.RefreshTokenSecret); err != nil {
		return nil, err
	}

	// Optional fields with defaults
	cfg.AccessTokenTTL = getEnvDuration("ACCESS_TOKEN_TTL", 15*time.Minute)
	cfg.RefreshTokenTTL = getEnvDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour)
	cfg.RedditUserAgent = getEnvString("REDDIT_USER_AGENT", "postpilot/1.0")
	cfg.RedditSubreddit = getEnvString("REDDIT_SUBREDDIT", "test")
	cfg.RedditTimeout = getEnvDuration("REDDIT_TIMEOUT", 15*time.Second)
	cfg.PublishPersistTimeout = getEnvDuration("PUBLISH_PERSIST_TIMEOUT", 10*time.Second)
	cfg.RedditRequestsPerMinute = getEnvInt("REDDIT_REQUESTS_PER_MINUTE", 60)
	cfg.ReconcileInterval = getEnvDuration("RECONCILE_INTERVAL", 2*time.Minute)
	cfg.ReconcileMaxConcurrent = getEnvInt("RECONCILE_MAX_CONCURRENT", 4)
	cfg.ReconcileItemTimeout = getEnvDuration("RECONCILE_ITEM_TIMEOUT", 20*time.Second)
	cfg.ReconcileYoungAge = getEnvDuration("RECONCILE_YOUNG_AGE", 24*time.Hour)
	cfg.ReconcileYoungInterval = getEnvDuration("RECONCILE_YOUNG_INTERVAL", time.Hour)
	cfg.ReconcileOldInterval = getEnvDuration("RECONCILE_OLD_INTERVAL", 24*time.Hour)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitPublish = getEnvInt("RATE_LIMIT_PUBLISH", 10)
	cfg.RateLimitLogin = getEnvInt("RATE_LIMIT_LOGIN", 20)
	cfg.RevocationCleanupInterval = getEnvDuration("REVOCATION_CLEANUP_INTERVAL", 24*time.Hour)
	cfg.RedisURL = getEnvString("REDIS_URL", "")
	cfg.RabbitMQURL = getEnvString("RABBITMQ_URL", "")
	cfg.RabbitMQExchange = getEnvString("RABBITMQ_EXCHANGE", "postpilot.events")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

// validateSecrets はアクセス用とリフレッシュ用の署名鍵を検証する。
// 同一鍵の使い回しはトークン種別の取り違えを許すため拒否する。
func validateSecrets(access, refresh string) error {
	if len(access) < MinSecretLength {
		return fmt.Errorf("ACCESS_TOKEN_SECRET must be at least %d bytes", MinSecretLength)
	}
	if len(refresh) < MinSecretLength {
		return fmt.Errorf("REFRESH_TOKEN_SECRET must be at least %d bytes", MinSecretLength)
	}
	if access == refresh {
		return errors.New("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET must differ")
	}
	return nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
