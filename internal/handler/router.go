package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/postpilot/internal/middleware"
)

// Observer はHTTPリクエストと認証失敗をメトリクスとして記録する。
type Observer interface {
	middleware.HTTPObserver
	middleware.AuthFailureRecorder
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// ミドルウェア依存
	AccessVerifier    middleware.AccessVerifier
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Observer          Observer
	Cookies           CookieConfig

	// サービス
	AuthService    AuthServiceInterface
	RedditService  RedditServiceInterface
	ContentService ContentServiceInterface
	UserService    UserServiceInterface

	// 運用エンドポイント
	HealthDB       Pinger
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → RealIP → Recovery → SecurityHeaders → CORS → Logging → CSRF
//	  → (保護ルートのみ) AuthGate → RateLimit(General) → (投稿のみ) RateLimit(Publish)
//
// /health と /metrics はCSRFとCORSの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.Cookies.Secure))

	r.Get("/health", NewHealthHandler(deps.HealthDB))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	var observer middleware.HTTPObserver
	var authRecorder middleware.AuthFailureRecorder
	if deps.Observer != nil {
		observer = deps.Observer
		authRecorder = deps.Observer
	}
	csrfConfig := middleware.CSRFConfig{
		CookieSecure: deps.Cookies.Secure,
		CookieDomain: deps.Cookies.Domain,
	}

	authHandler := NewAuthHandler(deps.AuthService, deps.Cookies)
	redditHandler := NewRedditHandler(deps.RedditService, deps.Cookies)
	contentHandler := NewContentHandler(deps.ContentService)
	userHandler := NewUserHandler(deps.UserService, deps.Cookies)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
		r.Use(middleware.NewLoggingMiddleware(deps.Logger, observer))
		r.Use(middleware.NewCSRFMiddleware(csrfConfig))

		// --- 認証不要のルート ---
		r.Method(http.MethodGet, "/csrf-token", middleware.NewCSRFTokenHandler(csrfConfig))
		r.With(deps.RateLimiter.LoginMiddleware()).Post("/login", authHandler.Login)
		r.With(deps.RateLimiter.LoginMiddleware()).Post("/refresh", authHandler.Refresh)
		r.Post("/logout", authHandler.Logout)

		// --- 認証が必要なルート ---
		// ミドルウェアスタック: AuthGate → RateLimit(General)
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewAuthGate(deps.AccessVerifier, authRecorder))
			r.Use(deps.RateLimiter.GeneralMiddleware())

			r.Get("/check", authHandler.Check)

			// Reddit連携
			r.Route("/reddit", func(r chi.Router) {
				r.Get("/auth-url", redditHandler.AuthURL)
				r.Post("/callback", redditHandler.Callback)
				r.Get("/link-status", redditHandler.LinkStatus)
				r.Delete("/link", redditHandler.Unlink)
				r.With(deps.RateLimiter.PublishMiddleware()).Post("/metrics/refresh", redditHandler.RefreshMetrics)
			})

			// コンテンツ管理
			r.Route("/contents", func(r chi.Router) {
				r.Get("/", contentHandler.List)
				r.Post("/", contentHandler.Create)

				r.Route("/{id}", func(r chi.Router) {
					r.Put("/", contentHandler.Edit)
					r.Delete("/", contentHandler.Delete)
					r.With(deps.RateLimiter.PublishMiddleware()).Post("/publish", contentHandler.Publish)
				})
			})

			// ユーザー管理
			r.Delete("/users/me", userHandler.Withdraw)
		})
	})

	return r
}
