package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/postpilot/internal/auth"
	"github.com/hitoshi/postpilot/internal/middleware"
	"github.com/hitoshi/postpilot/internal/model"
	"github.com/hitoshi/postpilot/internal/token"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Login(ctx context.Context, rawIDToken string) (*auth.LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (token.Token, error)
	Logout(ctx context.Context, refreshToken string) error
	CurrentUser(ctx context.Context, userID string) (*model.User, error)
}

// AuthHandler はログイン・セッション関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	cookies CookieConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, cookies CookieConfig) *AuthHandler {
	return &AuthHandler{service: service, cookies: cookies}
}

type loginRequest struct {
	Token string `json:"token"`
}

// userResponse はユーザー情報のAPIレスポンス。
type userResponse struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	RedditLinked bool   `json:"reddit_linked"`
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{ID: u.ID, Email: u.Email, Name: u.Name, RedditLinked: u.IsRedditLinked()}
}

// Login はGoogle IDトークンを検証し、アクセス・リフレッシュCookieを設定する。
// POST /api/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Token == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("tokenは必須です"))
		return
	}

	result, err := h.service.Login(r.Context(), req.Token)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	h.cookies.setAccess(w, result.Tokens.Access.Value)
	h.cookies.setRefresh(w, result.Tokens.Refresh.Value)
	writeJSON(w, http.StatusOK, map[string]any{
		"user":              toUserResponse(result.User),
		"access_expires_at": result.Tokens.Access.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// Refresh はリフレッシュCookieから新しいアクセスCookieを発行する。
// リフレッシュトークン自体はローテーションしない。
// POST /api/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(middleware.RefreshTokenCookieName)
	if err != nil || cookie.Value == "" {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewRefreshExpiredError())
		return
	}

	access, err := h.service.Refresh(r.Context(), cookie.Value)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	h.cookies.setAccess(w, access.Value)
	writeJSON(w, http.StatusOK, map[string]any{
		"access_expires_at": access.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// Logout はリフレッシュトークンを失効させ、Cookieを削除する。
// POST /api/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(middleware.RefreshTokenCookieName); err == nil && cookie.Value != "" {
		if err := h.service.Logout(r.Context(), cookie.Value); err != nil {
			// 失効に失敗してもCookieはクリアする
			slog.ErrorContext(r.Context(), "failed to revoke refresh token", slog.String("error", err.Error()))
		}
	}

	h.cookies.clear(w)
	w.WriteHeader(http.StatusNoContent)
}

// Check は現在のセッションのユーザー情報を返す。
// GET /api/check
func (h *AuthHandler) Check(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	user, err := h.service.CurrentUser(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"user":          toUserResponse(user),
	})
}
