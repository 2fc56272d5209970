package handler

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"log/slog"
	"net/http"

	"github.com/hitoshi/postpilot/internal/middleware"
	"github.com/hitoshi/postpilot/internal/model"
	"github.com/hitoshi/postpilot/internal/worker/reconcile"
)

const (
	redditStateCookie     = "reddit_oauth_state"
	redditStateCookiePath = "/api/reddit"
	redditStateMaxAge     = 600 // 10分
)

// RedditServiceInterface はReddit連携ハンドラーが必要とするサービスインターフェース。
type RedditServiceInterface interface {
	AuthorizeURL(state string) string
	LinkExternalAccount(ctx context.Context, userID, code string) error
	UnlinkExternalAccount(ctx context.Context, userID string) error
	LinkStatus(ctx context.Context, userID string) (bool, error)
	RefreshMyMetrics(ctx context.Context, userID string) (reconcile.RunStats, error)
}

// RedditHandler はReddit連携のHTTPハンドラー。
type RedditHandler struct {
	service RedditServiceInterface
	cookies CookieConfig
}

// NewRedditHandler はRedditHandlerを生成する。
func NewRedditHandler(service RedditServiceInterface, cookies CookieConfig) *RedditHandler {
	return &RedditHandler{service: service, cookies: cookies}
}

// AuthURL はReddit認可URLを返し、stateをCookieに保存する。
// GET /api/reddit/auth-url
func (h *RedditHandler) AuthURL(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUserID(w, r); !ok {
		return
	}

	state, err := generateState()
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to generate oauth state", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	// stateをCookieに保存（CSRF対策）
	http.SetCookie(w, h.stateCookie(state, redditStateMaxAge))
	writeJSON(w, http.StatusOK, map[string]string{"url": h.service.AuthorizeURL(state)})
}

type callbackRequest struct {
	Code  string `json:"code"`
	State string `json:"state"`
}

// Callback は認可コードを受け取りRedditアカウントを連携する。
// POST /api/reddit/callback
func (h *RedditHandler) Callback(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req callbackRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	// 1. stateの検証（CSRF対策）
	stateCookie, err := r.Cookie(redditStateCookie)
	if err != nil || req.State == "" ||
		subtle.ConstantTimeCompare([]byte(stateCookie.Value), []byte(req.State)) != 1 {
		slog.WarnContext(r.Context(), "reddit oauth state mismatch", slog.String("user_id", userID))
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewLinkFailedError("stateが一致しません"))
		return
	}

	// stateクッキーを削除
	http.SetCookie(w, h.stateCookie("", -1))

	// 2. 認可コードの交換と保存
	if err := h.service.LinkExternalAccount(r.Context(), userID, req.Code); err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"linked": true})
}

// LinkStatus はRedditアカウントの連携状態を返す。
// GET /api/reddit/link-status
func (h *RedditHandler) LinkStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	linked, err := h.service.LinkStatus(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"linked": linked})
}

// Unlink はRedditアカウントの連携を解除する。
// DELETE /api/reddit/link
func (h *RedditHandler) Unlink(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.UnlinkExternalAccount(r.Context(), userID); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RefreshMetrics は自分の投稿済みアイテムの指標を同期する。
// POST /api/reddit/metrics/refresh
func (h *RedditHandler) RefreshMetrics(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	stats, err := h.service.RefreshMyMetrics(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *RedditHandler) stateCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     redditStateCookie,
		Value:    value,
		Path:     redditStateCookiePath,
		Domain:   h.cookies.Domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// generateState はCSRF対策用のランダムなstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
