// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/hitoshi/postpilot/internal/model"
	"github.com/hitoshi/postpilot/internal/token"
)

const (
	// AccessTokenCookieName はアクセストークンを格納するCookie名。
	AccessTokenCookieName = "access_token"
	// RefreshTokenCookieName はリフレッシュトークンを格納するCookie名。
	RefreshTokenCookieName = "refresh_token"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
var userIDContextKey = contextKey("user_id")

// AccessVerifier はアクセストークンを検証しユーザーIDを返すインターフェース。
// token.Serviceの部分集合として定義する。
type AccessVerifier interface {
	VerifyAccess(raw string) (string, error)
}

// AuthFailureRecorder は認証失敗を記録するインターフェース。
type AuthFailureRecorder interface {
	RecordAuthFailure(reason string)
}

// NewAuthGate はアクセストークンを検証するミドルウェアを返す。
// トークンはCookieから読み取り、無ければAuthorization: Bearerヘッダーを参照する。
// 検証に成功した場合のみユーザーIDをコンテキストに注入して次のハンドラを呼ぶ。
// 失敗した場合は401を返し、次のハンドラは呼ばない。リフレッシュは行わない。
func NewAuthGate(verifier AccessVerifier, recorder AuthFailureRecorder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. トークンを取得
			raw := accessTokenFromRequest(r)
			if raw == "" {
				rejectUnauthenticated(w, recorder, "missing")
				return
			}

			// 2. 署名と有効期限を検証
			userID, err := verifier.VerifyAccess(raw)
			if err != nil {
				reason := "invalid"
				if errors.Is(err, token.ErrExpiredToken) {
					reason = "expired"
				}
				rejectUnauthenticated(w, recorder, reason)
				return
			}

			// 3. 認証済みユーザーIDをコンテキストに注入
			annotateUserID(r.Context(), userID)
			ctx := context.WithValue(r.Context(), userIDContextKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func accessTokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(AccessTokenCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}

func rejectUnauthenticated(w http.ResponseWriter, recorder AuthFailureRecorder, reason string) {
	if recorder != nil {
		recorder.RecordAuthFailure(reason)
	}
	WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError(reason+" access token"))
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// Auth Gateを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}
