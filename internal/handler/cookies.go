package handler

import (
	"net/http"
	"time"

	"github.com/hitoshi/postpilot/internal/middleware"
)

// CookieConfig は認証Cookieの属性。
type CookieConfig struct {
	Domain     string
	Secure     bool
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// refreshCookiePath はリフレッシュCookieを送信するパス。API以外には送らない。
const refreshCookiePath = "/api"

func (c CookieConfig) setAccess(w http.ResponseWriter, value string) {
	http.SetCookie(w, c.cookie(middleware.AccessTokenCookieName, value, "/", int(c.AccessTTL.Seconds())))
}

func (c CookieConfig) setRefresh(w http.ResponseWriter, value string) {
	http.SetCookie(w, c.cookie(middleware.RefreshTokenCookieName, value, refreshCookiePath, int(c.RefreshTTL.Seconds())))
}

// clear はアクセス・リフレッシュ両方のCookieを削除する。
func (c CookieConfig) clear(w http.ResponseWriter) {
	http.SetCookie(w, c.cookie(middleware.AccessTokenCookieName, "", "/", -1))
	http.SetCookie(w, c.cookie(middleware.RefreshTokenCookieName, "", refreshCookiePath, -1))
}

func (c CookieConfig) cookie(name, value, path string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Domain:   c.Domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteStrictMode,
	}
}
