package reddit

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// DefaultRetryAfter はRetry-Afterヘッダーが無い429応答で待機する時間。
const DefaultRetryAfter = 60 * time.Second

var (
	// ErrUnauthorized はリフレッシュトークンやアクセストークンが拒否された場合のエラー。
	// 連携解除や失効を示すが、資格情報は自動では削除しない。
	ErrUnauthorized = errors.New("reddit: credential rejected")
	// ErrPostNotFound は投稿がReddit上に存在しない場合のエラー。
	ErrPostNotFound = errors.New("reddit: post not found")
	// ErrRateLimited はRedditのレート制限に達したことを示す。*RateLimitError はこれをラップする。
	ErrRateLimited = errors.New("reddit: rate limited")
	// ErrNoRefreshToken は認可コード交換の応答にリフレッシュトークンが含まれない場合のエラー。
	ErrNoRefreshToken = errors.New("reddit: authorization response has no refresh token")
)

// StatusClass はRedditのHTTPステータスコードの分類。
type StatusClass int

const (
	// StatusOK は成功（2xx）。
	StatusOK StatusClass = iota
	// StatusUnauthorized は資格情報の拒否（401/403）。
	StatusUnauthorized
	// StatusNotFound は対象の不在（404/410）。
	StatusNotFound
	// StatusRateLimited はレート制限（429）。
	StatusRateLimited
	// StatusUnavailable は一時的なサーバーエラー（5xx）。
	StatusUnavailable
	// StatusRejected はその他のクライアントエラー。
	StatusRejected
)

// ClassifyStatus はHTTPステータスコードを分類する。
func ClassifyStatus(statusCode int) StatusClass {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return StatusOK
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return StatusUnauthorized
	case statusCode == http.StatusNotFound || statusCode == http.StatusGone:
		return StatusNotFound
	case statusCode == http.StatusTooManyRequests:
		return StatusRateLimited
	case statusCode >= 500:
		return StatusUnavailable
	default:
		return StatusRejected
	}
}

// RateLimitError はRedditが429を返した場合のエラー。
// RetryAfterが経過するまで同じアカウントでの呼び出しを控える必要がある。
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("reddit: rate limited, retry after %s", e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// StatusError は分類上リトライ以外の扱いが決まっていないHTTPエラー。
type StatusError struct {
	Op         string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("reddit: %s returned status %d", e.Op, e.StatusCode)
}

// RetryAfterFrom はエラーがレート制限を示す場合、その待機時間を返す。
func RetryAfterFrom(err error) (time.Duration, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl.RetryAfter, true
	}
	return 0, false
}

// statusToError はステータスコードを呼び出し元が判別できるエラーに変換する。
// 2xxの場合はnilを返す。
func statusToError(op string, resp *http.Response) error {
	switch ClassifyStatus(resp.StatusCode) {
	case StatusOK:
		return nil
	case StatusUnauthorized:
		return fmt.Errorf("%s: %w", op, ErrUnauthorized)
	case StatusNotFound:
		return fmt.Errorf("%s: %w", op, ErrPostNotFound)
	case StatusRateLimited:
		return &RateLimitError{RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	default:
		return &StatusError{Op: op, StatusCode: resp.StatusCode}
	}
}

// parseRetryAfter はRetry-Afterヘッダー（秒数またはHTTP日付）を解釈する。
// 解釈できない場合はDefaultRetryAfterを返す。
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return DefaultRetryAfter
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
		return time.Duration(secs * float64(time.Second))
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return DefaultRetryAfter
}
