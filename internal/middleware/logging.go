package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// statusRecorder はhttp.ResponseWriterをラップし、ステータスコードを記録する。
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

// WriteHeader はステータスコードを記録してから委譲する。
func (sr *statusRecorder) WriteHeader(code int) {
	if !sr.written {
		sr.statusCode = code
		sr.written = true
	}
	sr.ResponseWriter.WriteHeader(code)
}

// Write はデータを書き込む。WriteHeaderが未呼び出しの場合は200を記録する。
func (sr *statusRecorder) Write(b []byte) (int, error) {
	if !sr.written {
		sr.statusCode = http.StatusOK
		sr.written = true
	}
	return sr.ResponseWriter.Write(b)
}

// logAnnotationsKey は内側のミドルウェアがログ項目を書き戻す先を格納するキー。
var logAnnotationsKey = contextKey("log_annotations")

// logAnnotations は内側のハンドラで判明するログ項目を保持する。
// r.WithContextで作られた子コンテキストは外側から見えないため、ポインタを共有して受け渡す。
type logAnnotations struct {
	userID string
}

// annotateUserID はロギングミドルウェアが出力するuser_idを設定する。
// ロギングミドルウェアの内側でなければ何もしない。
func annotateUserID(ctx context.Context, userID string) {
	if a, ok := ctx.Value(logAnnotationsKey).(*logAnnotations); ok {
		a.userID = userID
	}
}

// HTTPObserver はリクエスト処理結果をメトリクスとして記録するインターフェース。
type HTTPObserver interface {
	ObserveHTTPRequest(method, route string, status int, duration time.Duration)
}

// NewLoggingMiddleware はリクエストのJSON構造化ログを出力するミドルウェアを返す。
// ログにはmethod、path、route、status、duration_ms、request_id、user_id（内側のAuthGateで認証された場合）を含む。
// observerがnilでなければ同じ値をメトリクスにも記録する。
func NewLoggingMiddleware(logger *slog.Logger, observer HTTPObserver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rec := &statusRecorder{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			annotations := &logAnnotations{}
			r = r.WithContext(context.WithValue(r.Context(), logAnnotationsKey, annotations))

			next.ServeHTTP(rec, r)

			duration := time.Since(start)
			route := routePattern(r)

			args := []any{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("route", route),
				slog.Int("status", rec.statusCode),
				slog.Float64("duration_ms", float64(duration.Nanoseconds())/float64(time.Millisecond)),
			}
			if reqID := chimw.GetReqID(r.Context()); reqID != "" {
				args = append(args, slog.String("request_id", reqID))
			}
			if annotations.userID != "" {
				args = append(args, slog.String("user_id", annotations.userID))
			} else if userID, err := UserIDFromContext(r.Context()); err == nil {
				args = append(args, slog.String("user_id", userID))
			}

			level := slog.LevelInfo
			if rec.statusCode >= 500 {
				level = slog.LevelError
			} else if rec.statusCode >= 400 {
				level = slog.LevelWarn
			}
			logger.Log(r.Context(), level, "http_request", args...)

			if observer != nil {
				observer.ObserveHTTPRequest(r.Method, route, rec.statusCode, duration)
			}
		})
	}
}

// routePattern はchiのルートパターン（例: /api/contents/{id}）を返す。
// パスパラメータでメトリクスのラベルが増えないようにするため。
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
