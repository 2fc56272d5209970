package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

type observation struct {
	method string
	route  string
	status int
}

type recordingObserver struct {
	got []observation
}

func (o *recordingObserver) ObserveHTTPRequest(method, route string, status int, _ time.Duration) {
	o.got = append(o.got, observation{method, route, status})
}

func decodeLogEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON log: %v\nraw: %s", err, buf.String())
	}
	return entry
}

func TestLoggingMiddleware_LogsRequestFields(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	handler := NewLoggingMiddleware(logger, nil)(okHandler())
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/contents", nil))

	entry := decodeLogEntry(t, &buf)
	if entry["msg"] != "http_request" {
		t.Errorf("msg = %v, want http_request", entry["msg"])
	}
	if entry["method"] != "GET" {
		t.Errorf("method = %v, want GET", entry["method"])
	}
	if entry["path"] != "/api/contents" {
		t.Errorf("path = %v, want /api/contents", entry["path"])
	}
	if entry["route"] != "unmatched" {
		t.Errorf("route = %v, want unmatched outside a chi router", entry["route"])
	}
	if entry["status"] != float64(200) {
		t.Errorf("status = %v, want 200", entry["status"])
	}
	if _, ok := entry["duration_ms"]; !ok {
		t.Error("expected duration_ms field")
	}
	if _, ok := entry["user_id"]; ok {
		t.Error("user_id should be omitted for anonymous requests")
	}
}

func TestLoggingMiddleware_IncludesUserIDAndRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	handler := chimw.RequestID(NewLoggingMiddleware(logger, nil)(okHandler()))
	req := userRequest("U1")
	req.Header.Set(chimw.RequestIDHeader, "req-42")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	entry := decodeLogEntry(t, &buf)
	if entry["user_id"] != "U1" {
		t.Errorf("user_id = %v, want U1", entry["user_id"])
	}
	if entry["request_id"] != "req-42" {
		t.Errorf("request_id = %v, want req-42", entry["request_id"])
	}
}

func TestLoggingMiddleware_LevelFollowsStatus(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{http.StatusOK, "INFO"},
		{http.StatusNotFound, "WARN"},
		{http.StatusBadGateway, "ERROR"},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		logger := slog.New(slog.NewJSONHandler(&buf, nil))
		handler := NewLoggingMiddleware(logger, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))

		entry := decodeLogEntry(t, &buf)
		if entry["level"] != tt.level {
			t.Errorf("status %d: level = %v, want %s", tt.status, entry["level"], tt.level)
		}
		if entry["status"] != float64(tt.status) {
			t.Errorf("status = %v, want %d", entry["status"], tt.status)
		}
	}
}

func TestLoggingMiddleware_BodyWriteRecords200(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	handler := NewLoggingMiddleware(logger, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))

	if entry := decodeLogEntry(t, &buf); entry["status"] != float64(200) {
		t.Errorf("status = %v, want 200", entry["status"])
	}
}

func TestLoggingMiddleware_ObservesRoutePattern(t *testing.T) {
	var buf bytes.Buffer
	observer := &recordingObserver{}

	r := chi.NewRouter()
	r.Use(NewLoggingMiddleware(slog.New(slog.NewJSONHandler(&buf, nil)), observer))
	r.Put("/api/contents/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPut, "/api/contents/abc", nil))

	if len(observer.got) != 1 {
		t.Fatalf("observations = %d, want 1", len(observer.got))
	}
	want := observation{http.MethodPut, "/api/contents/{id}", http.StatusConflict}
	if observer.got[0] != want {
		t.Errorf("observation = %+v, want %+v", observer.got[0], want)
	}
}

func TestLoggingMiddleware_UserIDFromInnerAuthGate(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	now := time.Now()
	tokens := newGateTokens(t, &now)
	access, err := tokens.IssueAccessToken("U7")
	if err != nil {
		t.Fatalf("IssueAccessToken() error = %v", err)
	}

	// 本番と同じくAuthGateはロギングミドルウェアの内側に置く
	r := chi.NewRouter()
	r.Use(NewLoggingMiddleware(logger, nil))
	r.Group(func(r chi.Router) {
		r.Use(NewAuthGate(tokens, nil))
		r.Get("/api/check", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})

	req := httptest.NewRequest(http.MethodGet, "/api/check", nil)
	req.AddCookie(&http.Cookie{Name: AccessTokenCookieName, Value: access.Value})
	r.ServeHTTP(httptest.NewRecorder(), req)

	entry := decodeLogEntry(t, &buf)
	if entry["user_id"] != "U7" {
		t.Errorf("user_id = %v, want U7", entry["user_id"])
	}
}

func TestLoggingMiddleware_RejectedByAuthGate_NoUserID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	now := time.Now()

	handler := NewLoggingMiddleware(logger, nil)(NewAuthGate(newGateTokens(t, &now), nil)(okHandler()))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/check", nil))

	entry := decodeLogEntry(t, &buf)
	if _, ok := entry["user_id"]; ok {
		t.Error("user_id should be omitted when the gate rejects the request")
	}
	if entry["status"] != float64(http.StatusUnauthorized) {
		t.Errorf("status = %v, want 401", entry["status"])
	}
}
