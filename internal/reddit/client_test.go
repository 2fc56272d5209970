package reddit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/postpilot/internal/model"
)

type recordedCall struct {
	op      string
	outcome string
}

type callRecorder struct {
	mu    sync.Mutex
	calls []recordedCall
}

func (r *callRecorder) ObserveRedditCall(op, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, recordedCall{op, outcome})
}

// fakeReddit はトークンエンドポイントとAPIを兼ねるテスト用サーバー。
type fakeReddit struct {
	t      *testing.T
	server *httptest.Server
	mux    *http.ServeMux
}

func newFakeReddit(t *testing.T) *fakeReddit {
	t.Helper()
	f := &fakeReddit{t: t, mux: http.NewServeMux()}
	f.server = httptest.NewServer(f.mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeReddit) client(rec *callRecorder) *Client {
	var observer CallObserver
	if rec != nil {
		observer = rec
	}
	return NewClient(Config{
		ClientID:          "cid",
		ClientSecret:      "csecret",
		RedirectURL:       "http://localhost:3000/reddit-callback",
		UserAgent:         "postpilot-test/1.0",
		Timeout:           2 * time.Second,
		RequestsPerMinute: 6000,
		AuthURL:           f.server.URL + "/api/v1/authorize",
		TokenURL:          f.server.URL + "/api/v1/access_token",
		APIBaseURL:        f.server.URL,
	}, slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil)), observer)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestAuthorizeURL_ContainsPermanentDurationAndScopes(t *testing.T) {
	f := newFakeReddit(t)
	raw := f.client(nil).AuthorizeURL("state-1")

	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "/api/v1/authorize", u.Path)
	assert.Equal(t, "cid", q.Get("client_id"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "state-1", q.Get("state"))
	assert.Equal(t, "permanent", q.Get("duration"))
	assert.Equal(t, "identity submit read edit", q.Get("scope"))
	assert.Equal(t, "http://localhost:3000/reddit-callback", q.Get("redirect_uri"))
}

func TestExchangeCode_ReturnsRefreshToken(t *testing.T) {
	f := newFakeReddit(t)
	f.mux.HandleFunc("/api/v1/access_token", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok, "client credentials must be sent as basic auth")
		assert.Equal(t, "cid", user)
		assert.Equal(t, "csecret", pass)
		assert.Equal(t, "postpilot-test/1.0", r.Header.Get("User-Agent"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		assert.Equal(t, "abc123", r.PostForm.Get("code"))

		writeJSON(w, http.StatusOK, map[string]any{
			"access_token":  "at_1",
			"token_type":    "bearer",
			"expires_in":    3600,
			"refresh_token": "rt_xyz",
		})
	})

	rec := &callRecorder{}
	rt, err := f.client(rec).ExchangeCode(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, "rt_xyz", rt)
	assert.Equal(t, []recordedCall{{"exchange_code", "ok"}}, rec.calls)
}

func TestExchangeCode_MissingRefreshToken(t *testing.T) {
	f := newFakeReddit(t)
	f.mux.HandleFunc("/api/v1/access_token", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"access_token": "at_1", "token_type": "bearer"})
	})

	_, err := f.client(nil).ExchangeCode(context.Background(), "abc123")
	assert.ErrorIs(t, err, ErrNoRefreshToken)
}

func TestExchangeCode_InvalidGrant(t *testing.T) {
	f := newFakeReddit(t)
	f.mux.HandleFunc("/api/v1/access_token", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_grant"})
	})

	_, err := f.client(nil).ExchangeCode(context.Background(), "bad")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestAccessToken_RefreshGrant(t *testing.T) {
	f := newFakeReddit(t)
	f.mux.HandleFunc("/api/v1/access_token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "rt_xyz", r.PostForm.Get("refresh_token"))
		writeJSON(w, http.StatusOK, map[string]any{"access_token": "at_2", "token_type": "bearer", "expires_in": 3600})
	})

	at, err := f.client(nil).AccessToken(context.Background(), "rt_xyz")
	require.NoError(t, err)
	assert.Equal(t, "at_2", at)
}

func TestAccessToken_RateLimited(t *testing.T) {
	f := newFakeReddit(t)
	f.mux.HandleFunc("/api/v1/access_token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		writeJSON(w, http.StatusTooManyRequests, map[string]any{"error": "too many requests"})
	})

	_, err := f.client(nil).AccessToken(context.Background(), "rt_xyz")
	require.ErrorIs(t, err, ErrRateLimited)
	d, ok := RetryAfterFrom(err)
	assert.True(t, ok)
	assert.Equal(t, 7*time.Second, d)
}

func TestSubmit_PostsSelfPost(t *testing.T) {
	f := newFakeReddit(t)
	f.mux.HandleFunc("/api/submit", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer at_1", r.Header.Get("Authorization"))
		assert.Equal(t, "postpilot-test/1.0", r.Header.Get("User-Agent"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "self", r.PostForm.Get("kind"))
		assert.Equal(t, "test", r.PostForm.Get("sr"))
		assert.Equal(t, "T", r.PostForm.Get("title"))
		assert.Equal(t, "B", r.PostForm.Get("text"))
		assert.Equal(t, "json", r.PostForm.Get("api_type"))

		writeJSON(w, http.StatusOK, map[string]any{
			"json": map[string]any{
				"errors": []any{},
				"data":   map[string]any{"id": "abc", "name": "t3_abc"},
			},
		})
	})

	id, err := f.client(nil).Submit(context.Background(), "at_1", "test", "T", "B")
	require.NoError(t, err)
	assert.Equal(t, "abc", id)
}

func TestSubmit_JSONErrors(t *testing.T) {
	tests := []struct {
		name      string
		errs      []any
		rateLimit bool
	}{
		{"subreddit rejected", []any{[]any{"SUBREDDIT_NOEXIST", "that subreddit doesn't exist", "sr"}}, false},
		{"ratelimit", []any{[]any{"RATELIMIT", "you are doing that too much", "ratelimit"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeReddit(t)
			f.mux.HandleFunc("/api/submit", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, map[string]any{"json": map[string]any{"errors": tt.errs}})
			})

			_, err := f.client(nil).Submit(context.Background(), "at_1", "nope", "T", "B")
			require.Error(t, err)
			assert.Equal(t, tt.rateLimit, errors.Is(err, ErrRateLimited))
		})
	}
}

func TestFetchMetrics(t *testing.T) {
	tests := []struct {
		name string
		data map[string]any
		want model.Metrics
	}{
		{"both present", map[string]any{"ups": 5, "num_comments": 2}, model.Metrics{Approvals: 5, Discussions: 2}},
		{"missing comments", map[string]any{"ups": 5}, model.Metrics{Approvals: 5, Discussions: 0}},
		{"non numeric", map[string]any{"ups": "many", "num_comments": nil}, model.Metrics{}},
		{"float counter", map[string]any{"ups": 3.0, "num_comments": 1}, model.Metrics{Approvals: 3, Discussions: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeReddit(t)
			f.mux.HandleFunc("/api/info", func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "t3_abc", r.URL.Query().Get("id"))
				writeJSON(w, http.StatusOK, map[string]any{
					"kind": "Listing",
					"data": map[string]any{
						"children": []any{map[string]any{"kind": "t3", "data": tt.data}},
					},
				})
			})

			got, err := f.client(nil).FetchMetrics(context.Background(), "at_1", "abc")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFetchMetrics_EmptyListingIsNotFound(t *testing.T) {
	f := newFakeReddit(t)
	f.mux.HandleFunc("/api/info", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"children": []any{}}})
	})

	rec := &callRecorder{}
	_, err := f.client(rec).FetchMetrics(context.Background(), "at_1", "gone")
	assert.ErrorIs(t, err, ErrPostNotFound)
	assert.Equal(t, []recordedCall{{"fetch_metrics", "not_found"}}, rec.calls)
}

func TestFetchMetrics_StatusClassification(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusForbidden, ErrUnauthorized},
		{http.StatusNotFound, ErrPostNotFound},
		{http.StatusTooManyRequests, ErrRateLimited},
	}
	for _, tt := range tests {
		f := newFakeReddit(t)
		f.mux.HandleFunc("/api/info", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		})

		_, err := f.client(nil).FetchMetrics(context.Background(), "at_1", "abc")
		assert.ErrorIs(t, err, tt.want, "status %d", tt.status)
	}
}

func TestFetchMetrics_ServerErrorIsStatusError(t *testing.T) {
	f := newFakeReddit(t)
	f.mux.HandleFunc("/api/info", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := f.client(nil).FetchMetrics(context.Background(), "at_1", "abc")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadGateway, se.StatusCode)
}

func TestEditText_And_Delete_UseFullname(t *testing.T) {
	f := newFakeReddit(t)
	f.mux.HandleFunc("/api/editusertext", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "t3_abc", r.PostForm.Get("thing_id"))
		assert.Equal(t, "new body", r.PostForm.Get("text"))
		writeJSON(w, http.StatusOK, map[string]any{"json": map[string]any{"errors": []any{}}})
	})
	f.mux.HandleFunc("/api/del", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "t3_abc", r.PostForm.Get("id"))
		writeJSON(w, http.StatusOK, map[string]any{})
	})

	c := f.client(nil)
	require.NoError(t, c.EditText(context.Background(), "at_1", "abc", "new body"))
	require.NoError(t, c.Delete(context.Background(), "at_1", "t3_abc"))
}

func TestClient_TimeoutIsFailure(t *testing.T) {
	f := newFakeReddit(t)
	f.mux.HandleFunc("/api/info", func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := f.client(nil).FetchMetrics(ctx, "at_1", "abc")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "deadline"))
}

func TestClassifyStatus(t *testing.T) {
	assert.Equal(t, StatusOK, ClassifyStatus(200))
	assert.Equal(t, StatusOK, ClassifyStatus(204))
	assert.Equal(t, StatusUnauthorized, ClassifyStatus(401))
	assert.Equal(t, StatusNotFound, ClassifyStatus(410))
	assert.Equal(t, StatusRateLimited, ClassifyStatus(429))
	assert.Equal(t, StatusUnavailable, ClassifyStatus(503))
	assert.Equal(t, StatusRejected, ClassifyStatus(400))
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, DefaultRetryAfter, parseRetryAfter(""))
	assert.Equal(t, DefaultRetryAfter, parseRetryAfter("soon"))
	assert.Equal(t, 30*time.Second, parseRetryAfter("30"))
	assert.Equal(t, 1500*time.Millisecond, parseRetryAfter("1.5"))
}
