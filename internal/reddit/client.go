// Package reddit はRedditのOAuth2認可とREST APIの呼び出しを提供する。
// 認可コード交換、リフレッシュグラント、投稿、エンゲージメント取得、編集、削除を扱う。
package reddit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/hitoshi/postpilot/internal/model"
)

const (
	defaultAuthURL  = "https://www.reddit.com/api/v1/authorize"
	defaultTokenURL = "https://www.reddit.com/api/v1/access_token"
	defaultAPIBase  = "https://oauth.reddit.com"

	// maxResponseBytes はAPIレスポンスとして読み取る最大バイト数。
	maxResponseBytes = 1 << 20
)

// Scopes はリンク時に要求するOAuthスコープ。
var Scopes = []string{"identity", "submit", "read", "edit"}

// Config はRedditクライアントの設定。
type Config struct {
	ClientID          string
	ClientSecret      string
	RedirectURL       string
	UserAgent         string
	Timeout           time.Duration
	RequestsPerMinute int

	// 空の場合は本番のエンドポイントを使う。テストで差し替える。
	AuthURL    string
	TokenURL   string
	APIBaseURL string
}

// CallObserver はReddit API呼び出しの所要時間と結果を記録する。
type CallObserver interface {
	ObserveRedditCall(op, outcome string, duration time.Duration)
}

// Client はReddit APIのクライアント。
// すべての呼び出しはタイムアウト付きhttp.Clientとクライアント側のレートリミッターを通る。
type Client struct {
	oauth      *oauth2.Config
	httpClient *http.Client
	apiBase    string
	limiter    *rate.Limiter
	logger     *slog.Logger
	observer   CallObserver
}

// NewClient はClientの新しいインスタンスを生成する。observerはnilでもよい。
func NewClient(cfg Config, logger *slog.Logger, observer CallObserver) *Client {
	authURL := orDefault(cfg.AuthURL, defaultAuthURL)
	tokenURL := orDefault(cfg.TokenURL, defaultTokenURL)
	apiBase := strings.TrimRight(orDefault(cfg.APIBaseURL, defaultAPIBase), "/")

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 60
	}
	burst := rpm / 10
	if burst < 1 {
		burst = 1
	}

	return &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   authURL,
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: newUserAgentTransport(http.DefaultTransport, cfg.UserAgent),
		},
		apiBase:  apiBase,
		limiter:  rate.NewLimiter(rate.Limit(float64(rpm)/60.0), burst),
		logger:   logger,
		observer: observer,
	}
}

// AuthorizeURL はユーザーをリダイレクトするRedditの認可URLを返す。
// 恒久的なリフレッシュトークンを得るためduration=permanentを付与する。
func (c *Client) AuthorizeURL(state string) string {
	return c.oauth.AuthCodeURL(state, oauth2.SetAuthURLParam("duration", "permanent"))
}

// ExchangeCode は認可コードをリフレッシュトークンに交換する。
func (c *Client) ExchangeCode(ctx context.Context, code string) (string, error) {
	var refreshToken string
	err := c.call(ctx, "exchange_code", func(ctx context.Context) error {
		tok, err := c.oauth.Exchange(c.oauthContext(ctx), code)
		if err != nil {
			return classifyOAuthError("exchange_code", err)
		}
		if tok.RefreshToken == "" {
			return ErrNoRefreshToken
		}
		refreshToken = tok.RefreshToken
		return nil
	})
	return refreshToken, err
}

// AccessToken はリフレッシュトークンから短命のアクセストークンを取得する。
func (c *Client) AccessToken(ctx context.Context, refreshToken string) (string, error) {
	var accessToken string
	err := c.call(ctx, "refresh_token", func(ctx context.Context) error {
		src := c.oauth.TokenSource(c.oauthContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
		tok, err := src.Token()
		if err != nil {
			return classifyOAuthError("refresh_token", err)
		}
		accessToken = tok.AccessToken
		return nil
	})
	return accessToken, err
}

// submitResponse は /api/submit (api_type=json) のレスポンス。
type submitResponse struct {
	JSON struct {
		Errors [][]any `json:"errors"`
		Data   struct {
			ID   string `json:"id"`
			Name string `json:"name"`
			URL  string `json:"url"`
		} `json:"data"`
	} `json:"json"`
}

// Submit はセルフポストを投稿し、投稿ID（t3_接頭辞なし）を返す。
func (c *Client) Submit(ctx context.Context, accessToken, subreddit, title, body string) (string, error) {
	form := url.Values{
		"api_type": {"json"},
		"kind":     {"self"},
		"sr":       {subreddit},
		"title":    {title},
		"text":     {body},
	}

	var postID string
	err := c.call(ctx, "submit", func(ctx context.Context) error {
		var resp submitResponse
		if err := c.doJSON(ctx, "submit", http.MethodPost, "/api/submit", accessToken, form, &resp); err != nil {
			return err
		}
		if err := jsonErrors("submit", resp.JSON.Errors); err != nil {
			return err
		}
		if resp.JSON.Data.ID == "" {
			return fmt.Errorf("submit: response has no post id")
		}
		postID = resp.JSON.Data.ID
		return nil
	})
	return postID, err
}

// listing は /api/info のレスポンス。数値の欠落や型違いを検出するためdataはmapで受ける。
type listing struct {
	Data struct {
		Children []struct {
			Kind string         `json:"kind"`
			Data map[string]any `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// FetchMetrics は投稿のエンゲージメント（ups, num_comments）を取得する。
// 欠落または数値でない項目は0として扱う。投稿が見つからない場合はErrPostNotFoundを返す。
func (c *Client) FetchMetrics(ctx context.Context, accessToken, postID string) (model.Metrics, error) {
	var metrics model.Metrics
	err := c.call(ctx, "fetch_metrics", func(ctx context.Context) error {
		var resp listing
		path := "/api/info?id=" + url.QueryEscape(fullname(postID))
		if err := c.doJSON(ctx, "fetch_metrics", http.MethodGet, path, accessToken, nil, &resp); err != nil {
			return err
		}
		if len(resp.Data.Children) == 0 {
			return fmt.Errorf("fetch_metrics %s: %w", postID, ErrPostNotFound)
		}
		data := resp.Data.Children[0].Data
		metrics = model.Metrics{
			Approvals:   intField(data, "ups"),
			Discussions: intField(data, "num_comments"),
		}
		return nil
	})
	return metrics, err
}

// EditText はセルフポストの本文を更新する。Redditではタイトルは変更できない。
func (c *Client) EditText(ctx context.Context, accessToken, postID, body string) error {
	form := url.Values{
		"api_type": {"json"},
		"thing_id": {fullname(postID)},
		"text":     {body},
	}
	return c.call(ctx, "edit", func(ctx context.Context) error {
		var resp submitResponse
		if err := c.doJSON(ctx, "edit", http.MethodPost, "/api/editusertext", accessToken, form, &resp); err != nil {
			return err
		}
		return jsonErrors("edit", resp.JSON.Errors)
	})
}

// Delete は投稿を削除する。
func (c *Client) Delete(ctx context.Context, accessToken, postID string) error {
	form := url.Values{"id": {fullname(postID)}}
	return c.call(ctx, "delete", func(ctx context.Context) error {
		return c.doJSON(ctx, "delete", http.MethodPost, "/api/del", accessToken, form, nil)
	})
}

// call はレートリミッターで待機してからfnを実行し、所要時間と結果を記録する。
func (c *Client) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: waiting for rate limiter: %w", op, err)
	}

	start := time.Now()
	err := fn(ctx)
	duration := time.Since(start)

	if c.observer != nil {
		c.observer.ObserveRedditCall(op, outcome(err), duration)
	}
	if err != nil {
		c.logger.Warn("reddit api call failed",
			slog.String("op", op),
			slog.String("error", err.Error()),
			slog.Duration("duration", duration),
		)
	}
	return err
}

// doJSON はアクセストークン付きでAPIを呼び出し、2xxならレスポンスをoutにデコードする。
// formがnilでない場合はフォームとして送信する。
func (c *Client) doJSON(ctx context.Context, op, method, path, accessToken string, form url.Values, out any) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiBase+path, body)
	if err != nil {
		return fmt.Errorf("%s: building request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if err := statusToError(op, resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}

	dec := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%s: decoding response: %w", op, err)
	}
	return nil
}

// oauthContext はoauth2がトークンエンドポイント呼び出しに使うhttp.Clientを差し込む。
func (c *Client) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

// classifyOAuthError はトークンエンドポイントのエラーを分類する。
// invalid_grant は失効または取り消されたリフレッシュトークン・認可コードを示す。
func classifyOAuthError(op string, err error) error {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return fmt.Errorf("%s: %w", op, err)
	}
	if re.ErrorCode == "invalid_grant" {
		return fmt.Errorf("%s: %w", op, ErrUnauthorized)
	}
	if re.Response != nil {
		if classified := statusToError(op, re.Response); classified != nil {
			return classified
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// jsonErrors はapi_type=jsonのerrors配列をエラーに変換する。
// RATELIMITはRedditの「操作が多すぎる」応答なのでレート制限として扱う。
func jsonErrors(op string, errs [][]any) error {
	if len(errs) == 0 {
		return nil
	}
	first := errs[0]
	if len(first) > 0 {
		if code, ok := first[0].(string); ok && code == "RATELIMIT" {
			return &RateLimitError{RetryAfter: DefaultRetryAfter}
		}
	}
	return fmt.Errorf("%s rejected: %v", op, first)
}

// intField は数値項目を取り出す。欠落や数値以外は0を返す。
func intField(data map[string]any, key string) int {
	n, ok := data[key].(json.Number)
	if !ok {
		return 0
	}
	if i, err := n.Int64(); err == nil {
		return int(i)
	}
	if f, err := n.Float64(); err == nil {
		return int(f)
	}
	return 0
}

// fullname は投稿IDにリンク種別の接頭辞を付ける。
func fullname(postID string) string {
	if strings.HasPrefix(postID, "t3_") {
		return postID
	}
	return "t3_" + postID
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrPostNotFound):
		return "not_found"
	default:
		return "error"
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
