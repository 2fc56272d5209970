// Package publish はReddit連携とコンテンツ投稿のドメインロジックを提供する。
// すべての操作は認証ゲートで解決されたユーザーIDを受け取り、他ユーザーのコンテンツは見つからないものとして扱う。
package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/postpilot/internal/events"
	"github.com/hitoshi/postpilot/internal/metrics"
	"github.com/hitoshi/postpilot/internal/model"
	"github.com/hitoshi/postpilot/internal/reddit"
	"github.com/hitoshi/postpilot/internal/repository"
	"github.com/hitoshi/postpilot/internal/worker/reconcile"
)

// Remote はRedditのOAuthとAPI呼び出しを行う。
type Remote interface {
	AuthorizeURL(state string) string
	ExchangeCode(ctx context.Context, code string) (string, error)
	AccessToken(ctx context.Context, refreshToken string) (string, error)
	Submit(ctx context.Context, accessToken, subreddit, title, body string) (string, error)
	FetchMetrics(ctx context.Context, accessToken, postID string) (model.Metrics, error)
	EditText(ctx context.Context, accessToken, postID, body string) error
	Delete(ctx context.Context, accessToken, postID string) error
}

// MetricsRefresher は指定ユーザーの同期パスを実行する。
type MetricsRefresher interface {
	RunForUser(ctx context.Context, userID string) (reconcile.RunStats, error)
}

// EventPublisher はドメインイベントを発行する。
type EventPublisher interface {
	Publish(ctx context.Context, evt events.Event) error
}

// Recorder は投稿結果をメトリクスとして記録する。
type Recorder interface {
	RecordPublish(outcome string)
}

// PublishResult は投稿成功時の結果。
type PublishResult struct {
	ContentID    string        `json:"content_id"`
	RemotePostID string        `json:"remote_post_id"`
	Metrics      model.Metrics `json:"metrics"`
	PublishedAt  time.Time     `json:"published_at"`
}

// DefaultPersistTimeout はPersistTimeoutの既定値。
const DefaultPersistTimeout = 10 * time.Second

// Config はServiceの設定。
type Config struct {
	// DefaultSubreddit は入力でsubredditが指定されない場合の投稿先。
	DefaultSubreddit string
	// PersistTimeout はリクエストから切り離したDB操作（行ロック待ち、投稿結果の保存）ごとの上限。
	PersistTimeout time.Duration
}

// Option はServiceの任意の依存を設定する。
type Option func(*Service)

// WithPublisher はイベントの発行先を設定する。
func WithPublisher(p EventPublisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithRecorder はメトリクスの記録先を設定する。
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithRefresher は手動の指標更新に使う同期処理を設定する。
func WithRefresher(r MetricsRefresher) Option {
	return func(s *Service) { s.refresher = r }
}

// WithClock は現在時刻の取得関数を差し替える。
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service はReddit連携と投稿のサービス層。
type Service struct {
	users     repository.UserRepository
	contents  repository.ContentRepository
	tx        repository.TxManager
	remote    Remote
	sanitizer Sanitizer
	refresher MetricsRefresher
	publisher EventPublisher
	recorder  Recorder
	logger    *slog.Logger
	config    Config
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	users repository.UserRepository,
	contents repository.ContentRepository,
	tx repository.TxManager,
	remote Remote,
	sanitizer Sanitizer,
	logger *slog.Logger,
	cfg Config,
	opts ...Option,
) *Service {
	if cfg.DefaultSubreddit == "" {
		cfg.DefaultSubreddit = "test"
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = DefaultPersistTimeout
	}
	s := &Service{
		users:     users,
		contents:  contents,
		tx:        tx,
		remote:    remote,
		sanitizer: sanitizer,
		publisher: events.Nop{},
		recorder:  metrics.Nop{},
		logger:    logger,
		config:    cfg,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AuthorizeURL はReddit認可画面のURLを返す。
func (s *Service) AuthorizeURL(state string) string {
	return s.remote.AuthorizeURL(state)
}

// LinkExternalAccount は認可コードをリフレッシュ資格情報に交換してユーザーに保存する。
// 既存の資格情報は上書きする。交換に失敗した場合は何も書き込まない。
func (s *Service) LinkExternalAccount(ctx context.Context, userID, code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return model.NewLinkFailedError("認可コードがありません")
	}

	refreshToken, err := s.remote.ExchangeCode(ctx, code)
	if err != nil {
		s.logger.Warn("Reddit認可コードの交換に失敗しました",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return model.NewLinkFailedError(linkFailureReason(err))
	}

	if err := s.users.SetRedditCredential(ctx, userID, refreshToken, s.timestamp()); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewUserNotFoundError()
		}
		return fmt.Errorf("Reddit資格情報の保存に失敗しました: %w", err)
	}

	s.logger.Info("Redditアカウントを連携しました", slog.String("user_id", userID))
	return nil
}

func linkFailureReason(err error) string {
	switch {
	case errors.Is(err, reddit.ErrNoRefreshToken):
		return "リフレッシュトークンが返されませんでした"
	case errors.Is(err, reddit.ErrUnauthorized):
		return "認可コードが無効または期限切れです"
	default:
		return "Redditとの通信に失敗しました"
	}
}

// UnlinkExternalAccount はReddit資格情報を削除する。
// 投稿済みアイテムは残り、再連携するまで同期対象からスキップされる。
func (s *Service) UnlinkExternalAccount(ctx context.Context, userID string) error {
	if err := s.users.ClearRedditCredential(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewUserNotFoundError()
		}
		return fmt.Errorf("Reddit資格情報の削除に失敗しました: %w", err)
	}
	s.logger.Info("Redditアカウントの連携を解除しました", slog.String("user_id", userID))
	return nil
}

// LinkStatus はユーザーがRedditアカウントを連携済みかを返す。
func (s *Service) LinkStatus(ctx context.Context, userID string) (bool, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return false, model.NewUserNotFoundError()
	}
	return user.IsRedditLinked(), nil
}

// CreateContent は未投稿のコンテンツ（下書き）を作成する。
func (s *Service) CreateContent(ctx context.Context, userID string, in CreateInput) (*model.Content, error) {
	title, body, err := cleanText(s.sanitizer, in.Title, in.Body)
	if err != nil {
		return nil, model.NewValidationError(err.Error())
	}

	now := s.timestamp()
	content := &model.Content{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		Body:      body,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.contents.Create(ctx, content); err != nil {
		return nil, fmt.Errorf("コンテンツの作成に失敗しました: %w", err)
	}
	return content, nil
}

// ListContents はユーザーのコンテンツ一覧を返す。
func (s *Service) ListContents(ctx context.Context, userID string) ([]*model.Content, error) {
	contents, err := s.contents.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("コンテンツ一覧の取得に失敗しました: %w", err)
	}
	return contents, nil
}

// RefreshMyMetrics は呼び出したユーザーの投稿済みアイテムだけを対象に同期パスを実行する。
// 鮮度ポリシーは定期同期と同じく適用される。
func (s *Service) RefreshMyMetrics(ctx context.Context, userID string) (reconcile.RunStats, error) {
	if s.refresher == nil {
		return reconcile.RunStats{}, fmt.Errorf("指標の同期処理が設定されていません")
	}
	stats, err := s.refresher.RunForUser(ctx, userID)
	if err != nil {
		return reconcile.RunStats{}, fmt.Errorf("指標の更新に失敗しました: %w", err)
	}
	return stats, nil
}

// linkedAccessToken はユーザーのリフレッシュ資格情報からアクセストークンを取得する。
// 未連携の場合はNotLinkedエラーを返す。
func (s *Service) linkedAccessToken(ctx context.Context, userID string) (string, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return "", model.NewUserNotFoundError()
	}
	if !user.IsRedditLinked() {
		return "", model.NewNotLinkedError()
	}
	return s.remote.AccessToken(ctx, *user.RedditRefreshToken)
}

// timestamp は永続化する時刻を返す。TIMESTAMPTZと同じマイクロ秒精度に揃える。
func (s *Service) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func (s *Service) emit(ctx context.Context, evt events.Event) {
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.logger.Warn("イベントの発行に失敗しました",
			slog.String("type", evt.Type),
			slog.String("content_id", evt.ContentID),
			slog.String("error", err.Error()),
		)
	}
}
