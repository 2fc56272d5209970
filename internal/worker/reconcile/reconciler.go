package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/postpilot/internal/events"
	"github.com/hitoshi/postpilot/internal/model"
	"github.com/hitoshi/postpilot/internal/reddit"
)

// アイテム単位の処理結果。メトリクスのラベルにも使う。
const (
	OutcomeUpdated      = "updated"
	OutcomeFailed       = "failed"
	OutcomeFresh        = "skipped_fresh"
	OutcomeNoCredential = "skipped_no_credential"
	OutcomeBackoff      = "skipped_backoff"
	OutcomeConflict     = "skipped_conflict"
)

// reconcileItem は1アイテムの指標を取得して書き込む。
// 失敗はログに残してOutcomeFailedを返し、呼び出し元のティックは継続する。
// 資格情報が拒否されても連携は解除しない。
func (s *Scheduler) reconcileItem(ctx context.Context, t *model.ReconcileTarget, tokens *tokenCache) string {
	logger := s.logger.With(
		slog.String("content_id", t.ID),
		slog.String("user_id", t.UserID),
	)

	// キュー待ちの間に他のアイテムがレート制限を受けていれば呼び出さない
	if s.inBackoff(s.now()) {
		return OutcomeBackoff
	}

	accessToken, err := tokens.get(ctx, t.UserID, *t.RefreshToken)
	if err != nil {
		s.onRemoteError(logger, "Redditアクセストークンの取得に失敗しました", err)
		return OutcomeFailed
	}

	postID := ""
	if t.RemotePostID != nil {
		postID = *t.RemotePostID
	}
	fetched, err := s.remote.FetchMetrics(ctx, accessToken, postID)
	if err != nil {
		s.onRemoteError(logger, "Reddit投稿の指標取得に失敗しました", err)
		return OutcomeFailed
	}

	reconciledAt := s.now()
	ok, err := s.store.UpdateMetrics(ctx, t.ID, fetched, reconciledAt, t.LastReconciledAt)
	if err != nil {
		logger.Error("指標の保存に失敗しました", slog.String("error", err.Error()))
		return OutcomeFailed
	}
	if !ok {
		// 他の同期（手動更新や別ワーカー）が先に書き込んだ
		logger.Info("指標は他の同期によって更新済みのためスキップしました")
		return OutcomeConflict
	}

	if err := s.publisher.Publish(ctx, events.Event{
		Type:         events.TypeContentMetricsUpdated,
		ContentID:    t.ID,
		UserID:       t.UserID,
		RemotePostID: postID,
		Metrics:      fetched,
		OccurredAt:   reconciledAt,
	}); err != nil {
		logger.Warn("指標更新イベントの発行に失敗しました", slog.String("error", err.Error()))
	}

	logger.Debug("指標を更新しました",
		slog.Int("approvals", fetched.Approvals),
		slog.Int("discussions", fetched.Discussions),
	)
	return OutcomeUpdated
}

// onRemoteError はリモートエラーをログに残し、レート制限ならバックオフを開始する。
func (s *Scheduler) onRemoteError(logger *slog.Logger, msg string, err error) {
	if retryAfter, ok := reddit.RetryAfterFrom(err); ok {
		until := s.openBackoff(retryAfter)
		logger.Warn(msg,
			slog.String("error", err.Error()),
			slog.Time("backoff_until", until),
		)
		return
	}
	level := slog.LevelWarn
	if errors.Is(err, reddit.ErrUnauthorized) {
		// 連携が取り消された可能性がある。自動解除はしない
		level = slog.LevelInfo
	}
	logger.Log(context.Background(), level, msg, slog.String("error", err.Error()))
}

// openBackoff はレート制限のバックオフ期間を開始（または延長）し、終了時刻を返す。
func (s *Scheduler) openBackoff(d time.Duration) time.Time {
	if d <= 0 {
		d = reddit.DefaultRetryAfter
	}
	until := s.now().Add(d)

	s.backoffMu.Lock()
	defer s.backoffMu.Unlock()
	if until.After(s.backoffUntil) {
		s.backoffUntil = until
	}
	return s.backoffUntil
}

func (s *Scheduler) inBackoff(now time.Time) bool {
	s.backoffMu.Lock()
	defer s.backoffMu.Unlock()
	return now.Before(s.backoffUntil)
}

// BackoffUntil は現在のバックオフ終了時刻を返す。バックオフしていなければゼロ値。
func (s *Scheduler) BackoffUntil() time.Time {
	s.backoffMu.Lock()
	defer s.backoffMu.Unlock()
	return s.backoffUntil
}

// tokenCache は1ティックの間だけユーザーごとのアクセストークンを共有する。
// 同じユーザーの複数アイテムが並列に処理されても、リフレッシュグラントは1回だけ行う。
type tokenCache struct {
	remote RemotePlatform

	mu      sync.Mutex
	entries map[string]*tokenEntry
}

type tokenEntry struct {
	once  sync.Once
	token string
	err   error
}

func newTokenCache(remote RemotePlatform) *tokenCache {
	return &tokenCache{remote: remote, entries: make(map[string]*tokenEntry)}
}

// get はユーザーのアクセストークンを返す。失敗結果もティック内ではキャッシュする。
func (c *tokenCache) get(ctx context.Context, userID, refreshToken string) (string, error) {
	c.mu.Lock()
	e, ok := c.entries[userID]
	if !ok {
		e = &tokenEntry{}
		c.entries[userID] = e
	}
	c.mu.Unlock()

	e.once.Do(func() {
		e.token, e.err = c.remote.AccessToken(ctx, refreshToken)
	})
	return e.token, e.err
}
