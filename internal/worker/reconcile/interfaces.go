package reconcile

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"github.com/hitoshi/postpilot/internal/events"
	"github.com/hitoshi/postpilot/internal/model"
)

// ContentStore は同期対象の読み出しと指標の書き込みを行う。
type ContentStore interface {
	ListReconcileTargets(ctx context.Context, userID string) ([]*model.ReconcileTarget, error)
	UpdateMetrics(ctx context.Context, id string, metrics model.Metrics, reconciledAt time.Time, prevReconciledAt *time.Time) (bool, error)
}

// RemotePlatform はRedditのリフレッシュグラントと指標取得を行う。
type RemotePlatform interface {
	AccessToken(ctx context.Context, refreshToken string) (string, error)
	FetchMetrics(ctx context.Context, accessToken, postID string) (model.Metrics, error)
}

// Locker は複数ワーカー間でティックを排他する。
type Locker interface {
	TryAcquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// EventPublisher は指標更新イベントを発行する。
type EventPublisher interface {
	Publish(ctx context.Context, evt events.Event) error
}

// Recorder は同期結果をメトリクスとして記録する。
type Recorder interface {
	RecordReconcileItem(outcome string)
	RecordReconcileRun(duration time.Duration, candidates int)
}
