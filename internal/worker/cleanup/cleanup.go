// Package cleanup は失効済みリフレッシュトークンの定期削除ジョブを提供する。
// 失効リストの行はトークン自体の有効期限を過ぎれば不要になるため、期限切れの行を日次で削除する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RevocationPurger は期限切れの失効レコードを削除するインターフェース。
type RevocationPurger interface {
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// Recorder は削除件数をメトリクスとして記録する。
type Recorder interface {
	RecordRevocationsPurged(n int64)
}

// CleanupJob は期限切れの失効レコードの削除ジョブ。
// 冪等で、削除対象がなくてもエラーにならない。
type CleanupJob struct {
	repo     RevocationPurger
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time

	// Grace はexpires_atからこの時間が経過した行だけを削除する（デフォルト: 0）。
	Grace time.Duration
}

// NewCleanupJob は新しいCleanupJobを生成する。recorderはnilでもよい。
func NewCleanupJob(repo RevocationPurger, recorder Recorder, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		repo:     repo,
		recorder: recorder,
		logger:   logger,
		now:      time.Now,
	}
}

// Run は期限切れの失効レコードを削除する。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := j.now()
	before := start.Add(-j.Grace)

	deletedCount, err := j.repo.DeleteExpired(ctx, before)
	if err != nil {
		j.logger.Error("失効トークンのクリーンアップに失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("失効トークンのクリーンアップに失敗: %w", err)
	}

	if j.recorder != nil {
		j.recorder.RecordRevocationsPurged(deletedCount)
	}

	duration := j.now().Sub(start)
	j.logger.Info("失効トークンのクリーンアップが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Time("before", before),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)
	return nil
}

// StartLoop はintervalごとにRunを実行する。ctxがキャンセルされるまでブロックする。
// 起動直後にも1回実行する。個々の実行の失敗はログに残して継続する。
func (j *CleanupJob) StartLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	_ = j.Run(ctx)
	for {
		select {
		case <-ctx.Done():
			j.logger.Info("失効トークンのクリーンアップを停止しました")
			return
		case <-ticker.C:
			_ = j.Run(ctx)
		}
	}
}
