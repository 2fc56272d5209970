// Package events はコンテンツのライフサイクルイベントを外部に通知する。
package events

import (
	"context"
	"time"

	"github.com/hitoshi/postpilot/internal/model"
)

// イベント種別。RabbitMQではそのままルーティングキーになる。
const (
	TypeContentPublished      = "content.published"
	TypeContentMetricsUpdated = "content.metrics_updated"
	TypeContentDeleted        = "content.deleted"
)

// Event は通知されるイベントのペイロード。
type Event struct {
	Type         string        `json:"type"`
	ContentID    string        `json:"content_id"`
	UserID       string        `json:"user_id"`
	RemotePostID string        `json:"remote_post_id,omitempty"`
	Metrics      model.Metrics `json:"metrics"`
	OccurredAt   time.Time     `json:"occurred_at"`
}

// Publisher はイベントの発行インターフェース。
// 発行の失敗は呼び出し元の処理結果を変えない（ログに残すのみ）。
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}

// Nop はイベントを捨てるPublisher。RABBITMQ_URLが未設定の場合に使う。
type Nop struct{}

// Publish は何もしない。
func (Nop) Publish(context.Context, Event) error { return nil }

// Close は何もしない。
func (Nop) Close() error { return nil }
