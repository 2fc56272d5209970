package model

import "time"

// Metrics はReddit投稿のエンゲージメント指標を表す。
// Approvals はupvote数、Discussions はコメント数に対応する。
type Metrics struct {
	Approvals   int `db:"approvals" json:"approvals"`
	Discussions int `db:"discussions" json:"discussions"`
}

// Content はユーザーが保存した生成コンテンツを表す。
// RemotePostID が設定されたものが投稿済みアイテムとなり、同期対象になる。
type Content struct {
	ID               string     `db:"id"`
	UserID           string     `db:"user_id"`
	Title            string     `db:"title"`
	Body             string     `db:"body"`
	RemotePostID     *string    `db:"remote_post_id"`
	Metrics                     // approvals, discussions
	LastReconciledAt *time.Time `db:"last_reconciled_at"`
	PublishedAt      *time.Time `db:"published_at"`
	CreatedAt        time.Time  `db:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at"`
}

// IsPublished はRedditへ投稿済みかを返す。
func (c *Content) IsPublished() bool {
	return c.RemotePostID != nil && *c.RemotePostID != ""
}

// ReconcileTarget は同期スケジューラが処理する1件分の入力を表す。
// 投稿済みコンテンツと所有ユーザーのリフレッシュ資格情報を1クエリで取得する。
type ReconcileTarget struct {
	Content
	RefreshToken *string `db:"reddit_refresh_token"`
}
