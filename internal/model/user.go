// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// GoogleSub はGoogle IDトークンのsubクレームで、ユーザーの一意キーとなる。
type User struct {
	ID          string    `db:"id"`
	GoogleSub   string    `db:"google_sub"`
	Email       string    `db:"email"`
	Name        string    `db:"name"`
	CreatedAt   time.Time `db:"created_at"`
	LastLoginAt time.Time `db:"last_login_at"`
	UpdatedAt   time.Time `db:"updated_at"`

	// Reddit連携時のみ設定される。
	RedditRefreshToken *string    `db:"reddit_refresh_token"`
	RedditLinkedAt     *time.Time `db:"reddit_linked_at"`
}

// IsRedditLinked はRedditのリフレッシュ資格情報を保持しているかを返す。
func (u *User) IsRedditLinked() bool {
	return u.RedditRefreshToken != nil && *u.RedditRefreshToken != ""
}

// RevokedToken はログアウト等で失効させたリフレッシュトークンを表す。
// ExpiresAt を過ぎた行はトークン自体が無効になるため削除してよい。
type RevokedToken struct {
	TokenID   string    `db:"token_id"`
	UserID    string    `db:"user_id"`
	ExpiresAt time.Time `db:"expires_at"`
	RevokedAt time.Time `db:"revoked_at"`
}
