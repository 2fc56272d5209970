// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/postpilot/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// UpsertByGoogleSub はGoogleのsubをキーにユーザーを作成または更新する。
	// 既存ユーザーの場合はemail、name、last_login_atのみ更新し、Reddit資格情報は保持する。
	UpsertByGoogleSub(ctx context.Context, sub, email, name string, now time.Time) (*model.User, error)

	// SetRedditCredential はRedditのリフレッシュ資格情報を保存する。既存の値は上書きする。
	SetRedditCredential(ctx context.Context, userID, refreshToken string, linkedAt time.Time) error

	// ClearRedditCredential はRedditのリフレッシュ資格情報を削除する。
	ClearRedditCredential(ctx context.Context, userID string) error

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するcontents、revoked_refresh_tokensはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// PublishRecord は投稿成功時に1回のUPDATEで書き込む値をまとめたもの。
type PublishRecord struct {
	Title        string
	Body         string
	RemotePostID string
	Metrics      model.Metrics
	PublishedAt  time.Time
}

// ContentRepository はコンテンツ（投稿済みアイテムを含む）の永続化インターフェース。
// 他ユーザーのコンテンツは常に「見つからない」として扱う。
type ContentRepository interface {
	// Create はコンテンツを作成する。
	Create(ctx context.Context, content *model.Content) error

	// ListByUser はユーザーのコンテンツを作成日時の降順で返す。
	ListByUser(ctx context.Context, userID string) ([]*model.Content, error)

	// FindByIDForUser は所有者を限定してコンテンツを取得する。見つからない場合はnilを返す。
	FindByIDForUser(ctx context.Context, id, userID string) (*model.Content, error)

	// LockByIDForUser はトランザクション内で行ロックを取りながらコンテンツを取得する。
	// 見つからない場合はnilを返す。
	LockByIDForUser(ctx context.Context, id, userID string) (*model.Content, error)

	// MarkPublished は未投稿のコンテンツにリモートID、指標、同期日時を一括で書き込む。
	// 既に投稿済みの場合は何も更新せずfalseを返す。
	MarkPublished(ctx context.Context, id string, rec PublishRecord) (bool, error)

	// UpdateMetrics は指標と最終同期日時を更新する。
	// prevReconciledAt が現在値と一致しない場合（他の同期が先に書き込んだ場合）はfalseを返す。
	UpdateMetrics(ctx context.Context, id string, metrics model.Metrics, reconciledAt time.Time, prevReconciledAt *time.Time) (bool, error)

	// UpdateText はタイトルと本文を更新する。
	// expectedUpdatedAt が現在のupdated_atと一致しない場合はfalseを返す。
	UpdateText(ctx context.Context, id, userID, title, body string, updatedAt, expectedUpdatedAt time.Time) (bool, error)

	// DeleteForUser は所有者を限定してコンテンツを削除する。対象がなければfalseを返す。
	DeleteForUser(ctx context.Context, id, userID string) (bool, error)

	// ListReconcileTargets は投稿済みコンテンツと所有者のRedditリフレッシュ資格情報を返す。
	// userIDが空の場合は全ユーザーが対象。
	ListReconcileTargets(ctx context.Context, userID string) ([]*model.ReconcileTarget, error)
}

// RevocationRepository は失効済みリフレッシュトークンの永続化インターフェース。
type RevocationRepository interface {
	// Revoke はトークンIDを失効リストに登録する。登録済みの場合は何もしない。
	Revoke(ctx context.Context, token *model.RevokedToken) error

	// IsRevoked はトークンIDが失効済みかを返す。
	IsRevoked(ctx context.Context, tokenID string) (bool, error)

	// DeleteExpired はbeforeより前に期限切れとなった失効レコードを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// TxManager はトランザクション境界を提供するインターフェース。
type TxManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
