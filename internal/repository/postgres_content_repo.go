package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/hitoshi/postpilot/internal/model"
)

const contentColumns = `c.id, c.user_id, c.title, c.body, c.remote_post_id, c.approvals, c.discussions,
	c.last_reconciled_at, c.published_at, c.created_at, c.updated_at`

// PostgresContentRepo はPostgreSQLを使用したコンテンツリポジトリ。
type PostgresContentRepo struct {
	db *sqlx.DB
}

// NewPostgresContentRepo はPostgresContentRepoを生成する。
func NewPostgresContentRepo(db *sqlx.DB) *PostgresContentRepo {
	return &PostgresContentRepo{db: db}
}

// Create はコンテンツを作成する。
// 作成日時と更新日時は保存される精度（マイクロ秒）に丸めてcontentへ書き戻す。
func (r *PostgresContentRepo) Create(ctx context.Context, content *model.Content) error {
	content.CreatedAt = content.CreatedAt.Round(time.Microsecond)
	content.UpdatedAt = content.UpdatedAt.Round(time.Microsecond)
	_, err := GetExecutor(ctx, r.db).ExecContext(ctx,
		`INSERT INTO contents (id, user_id, title, body, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		content.ID, content.UserID, content.Title, content.Body, content.CreatedAt, content.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create content: %w", err)
	}
	return nil
}

// ListByUser はユーザーのコンテンツを作成日時の降順で返す。
func (r *PostgresContentRepo) ListByUser(ctx context.Context, userID string) ([]*model.Content, error) {
	contents := []*model.Content{}
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, r.db), &contents,
		`SELECT `+contentColumns+` FROM contents c WHERE c.user_id = $1 ORDER BY c.created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list contents: %w", err)
	}
	return contents, nil
}

// FindByIDForUser は所有者を限定してコンテンツを取得する。見つからない場合はnilを返す。
func (r *PostgresContentRepo) FindByIDForUser(ctx context.Context, id, userID string) (*model.Content, error) {
	return r.findOne(ctx,
		`SELECT `+contentColumns+` FROM contents c WHERE c.id = $1 AND c.user_id = $2`,
		id, userID)
}

// LockByIDForUser はSELECT ... FOR UPDATEでコンテンツを取得する。
// トランザクション外で呼んだ場合、ロックは文の終了とともに解放される。
func (r *PostgresContentRepo) LockByIDForUser(ctx context.Context, id, userID string) (*model.Content, error) {
	return r.findOne(ctx,
		`SELECT `+contentColumns+` FROM contents c WHERE c.id = $1 AND c.user_id = $2 FOR UPDATE`,
		id, userID)
}

func (r *PostgresContentRepo) findOne(ctx context.Context, query, id, userID string) (*model.Content, error) {
	if !isUUID(id) || !isUUID(userID) {
		return nil, nil
	}

	var content model.Content
	err := sqlx.GetContext(ctx, GetExecutor(ctx, r.db), &content, query, id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find content: %w", err)
	}
	return &content, nil
}

// MarkPublished は未投稿のコンテンツにリモートID、指標、同期日時を一括で書き込む。
func (r *PostgresContentRepo) MarkPublished(ctx context.Context, id string, rec PublishRecord) (bool, error) {
	result, err := GetExecutor(ctx, r.db).ExecContext(ctx,
		`UPDATE contents SET
			title = $2,
			body = $3,
			remote_post_id = $4,
			approvals = $5,
			discussions = $6,
			published_at = $7,
			last_reconciled_at = $7,
			updated_at = $7
		 WHERE id = $1 AND remote_post_id IS NULL`,
		id, rec.Title, rec.Body, rec.RemotePostID, rec.Metrics.Approvals, rec.Metrics.Discussions, rec.PublishedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark content published: %w", err)
	}
	return affected(result)
}

// UpdateMetrics は指標と最終同期日時を更新する。
// タイトル・本文には触れないため、同時に行われた編集を上書きしない。
func (r *PostgresContentRepo) UpdateMetrics(ctx context.Context, id string, metrics model.Metrics, reconciledAt time.Time, prevReconciledAt *time.Time) (bool, error) {
	result, err := GetExecutor(ctx, r.db).ExecContext(ctx,
		`UPDATE contents SET
			approvals = $2,
			discussions = $3,
			last_reconciled_at = $4
		 WHERE id = $1
			AND remote_post_id IS NOT NULL
			AND last_reconciled_at IS NOT DISTINCT FROM $5`,
		id, metrics.Approvals, metrics.Discussions, reconciledAt, prevReconciledAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update metrics: %w", err)
	}
	return affected(result)
}

// UpdateText はタイトルと本文を更新する。
func (r *PostgresContentRepo) UpdateText(ctx context.Context, id, userID, title, body string, updatedAt, expectedUpdatedAt time.Time) (bool, error) {
	result, err := GetExecutor(ctx, r.db).ExecContext(ctx,
		`UPDATE contents SET title = $3, body = $4, updated_at = $5
		 WHERE id = $1 AND user_id = $2 AND updated_at = $6`,
		id, userID, title, body, updatedAt, expectedUpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update content text: %w", err)
	}
	return affected(result)
}

// DeleteForUser は所有者を限定してコンテンツを削除する。
func (r *PostgresContentRepo) DeleteForUser(ctx context.Context, id, userID string) (bool, error) {
	if !isUUID(id) {
		return false, nil
	}
	result, err := GetExecutor(ctx, r.db).ExecContext(ctx,
		`DELETE FROM contents WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete content: %w", err)
	}
	return affected(result)
}

// ListReconcileTargets は投稿済みコンテンツと所有者のRedditリフレッシュ資格情報を返す。
// 資格情報がないユーザーのコンテンツも含める（呼び出し側でスキップを記録するため）。
func (r *PostgresContentRepo) ListReconcileTargets(ctx context.Context, userID string) ([]*model.ReconcileTarget, error) {
	query := `SELECT ` + contentColumns + `, u.reddit_refresh_token
		 FROM contents c
		 JOIN users u ON u.id = c.user_id
		 WHERE c.remote_post_id IS NOT NULL`
	args := []any{}
	if userID != "" {
		query += ` AND c.user_id = $1`
		args = append(args, userID)
	}
	query += ` ORDER BY c.last_reconciled_at ASC NULLS FIRST`

	targets := []*model.ReconcileTarget{}
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, r.db), &targets, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list reconcile targets: %w", err)
	}
	return targets, nil
}

func affected(result sql.Result) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// compile-time interface check
var _ ContentRepository = (*PostgresContentRepo)(nil)
