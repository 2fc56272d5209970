package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/hitoshi/postpilot/internal/model"
)

// PostgresRevocationRepo はPostgreSQLを使用した失効トークンリポジトリ。
type PostgresRevocationRepo struct {
	db *sqlx.DB
}

// NewPostgresRevocationRepo はPostgresRevocationRepoを生成する。
func NewPostgresRevocationRepo(db *sqlx.DB) *PostgresRevocationRepo {
	return &PostgresRevocationRepo{db: db}
}

// Revoke はトークンIDを失効リストに登録する。
func (r *PostgresRevocationRepo) Revoke(ctx context.Context, token *model.RevokedToken) error {
	_, err := GetExecutor(ctx, r.db).ExecContext(ctx,
		`INSERT INTO revoked_refresh_tokens (token_id, user_id, expires_at, revoked_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (token_id) DO NOTHING`,
		token.TokenID, token.UserID, token.ExpiresAt, token.RevokedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	return nil
}

// IsRevoked はトークンIDが失効済みかを返す。
func (r *PostgresRevocationRepo) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	var exists bool
	err := sqlx.GetContext(ctx, GetExecutor(ctx, r.db), &exists,
		`SELECT EXISTS (SELECT 1 FROM revoked_refresh_tokens WHERE token_id = $1)`,
		tokenID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to check revoked refresh token: %w", err)
	}
	return exists, nil
}

// DeleteExpired はbeforeより前に期限切れとなった失効レコードを削除する。
func (r *PostgresRevocationRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result, err := GetExecutor(ctx, r.db).ExecContext(ctx,
		`DELETE FROM revoked_refresh_tokens WHERE expires_at < $1`,
		before,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired revocations: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// compile-time interface check
var _ RevocationRepository = (*PostgresRevocationRepo)(nil)
