package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/hitoshi/postpilot/internal/model"
)

const userColumns = `id, google_sub, email, name, reddit_refresh_token, reddit_linked_at, created_at, last_login_at, updated_at`

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sqlx.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sqlx.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if !isUUID(id) {
		return nil, nil
	}

	var user model.User
	err := sqlx.GetContext(ctx, GetExecutor(ctx, r.db), &user,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return &user, nil
}

// UpsertByGoogleSub はGoogleのsubをキーにユーザーを作成または更新する。
func (r *PostgresUserRepo) UpsertByGoogleSub(ctx context.Context, sub, email, name string, now time.Time) (*model.User, error) {
	var user model.User
	err := sqlx.GetContext(ctx, GetExecutor(ctx, r.db), &user,
		`INSERT INTO users (id, google_sub, email, name, created_at, last_login_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5, $5)
		 ON CONFLICT (google_sub) DO UPDATE SET
			email = EXCLUDED.email,
			name = EXCLUDED.name,
			last_login_at = EXCLUDED.last_login_at,
			updated_at = EXCLUDED.updated_at
		 RETURNING `+userColumns,
		uuid.NewString(), sub, email, name, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}
	return &user, nil
}

// SetRedditCredential はRedditのリフレッシュ資格情報を保存する。
func (r *PostgresUserRepo) SetRedditCredential(ctx context.Context, userID, refreshToken string, linkedAt time.Time) error {
	result, err := GetExecutor(ctx, r.db).ExecContext(ctx,
		`UPDATE users SET reddit_refresh_token = $2, reddit_linked_at = $3, updated_at = $3 WHERE id = $1`,
		userID, refreshToken, linkedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to set reddit credential: %w", err)
	}
	return expectOneRow(result, "user", userID)
}

// ClearRedditCredential はRedditのリフレッシュ資格情報を削除する。
func (r *PostgresUserRepo) ClearRedditCredential(ctx context.Context, userID string) error {
	result, err := GetExecutor(ctx, r.db).ExecContext(ctx,
		`UPDATE users SET reddit_refresh_token = NULL, reddit_linked_at = NULL, updated_at = now() WHERE id = $1`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("failed to clear reddit credential: %w", err)
	}
	return expectOneRow(result, "user", userID)
}

// DeleteByID は指定IDのユーザーを削除する。
func (r *PostgresUserRepo) DeleteByID(ctx context.Context, id string) error {
	result, err := GetExecutor(ctx, r.db).ExecContext(ctx,
		`DELETE FROM users WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return expectOneRow(result, "user", id)
}

// ErrNotFound は更新・削除対象の行が存在しない場合のエラー。
var ErrNotFound = errors.New("record not found")

func expectOneRow(result sql.Result, kind, id string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}

// isUUID はUUIDとして解釈できない値をクエリ前に弾く。
// uuid型カラムとの比較で構文エラーになるのを避ける。
func isUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
