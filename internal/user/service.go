// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/postpilot/internal/model"
	"github.com/hitoshi/postpilot/internal/repository"
)

// UserStore は退会処理に必要なユーザーの取得と削除を行う。
type UserStore interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
	DeleteByID(ctx context.Context, id string) error
}

// Service はユーザー管理のサービス層。
// 退会処理のビジネスロジックを提供する。
type Service struct {
	users  UserStore
	logger *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(users UserStore, logger *slog.Logger) *Service {
	return &Service{users: users, logger: logger}
}

// Withdraw はユーザーの退会処理を実行する。
// ユーザー行を削除し、contents と revoked_refresh_tokens はCASCADE削除される。
// Reddit上の投稿は削除しない。発行済みのアクセストークンは期限切れまで有効だが、
// 以後の操作ではユーザーが見つからないため何も書き込めない。
func (s *Service) Withdraw(ctx context.Context, userID string) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}

	s.logger.Info("退会処理を開始します",
		slog.String("user_id", userID),
		slog.Bool("reddit_linked", user.IsRedditLinked()),
	)

	if err := s.users.DeleteByID(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// 同時に実行された退会処理が先に削除した
			return model.NewUserNotFoundError()
		}
		return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}

	s.logger.Info("退会処理が完了しました",
		slog.String("user_id", userID),
	)
	return nil
}
