// Package auth はGoogle IDトークンによるログインとトークンベースのセッション管理を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/postpilot/internal/model"
	"github.com/hitoshi/postpilot/internal/repository"
	"github.com/hitoshi/postpilot/internal/token"
)

// TokenIssuer はトークンの発行・検証を行うインターフェース。
type TokenIssuer interface {
	IssuePair(userID string) (token.Pair, error)
	VerifyRefresh(raw string) (*token.Claims, error)
	Rotate(refresh string) (token.Token, error)
}

// LoginResult はログイン成功時の結果を表す。
type LoginResult struct {
	User   *model.User
	Tokens token.Pair
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	verifier    IdentityVerifier
	tokens      TokenIssuer
	userRepo    repository.UserRepository
	revocations repository.RevocationRepository
	now         func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	verifier IdentityVerifier,
	tokens TokenIssuer,
	userRepo repository.UserRepository,
	revocations repository.RevocationRepository,
) *Service {
	return &Service{
		verifier:    verifier,
		tokens:      tokens,
		userRepo:    userRepo,
		revocations: revocations,
		now:         time.Now,
	}
}

// Login はIDトークンを検証し、ユーザーを作成または更新してトークンペアを発行する。
// 初回ログイン時はGoogleのsubをキーにユーザーを自動作成する。
func (s *Service) Login(ctx context.Context, rawIDToken string) (*LoginResult, error) {
	// 1. IDトークンを検証
	identity, err := s.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		slog.Warn("identity verification failed", slog.String("error", err.Error()))
		return nil, model.NewUnauthenticatedError("invalid identity token")
	}

	// 2. ユーザーを作成または更新
	user, err := s.userRepo.UpsertByGoogleSub(ctx, identity.Subject, identity.Email, identity.Name, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}

	// 3. トークンペアを発行
	pair, err := s.tokens.IssuePair(user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to issue tokens: %w", err)
	}

	slog.Info("user logged in", slog.String("user_id", user.ID))
	return &LoginResult{User: user, Tokens: pair}, nil
}

// Refresh はリフレッシュトークンから新しいアクセストークンを発行する。
// 期限切れはREFRESH_EXPIRED、不正・失効済みはUNAUTHENTICATEDを返す。
func (s *Service) Refresh(ctx context.Context, refreshToken string) (token.Token, error) {
	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if errors.Is(err, token.ErrExpiredRefresh) {
		return token.Token{}, model.NewRefreshExpiredError()
	}
	if err != nil {
		return token.Token{}, model.NewUnauthenticatedError("invalid refresh token")
	}

	revoked, err := s.revocations.IsRevoked(ctx, claims.ID)
	if err != nil {
		return token.Token{}, fmt.Errorf("failed to check revocation: %w", err)
	}
	if revoked {
		slog.Warn("revoked refresh token presented",
			slog.String("user_id", claims.UserID),
			slog.String("token_id", claims.ID),
		)
		return token.Token{}, model.NewUnauthenticatedError("refresh token revoked")
	}

	access, err := s.tokens.Rotate(refreshToken)
	if errors.Is(err, token.ErrExpiredRefresh) {
		return token.Token{}, model.NewRefreshExpiredError()
	}
	if err != nil {
		return token.Token{}, fmt.Errorf("failed to rotate access token: %w", err)
	}
	return access, nil
}

// Logout はリフレッシュトークンを失効リストに登録する。
// トークンが不正・期限切れの場合は失効させる必要がないため何もしない。
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}

	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return nil
	}

	revoked := &model.RevokedToken{
		TokenID:   claims.ID,
		UserID:    claims.UserID,
		ExpiresAt: claims.ExpiresAt.Time,
		RevokedAt: s.now(),
	}
	if err := s.revocations.Revoke(ctx, revoked); err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}

	slog.Info("user logged out", slog.String("user_id", claims.UserID))
	return nil
}

// CurrentUser はAuth Gateで解決したユーザーIDからユーザーを取得する。
func (s *Service) CurrentUser(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}
