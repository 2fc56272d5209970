package handler

import (
	"context"
	"errors"

	"github.com/hitoshi/postpilot/internal/auth"
	"github.com/hitoshi/postpilot/internal/model"
	"github.com/hitoshi/postpilot/internal/publish"
	"github.com/hitoshi/postpilot/internal/token"
	"github.com/hitoshi/postpilot/internal/worker/reconcile"
)

// --- モック定義 ---

var errNotConfigured = errors.New("not configured")

type mockAuthService struct {
	loginFn       func(ctx context.Context, rawIDToken string) (*auth.LoginResult, error)
	refreshFn     func(ctx context.Context, refreshToken string) (token.Token, error)
	logoutFn      func(ctx context.Context, refreshToken string) error
	currentUserFn func(ctx context.Context, userID string) (*model.User, error)
}

func (m *mockAuthService) Login(ctx context.Context, raw string) (*auth.LoginResult, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, raw)
	}
	return nil, errNotConfigured
}

func (m *mockAuthService) Refresh(ctx context.Context, refreshToken string) (token.Token, error) {
	if m.refreshFn != nil {
		return m.refreshFn(ctx, refreshToken)
	}
	return token.Token{}, errNotConfigured
}

func (m *mockAuthService) Logout(ctx context.Context, refreshToken string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, refreshToken)
	}
	return nil
}

func (m *mockAuthService) CurrentUser(ctx context.Context, userID string) (*model.User, error) {
	if m.currentUserFn != nil {
		return m.currentUserFn(ctx, userID)
	}
	return &model.User{ID: userID, Email: userID + "@example.com", Name: userID}, nil
}

type mockRedditService struct {
	linkFn    func(ctx context.Context, userID, code string) error
	unlinkFn  func(ctx context.Context, userID string) error
	statusFn  func(ctx context.Context, userID string) (bool, error)
	refreshFn func(ctx context.Context, userID string) (reconcile.RunStats, error)
}

func (m *mockRedditService) AuthorizeURL(state string) string {
	return "https://www.reddit.com/api/v1/authorize?state=" + state
}

func (m *mockRedditService) LinkExternalAccount(ctx context.Context, userID, code string) error {
	if m.linkFn != nil {
		return m.linkFn(ctx, userID, code)
	}
	return nil
}

func (m *mockRedditService) UnlinkExternalAccount(ctx context.Context, userID string) error {
	if m.unlinkFn != nil {
		return m.unlinkFn(ctx, userID)
	}
	return nil
}

func (m *mockRedditService) LinkStatus(ctx context.Context, userID string) (bool, error) {
	if m.statusFn != nil {
		return m.statusFn(ctx, userID)
	}
	return false, nil
}

func (m *mockRedditService) RefreshMyMetrics(ctx context.Context, userID string) (reconcile.RunStats, error) {
	if m.refreshFn != nil {
		return m.refreshFn(ctx, userID)
	}
	return reconcile.RunStats{}, nil
}

type mockContentService struct {
	createFn  func(ctx context.Context, userID string, in publish.CreateInput) (*model.Content, error)
	listFn    func(ctx context.Context, userID string) ([]*model.Content, error)
	publishFn func(ctx context.Context, userID, itemID string, in publish.PublishInput) (*publish.PublishResult, error)
	editFn    func(ctx context.Context, userID, itemID string, in publish.EditInput) (*model.Content, error)
	deleteFn  func(ctx context.Context, userID, itemID string) error
}

func (m *mockContentService) CreateContent(ctx context.Context, userID string, in publish.CreateInput) (*model.Content, error) {
	if m.createFn != nil {
		return m.createFn(ctx, userID, in)
	}
	return nil, errNotConfigured
}

func (m *mockContentService) ListContents(ctx context.Context, userID string) ([]*model.Content, error) {
	if m.listFn != nil {
		return m.listFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockContentService) PublishItem(ctx context.Context, userID, itemID string, in publish.PublishInput) (*publish.PublishResult, error) {
	if m.publishFn != nil {
		return m.publishFn(ctx, userID, itemID, in)
	}
	return nil, errNotConfigured
}

func (m *mockContentService) EditPublishedItem(ctx context.Context, userID, itemID string, in publish.EditInput) (*model.Content, error) {
	if m.editFn != nil {
		return m.editFn(ctx, userID, itemID, in)
	}
	return nil, errNotConfigured
}

func (m *mockContentService) DeleteItem(ctx context.Context, userID, itemID string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, userID, itemID)
	}
	return nil
}

type mockUserService struct {
	withdrawFn func(ctx context.Context, userID string) error
}

func (m *mockUserService) Withdraw(ctx context.Context, userID string) error {
	if m.withdrawFn != nil {
		return m.withdrawFn(ctx, userID)
	}
	return nil
}

type mockPinger struct{ err error }

func (m mockPinger) PingContext(context.Context) error { return m.err }
