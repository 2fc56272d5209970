package publish

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/postpilot/internal/model"
	"github.com/hitoshi/postpilot/internal/repository"
)

// memStore はユーザー、コンテンツ、失効リストをメモリ上に保持するテスト用ストア。
// WithTransactionはストア全体を直列化し、SELECT ... FOR UPDATE の排他を模倣する。
// 書き込みはdatabase/sqlと同じく終了したcontextでは失敗し、時刻はTIMESTAMPTZと同じマイクロ秒に丸めて保存する。
type memStore struct {
	mu       sync.Mutex
	txMu     sync.Mutex
	users    map[string]*model.User
	contents map[string]*model.Content
	revoked  map[string]*model.RevokedToken
}

var (
	_ repository.UserRepository       = (*memStore)(nil)
	_ repository.ContentRepository    = (*memStore)(nil)
	_ repository.RevocationRepository = (*memStore)(nil)
	_ repository.TxManager            = (*memStore)(nil)
)

func newMemStore() *memStore {
	return &memStore{
		users:    make(map[string]*model.User),
		contents: make(map[string]*model.Content),
		revoked:  make(map[string]*model.RevokedToken),
	}
}

func (m *memStore) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	return fn(ctx)
}

// --- UserRepository ---

func (m *memStore) FindByID(_ context.Context, id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) UpsertByGoogleSub(_ context.Context, sub, email, name string, now time.Time) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.GoogleSub == sub {
			u.Email, u.Name, u.LastLoginAt, u.UpdatedAt = email, name, now, now
			cp := *u
			return &cp, nil
		}
	}
	u := &model.User{
		ID: uuid.NewString(), GoogleSub: sub, Email: email, Name: name,
		CreatedAt: now, LastLoginAt: now, UpdatedAt: now,
	}
	m.users[u.ID] = u
	cp := *u
	return &cp, nil
}

func (m *memStore) SetRedditCredential(_ context.Context, userID, refreshToken string, linkedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	u.RedditRefreshToken = &refreshToken
	u.RedditLinkedAt = &linkedAt
	return nil
}

func (m *memStore) ClearRedditCredential(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	u.RedditRefreshToken = nil
	u.RedditLinkedAt = nil
	return nil
}

func (m *memStore) DeleteByID(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.users, id)
	for cid, c := range m.contents {
		if c.UserID == id {
			delete(m.contents, cid)
		}
	}
	return nil
}

// --- ContentRepository ---

func (m *memStore) Create(ctx context.Context, content *model.Content) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *content
	cp.CreatedAt = storedTime(cp.CreatedAt)
	cp.UpdatedAt = storedTime(cp.UpdatedAt)
	m.contents[content.ID] = &cp
	return nil
}

func (m *memStore) ListByUser(_ context.Context, userID string) ([]*model.Content, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Content
	for _, c := range m.contents {
		if c.UserID == userID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memStore) FindByIDForUser(_ context.Context, id, userID string) (*model.Content, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contents[id]
	if !ok || c.UserID != userID {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (m *memStore) LockByIDForUser(ctx context.Context, id, userID string) (*model.Content, error) {
	return m.FindByIDForUser(ctx, id, userID)
}

func (m *memStore) MarkPublished(ctx context.Context, id string, rec repository.PublishRecord) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contents[id]
	if !ok || c.IsPublished() {
		return false, nil
	}
	postID := rec.RemotePostID
	publishedAt := storedTime(rec.PublishedAt)
	c.Title, c.Body = rec.Title, rec.Body
	c.RemotePostID = &postID
	c.Metrics = rec.Metrics
	c.PublishedAt = &publishedAt
	c.LastReconciledAt = &publishedAt
	return true, nil
}

func (m *memStore) UpdateMetrics(_ context.Context, id string, metrics model.Metrics, reconciledAt time.Time, prev *time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contents[id]
	if !ok || !sameTime(c.LastReconciledAt, prev) {
		return false, nil
	}
	c.Metrics = metrics
	c.LastReconciledAt = &reconciledAt
	return true, nil
}

func (m *memStore) UpdateText(ctx context.Context, id, userID, title, body string, updatedAt, expected time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contents[id]
	if !ok || c.UserID != userID || !c.UpdatedAt.Equal(expected) {
		return false, nil
	}
	c.Title, c.Body, c.UpdatedAt = title, body, storedTime(updatedAt)
	return true, nil
}

func (m *memStore) DeleteForUser(_ context.Context, id, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contents[id]
	if !ok || c.UserID != userID {
		return false, nil
	}
	delete(m.contents, id)
	return true, nil
}

func (m *memStore) ListReconcileTargets(_ context.Context, userID string) ([]*model.ReconcileTarget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.ReconcileTarget
	for _, c := range m.contents {
		if !c.IsPublished() || (userID != "" && c.UserID != userID) {
			continue
		}
		t := &model.ReconcileTarget{Content: *c}
		if u, ok := m.users[c.UserID]; ok && u.RedditRefreshToken != nil {
			rt := *u.RedditRefreshToken
			t.RefreshToken = &rt
		}
		out = append(out, t)
	}
	return out, nil
}

// --- RevocationRepository ---

func (m *memStore) Revoke(_ context.Context, t *model.RevokedToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.revoked[t.TokenID] = &cp
	return nil
}

func (m *memStore) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.revoked[tokenID]
	return ok, nil
}

func (m *memStore) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, t := range m.revoked {
		if t.ExpiresAt.Before(before) {
			delete(m.revoked, id)
			n++
		}
	}
	return n, nil
}

// --- helpers ---

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func (m *memStore) addUser(id string, refreshToken *string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[id] = &model.User{ID: id, GoogleSub: "sub-" + id, RedditRefreshToken: refreshToken}
}

func (m *memStore) addContent(id, userID string, createdAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contents[id] = &model.Content{ID: id, UserID: userID, Title: "draft", Body: "draft body", CreatedAt: createdAt, UpdatedAt: createdAt}
}

func (m *memStore) content(id string) *model.Content {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contents[id]
	if !ok {
		return nil
	}
	cp := *c
	return &cp
}

func repositoryRecord(postID string, at time.Time) repository.PublishRecord {
	return repository.PublishRecord{Title: "T", Body: "B", RemotePostID: postID, PublishedAt: at}
}

// storedTime はPostgresのTIMESTAMPTZと同じくマイクロ秒に丸める。
func storedTime(t time.Time) time.Time {
	return t.Round(time.Microsecond)
}
