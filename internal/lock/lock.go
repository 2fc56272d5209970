// Package lock は複数のワーカープロセス間で同期ティックを排他するためのロックを提供する。
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotHeld はロックを保持していない状態でReleaseした場合のエラー。
var ErrNotHeld = errors.New("lock: not held")

// Locker は有効期限付きの排他ロック。
type Locker interface {
	// TryAcquire はロックの取得を1回だけ試みる。他が保持している場合はfalseを返す。
	TryAcquire(ctx context.Context) (bool, error)
	// Release は自分が保持しているロックを解放する。
	Release(ctx context.Context) error
}

// releaseScript は値が自分のトークンと一致する場合のみキーを削除する。
// 期限切れ後に他プロセスが取得したロックを消さないため。
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLock はRedisのSET NX PXで実装したLocker。
// TTLはティックの最大所要時間より長くする。プロセスが落ちてもTTL経過で自動解放される。
type RedisLock struct {
	client redis.Cmdable
	key    string
	ttl    time.Duration

	mu    sync.Mutex
	token string
}

// NewRedisLock はRedisLockを生成する。
func NewRedisLock(client redis.Cmdable, key string, ttl time.Duration) *RedisLock {
	return &RedisLock{client: client, key: key, ttl: ttl}
}

// NewRedisClient はREDIS_URL形式の接続文字列からクライアントを生成し、疎通を確認する。
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// TryAcquire はロックの取得を試みる。
func (l *RedisLock) TryAcquire(ctx context.Context) (bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire %s: %w", l.key, err)
	}
	if !ok {
		return false, nil
	}

	l.mu.Lock()
	l.token = token
	l.mu.Unlock()
	return true, nil
}

// Release はロックを解放する。TTL切れで既に他者のものになっていれば何もしない。
func (l *RedisLock) Release(ctx context.Context) error {
	l.mu.Lock()
	token := l.token
	l.token = ""
	l.mu.Unlock()

	if token == "" {
		return ErrNotHeld
	}
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Err(); err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	return nil
}

// Local は単一プロセス用のLocker。Redisが設定されていない場合に使う。
type Local struct {
	mu   sync.Mutex
	held bool
}

// TryAcquire はロックの取得を試みる。
func (l *Local) TryAcquire(context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return false, nil
	}
	l.held = true
	return true, nil
}

// Release はロックを解放する。
func (l *Local) Release(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.held {
		return ErrNotHeld
	}
	l.held = false
	return nil
}
