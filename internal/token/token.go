// Package token はアクセストークンとリフレッシュトークンの発行・検証を提供する。
// 2種類のトークンは別々の鍵で署名し、typクレームでも区別する。
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Type はトークン種別を表す。
type Type string

const (
	TypeAccess  Type = "access"
	TypeRefresh Type = "refresh"
)

const (
	// DefaultAccessTTL はアクセストークンの既定の有効期間。
	DefaultAccessTTL = 15 * time.Minute
	// DefaultRefreshTTL はリフレッシュトークンの既定の有効期間。
	DefaultRefreshTTL = 7 * 24 * time.Hour

	minKeyLength = 32
)

var (
	// ErrInvalidToken は署名不正・形式不正・種別違いのトークンを表す。
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken は期限切れのアクセストークンを表す。
	ErrExpiredToken = errors.New("token expired")
	// ErrExpiredRefresh は期限切れのリフレッシュトークンを表す。
	ErrExpiredRefresh = errors.New("refresh token expired")
)

// Claims はトークンに埋め込むクレーム。
// RegisteredClaims.ID（jti）は失効リストのキーとして使う。
type Claims struct {
	UserID string `json:"uid"`
	Type   Type   `json:"typ"`
	jwt.RegisteredClaims
}

// Token は署名済みトークン文字列とそのメタデータ。
type Token struct {
	Value     string
	UserID    string
	ID        string
	ExpiresAt time.Time
}

// Pair はログイン時に発行するアクセス/リフレッシュトークンの組。
type Pair struct {
	Access  Token
	Refresh Token
}

// Option はServiceの設定を変更する。
type Option func(*Service)

// WithClock は現在時刻の取得関数を差し替える。
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithTTL はアクセス/リフレッシュトークンの有効期間を設定する。0以下の値は既定値のまま。
func WithTTL(access, refresh time.Duration) Option {
	return func(s *Service) {
		if access > 0 {
			s.accessTTL = access
		}
		if refresh > 0 {
			s.refreshTTL = refresh
		}
	}
}

// Service はトークンの発行・検証を行う。状態を持たず並行利用できる。
type Service struct {
	accessKey  []byte
	refreshKey []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewService はServiceを生成する。
// 鍵が短い場合や2つの鍵が同一の場合はエラーを返す（起動時に致命的エラーとして扱う）。
func NewService(accessKey, refreshKey string, opts ...Option) (*Service, error) {
	if len(accessKey) < minKeyLength || len(refreshKey) < minKeyLength {
		return nil, fmt.Errorf("signing keys must be at least %d bytes", minKeyLength)
	}
	if accessKey == refreshKey {
		return nil, errors.New("access and refresh signing keys must differ")
	}

	s := &Service{
		accessKey:  []byte(accessKey),
		refreshKey: []byte(refreshKey),
		accessTTL:  DefaultAccessTTL,
		refreshTTL: DefaultRefreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// AccessTTL はアクセストークンの有効期間を返す。
func (s *Service) AccessTTL() time.Duration { return s.accessTTL }

// RefreshTTL はリフレッシュトークンの有効期間を返す。
func (s *Service) RefreshTTL() time.Duration { return s.refreshTTL }

// IssueAccessToken はアクセス鍵で署名した短命トークンを発行する。
func (s *Service) IssueAccessToken(userID string) (Token, error) {
	return s.issue(userID, TypeAccess, s.accessKey, s.accessTTL)
}

// IssueRefreshToken はリフレッシュ鍵で署名した長命トークンを発行する。
func (s *Service) IssueRefreshToken(userID string) (Token, error) {
	return s.issue(userID, TypeRefresh, s.refreshKey, s.refreshTTL)
}

// IssuePair はアクセストークンとリフレッシュトークンを同時に発行する。
func (s *Service) IssuePair(userID string) (Pair, error) {
	access, err := s.IssueAccessToken(userID)
	if err != nil {
		return Pair{}, err
	}
	refresh, err := s.IssueRefreshToken(userID)
	if err != nil {
		return Pair{}, err
	}
	return Pair{Access: access, Refresh: refresh}, nil
}

func (s *Service) issue(userID string, typ Type, key []byte, ttl time.Duration) (Token, error) {
	if userID == "" {
		return Token{}, errors.New("user id is required")
	}

	now := s.now()
	expiresAt := now.Add(ttl)
	id := uuid.NewString()
	claims := Claims{
		UserID: userID,
		Type:   typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return Token{}, fmt.Errorf("failed to sign %s token: %w", typ, err)
	}
	return Token{Value: signed, UserID: userID, ID: id, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// VerifyAccess はアクセストークンを検証し、ユーザーIDを返す。
// 期限切れはErrExpiredToken、それ以外の不正はErrInvalidTokenを返す。
// リフレッシュトークンを渡した場合は署名鍵が異なるためErrInvalidTokenとなる。
func (s *Service) VerifyAccess(raw string) (string, error) {
	claims, err := s.parse(raw, TypeAccess, s.accessKey)
	if err != nil {
		return "", err
	}
	return claims.UserID, nil
}

// VerifyRefresh はリフレッシュトークンを検証し、クレームを返す。
// 期限切れはErrExpiredRefresh、それ以外の不正はErrInvalidTokenを返す。
func (s *Service) VerifyRefresh(raw string) (*Claims, error) {
	claims, err := s.parse(raw, TypeRefresh, s.refreshKey)
	if errors.Is(err, ErrExpiredToken) {
		return nil, ErrExpiredRefresh
	}
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// Rotate はリフレッシュトークンを検証し、同じユーザーの新しいアクセストークンを発行する。
// リフレッシュトークン自体は再発行しない。
func (s *Service) Rotate(refresh string) (Token, error) {
	claims, err := s.VerifyRefresh(refresh)
	if err != nil {
		return Token{}, err
	}
	return s.IssueAccessToken(claims.UserID)
}

func (s *Service) parse(raw string, typ Type, key []byte) (*Claims, error) {
	if raw == "" {
		return nil, ErrInvalidToken
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims,
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return key, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, ErrExpiredToken
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Type != typ || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return &claims, nil
}
