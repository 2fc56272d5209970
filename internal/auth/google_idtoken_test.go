package auth

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
)

const testClientID = "test-client.apps.googleusercontent.com"

func newTestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	return key
}

func signIDToken(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign id token: %v", err)
	}
	return raw
}

func newTestVerifier(key *rsa.PrivateKey, now time.Time) *GoogleIDTokenVerifier {
	keySet := &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&key.PublicKey}}
	return NewIDTokenVerifier(keySet, testClientID, googleIssuers, func() time.Time { return now })
}

func validClaims(now time.Time) jwt.MapClaims {
	return jwt.MapClaims{
		"iss":   "https://accounts.google.com",
		"aud":   testClientID,
		"sub":   "google-sub-1",
		"email": "user@example.com",
		"name":  "Test User",
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	}
}

func TestGoogleIDTokenVerifier_ValidToken(t *testing.T) {
	key := newTestKey(t)
	now := time.Now()
	v := newTestVerifier(key, now)

	identity, err := v.Verify(context.Background(), signIDToken(t, key, validClaims(now)))
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if identity.Subject != "google-sub-1" {
		t.Errorf("Subject = %q, want %q", identity.Subject, "google-sub-1")
	}
	if identity.Email != "user@example.com" {
		t.Errorf("Email = %q, want %q", identity.Email, "user@example.com")
	}
	if identity.Name != "Test User" {
		t.Errorf("Name = %q, want %q", identity.Name, "Test User")
	}
}

func TestGoogleIDTokenVerifier_AcceptsBareIssuer(t *testing.T) {
	key := newTestKey(t)
	now := time.Now()
	v := newTestVerifier(key, now)

	claims := validClaims(now)
	claims["iss"] = "accounts.google.com"
	if _, err := v.Verify(context.Background(), signIDToken(t, key, claims)); err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
}

func TestGoogleIDTokenVerifier_Rejects(t *testing.T) {
	key := newTestKey(t)
	otherKey := newTestKey(t)
	now := time.Now()

	tests := []struct {
		name   string
		key    *rsa.PrivateKey
		mutate func(jwt.MapClaims)
	}{
		{"wrong audience", key, func(c jwt.MapClaims) { c["aud"] = "someone-else" }},
		{"expired", key, func(c jwt.MapClaims) { c["exp"] = now.Add(-time.Minute).Unix() }},
		{"wrong issuer", key, func(c jwt.MapClaims) { c["iss"] = "https://evil.example.com" }},
		{"unknown signing key", otherKey, func(c jwt.MapClaims) {}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newTestVerifier(key, now)
			claims := validClaims(now)
			tt.mutate(claims)

			_, err := v.Verify(context.Background(), signIDToken(t, tt.key, claims))
			if !errors.Is(err, ErrInvalidIdentity) {
				t.Errorf("Verify() error = %v, want ErrInvalidIdentity", err)
			}
		})
	}
}

func TestGoogleIDTokenVerifier_EmptyToken(t *testing.T) {
	v := newTestVerifier(newTestKey(t), time.Now())
	if _, err := v.Verify(context.Background(), ""); !errors.Is(err, ErrInvalidIdentity) {
		t.Errorf("Verify(\"\") error = %v, want ErrInvalidIdentity", err)
	}
}
