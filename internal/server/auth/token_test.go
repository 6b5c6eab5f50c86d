package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTokenService(t *testing.T, secret string, opts ...TokenOption) *TokenService {
	t.Helper()
	s, err := NewTokenService([]byte(secret), opts...)
	require.NoError(t, err)
	return s
}

func TestNewTokenService_MissingSecret(t *testing.T) {
	s, err := NewTokenService(nil)
	assert.ErrorIs(t, err, ErrMissingSecret)
	assert.Nil(t, s)
}

func TestTokenService_IssueAndVerify(t *testing.T) {
	svc := newTestTokenService(t, "test_secret_key_1234567890")

	tests := []struct {
		name     string
		username string
		role     string
	}{
		{"admin user", "admin", RoleAdmin.String()},
		{"regular user", "bob", RoleUser.String()},
		{"email username", "bob@example.com", RoleUser.String()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok, err := svc.Issue(tt.username, tt.role)
			require.NoError(t, err)
			require.NotEmpty(t, tok)

			claims, ok := svc.Verify(tok)
			require.True(t, ok)
			assert.Equal(t, tt.username, claims.Username())
			assert.Equal(t, tt.role, claims.Role)
			assert.WithinDuration(t, time.Now().Add(TokenTTL), claims.ExpiresAt.Time, 2*time.Second)
		})
	}
}

func TestTokenService_VerifyExpired(t *testing.T) {
	past := func() time.Time { return time.Now().Add(-TokenTTL - time.Minute) }
	issuer := newTestTokenService(t, "secret", WithClock(past))
	verifier := newTestTokenService(t, "secret")

	tok, err := issuer.Issue("bob", "user")
	require.NoError(t, err)

	claims, ok := verifier.Verify(tok)
	assert.False(t, ok)
	assert.Nil(t, claims)
}

func TestTokenService_VerifyAtExpiryBoundary(t *testing.T) {
	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	now := start
	svc := newTestTokenService(t, "secret", WithClock(func() time.Time { return now }))

	tok, err := svc.Issue("bob", "user")
	require.NoError(t, err)

	now = start.Add(TokenTTL - time.Second)
	_, ok := svc.Verify(tok)
	assert.True(t, ok, "token should be valid just before expiry")

	now = start.Add(TokenTTL + time.Second)
	_, ok = svc.Verify(tok)
	assert.False(t, ok, "token should be rejected after expiry")
}

func TestTokenService_VerifyInvalid(t *testing.T) {
	svc := newTestTokenService(t, "right-secret")
	other := newTestTokenService(t, "wrong-secret")

	valid, err := svc.Issue("bob", "user")
	require.NoError(t, err)
	foreign, err := other.Issue("bob", "admin")
	require.NoError(t, err)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		Role: "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "mallory",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role:             "user",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "bob"},
	}).SignedString([]byte("right-secret"))
	require.NoError(t, err)

	parts := strings.Split(valid, ".")
	require.Len(t, parts, 3)
	tamperedPayload := parts[0] + "." + parts[1] + "x." + parts[2]

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"malformed", "not.a.jwt"},
		{"foreign secret", foreign},
		{"alg none", unsigned},
		{"missing expiry", noExpiry},
		{"tampered signature", valid + "tampered"},
		{"tampered payload", tamperedPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, ok := svc.Verify(tt.token)
			assert.False(t, ok)
			assert.Nil(t, claims)
		})
	}
}
