package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func TestRoundTrip(t *testing.T) {
	user, tenant := uuid.New(), uuid.New()

	token, err := GenerateToken(user, tenant, secret, time.Hour)
	require.NoError(t, err)

	claims, err := ParseToken(token, secret)
	require.NoError(t, err)
	assert.Equal(t, user, claims.UserID)
	assert.Equal(t, tenant, claims.TenantID)
	assert.Equal(t, Issuer, claims.Issuer)
	assert.Equal(t, user.String(), claims.Subject)
}

func TestGenerateToken_RequiresIdentity(t *testing.T) {
	_, err := GenerateToken(uuid.Nil, uuid.New(), secret, time.Hour)
	assert.Error(t, err)
	_, err = GenerateToken(uuid.New(), uuid.Nil, secret, time.Hour)
	assert.Error(t, err)
}

func TestParseToken_Rejects(t *testing.T) {
	user, tenant := uuid.New(), uuid.New()
	valid, err := GenerateToken(user, tenant, secret, time.Hour)
	require.NoError(t, err)
	expired, err := GenerateToken(user, tenant, secret, -time.Minute)
	require.NoError(t, err)

	foreign, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: user, TenantID: tenant,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(secret))
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: user, TenantID: tenant,
		RegisteredClaims: jwt.RegisteredClaims{Issuer: Issuer},
	}).SignedString([]byte(secret))
	require.NoError(t, err)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		UserID: user, TenantID: tenant,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name   string
		token  string
		secret string
	}{
		{"wrong secret", valid, "other"},
		{"expired", expired, secret},
		{"other issuer", foreign, secret},
		{"no expiry", noExpiry, secret},
		{"alg none", unsigned, secret},
		{"garbage", "not.a.token", secret},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseToken(tt.token, tt.secret)
			assert.Error(t, err)
		})
	}
}
