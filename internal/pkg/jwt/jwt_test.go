package jwt

import (
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	secret := []byte("s3cret")
	token, err := GenerateToken("u-1", "a@b.c", secret, time.Hour)
	require.NoError(t, err)

	claims, err := ParseToken(token, secret)
	require.NoError(t, err)
	require.Equal(t, "u-1", claims.User())
	require.Equal(t, "a@b.c", claims.Email)
}

func TestParseTokenRejects(t *testing.T) {
	secret := []byte("s3cret")
	token, err := GenerateToken("u-1", "", secret, time.Hour)
	require.NoError(t, err)
	_, err = ParseToken(token, []byte("other"))
	require.ErrorIs(t, err, ErrInvalidToken)

	expired, err := GenerateToken("u-1", "", secret, -time.Minute)
	require.NoError(t, err)
	_, err = ParseToken(expired, secret)
	require.ErrorIs(t, err, ErrInvalidToken)

	anonymous, err := GenerateToken("", "", secret, time.Hour)
	require.NoError(t, err)
	_, err = ParseToken(anonymous, secret)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func sign(t *testing.T, claims jwtlib.Claims, secret []byte) string {
	t.Helper()
	s, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)
	return s
}

func TestParseTokenSubjectFallback(t *testing.T) {
	secret := []byte("s3cret")
	token := sign(t, jwtlib.RegisteredClaims{
		Subject:   "u-sub",
		ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(time.Hour)),
	}, secret)
	claims, err := ParseToken(token, secret)
	require.NoError(t, err)
	require.Equal(t, "u-sub", claims.User())
}

func TestParseTokenRequiresExpiry(t *testing.T) {
	secret := []byte("s3cret")
	token := sign(t, jwtlib.RegisteredClaims{Subject: "u-1"}, secret)
	_, err := ParseToken(token, secret)
	require.ErrorIs(t, err, ErrInvalidToken)
}
