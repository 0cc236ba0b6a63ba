package auth_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	auth "github.com/gram-panchayat/go-portal-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("backend-secret"))
	require.NoError(t, err)
	return token
}

func TestInspectToken(t *testing.T) {
	issued := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	expires := issued.Add(24 * time.Hour)

	token := signedToken(t, jwt.MapClaims{
		"sub":  "7",
		"role": "admin",
		"iat":  issued.Unix(),
		"exp":  expires.Unix(),
	})

	claims, err := auth.InspectToken("Bearer " + token)
	require.NoError(t, err)
	assert.Equal(t, "7", claims.Subject)
	assert.Equal(t, "admin", claims.Role)
	assert.True(t, claims.IsAdmin())
	assert.True(t, issued.Equal(claims.IssuedAt))
	assert.True(t, expires.Equal(claims.ExpiresAt))

	assert.False(t, claims.Expired(issued.Add(time.Hour)))
	assert.True(t, claims.Expired(expires.Add(time.Second)))
}

func TestInspectTokenWithoutExpiry(t *testing.T) {
	claims, err := auth.InspectToken(signedToken(t, jwt.MapClaims{"sub": "42"}))
	require.NoError(t, err)
	assert.False(t, claims.IsAdmin())
	assert.True(t, claims.ExpiresAt.IsZero())
	assert.False(t, claims.Expired(time.Now().Add(100*365*24*time.Hour)))
}

func TestInspectTokenNumericSubject(t *testing.T) {
	expires := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	claims, err := auth.InspectToken(signedToken(t, jwt.MapClaims{
		"sub": 42,
		"exp": expires.Unix(),
	}))
	require.NoError(t, err)
	assert.Equal(t, "42", claims.Subject)
	assert.True(t, expires.Equal(claims.ExpiresAt))
}

func TestInspectTokenMalformed(t *testing.T) {
	for _, token := range []string{"", "Bearer ", "opaque-token", "a.b.c"} {
		_, err := auth.InspectToken(token)
		require.Error(t, err, token)
		assert.True(t, auth.HasTextCode(err, auth.TextCodeTokenMalformed), token)
	}
}

func TestSessionClaims(t *testing.T) {
	session := auth.Session{
		Token:    signedToken(t, jwt.MapClaims{"sub": "42"}),
		Identity: auth.CitizenIdentity{AccountID: "42"},
	}
	claims, err := session.Claims()
	require.NoError(t, err)
	assert.Equal(t, "42", claims.Subject)
}
