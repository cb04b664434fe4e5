package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/studyhall/studyhall/internal/database"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := hashPassword("password")
	require.NoError(t, err)
	assert.NotEqual(t, "password", hash)

	assert.True(t, verifyPassword(hash, "password"))
	assert.False(t, verifyPassword(hash, "wrong"))
	assert.False(t, verifyPassword("not a hash", "password"))
}

func TestJwtRoundTrip(t *testing.T) {
	app := newTestApp(t, &database.MockStudyHallRepository{})

	token, err := app.createJwtForSession(42, time.Hour)
	require.NoError(t, err)

	userId, err := app.extractUserIdFromToken(token)
	require.NoError(t, err)
	assert.Equal(t, 42, userId)
}

func TestExtractUserIdFromToken_invalid(t *testing.T) {
	app := newTestApp(t, &database.MockStudyHallRepository{})

	tcases := []struct {
		name  string
		token func(t *testing.T) string
	}{
		{
			name:  "garbage",
			token: func(t *testing.T) string { return "not.a.token" },
		},
		{
			name: "expired",
			token: func(t *testing.T) string {
				token, err := app.createJwtForSession(42, -time.Hour)
				require.NoError(t, err)
				return token
			},
		},
		{
			name: "wrong signing key",
			token: func(t *testing.T) string {
				other := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
					userIdClaim: 42,
					expClaim:    time.Now().Add(time.Hour).Unix(),
				})
				signed, err := other.SignedString([]byte("some-other-key"))
				require.NoError(t, err)
				return signed
			},
		},
		{
			name: "unexpected signing method",
			token: func(t *testing.T) string {
				token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
					userIdClaim: 42,
					expClaim:    time.Now().Add(time.Hour).Unix(),
				})
				signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
				require.NoError(t, err)
				return signed
			},
		},
		{
			name: "missing user id claim",
			token: func(t *testing.T) string {
				token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
					expClaim: time.Now().Add(time.Hour).Unix(),
				})
				signed, err := token.SignedString(app.signingKey)
				require.NoError(t, err)
				return signed
			},
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := app.extractUserIdFromToken(tc.token(t))
			assert.Error(t, err)
		})
	}
}

func TestCreateJwtCookie(t *testing.T) {
	cookie := createJwtCookie("token-value", time.Hour)

	assert.Equal(t, tokenCookieKey, cookie.Name)
	assert.Equal(t, "token-value", cookie.Value)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
	assert.True(t, cookie.Expires.After(time.Now()))
}

func TestUserIdContext(t *testing.T) {
	_, ok := UserId(context.Background())
	assert.False(t, ok)

	ctx := WithUserId(context.Background(), 42)
	userId, ok := UserId(ctx)
	assert.True(t, ok)
	assert.Equal(t, 42, userId)
}
