package utils

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	account, subject := uuid.New(), uuid.New()
	raw, err := GenerateToken(account, subject, "driver", "secret", time.Hour)
	require.NoError(t, err)

	c, err := ParseToken(raw, "secret")
	require.NoError(t, err)
	assert.Equal(t, "driver", c.Role)
	assert.Equal(t, subject, c.SubjectID)
	assert.Equal(t, account.String(), c.Subject)
}

func TestParseTokenRejects(t *testing.T) {
	good, err := GenerateToken(uuid.New(), uuid.New(), "customer", "secret", time.Hour)
	require.NoError(t, err)
	expired, err := GenerateToken(uuid.New(), uuid.New(), "customer", "secret", -time.Minute)
	require.NoError(t, err)
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{Role: "admin"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	badSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		Role: "admin", RegisteredClaims: jwt.RegisteredClaims{Subject: "root"},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	for name, tc := range map[string]struct{ raw, secret string }{
		"wrong secret": {good, "other"},
		"expired":      {expired, "secret"},
		"alg none":     {none, "secret"},
		"bad subject":  {badSubject, "secret"},
		"garbage":      {"not.a.token", "secret"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseToken(tc.raw, tc.secret)
			assert.True(t, errors.Is(err, ErrInvalidToken), err)
		})
	}
}
