package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/exam-calendar-api/internal/models"
	appErrors "github.com/noah-isme/exam-calendar-api/pkg/errors"
)

const testJWTSecret = "test-secret"

func signTestToken(t *testing.T, secret string, claims models.JWTClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func validClaims(subject string) models.JWTClaims {
	return models.JWTClaims{
		Email: "student@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Audience:  jwt.ClaimStrings{"authenticated"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func TestAuthServiceValidateToken(t *testing.T) {
	svc := NewAuthService(AuthConfig{Secret: testJWTSecret, Audience: "authenticated"}, nil)

	claims, err := svc.ValidateToken(signTestToken(t, testJWTSecret, validClaims("user-1")))
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID())
	assert.Equal(t, "student@example.com", claims.Email)
}

func TestAuthServiceRejectsInvalidTokens(t *testing.T) {
	svc := NewAuthService(AuthConfig{Secret: testJWTSecret, Audience: "authenticated"}, nil)

	expired := validClaims("user-1")
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	wrongAudience := validClaims("user-1")
	wrongAudience.Audience = jwt.ClaimStrings{"other"}

	noExpiry := validClaims("user-1")
	noExpiry.ExpiresAt = nil

	cases := map[string]string{
		"wrong secret":   signTestToken(t, "other-secret", validClaims("user-1")),
		"expired":        signTestToken(t, testJWTSecret, expired),
		"wrong audience": signTestToken(t, testJWTSecret, wrongAudience),
		"no expiry":      signTestToken(t, testJWTSecret, noExpiry),
		"no subject":     signTestToken(t, testJWTSecret, validClaims("")),
		"garbage":        "not-a-token",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ValidateToken(token)
			require.Error(t, err)
			assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
		})
	}
}
