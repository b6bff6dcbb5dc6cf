package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/course-enrollment-api/pkg/errors"
)

func signToken(t *testing.T, method jwt.SigningMethod, key interface{}, claims models.JWTClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func studentClaims(issuer string, expiresIn time.Duration) models.JWTClaims {
	return models.JWTClaims{
		UserID: "student-1",
		Role:   models.RoleStudent,
		Email:  "student@example.edu",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
}

func TestTokenServiceValidateToken(t *testing.T) {
	svc := NewTokenService("secret", "identity")

	claims, err := svc.ValidateToken(signToken(t, jwt.SigningMethodHS256, []byte("secret"), studentClaims("identity", time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, "student-1", claims.UserID)
	assert.Equal(t, models.RoleStudent, claims.Role)
}

func TestTokenServiceRejectsBadTokens(t *testing.T) {
	svc := NewTokenService("secret", "identity")

	cases := map[string]string{
		"wrong secret": signToken(t, jwt.SigningMethodHS256, []byte("other"), studentClaims("identity", time.Hour)),
		"wrong issuer": signToken(t, jwt.SigningMethodHS256, []byte("secret"), studentClaims("elsewhere", time.Hour)),
		"expired":      signToken(t, jwt.SigningMethodHS256, []byte("secret"), studentClaims("identity", -time.Minute)),
		"wrong alg":    signToken(t, jwt.SigningMethodHS512, []byte("secret"), studentClaims("identity", time.Hour)),
		"garbage":      "not-a-token",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ValidateToken(token)
			requireAppError(t, err, appErrors.ErrUnauthorized)
		})
	}
}

func TestTokenServiceWithoutIssuer(t *testing.T) {
	svc := NewTokenService("secret", "")
	_, err := svc.ValidateToken(signToken(t, jwt.SigningMethodHS256, []byte("secret"), studentClaims("anyone", time.Hour)))
	assert.NoError(t, err)
}
