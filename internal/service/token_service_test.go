package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dapoteju/beamer-mono-sub001/internal/models"
	appErrors "github.com/dapoteju/beamer-mono-sub001/pkg/errors"
)

func newTestTokenService(secret string) *TokenService {
	svc := NewTokenService(TokenConfig{
		Secret:   secret,
		Issuer:   "beamer-identity",
		Audience: []string{"beamer-control-plane"},
	}, nil)
	svc.now = func() time.Time { return testNow }
	return svc
}

func signTestToken(t *testing.T, method jwt.SigningMethod, secret, userID string, role models.UserRole, orgID string) string {
	t.Helper()
	claims := &models.JWTClaims{
		UserID: userID,
		Role:   role,
		OrgID:  orgID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "beamer-identity",
			Subject:   userID,
			Audience:  jwt.ClaimStrings{"beamer-control-plane"},
			ExpiresAt: jwt.NewNumericDate(testNow.Add(15 * time.Minute)),
			IssuedAt:  jwt.NewNumericDate(testNow),
		},
	}
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestTokenServiceValidate(t *testing.T) {
	svc := newTestTokenService("s3cret")
	token := signTestToken(t, jwt.SigningMethodHS256, "s3cret", "user-1", models.RolePublisher, orgLagos)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, models.RolePublisher, claims.Role)
	assert.Equal(t, orgLagos, claims.ScopedOrgID())
}

func TestTokenServiceRejectsWrongSecret(t *testing.T) {
	token := signTestToken(t, jwt.SigningMethodHS256, "one", "user-1", models.RoleAdmin, "")

	_, err := newTestTokenService("two").ValidateToken(token)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
}

func TestTokenServiceRejectsExpiredToken(t *testing.T) {
	svc := newTestTokenService("s3cret")
	token := signTestToken(t, jwt.SigningMethodHS256, "s3cret", "user-1", models.RoleAdmin, "")

	svc.now = func() time.Time { return testNow.Add(time.Hour) }
	_, err := svc.ValidateToken(token)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
}

func TestTokenServiceRejectsOtherAlgorithms(t *testing.T) {
	svc := newTestTokenService("s3cret")
	token := signTestToken(t, jwt.SigningMethodHS512, "s3cret", "user-1", models.RoleAdmin, "")

	_, err := svc.ValidateToken(token)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
}

func TestTokenServiceRejectsMissingUser(t *testing.T) {
	svc := newTestTokenService("s3cret")
	token := signTestToken(t, jwt.SigningMethodHS256, "s3cret", "", models.RoleAdmin, "")

	_, err := svc.ValidateToken(token)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
}

func TestTokenServiceRejectsPublisherWithoutOrg(t *testing.T) {
	svc := newTestTokenService("s3cret")
	token := signTestToken(t, jwt.SigningMethodHS256, "s3cret", "user-1", models.RolePublisher, "")

	_, err := svc.ValidateToken(token)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
}
