package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/student-management-api/internal/models"
	appErrors "github.com/noah-isme/student-management-api/pkg/errors"
)

func newAuthServiceForTest() *AuthService {
	return NewAuthService(nil, AuthConfig{Secret: "test-secret", Issuer: "student-api", TTL: 15 * time.Minute})
}

func TestIssueAndValidateToken(t *testing.T) {
	svc := newAuthServiceForTest()

	token, expiresAt, err := svc.IssueToken("staff-1", "staff@example.com", models.RoleStaff)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), expiresAt, time.Minute)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "staff-1", claims.UserID)
	assert.Equal(t, models.RoleStaff, claims.Role)
	assert.Equal(t, "student-api", claims.Issuer)
	assert.NotEmpty(t, claims.ID)
}

func TestIssueTokenRejectsUnknownRole(t *testing.T) {
	_, _, err := newAuthServiceForTest().IssueToken("staff-1", "", models.UserRole("ROOT"))
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidInput))
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	svc := newAuthServiceForTest()
	svc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, _, err := svc.IssueToken("staff-1", "", models.RoleAdmin)
	require.NoError(t, err)

	svc.now = time.Now
	_, err = svc.ValidateToken(token)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
}

func TestValidateTokenRejectsForeignSecretAndIssuer(t *testing.T) {
	other := NewAuthService(nil, AuthConfig{Secret: "other-secret", Issuer: "student-api"})
	token, _, err := other.IssueToken("staff-1", "", models.RoleAdmin)
	require.NoError(t, err)
	_, err = newAuthServiceForTest().ValidateToken(token)
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))

	foreign := NewAuthService(nil, AuthConfig{Secret: "test-secret", Issuer: "elsewhere"})
	token, _, err = foreign.IssueToken("staff-1", "", models.RoleAdmin)
	require.NoError(t, err)
	_, err = newAuthServiceForTest().ValidateToken(token)
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
}

func TestValidateTokenRejectsOtherAlgorithms(t *testing.T) {
	claims := &models.JWTClaims{UserID: "staff-1", Role: models.RoleAdmin}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = newAuthServiceForTest().ValidateToken(token)
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
}
