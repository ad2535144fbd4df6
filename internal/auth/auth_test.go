package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-ledger/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	service, err := NewService("test-secret", time.Hour)
	require.NoError(t, err)
	return service
}

func testUser(role models.Role) *models.User {
	return &models.User{ID: primitive.NewObjectID(), Username: "dispatcher", Role: role}
}

func TestNewService(t *testing.T) {
	service, err := NewService("", 0)
	assert.NoError(t, err)
	assert.Equal(t, []byte(devSecret), service.jwtSecret)
	assert.Equal(t, 24*time.Hour, service.tokenExp)

	service = newTestService(t)
	assert.Equal(t, time.Hour, service.tokenExp)
}

func TestService_HashAndCheckPassword(t *testing.T) {
	service := newTestService(t)

	hash, err := service.HashPassword("testpassword123")
	require.NoError(t, err)
	assert.NotEqual(t, "testpassword123", hash)

	assert.True(t, service.CheckPassword("testpassword123", hash))
	assert.False(t, service.CheckPassword("wrongpassword", hash))
}

func TestService_ValidateToken(t *testing.T) {
	service := newTestService(t)
	user := testUser(models.RoleOperator)

	token, err := service.GenerateToken(user)
	require.NoError(t, err)

	claims, err := service.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID.Hex(), claims.UserID)
	assert.Equal(t, user.Username, claims.Username)
	assert.Equal(t, models.RoleOperator, claims.Role)

	_, err = service.ValidateToken("Bearer " + token)
	assert.NoError(t, err)

	_, err = service.ValidateToken("invalid-token")
	assert.Equal(t, ErrInvalidToken, err)

	other, _ := NewService("another-secret", time.Hour)
	_, err = other.ValidateToken(token)
	assert.Equal(t, ErrInvalidToken, err)
}

func TestService_ValidateToken_Expired(t *testing.T) {
	service := newTestService(t)
	issued := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return issued }

	token, err := service.GenerateToken(testUser(models.RoleAdmin))
	require.NoError(t, err)

	claims, err := service.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, issued.Add(time.Hour).Unix(), claims.Exp)

	service.now = func() time.Time { return issued.Add(2 * time.Hour) }
	_, err = service.ValidateToken(token)
	assert.Equal(t, ErrExpiredToken, err)
}

func TestService_ValidateToken_RejectsUnknownRole(t *testing.T) {
	service := newTestService(t)
	claims := staffClaims{
		Username: "x",
		Role:     "superuser",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "abc",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(service.jwtSecret)
	require.NoError(t, err)

	_, err = service.ValidateToken(token)
	assert.Equal(t, ErrInvalidToken, err)
}

func TestService_ExtractTokenFromHeader(t *testing.T) {
	service := newTestService(t)

	extracted, err := service.ExtractTokenFromHeader("Bearer valid-token")
	assert.NoError(t, err)
	assert.Equal(t, "valid-token", extracted)

	for _, header := range []string{"", "InvalidFormat", "Bearer ", "Basic abc", "Bearer a b"} {
		_, err = service.ExtractTokenFromHeader(header)
		assert.Equal(t, ErrInvalidToken, err, "header %q", header)
	}
}

func TestService_Validators(t *testing.T) {
	service := newTestService(t)

	assert.NoError(t, service.ValidatePassword("validpassword123"))
	assert.ErrorContains(t, service.ValidatePassword("short"), "at least 8 characters")

	assert.NoError(t, service.ValidateEmail("ops@fleet.example"))
	for _, email := range []string{"testexample.com", "test@", "test", "@example.com"} {
		assert.ErrorContains(t, service.ValidateEmail(email), "invalid email format", email)
	}

	assert.NoError(t, service.ValidateUsername("dispatcher"))
	assert.ErrorContains(t, service.ValidateUsername("ab"), "at least 3 characters")
	assert.ErrorContains(t, service.ValidateUsername(strings.Repeat("a", 51)), "less than 50 characters")
}

func TestService_GenerateRefreshToken(t *testing.T) {
	service := newTestService(t)

	a, err := service.GenerateRefreshToken()
	require.NoError(t, err)
	b, _ := service.GenerateRefreshToken()
	assert.Len(t, a, 44)
	assert.NotEqual(t, a, b)
}
