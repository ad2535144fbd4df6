package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-ledger/internal/auth"
	"github.com/ukydev/fleet-ledger/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func newTestMiddleware(t *testing.T) (*AuthMiddleware, *auth.Service) {
	t.Helper()
	authService, err := auth.NewService("middleware-secret", time.Hour)
	require.NoError(t, err)
	return NewAuthMiddleware(authService), authService
}

func tokenFor(t *testing.T, svc *auth.Service, role models.Role) (string, *models.User) {
	t.Helper()
	user := &models.User{ID: primitive.NewObjectID(), Username: "staff-" + string(role), Role: role}
	token, err := svc.GenerateToken(user)
	require.NoError(t, err)
	return token, user
}

func TestAuthMiddleware_Authenticate(t *testing.T) {
	middleware, authService := newTestMiddleware(t)

	t.Run("valid token", func(t *testing.T) {
		token, user := tokenFor(t, authService, models.RoleOperator)
		req := httptest.NewRequest(http.MethodGet, "/api/drivers", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()

		handlerCalled := false
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handlerCalled = true
			claims, ok := GetUserFromContext(r.Context())
			assert.True(t, ok)
			assert.Equal(t, user.Username, claims.Username)
			assert.Equal(t, user.ID.Hex(), ActorID(r.Context()))
		})

		middleware.Authenticate(handler).ServeHTTP(w, req)
		assert.True(t, handlerCalled)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("missing authorization header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/drivers", nil)
		w := httptest.NewRecorder()
		middleware.Authenticate(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			t.Fatal("handler must not run")
		})).ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("invalid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/drivers", nil)
		req.Header.Set("Authorization", "Bearer invalid-token")
		w := httptest.NewRecorder()
		middleware.Authenticate(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			t.Fatal("handler must not run")
		})).ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("public paths", func(t *testing.T) {
		for _, path := range []string{"/api/auth/login", "/api/auth/register", "/health"} {
			req := httptest.NewRequest(http.MethodPost, path, nil)
			w := httptest.NewRecorder()
			called := false
			middleware.Authenticate(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
				called = true
			})).ServeHTTP(w, req)
			assert.True(t, called, path)
		}
	})

	t.Run("prefix lookalike is not public", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/healthcheck-admin", nil)
		w := httptest.NewRecorder()
		middleware.Authenticate(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestAuthMiddleware_RequirePermission(t *testing.T) {
	middleware, authService := newTestMiddleware(t)

	tests := []struct {
		name     string
		role     models.Role
		action   string
		expected int
	}{
		{"operator can assign", models.RoleOperator, models.PermAssignDriver, http.StatusOK},
		{"operator cannot resolve missing", models.RoleOperator, models.PermResolveMissing, http.StatusForbidden},
		{"viewer cannot reassign", models.RoleViewer, models.PermReassignDriver, http.StatusForbidden},
		{"viewer can read audit", models.RoleViewer, models.PermViewAudit, http.StatusOK},
		{"manager can run decay", models.RoleManager, models.PermRunDecay, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, _ := tokenFor(t, authService, tt.role)
			req := httptest.NewRequest(http.MethodPost, "/api/assignments", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			w := httptest.NewRecorder()

			h := middleware.Authenticate(middleware.Protect(tt.action, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))
			h.ServeHTTP(w, req)
			assert.Equal(t, tt.expected, w.Code)
		})
	}

	t.Run("no claims on context", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/drivers", nil)
		w := httptest.NewRecorder()
		middleware.RequirePermission(models.PermViewPools)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestActorID_Empty(t *testing.T) {
	assert.Empty(t, ActorID(context.Background()))
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter := NewRateLimitMiddleware(2, time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	handler := limiter.RateLimit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	do := func(remote string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/drivers", nil)
		req.RemoteAddr = remote + ":40000"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, do("192.168.1.1"))
	assert.Equal(t, http.StatusOK, do("192.168.1.1"))
	assert.Equal(t, http.StatusTooManyRequests, do("192.168.1.1"))
	assert.Equal(t, http.StatusOK, do("192.168.1.2"))

	now = now.Add(61 * time.Second)
	assert.Equal(t, http.StatusOK, do("192.168.1.1"))
}

func TestRateLimitMiddleware_IgnoresSpoofedForwardedFor(t *testing.T) {
	limiter := NewRateLimitMiddleware(1, time.Minute)
	handler := limiter.RateLimit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := []int{}
	for _, spoofed := range []string{"1.1.1.1", "2.2.2.2", "3.3.3.3"} {
		req := httptest.NewRequest(http.MethodGet, "/api/drivers", nil)
		req.RemoteAddr = "198.51.100.4:40000"
		req.Header.Set("X-Forwarded-For", spoofed)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests, http.StatusTooManyRequests}, codes)
	assert.Len(t, limiter.requests, 1)
}

func TestRateLimitMiddleware_SweepsIdleClients(t *testing.T) {
	limiter := NewRateLimitMiddleware(5, time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	for i := 0; i < 50; i++ {
		assert.True(t, limiter.Allow(fmt.Sprintf("10.0.0.%d", i)))
	}
	assert.Len(t, limiter.requests, 50)

	now = now.Add(2 * time.Minute)
	assert.True(t, limiter.Allow("10.0.1.1"))
	assert.Len(t, limiter.requests, 1)
}

func TestClientIP(t *testing.T) {
	direct := NewRateLimitMiddleware(10, time.Minute)
	proxied := NewRateLimitMiddleware(10, time.Minute, "10.0.0.0/8", "192.168.1.10", "not-an-ip")
	assert.Len(t, proxied.trusted, 2)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	assert.Equal(t, "10.1.2.3", direct.clientIP(req))
	assert.Equal(t, "10.1.2.3", proxied.clientIP(req))

	req.Header.Set("X-Real-IP", "172.16.0.9")
	assert.Equal(t, "10.1.2.3", direct.clientIP(req))
	assert.Equal(t, "172.16.0.9", proxied.clientIP(req))

	// nearest untrusted hop wins, so a client cannot prepend its own value
	req.Header.Set("X-Forwarded-For", "1.1.1.1, 203.0.113.7, 10.0.0.1")
	assert.Equal(t, "10.1.2.3", direct.clientIP(req))
	assert.Equal(t, "203.0.113.7", proxied.clientIP(req))

	req.RemoteAddr = "192.168.1.10:80"
	req.Header.Set("X-Forwarded-For", "10.0.0.5, 10.0.0.1")
	assert.Equal(t, "10.0.0.5", proxied.clientIP(req))

	req.RemoteAddr = "198.51.100.4:80"
	assert.Equal(t, "198.51.100.4", proxied.clientIP(req))
}
