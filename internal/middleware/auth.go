package middleware

import (
	"context"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-ledger/internal/auth"
	"github.com/ukydev/fleet-ledger/internal/models"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	UserContextKey contextKey = "user"
)

// publicPaths are served without a token.
var publicPaths = []string{
	"/api/auth/login",
	"/api/auth/register",
	"/health",
}

// AuthMiddleware provides JWT authentication middleware
type AuthMiddleware struct {
	authService *auth.Service
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(authService *auth.Service) *AuthMiddleware {
	return &AuthMiddleware{authService: authService}
}

// Authenticate validates the bearer token and stores its claims on the
// request context.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublic(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header required", http.StatusUnauthorized)
			return
		}
		claims, err := m.authService.ValidateToken(authHeader)
		if err != nil {
			log.WithFields(log.Fields{"path": r.URL.Path, "error": err}).Debug("Rejected token")
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), UserContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequirePermission only lets through users whose role grants the action.
func (m *AuthMiddleware) RequirePermission(action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := GetUserFromContext(r.Context())
			if !ok {
				http.Error(w, "User context not found", http.StatusUnauthorized)
				return
			}
			user := &models.User{Role: claims.Role}
			if !user.HasPermission(action) {
				log.WithFields(log.Fields{
					"user_id": claims.UserID,
					"role":    claims.Role,
					"action":  action,
				}).Info("Permission denied")
				http.Error(w, "Insufficient permissions", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Protect wraps a handler func with a permission check.
func (m *AuthMiddleware) Protect(action string, h http.HandlerFunc) http.Handler {
	return m.RequirePermission(action)(h)
}

// GetUserFromContext extracts user claims from request context
func GetUserFromContext(ctx context.Context) (*models.Claims, bool) {
	claims, ok := ctx.Value(UserContextKey).(*models.Claims)
	return claims, ok
}

// ActorID returns the authenticated user id, or "" when the request carries
// no claims.
func ActorID(ctx context.Context) string {
	if claims, ok := GetUserFromContext(ctx); ok {
		return claims.UserID
	}
	return ""
}

func isPublic(path string) bool {
	for _, p := range publicPaths {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

// RateLimitMiddleware is a sliding-window limiter keyed by client IP.
// Forwarding headers are honoured only when the peer is a trusted proxy.
type RateLimitMiddleware struct {
	maxRequests int
	window      time.Duration
	now         func() time.Time
	trusted     []netip.Prefix

	mu        sync.Mutex
	requests  map[string][]time.Time
	lastSweep time.Time
}

// NewRateLimitMiddleware allows maxRequests per window for each client.
// trustedProxies lists proxy addresses or CIDR ranges whose
// X-Forwarded-For and X-Real-IP headers are believed; invalid entries are
// logged and skipped.
func NewRateLimitMiddleware(maxRequests int, window time.Duration, trustedProxies ...string) *RateLimitMiddleware {
	m := &RateLimitMiddleware{
		maxRequests: maxRequests,
		window:      window,
		now:         time.Now,
		requests:    make(map[string][]time.Time),
	}
	for _, raw := range trustedProxies {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		prefix, err := parsePrefix(raw)
		if err != nil {
			log.WithFields(log.Fields{"proxy": raw, "error": err}).Warn("Ignoring invalid trusted proxy")
			continue
		}
		m.trusted = append(m.trusted, prefix)
	}
	return m
}

func parsePrefix(raw string) (netip.Prefix, error) {
	if strings.Contains(raw, "/") {
		p, err := netip.ParsePrefix(raw)
		return p.Masked(), err
	}
	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return netip.Prefix{}, err
	}
	addr = addr.Unmap()
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

// Allow records a request from the client and reports whether it is within
// the limit.
func (m *RateLimitMiddleware) Allow(client string) bool {
	now := m.now()
	cutoff := now.Add(-m.window)

	m.mu.Lock()
	defer m.mu.Unlock()

	if now.Sub(m.lastSweep) >= m.window {
		m.sweep(cutoff)
		m.lastSweep = now
	}

	kept := m.requests[client][:0]
	for _, ts := range m.requests[client] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= m.maxRequests {
		m.requests[client] = kept
		return false
	}
	m.requests[client] = append(kept, now)
	return true
}

// sweep drops clients with no request inside the window. Caller holds mu.
func (m *RateLimitMiddleware) sweep(cutoff time.Time) {
	for client, times := range m.requests {
		if len(times) == 0 || !times[len(times)-1].After(cutoff) {
			delete(m.requests, client)
		}
	}
}

// RateLimit rejects requests over the limit with 429.
func (m *RateLimitMiddleware) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.maxRequests > 0 && !m.Allow(m.clientIP(r)) {
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m *RateLimitMiddleware) isTrusted(addr netip.Addr) bool {
	for _, p := range m.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// clientIP returns the peer address, or the nearest untrusted hop of
// X-Forwarded-For when the peer is a trusted proxy.
func (m *RateLimitMiddleware) clientIP(r *http.Request) string {
	peer := remoteHost(r.RemoteAddr)
	addr, err := netip.ParseAddr(peer)
	if err != nil || !m.isTrusted(addr.Unmap()) {
		return peer
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			hopAddr, err := netip.ParseAddr(hop)
			if err != nil {
				return hop
			}
			if !m.isTrusted(hopAddr.Unmap()) || i == 0 {
				return hop
			}
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	return peer
}

func remoteHost(remoteAddr string) string {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}
