// Package handlers contains HTTP handler interfaces and implementations.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/edugami/edugami-engine/internal/domain/shared"
	"github.com/edugami/edugami-engine/internal/domain/tenant"
)

// ══════════════════════════════════════════════════════════════════════════════
// IDENTITY AUTHENTICATION
// ══════════════════════════════════════════════════════════════════════════════

// Identity context key.
type identityContextKey struct{}

// IdentityFrom extracts the authenticated identity from the request context.
func IdentityFrom(ctx context.Context) (shared.Identity, bool) {
	identity, ok := ctx.Value(identityContextKey{}).(shared.Identity)
	return identity, ok
}

// WithIdentity returns a context carrying the given identity. Exported for
// handler tests.
func WithIdentity(ctx context.Context, identity shared.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// sessionClaims are the JWT claims issued by the platform's auth service.
// Subject carries the student the session is about; for parent and teacher
// sessions that is the viewed student, not the caller.
type sessionClaims struct {
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// IdentityAuth authenticates requests. Two schemes are accepted:
//
//   - Authorization: Bearer <jwt> - platform sessions (student, parent,
//     teacher, admin), signed HS256 by the auth service.
//   - X-API-Key: <tenant_id>:<raw_key> - service-to-service calls checked
//     against the tenant's stored key hash; these act as tenant admin.
type IdentityAuth struct {
	jwtSecret  []byte
	tenantRepo tenant.Repository
}

// NewIdentityAuth creates a new authenticator.
func NewIdentityAuth(jwtSecret []byte, tenantRepo tenant.Repository) *IdentityAuth {
	return &IdentityAuth{
		jwtSecret:  jwtSecret,
		tenantRepo: tenantRepo,
	}
}

// Authenticate resolves the caller's identity from the request.
func (a *IdentityAuth) Authenticate(r *http.Request) (shared.Identity, error) {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return a.authenticateAPIKey(r.Context(), key)
	}

	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return a.authenticateJWT(strings.TrimPrefix(auth, "Bearer "))
	}

	return shared.Identity{}, shared.ErrUnauthorized
}

// authenticateJWT validates a session token and builds the identity.
func (a *IdentityAuth) authenticateJWT(tokenString string) (shared.Identity, error) {
	claims := &sessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return shared.Identity{}, shared.ErrUnauthorized
	}

	identity := shared.Identity{
		TenantID:  shared.TenantID(claims.TenantID),
		StudentID: shared.StudentID(claims.Subject),
		Role:      shared.Role(claims.Role),
	}
	if err := identity.Validate(); err != nil {
		return shared.Identity{}, shared.ErrUnauthorized
	}
	return identity, nil
}

// authenticateAPIKey checks a tenant service key. The key format is
// "<tenant_id>:<raw_key>"; the raw key is compared against the stored
// bcrypt hash. Service callers get admin visibility within their tenant.
func (a *IdentityAuth) authenticateAPIKey(ctx context.Context, key string) (shared.Identity, error) {
	tenantID, rawKey, found := strings.Cut(key, ":")
	if !found || rawKey == "" {
		return shared.Identity{}, shared.ErrInvalidAPIKey
	}

	t, err := a.tenantRepo.GetByID(ctx, shared.TenantID(tenantID))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.Identity{}, shared.ErrInvalidAPIKey
		}
		return shared.Identity{}, err
	}

	if err := t.VerifyAPIKey(rawKey); err != nil {
		return shared.Identity{}, err
	}

	return shared.Identity{
		TenantID: t.ID,
		Role:     shared.RoleAdmin,
	}, nil
}

// Middleware authenticates the request and injects the identity into the
// request context. Unauthenticated requests get 401.
func (a *IdentityAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := a.Authenticate(r)
		if err != nil {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"success":false,"error":{"code":"unauthorized","message":"Authentication required"}}`))
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// TIMEOUT MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// TimeoutMiddleware adds a timeout to request contexts.
func TimeoutMiddleware(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			done := make(chan struct{})

			go func() {
				next.ServeHTTP(w, r.WithContext(ctx))
				close(done)
			}()

			select {
			case <-done:
			case <-ctx.Done():
				if ctx.Err() == context.DeadlineExceeded {
					http.Error(w, `{"error":"timeout","message":"Request timeout exceeded"}`, http.StatusGatewayTimeout)
				}
			}
		})
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// SECURITY HEADERS MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// SecurityHeadersMiddleware adds security-related headers.
func SecurityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Prevent MIME type sniffing
		w.Header().Set("X-Content-Type-Options", "nosniff")

		// Prevent clickjacking
		w.Header().Set("X-Frame-Options", "DENY")

		// Referrer policy
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		// Content security policy for API
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")

		next.ServeHTTP(w, r)
	})
}

// NoCacheMiddleware prevents caching. Progress snapshots and skill trees
// must never be served stale by intermediaries.
func NoCacheMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")
		next.ServeHTTP(w, r)
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST SIZE LIMIT MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// RequestSizeLimitMiddleware limits the size of request bodies.
func RequestSizeLimitMiddleware(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				http.Error(w, `{"error":"payload_too_large","message":"Request body too large"}`,
					http.StatusRequestEntityTooLarge)
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

			next.ServeHTTP(w, r)
		})
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE CHAIN BUILDER
// ══════════════════════════════════════════════════════════════════════════════

// MiddlewareFunc is a function that wraps an http.Handler.
type MiddlewareFunc func(http.Handler) http.Handler

// Chain chains multiple middleware functions.
func Chain(middlewares ...MiddlewareFunc) MiddlewareFunc {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

// ChainHandler chains middleware and wraps a final handler.
func ChainHandler(handler http.Handler, middlewares ...MiddlewareFunc) http.Handler {
	return Chain(middlewares...)(handler)
}
