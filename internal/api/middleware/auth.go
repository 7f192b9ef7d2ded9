package middleware

import (
	"context"
	"net/http"

	"github.com/pratik-mahalle/secwatch/internal/auth"
	"github.com/pratik-mahalle/secwatch/internal/pkg/errors"
	"github.com/pratik-mahalle/secwatch/internal/pkg/utils"
)

// ContextKey is a custom type for context keys
type ContextKey string

const (
	// IdentityKey is the context key for the authenticated actor
	IdentityKey ContextKey = "identity"
)

// AuthMiddleware returns a middleware that rejects requests without a valid
// token in the Authorization header or the named cookie
func AuthMiddleware(jwtSecret, cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr := auth.TokenFromRequest(r, cookieName)
			if tokenStr == "" {
				utils.WriteError(w, errors.Unauthorized("Missing authentication token"))
				return
			}

			claims, err := auth.ParseClaims(tokenStr, jwtSecret)
			if err != nil {
				utils.WriteError(w, errors.Unauthorized("Invalid or expired token"))
				return
			}

			AddLogField(w, "identity", claims.Identity())
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), claims.Identity())))
		})
	}
}

// OptionalAuthMiddleware is like AuthMiddleware but doesn't reject requests without tokens
func OptionalAuthMiddleware(jwtSecret, cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tokenStr := auth.TokenFromRequest(r, cookieName); tokenStr != "" {
				if claims, err := auth.ParseClaims(tokenStr, jwtSecret); err == nil {
					AddLogField(w, "identity", claims.Identity())
					r = r.WithContext(WithIdentity(r.Context(), claims.Identity()))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithIdentity stores the authenticated actor in ctx
func WithIdentity(ctx context.Context, identity string) context.Context {
	return context.WithValue(ctx, IdentityKey, identity)
}

// GetIdentity extracts the authenticated actor from the request context
func GetIdentity(r *http.Request) (string, bool) {
	identity, ok := r.Context().Value(IdentityKey).(string)
	return identity, ok && identity != ""
}
