package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/solostudio-app/solostudio/backend/internal/auth"
)

const ctxKeyUserID ctxKey = "auth_user_id"

// Authenticator verifies bearer access tokens and, for per-user routes, that
// the token subject matches the userId path segment.
type Authenticator struct {
	Secret string
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{Secret: secret}
}

// public routes that never require a token
var authSkipPrefixes = []string{
	"/health",
	"/api/auth/",
	"/api/events",
	"/api/billing/webhook",
	"/media/",
}

func (a *Authenticator) shouldSkip(r *http.Request) bool {
	for _, p := range authSkipPrefixes {
		if strings.HasPrefix(r.URL.Path, p) {
			return true
		}
	}
	return false
}

// Middleware rejects requests without a valid bearer token and requests whose
// token belongs to a different user than the one in the path.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.shouldSkip(r) {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		userID, err := auth.ParseAccessToken(a.Secret, strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		if pathUser := pathUserID(r.URL.Path); pathUser != "" && pathUser != userID {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyUserID, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// pathUserID pulls the owner id out of /api/.../user/{userId}/... paths and
// the profile routes /api/users/{id}.
func pathUserID(path string) string {
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if (part == "user" || part == "users") && i+1 < len(parts) {
			return parts[i+1]
		}
	}
	return ""
}

// UserID returns the authenticated user id stored by Middleware, or "".
func UserID(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyUserID).(string)
	return v
}
