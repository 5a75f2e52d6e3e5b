package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/codemurf/auth-gateway/internal/token"
)

// authContextKey is the key type for the context
type authContextKey string

const authKey authContextKey = "auth"

const (
	authHeaderName   = "Authorization"
	authHeaderPrefix = "Bearer "
)

// AuthInfo represents the authentication information stored in context
type AuthInfo struct {
	UserID string
	Email  string
	Role   string
}

// AuthFromContext returns the AuthInfo stored by Authenticate, if any.
func AuthFromContext(ctx context.Context) (*AuthInfo, bool) {
	info, ok := ctx.Value(authKey).(*AuthInfo)
	return info, ok
}

// Authenticate validates the bearer access token and puts the caller's
// identity into the request context. Refresh tokens are rejected here; they
// are only good at the refresh endpoint.
func Authenticate(issuer *token.Issuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := extractToken(r)
			if raw == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
				return
			}

			claims, err := issuer.VerifyAccess(raw)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid_token", err.Error())
				return
			}

			ctx := context.WithValue(r.Context(), authKey, &AuthInfo{
				UserID: claims.Subject,
				Email:  claims.Email,
				Role:   claims.Role,
			})

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CORSWithOrigins returns a CORS middleware limited to the given origins.
// An empty list allows any origin.
func CORSWithOrigins(origins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			switch {
			case len(allowed) == 0:
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case allowed[origin]:
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// extractToken extracts the Bearer token from the request
func extractToken(r *http.Request) string {
	authHeader := r.Header.Get(authHeaderName)
	if strings.HasPrefix(authHeader, authHeaderPrefix) {
		return strings.TrimPrefix(authHeader, authHeaderPrefix)
	}
	return ""
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", fmt.Sprintf(`Bearer realm="CodeMurf", error="%s", error_description="%s"`, code, message))
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             code,
		"error_description": message,
	})
}
