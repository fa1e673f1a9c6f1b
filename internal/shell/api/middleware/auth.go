// Package middleware provides HTTP middleware for the fnhost API.
package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

// HeaderToken carries the shared API token when the Authorization header is
// not used.
const HeaderToken = "X-Fnhost-Token"

// =============================================================================
// Auth Configuration
// =============================================================================

// AuthConfig holds configuration for the auth middleware.
type AuthConfig struct {
	// Token is the shared secret clients must present. If empty, every
	// request is allowed.
	Token string

	Logger *slog.Logger
}

// =============================================================================
// Auth Middleware
// =============================================================================

// AuthMiddleware rejects requests that do not carry the shared token.
type AuthMiddleware struct {
	config AuthConfig
}

// NewAuthMiddleware creates a new auth middleware with the given config.
func NewAuthMiddleware(cfg AuthConfig) *AuthMiddleware {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &AuthMiddleware{config: cfg}
}

// Handler returns the middleware handler function. The token is read from
// "Authorization: Bearer <token>" or the X-Fnhost-Token header.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	if m.config.Token == "" {
		return next
	}
	want := []byte(m.config.Token)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := TokenFromRequest(r)
		if got == "" {
			writeJSONError(w, http.StatusUnauthorized, "Authentication required", "unauthorized")
			return
		}
		if subtle.ConstantTimeCompare([]byte(got), want) != 1 {
			m.config.Logger.Warn("invalid API token",
				"remote_addr", r.RemoteAddr,
				"path", r.URL.Path,
			)
			writeJSONError(w, http.StatusForbidden, "Invalid API token", "forbidden")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// TokenFromRequest returns the presented token, or "" when there is none.
func TokenFromRequest(r *http.Request) string {
	if authz := r.Header.Get("Authorization"); authz != "" {
		scheme, token, ok := strings.Cut(authz, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.Header.Get(HeaderToken)
}

// =============================================================================
// JSON Error Response
// =============================================================================

type errorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

func writeJSONError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Message: message, Code: code})
}
