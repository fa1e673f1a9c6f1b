package middleware

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Helpers
// =============================================================================

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func newTestMiddleware(token string) *AuthMiddleware {
	return NewAuthMiddleware(AuthConfig{
		Token:  token,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

// =============================================================================
// AuthMiddleware Tests
// =============================================================================

func TestAuthMiddleware_NoTokenConfigured_AllowsAll(t *testing.T) {
	handler := newTestMiddleware("").Handler(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/functions", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		headers  map[string]string
		wantCode int
		wantErr  string
	}{
		{
			name:     "bearer token",
			headers:  map[string]string{"Authorization": "Bearer s3cret"},
			wantCode: http.StatusOK,
		},
		{
			name:     "lowercase scheme",
			headers:  map[string]string{"Authorization": "bearer s3cret"},
			wantCode: http.StatusOK,
		},
		{
			name:     "token header",
			headers:  map[string]string{HeaderToken: "s3cret"},
			wantCode: http.StatusOK,
		},
		{
			name:     "missing",
			wantCode: http.StatusUnauthorized,
			wantErr:  "unauthorized",
		},
		{
			name:     "basic scheme",
			headers:  map[string]string{"Authorization": "Basic czNjcmV0"},
			wantCode: http.StatusUnauthorized,
			wantErr:  "unauthorized",
		},
		{
			name:     "wrong token",
			headers:  map[string]string{"Authorization": "Bearer nope"},
			wantCode: http.StatusForbidden,
			wantErr:  "forbidden",
		},
		{
			name:     "wrong token header",
			headers:  map[string]string{HeaderToken: "s3cret-but-longer"},
			wantCode: http.StatusForbidden,
			wantErr:  "forbidden",
		},
	}

	handler := newTestMiddleware("s3cret").Handler(okHandler())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/functions", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantErr != "" {
				assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
				var resp map[string]string
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
				assert.Equal(t, tt.wantErr, resp["code"])
			}
		})
	}
}

func TestTokenFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, "", TokenFromRequest(req))

	req.Header.Set(HeaderToken, "from-header")
	assert.Equal(t, "from-header", TokenFromRequest(req))

	// Authorization takes precedence.
	req.Header.Set("Authorization", "Bearer  padded ")
	assert.Equal(t, "padded", TokenFromRequest(req))
}
