// Package api provides HTTP handlers for the fnhost API.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/artpar/fnhost/internal/core/function"
	"github.com/artpar/fnhost/internal/core/submission"
	apimiddleware "github.com/artpar/fnhost/internal/shell/api/middleware"
	"github.com/artpar/fnhost/internal/shell/api/openapi"
	"github.com/artpar/fnhost/internal/shell/store"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// =============================================================================
// Handler
// =============================================================================

// Handler provides HTTP handlers for the API.
type Handler struct {
	store      store.Store
	controller *submission.Controller
	docs       *openapi.Generator
	logger     *slog.Logger
	secretKey  []byte
	authToken  string
}

// Option configures a Handler.
type Option func(*Handler)

// WithSecretKey enables the credentials endpoints. Without a key they answer
// 503.
func WithSecretKey(key []byte) Option {
	return func(h *Handler) {
		h.secretKey = key
	}
}

// WithAuthToken requires the shared token on every /api route.
func WithAuthToken(token string) Option {
	return func(h *Handler) {
		h.authToken = token
	}
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, l *slog.Logger, opts ...Option) *Handler {
	if l == nil {
		l = slog.Default()
	}

	h := &Handler{
		store:  s,
		logger: l,
	}
	for _, opt := range opts {
		opt(h)
	}

	h.controller = submission.NewController(
		store.NewPersister(s),
		submission.WithObserver(func(from, to submission.State) {
			h.logger.Debug("submission transition", "from", from, "to", to)
		}),
	)
	h.docs = newDocs()
	return h
}

// Routes returns the router with all routes configured.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.jsonContentType)
	r.Use(h.requestIDHeader)

	// Health endpoints
	r.Get("/health", h.handleHealth)
	r.Get("/ready", h.handleReady)
	r.Get("/openapi.json", h.docs.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(apimiddleware.NewAuthMiddleware(apimiddleware.AuthConfig{
			Token:  h.authToken,
			Logger: h.logger,
		}).Handler)

		r.Route("/functions", func(r chi.Router) {
			r.Get("/", h.handleListFunctions)
			r.Post("/", h.handleCreateFunction)
			r.Get("/{id}", h.handleGetFunction)
			r.Put("/{id}", h.handleUpdateFunction)
			r.Delete("/{id}", h.handleDeleteFunction)
			r.Post("/{id}/test-input", h.handleTestInput)
		})

		r.Route("/credentials", func(r chi.Router) {
			r.Use(h.requireSecretKey)
			r.Get("/", h.handleListCredentials)
			r.Post("/", h.handleCreateCredential)
			r.Get("/{id}", h.handleGetCredential)
			r.Delete("/{id}", h.handleDeleteCredential)
		})
	})

	return r
}

// =============================================================================
// Middleware
// =============================================================================

// jsonContentType sets Content-Type header to application/json.
func (h *Handler) jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// requestIDHeader copies the request ID to the response header.
func (h *Handler) requestIDHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reqID := middleware.GetReqID(r.Context()); reqID != "" {
			w.Header().Set("X-Request-ID", reqID)
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) requireSecretKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(h.secretKey) == 0 {
			h.writeError(w, http.StatusServiceUnavailable, "credential storage is not configured", "credentials_disabled")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// Health Handlers
// =============================================================================

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)

	if err := h.store.Ping(r.Context()); err != nil {
		h.logger.Warn("readiness check failed", "error", err)
		checks["database"] = "failed"
		h.writeJSON(w, http.StatusServiceUnavailable, ReadyResponse{
			Status: "not_ready",
			Checks: checks,
		})
		return
	}
	checks["database"] = "ok"

	h.writeJSON(w, http.StatusOK, ReadyResponse{
		Status: "ready",
		Checks: checks,
	})
}

// =============================================================================
// Helpers
// =============================================================================

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode JSON", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message, code string) {
	h.writeJSON(w, status, ErrorResponse{
		Message: message,
		Code:    code,
	})
}

func (h *Handler) writeFieldErrors(w http.ResponseWriter, fields map[string]string) {
	h.writeJSON(w, http.StatusBadRequest, ErrorResponse{
		Message: "Invalid input data",
		Code:    "validation_error",
		Errors:  fields,
	})
}

func isNotFound(err error) bool {
	return store.IsNotFound(err) || errors.Is(err, function.ErrNotFound)
}
