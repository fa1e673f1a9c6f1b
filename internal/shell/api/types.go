package api

import (
	"github.com/artpar/fnhost/internal/core/credential"
	"github.com/artpar/fnhost/internal/core/function"
	"github.com/artpar/fnhost/internal/core/paging"
)

// =============================================================================
// Response Types
// =============================================================================

// ListFunctionsResponse is the response for listing functions.
type ListFunctionsResponse struct {
	Data       []function.Function `json:"data"`
	Pagination paging.Info         `json:"pagination"`
}

// ListCredentialsResponse is the response for listing credentials.
type ListCredentialsResponse struct {
	Data []credential.Credential `json:"data"`
}

// ErrorResponse is the error response format. Errors maps field names to
// messages for validation failures.
type ErrorResponse struct {
	Message string            `json:"message"`
	Code    string            `json:"code"`
	Errors  map[string]string `json:"errors,omitempty"`
}

// HealthResponse is the health check response.
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadyResponse is the readiness check response.
type ReadyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
