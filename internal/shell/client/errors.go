package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/artpar/fnhost/internal/core/function"
)

// APIError is an error response the client has no domain mapping for.
type APIError struct {
	StatusCode int
	Message    string
	Code       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

type errorBody struct {
	Message string            `json:"message"`
	Code    string            `json:"code"`
	Errors  map[string]string `json:"errors"`
}

// decodeError maps an error response to function.ErrNotFound,
// *function.InputError or *APIError.
func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var body errorBody
	if err := json.Unmarshal(raw, &body); err != nil || body.Message == "" {
		body.Message = http.StatusText(resp.StatusCode)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound && body.Code == "function_not_found":
		return fmt.Errorf("%w: %s", function.ErrNotFound, resp.Request.URL.Path)
	case resp.StatusCode == http.StatusBadRequest && len(body.Errors) > 0:
		return &function.InputError{Fields: function.FieldErrors(body.Errors)}
	default:
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    body.Message,
			Code:       body.Code,
		}
	}
}
