package function

import (
	"errors"
	"strings"
)

var (
	// ErrNotFound is returned when a function does not exist.
	ErrNotFound = errors.New("function not found")

	// ErrMalformedCandidate is returned when input cannot be read as an object.
	ErrMalformedCandidate = errors.New("malformed function candidate")
)

// InputError is returned by a persistence collaborator that rejected a record
// during its own re-validation.
type InputError struct {
	Fields FieldErrors
}

func (e *InputError) Error() string {
	if len(e.Fields) == 0 {
		return "invalid input data"
	}
	return "invalid input data: " + strings.Join(e.Fields.Fields(), ", ")
}
