package submission

import (
	"errors"
	"fmt"
	"strings"

	"github.com/artpar/fnhost/internal/core/function"
)

var (
	ErrDeployUnsupported = errors.New("deployment unsupported for this source type in current scope")
	ErrUnknownIntent     = errors.New("unknown submission intent")
	ErrInvalidTransition = errors.New("invalid submission state transition")
)

// ValidationError is returned when the candidate violates one or more field
// rules. The Persister was not called.
type ValidationError struct {
	Fields function.FieldErrors
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Fields.Fields(), ", ")
}

// PolicyError is returned when a field-valid record violates an
// intent-specific rule. The Persister was not called.
type PolicyError struct {
	Intent     Intent
	SourceType function.SourceType
	Err        error
}

func (e *PolicyError) Error() string {
	if errors.Is(e.Err, ErrDeployUnsupported) {
		return fmt.Sprintf("%s: %s", e.Err.Error(), e.SourceType)
	}
	return fmt.Sprintf("%s: %q", e.Err.Error(), string(e.Intent))
}

func (e *PolicyError) Unwrap() error {
	return e.Err
}

// PersistenceError wraps a Persister failure. Unwrap returns the Persister's
// error unchanged.
type PersistenceError struct {
	Op  string
	ID  string
	Err error
}

func (e *PersistenceError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.ID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// TerminalState maps the result of Submit to the state the attempt ended in.
func TerminalState(err error) State {
	if err == nil {
		return StateSucceeded
	}
	var verr *ValidationError
	var perr *PolicyError
	if errors.As(err, &verr) || errors.As(err, &perr) {
		return StateRejected
	}
	return StateFailed
}
