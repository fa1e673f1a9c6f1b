// Package schema checks test payloads against a function's input schema.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// resourceURL names the in-memory schema resource; it is never fetched.
const resourceURL = "mem:///input-schema.json"

var (
	// ErrInvalidSchema is returned when the stored schema does not compile.
	ErrInvalidSchema = errors.New("input schema is not a valid JSON Schema")

	// ErrInvalidPayload is returned when the payload is not JSON.
	ErrInvalidPayload = errors.New("payload must be valid JSON")

	// ErrExternalRef is returned for any $ref outside the schema document.
	ErrExternalRef = errors.New("external schema references are not allowed")
)

// Violation is a single reason a payload failed its schema.
type Violation struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// Report is the result of checking one payload.
type Report struct {
	Valid      bool        `json:"valid"`
	Violations []Violation `json:"errors,omitempty"`
}

// Compile compiles a schema document. An empty document accepts everything.
func Compile(doc string) (*jsonschema.Schema, error) {
	if strings.TrimSpace(doc) == "" {
		doc = "{}"
	}

	compiler := jsonschema.NewCompiler()
	compiler.LoadURL = refuseURL
	if err := compiler.AddResource(resourceURL, strings.NewReader(doc)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	sch, err := compiler.Compile(resourceURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	return sch, nil
}

// refuseURL keeps compilation inside the stored document. Schemas are user
// input, so file:// and remote references are never resolved.
func refuseURL(url string) (io.ReadCloser, error) {
	return nil, fmt.Errorf("%w: %s", ErrExternalRef, url)
}

// Check validates payload against the schema document.
func Check(doc string, payload []byte) (*Report, error) {
	sch, err := Compile(doc)
	if err != nil {
		return nil, err
	}

	var document any
	if err := json.Unmarshal(payload, &document); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	if err := sch.Validate(document); err != nil {
		var verr *jsonschema.ValidationError
		if !errors.As(err, &verr) {
			return nil, err
		}
		return &Report{Valid: false, Violations: flatten(verr)}, nil
	}
	return &Report{Valid: true}, nil
}

// flatten collects the leaf causes of a validation error.
func flatten(verr *jsonschema.ValidationError) []Violation {
	if len(verr.Causes) == 0 {
		path := verr.InstanceLocation
		if path == "" {
			path = "/"
		}
		return []Violation{{Path: path, Message: verr.Message}}
	}

	var out []Violation
	for _, cause := range verr.Causes {
		out = append(out, flatten(cause)...)
	}
	return out
}
