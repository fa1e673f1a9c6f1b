package function

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
)

// Candidate field names.
const (
	FieldName         = "name"
	FieldDescription  = "description"
	FieldSourceType   = "sourceType"
	FieldRuntime      = "runtime"
	FieldHandler      = "handler"
	FieldTimeout      = "timeout"
	FieldMemory       = "memory"
	FieldInlineCode   = "inlineCode"
	FieldRepoURL      = "repoUrl"
	FieldBranch       = "branch"
	FieldFilePath     = "filePath"
	FieldInputSchema  = "inputSchema"
	FieldOutputSchema = "outputSchema"
	FieldCredentialID = "credentialId"
)

// Candidate is an untrusted function configuration as received from a form,
// request body or file. Any field may be missing or carry the wrong type.
type Candidate map[string]any

// ParseCandidate decodes a JSON object into a Candidate. Numbers are kept as
// json.Number so that non-integer values can be reported precisely.
func ParseCandidate(data []byte) (Candidate, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCandidate, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: unexpected data after JSON object", ErrMalformedCandidate)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected a JSON object", ErrMalformedCandidate)
	}
	return Candidate(obj), nil
}

// lookup reports whether key is present with a non-nil value.
func (c Candidate) lookup(key string) (any, bool) {
	v, ok := c[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// stringField returns the string at key. present is false when the key is
// missing, null or an empty string. ok is false when the value is not a string.
func (c Candidate) stringField(key string) (value string, present, ok bool) {
	raw, found := c.lookup(key)
	if !found {
		return "", false, true
	}
	s, isString := raw.(string)
	if !isString {
		return "", true, false
	}
	if s == "" {
		return "", false, true
	}
	return s, true, true
}

// numberField returns the numeric value at key. ok is false when the value is
// not a number; numeric strings are rejected.
func (c Candidate) numberField(key string) (value float64, present, ok bool) {
	raw, found := c.lookup(key)
	if !found {
		return 0, false, true
	}

	switch n := raw.(type) {
	case int:
		return float64(n), true, true
	case int32:
		return float64(n), true, true
	case int64:
		return float64(n), true, true
	case uint:
		return float64(n), true, true
	case uint32:
		return float64(n), true, true
	case uint64:
		return float64(n), true, true
	case float32:
		return float64(n), true, true
	case float64:
		return n, true, true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, true, false
		}
		return f, true, true
	default:
		return 0, true, false
	}
}

// isWhole reports whether f is a finite integral value.
func isWhole(f float64) bool {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return false
	}
	return f == math.Trunc(f)
}
