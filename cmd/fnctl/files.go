package main

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/artpar/fnhost/internal/core/function"
)

// schemaFields may be written as nested objects in a function file; the
// server expects them as JSON text.
var schemaFields = []string{function.FieldInputSchema, function.FieldOutputSchema}

// loadCandidate reads a YAML or JSON function file. JSON is accepted because
// it is a subset of YAML.
func loadCandidate(path string) (function.Candidate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("parse %s: expected a mapping of function fields", path)
	}

	for _, field := range schemaFields {
		switch v := raw[field].(type) {
		case map[string]any, []any:
			doc, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("encode %s: %w", field, err)
			}
			raw[field] = string(doc)
		}
	}
	return function.Candidate(raw), nil
}

// toYAML renders v through its JSON form so field names match the API.
func toYAML(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	var generic map[string]any
	if err := json.Unmarshal(data, &generic); err != nil {
		return "", err
	}
	out, err := yaml.Marshal(generic)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
