// Package contract checks payloads against the JSON schemas declared on steps and workflows.
package contract

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

var ErrInvalidSchema = errors.New("invalid schema")

// ValidationError lists every schema rule a payload broke.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return "validation errors: " + strings.Join(e.Errors, "; ")
}

// Validate checks data against schema. A nil schema accepts anything.
func Validate(schema *models.JSONSchema, data any) error {
	if schema == nil {
		return nil
	}

	schemaLoader := gojsonschema.NewGoLoader(schema)
	dataLoader := gojsonschema.NewGoLoader(data)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSchema, err)
	}

	if !result.Valid() {
		violations := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			violations = append(violations, desc.String())
		}

		return &ValidationError{Errors: violations}
	}

	return nil
}

// Normalize converts v to its generic JSON form: maps, slices, float64, string, bool and nil.
func Normalize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}

	switch v.(type) {
	case string, bool, float64:
		return v, nil
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode value: %w", err)
	}

	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode value: %w", err)
	}

	return out, nil
}

// Decode copies v into out through its JSON form.
func Decode(v any, out any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode value: %w", err)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode value into %T: %w", out, err)
	}

	return nil
}
