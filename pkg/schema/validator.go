// Package schema validates CI asset attributes against the JSON Schema a CI
// type embeds under attributes.schema.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
)

// ValidationError is one failed constraint.
type ValidationError struct {
	Path    string
	Message string
}

func (e ValidationError) String() string {
	if e.Path == "" {
		return e.Message
	}
	return e.Path + ": " + e.Message
}

// Validator checks an instance against a schema document. A nil result
// means the instance is valid.
type Validator interface {
	Validate(schema, instance json.RawMessage) ([]ValidationError, error)
	Check(schema json.RawMessage) error
}

// ErrInvalidSchema is returned when the schema document itself cannot be compiled.
var ErrInvalidSchema = errors.New("invalid schema")

// JSONSchemaValidator implements Validator with google/jsonschema-go.
type JSONSchemaValidator struct{}

// NewValidator returns the default Validator.
func NewValidator() Validator {
	return JSONSchemaValidator{}
}

// Check compiles schema and reports whether it is usable.
func (JSONSchemaValidator) Check(schema json.RawMessage) error {
	_, err := resolve(schema)
	return err
}

// Validate compiles schema and validates instance against it. The schema is
// compiled on every call; CI types are edited rarely and validated per write.
func (JSONSchemaValidator) Validate(schema, instance json.RawMessage) ([]ValidationError, error) {
	rs, err := resolve(schema)
	if err != nil {
		return nil, err
	}

	var value any
	if len(instance) == 0 {
		value = map[string]any{}
	} else if err := json.Unmarshal(instance, &value); err != nil {
		return []ValidationError{{Message: "attributes are not valid JSON"}}, nil
	}

	if err := rs.Validate(value); err != nil {
		return splitErrors(err), nil
	}
	return nil, nil
}

func resolve(raw json.RawMessage) (*jsonschema.Resolved, error) {
	raw, err := upgrade(raw)
	if err != nil {
		return nil, err
	}
	var s jsonschema.Schema
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	rs, err := s.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	return rs, nil
}

// splitErrors turns the library's error text into path/message pairs.
// Messages look like "validating /properties/port: type: ..." and may be
// joined with newlines.
func splitErrors(err error) []ValidationError {
	var out []ValidationError
	for _, line := range strings.Split(err.Error(), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		line = strings.TrimPrefix(line, "validating ")
		path, msg, ok := strings.Cut(line, ": ")
		if !ok || !strings.HasPrefix(path, "/") && path != "root" {
			out = append(out, ValidationError{Message: line})
			continue
		}
		if path == "root" {
			path = "/"
		}
		out = append(out, ValidationError{Path: path, Message: msg})
	}
	if len(out) == 0 {
		out = append(out, ValidationError{Message: err.Error()})
	}
	return out
}

// Strings renders errs as "path: message" entries.
func Strings(errs []ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.String()
	}
	return out
}

// Extract returns attributes.schema from a CI type's attributes document, or
// nil when none is defined.
func Extract(attributes json.RawMessage) json.RawMessage {
	if len(attributes) == 0 {
		return nil
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(attributes, &doc); err != nil {
		return nil
	}
	s, ok := doc["schema"]
	if !ok || string(s) == "null" {
		return nil
	}
	return s
}
