package schema

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Validator is a utility to validate JSON documents against a set of named schemas.
type Validator struct {
	schemaValidators map[string]*gojsonschema.Schema
}

// NewValidator creates a new Validator from a map of schema IDs to JSON schema strings.
func NewValidator(schemas map[string]string) (*Validator, error) {
	validator := Validator{schemaValidators: make(map[string]*gojsonschema.Schema)}
	for id, str := range schemas {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(str))
		if err != nil {
			return nil, fmt.Errorf("cannot compile schema %q: %w", id, err)
		}
		validator.schemaValidators[id] = schema
	}
	return &validator, nil
}

// MustNewValidator is like NewValidator but panics on invalid schemas.
func MustNewValidator(schemas map[string]string) *Validator {
	validator, err := NewValidator(schemas)
	if err != nil {
		panic(err)
	}
	return validator
}

// ValidateBytes validates a raw JSON document against the schema registered under schemaID.
// It returns an error listing all violations, or nil if the document is valid.
func (v *Validator) ValidateBytes(data []byte, schemaID string) error {
	schema, ok := v.schemaValidators[schemaID]
	if !ok {
		return fmt.Errorf("no schema registered for %q", schemaID)
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return err
	}
	if result.Valid() {
		return nil
	}
	var violations []string
	for _, desc := range result.Errors() {
		violations = append(violations, desc.String())
	}
	return errors.New(strings.Join(violations, "; "))
}
