package openai

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrSchemaValidation marks structured output that did not match its schema.
var ErrSchemaValidation = errors.New("structured output failed schema validation")

// SchemaError describes why the last attempt's output was rejected.
type SchemaError struct {
	Schema   string
	Attempts int
	Err      error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema %s: invalid output after %d attempt(s): %v", e.Schema, e.Attempts, e.Err)
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrSchemaValidation) match any SchemaError.
func (e *SchemaError) Is(target error) bool {
	return target == ErrSchemaValidation
}

// Schema is a compiled JSON Schema with the source kept for prompting.
type Schema struct {
	name     string
	source   string
	compiled *jsonschema.Schema
}

// CompileSchema compiles src under name.
func CompileSchema(name, src string) (*Schema, error) {
	compiler := jsonschema.NewCompiler()
	resource := name + ".json"
	if err := compiler.AddResource(resource, strings.NewReader(src)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	compiled, err := compiler.Compile(resource)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}
	return &Schema{name: name, source: src, compiled: compiled}, nil
}

// MustCompileSchema is CompileSchema for package-level schema literals.
func MustCompileSchema(name, src string) *Schema {
	s, err := CompileSchema(name, src)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Schema) Name() string {
	return s.name
}

// Source returns the schema document as written.
func (s *Schema) Source() string {
	return s.source
}

// Validate checks raw JSON against the schema.
func (s *Schema) Validate(data []byte) error {
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("output is not valid JSON: %w", err)
	}
	if err := s.compiled.Validate(doc); err != nil {
		return fmt.Errorf("output does not match schema: %w", err)
	}
	return nil
}
