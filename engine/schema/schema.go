package schema

import (
	"encoding/json"
	"fmt"

	"github.com/kaptinlin/jsonschema"
)

// Schema is a JSON-schema document expressed as a plain map so module
// schemas can be declared inline.
type Schema map[string]any

func (s Schema) String() string {
	bytes, err := json.Marshal(s)
	if err != nil {
		return ""
	}
	return string(bytes)
}

// Compile builds the validator once; analyzers compile their schemas at
// construction time and reuse them across requests.
func (s Schema) Compile() (*jsonschema.Schema, error) {
	bytes, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	compiled, err := compiler.Compile(bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	return compiled, nil
}

// Validate checks value against the schema.
func Validate(compiled *jsonschema.Schema, value any) error {
	if compiled == nil {
		return nil
	}
	result := compiled.Validate(value)
	if result.Valid {
		return nil
	}
	return fmt.Errorf("schema validation failed: %v", result.Errors)
}
