package oracle

// schema.go provides JSON Schema validation for oracle output. Every caller
// that requests structured JSON validates the payload against a compiled
// schema before decoding it into Go types, so a hallucinated or truncated
// document is rejected up front instead of surfacing as a half-populated
// struct deeper in the pipeline.

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// MustCompileSchema compiles a JSON Schema document at package init time.
// name is a synthetic URL used in error messages. Panics on an invalid
// schema; schemas are compile-time constants, so a failure here is a
// programming error, not a runtime condition.
func MustCompileSchema(name, src string) *jsonschema.Schema {
	return jsonschema.MustCompileString(name, src)
}

// DecodeJSON validates raw oracle output against schema and decodes it into
// v. Any failure (invalid JSON, schema violation, decode error) is reported
// as ErrMalformedOutput.
func DecodeJSON(schema *jsonschema.Schema, raw string, v any) error {
	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return fmt.Errorf("%w: invalid JSON: %v", ErrMalformedOutput, err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: schema violation: %v", ErrMalformedOutput, err)
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("%w: decode: %v", ErrMalformedOutput, err)
	}
	return nil
}
