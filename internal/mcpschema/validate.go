package mcpschema

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
)

// Validator compiles and caches JSON schemas by tool name, validating
// incoming tool-call arguments against each tool's declared input schema.
// Compiled schemas never change after first use: the registry is
// append-only for the lifetime of the process.
type Validator struct {
	compiled sync.Map // name -> *jsonschema.Resolved
}

// NewValidator returns an empty, ready-to-use Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// compile parses and resolves a raw JSON schema document, caching the
// result under name.
func (v *Validator) compile(name string, raw json.RawMessage) (*jsonschema.Resolved, error) {
	if cached, ok := v.compiled.Load(name); ok {
		return cached.(*jsonschema.Resolved), nil
	}

	schema := new(jsonschema.Schema)
	if err := json.Unmarshal(raw, schema); err != nil {
		return nil, fmt.Errorf("mcpschema: parse schema for %q: %w", name, err)
	}

	resolved, err := schema.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("mcpschema: resolve schema for %q: %w", name, err)
	}

	actual, _ := v.compiled.LoadOrStore(name, resolved)
	return actual.(*jsonschema.Resolved), nil
}

// Validate checks instance against the named tool's input schema. On
// failure it returns one ViolationDetail per failing instance location,
// suitable for an InvalidParamsData payload.
func (v *Validator) Validate(name string, rawSchema json.RawMessage, instance any) ([]ViolationDetail, error) {
	resolved, err := v.compile(name, rawSchema)
	if err != nil {
		return nil, err
	}

	verr := resolved.Validate(instance)
	if verr == nil {
		return nil, nil
	}
	return violationsFromSchema(rawSchema, instance, verr), nil
}

// schemaShape is the subset of JSON Schema this package walks by hand to
// attribute a validation failure to the field(s) that caused it: jsonschema-go
// reports pass/fail but not a per-field path/expected/actual breakdown.
type schemaShape struct {
	Type       string                 `json:"type"`
	Required   []string               `json:"required"`
	Properties map[string]schemaShape `json:"properties"`
}

// violationsFromSchema re-derives which instance locations caused verr by
// comparing instance directly against rawSchema's required list and
// declared property types. Anything the shallow walk can't attribute (e.g.
// enum, pattern, numeric range) falls back to a single root-level
// violation carrying verr's message.
func violationsFromSchema(rawSchema json.RawMessage, instance any, verr error) []ViolationDetail {
	var shape schemaShape
	if err := json.Unmarshal(rawSchema, &shape); err != nil || len(shape.Properties) == 0 {
		return []ViolationDetail{{Path: "/", Message: verr.Error()}}
	}

	instanceMap, ok := instance.(map[string]any)
	if !ok {
		return []ViolationDetail{{Path: "/", Expected: "object", Actual: jsonTypeOf(instance), Message: verr.Error()}}
	}

	var violations []ViolationDetail
	for _, name := range shape.Required {
		if _, present := instanceMap[name]; !present {
			violations = append(violations, ViolationDetail{
				Path:     "/" + name,
				Expected: shape.Properties[name].Type,
				Message:  "required property missing",
			})
		}
	}

	names := make([]string, 0, len(shape.Properties))
	for name := range shape.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		prop := shape.Properties[name]
		val, present := instanceMap[name]
		if !present || prop.Type == "" {
			continue
		}
		if !typeMatches(prop.Type, val) {
			violations = append(violations, ViolationDetail{
				Path:     "/" + name,
				Expected: prop.Type,
				Actual:   jsonTypeOf(val),
				Message:  "wrong type",
			})
		}
	}

	if len(violations) == 0 {
		violations = append(violations, ViolationDetail{Path: "/", Message: verr.Error()})
	}
	return violations
}

// jsonTypeOf names the JSON Schema type of a decoded encoding/json value.
func jsonTypeOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case float64:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return "unknown"
	}
}

func typeMatches(expected string, v any) bool {
	actual := jsonTypeOf(v)
	if expected == "integer" {
		f, isNumber := v.(float64)
		return isNumber && f == math.Trunc(f)
	}
	return expected == actual
}

// Forget drops a cached compiled schema. Unused in normal operation (the
// registry is append-only) but available for tests that re-register a
// tool under the same name.
func (v *Validator) Forget(name string) {
	v.compiled.Delete(name)
}

// EnvelopeSchema is the static schema for a single JSON-RPC request
// object, independent of any tool-specific schema. Neither transport
// checks incoming requests against it.
var EnvelopeSchema = json.RawMessage(`{
	"type": "object",
	"required": ["jsonrpc", "method"],
	"properties": {
		"jsonrpc": {"const": "2.0"},
		"method": {"type": "string", "minLength": 1},
		"id": {},
		"params": {}
	}
}`)

// ValidateEnvelope validates the raw request body against EnvelopeSchema.
// It checks single-object shape only and has no caller in the server
// path; the transports reject batched requests (top-level JSON arrays)
// themselves.
func (v *Validator) ValidateEnvelope(raw json.RawMessage) error {
	resolved, err := v.compile("__envelope__", EnvelopeSchema)
	if err != nil {
		return err
	}
	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return fmt.Errorf("mcpschema: envelope is not valid JSON: %w", err)
	}
	return resolved.Validate(instance)
}
