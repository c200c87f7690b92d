// Package validation wraps a JSON-Schema-Draft-7-compatible validator
// (github.com/santhosh-tekuri/jsonschema/v5) and translates its diagnostics
// into the intake protocol's closed FieldError taxonomy.
package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/c360studio/intake/intake"
)

// SchemaInvalid is thrown to the embedder at construction time when a
// schema fails to compile; it is never a request-time failure.
type SchemaInvalid struct {
	IntakeID string
	Cause    error
}

func (e *SchemaInvalid) Error() string {
	return fmt.Sprintf("validation: schema invalid for intake %q: %v", e.IntakeID, e.Cause)
}

func (e *SchemaInvalid) Unwrap() error { return e.Cause }

// Result is the outcome of one validation run.
type Result struct {
	IsValid       bool                 `json:"is_valid"`
	Errors        []intake.FieldError  `json:"errors"`
	Data          map[string]any       `json:"data"`
	MissingFields []string             `json:"missing_fields"`
	InvalidFields []string             `json:"invalid_fields"`
}

// Engine validates submission data against one compiled JSON-Schema. It is
// shared read-only across every submission of one intake.
type Engine struct {
	intakeID string
	schema   *jsonschema.Schema
}

// New compiles schemaJSON as a Draft-7-compatible schema bound to intakeID.
// It returns *SchemaInvalid if compilation fails.
func New(intakeID string, schemaJSON []byte) (*Engine, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft7

	resourceURL := "intake://" + intakeID + "/schema.json"
	if err := compiler.AddResource(resourceURL, strings.NewReader(string(schemaJSON))); err != nil {
		return nil, &SchemaInvalid{IntakeID: intakeID, Cause: err}
	}

	schema, err := compiler.Compile(resourceURL)
	if err != nil {
		return nil, &SchemaInvalid{IntakeID: intakeID, Cause: err}
	}

	return &Engine{intakeID: intakeID, schema: schema}, nil
}

// Validate runs the schema over data and returns every diagnostic
// translated into the FieldError taxonomy, partitioned into missing_fields
// and invalid_fields. The engine performs no coercion: on success, Data
// echoes the input unchanged.
func (e *Engine) Validate(data map[string]any) (*Result, error) {
	// jsonschema.Validate expects the same representation json.Unmarshal
	// would produce (map[string]interface{}, []interface{}, float64, ...);
	// round-trip through JSON so callers may pass typed Go values too.
	instance, err := roundTrip(data)
	if err != nil {
		return nil, fmt.Errorf("validation: encode instance: %w", err)
	}

	result := &Result{
		IsValid:       true,
		Data:          data,
		Errors:        []intake.FieldError{},
		MissingFields: []string{},
		InvalidFields: []string{},
	}

	err = e.schema.Validate(instance)
	if err == nil {
		return result, nil
	}

	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		result.IsValid = false
		fe := intake.FieldError{Path: "", Code: intake.CodeCustom, Message: err.Error()}
		result.Errors = append(result.Errors, fe)
		result.InvalidFields = append(result.InvalidFields, fe.Path)
		return result, nil
	}

	leaves := collectLeaves(verr, nil)
	for _, leaf := range leaves {
		fes := translate(leaf)
		for _, fe := range fes {
			result.Errors = append(result.Errors, fe)
			if fe.Code == intake.CodeRequired {
				result.MissingFields = append(result.MissingFields, fe.Path)
			} else {
				result.InvalidFields = append(result.InvalidFields, fe.Path)
			}
		}
	}
	result.IsValid = len(result.Errors) == 0

	return result, nil
}

func roundTrip(data map[string]any) (any, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return nil, err
	}
	return instance, nil
}

// collectLeaves walks a ValidationError's Causes tree and returns every leaf
// diagnostic (a node with no further causes), which is where the schema
// validator reports the actual keyword failure. The engine must return all
// diagnostics, not only the first.
func collectLeaves(verr *jsonschema.ValidationError, acc []*jsonschema.ValidationError) []*jsonschema.ValidationError {
	if len(verr.Causes) == 0 {
		return append(acc, verr)
	}
	for _, cause := range verr.Causes {
		acc = collectLeaves(cause, acc)
	}
	return acc
}
