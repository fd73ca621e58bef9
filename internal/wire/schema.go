package wire

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ocppsim/simulator/pkg/models"
	"github.com/rs/zerolog/log"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// SchemaKey identifies one JSON-Schema document by (ocppVersion, action,
// direction) as required by §4.1.
type SchemaKey struct {
	Version   models.OCPPVersion
	Action    string
	Direction Direction
}

// SchemaRegistry holds compiled JSON-Schema documents keyed by SchemaKey
// and validates payloads against them. Schemas themselves are loaded by an
// external collaborator (§1 — "file-system loaders for ... JSON-Schemas");
// this registry only compiles and validates what it is given.
type SchemaRegistry struct {
	mu      sync.RWMutex
	schemas map[SchemaKey]*jsonschema.Schema
	strict  bool
}

// NewSchemaRegistry creates an empty registry. When strict is false,
// Validate is a no-op success — §6 gates schema enforcement behind
// ocppStrictCompliance.
func NewSchemaRegistry(strict bool) *SchemaRegistry {
	return &SchemaRegistry{
		schemas: make(map[SchemaKey]*jsonschema.Schema),
		strict:  strict,
	}
}

// Register compiles and stores a schema document for the given key. The
// raw document is typically supplied by the external file-system loader at
// process init.
func (r *SchemaRegistry) Register(key SchemaKey, schemaJSON []byte) error {
	compiler := jsonschema.NewCompiler()
	url := fmt.Sprintf("mem://%s/%s/%s", key.Version, key.Action, key.Direction)
	if err := compiler.AddResource(url, bytes.NewReader(schemaJSON)); err != nil {
		return fmt.Errorf("add schema resource %s: %w", url, err)
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return fmt.Errorf("compile schema %s: %w", url, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemas[key] = schema
	return nil
}

// Validate checks payload against the schema registered for key. When no
// schema is registered for the key, validation passes silently (the core
// never requires schemas to be present to function in non-strict mode).
func (r *SchemaRegistry) Validate(ctx context.Context, key SchemaKey, payload json.RawMessage) error {
	if !r.strict {
		return nil
	}

	r.mu.RLock()
	schema, ok := r.schemas[key]
	r.mu.RUnlock()
	if !ok {
		log.Debug().
			Str("version", string(key.Version)).
			Str("action", key.Action).
			Str("direction", string(key.Direction)).
			Msg("no schema registered, skipping strict validation")
		return nil
	}

	var v interface{}
	if err := json.Unmarshal(payload, &v); err != nil {
		return NewOCPPError(FormatViolation, "payload is not valid JSON: "+err.Error(), nil)
	}

	if err := schema.Validate(v); err != nil {
		return classifyValidationError(err)
	}
	return nil
}

// classifyValidationError maps a jsonschema validation failure onto the
// OCPP error codes named in §4.1 — FormatViolation for errors that are not
// schema validation errors, OccurrenceConstraintViolation for
// missing-required-property, PropertyConstraintViolation otherwise.
func classifyValidationError(err error) *OCPPError {
	if verr, ok := err.(*jsonschema.ValidationError); ok {
		for _, cause := range verr.Causes {
			if cause.KeywordLocation != "" {
				for _, kw := range []string{"required"} {
					if bytes.Contains([]byte(cause.KeywordLocation), []byte(kw)) {
						return NewOCPPError(OccurrenceConstraintViolation, cause.Error(), nil)
					}
				}
			}
		}
		return NewOCPPError(PropertyConstraintViolation, verr.Error(), nil)
	}
	return NewOCPPError(FormatViolation, err.Error(), nil)
}
