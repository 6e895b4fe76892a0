package ocpp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/weilun-shrimp/ocpp-fleet-simulator/internal/ocpperror"
)

// Validator checks a CALL/CALLRESULT payload against the JSON Schema
// registered for an action, per spec.md §4's validation requirement.
// Each protocol version package (v16, v201) builds one Validator from its
// embedded schemas/ directory.
type Validator struct {
	mu       sync.RWMutex
	requests map[string]*jsonschema.Schema
	results  map[string]*jsonschema.Schema
}

// NewValidator creates an empty Validator; call AddRequestSchema and
// AddResultSchema to populate it (each version's NewService does so).
func NewValidator() *Validator {
	return &Validator{
		requests: make(map[string]*jsonschema.Schema),
		results:  make(map[string]*jsonschema.Schema),
	}
}

// compile parses and compiles a raw JSON Schema document, using id (e.g.
// "BootNotification.req") to build the schema's resource URL, since
// jsonschema.Compiler resolves references by URL. The compiled schemas are
// stored keyed by action alone.
func compile(compiler *jsonschema.Compiler, id string, raw []byte) (*jsonschema.Schema, error) {
	url := "mem://" + id + ".json"
	if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add schema resource %s: %w", id, err)
	}
	return compiler.Compile(url)
}

// AddRequestSchema registers the schema for action's request payload.
func (v *Validator) AddRequestSchema(compiler *jsonschema.Compiler, action string, raw []byte) error {
	schema, err := compile(compiler, action+".req", raw)
	if err != nil {
		return err
	}
	v.mu.Lock()
	v.requests[action] = schema
	v.mu.Unlock()
	return nil
}

// AddResultSchema registers the schema for action's response payload.
func (v *Validator) AddResultSchema(compiler *jsonschema.Compiler, action string, raw []byte) error {
	schema, err := compile(compiler, action+".conf", raw)
	if err != nil {
		return err
	}
	v.mu.Lock()
	v.results[action] = schema
	v.mu.Unlock()
	return nil
}

// ValidateRequest checks payload against action's request schema. Actions
// with no registered schema pass validation unchanged, so that a protocol
// module can selectively cover only the actions it models in detail.
func (v *Validator) ValidateRequest(action string, payload json.RawMessage) error {
	return v.validate(v.requests, action, payload)
}

// ValidateResult checks payload against action's response schema.
func (v *Validator) ValidateResult(action string, payload json.RawMessage) error {
	return v.validate(v.results, action, payload)
}

func (v *Validator) validate(set map[string]*jsonschema.Schema, action string, payload json.RawMessage) error {
	v.mu.RLock()
	schema, ok := set[action]
	v.mu.RUnlock()
	if !ok {
		return nil
	}

	var decoded interface{}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return ocpperror.Validation(fmt.Sprintf("%s payload is not valid JSON", action), err)
	}
	if err := schema.Validate(decoded); err != nil {
		return ocpperror.Validation(fmt.Sprintf("%s payload failed schema validation", action), err)
	}
	return nil
}
