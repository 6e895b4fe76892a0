package v16

import (
	"embed"
	"fmt"
	"path"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/weilun-shrimp/ocpp-fleet-simulator/internal/ocpp"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// Service bundles the 1.6 schema validator and a dispatcher over it. One
// Service is shared read-only across all stations running 1.6, since
// schemas never change at runtime; each station Engine builds its own
// Dispatcher over Validator for its action handlers.
type Service struct {
	Validator  *ocpp.Validator
	Dispatcher *ocpp.Dispatcher
}

// NewService compiles the embedded schemas and returns a ready Service with
// no handlers registered on its Dispatcher.
func NewService() (*Service, error) {
	validator := ocpp.NewValidator()
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft6

	entries, err := schemaFS.ReadDir("schemas")
	if err != nil {
		return nil, fmt.Errorf("read v16 schemas: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		raw, err := schemaFS.ReadFile(path.Join("schemas", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", entry.Name(), err)
		}

		name := strings.TrimSuffix(entry.Name(), ".json")
		switch {
		case strings.HasSuffix(name, ".req"):
			action := strings.TrimSuffix(name, ".req")
			if err := validator.AddRequestSchema(compiler, action, raw); err != nil {
				return nil, err
			}
		case strings.HasSuffix(name, ".conf"):
			action := strings.TrimSuffix(name, ".conf")
			if err := validator.AddResultSchema(compiler, action, raw); err != nil {
				return nil, err
			}
		}
	}

	return &Service{
		Validator:  validator,
		Dispatcher: ocpp.NewDispatcher(validator),
	}, nil
}
