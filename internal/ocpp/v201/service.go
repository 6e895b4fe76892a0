package v201

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

// Service bundles the 2.0.1 validator and dispatcher, sized to spec.md's
// narrower 2.0 coverage (BootNotification, Heartbeat, StatusNotification).
type Service struct {
	Validator  *ocpp.Validator
	Dispatcher *ocpp.Dispatcher
}

func NewService() (*Service, error) {
	validator := ocpp.NewValidator()
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft7

	entries, err := schemaFS.ReadDir("schemas")
	if err != nil {
		return nil, fmt.Errorf("read v201 schemas: %w", err)
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
