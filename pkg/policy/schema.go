package policy

import (
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// SchemaRegistry maps command verbs to compiled JSON Schemas for their
// parameter maps. Registration is optional per verb; a verb without a
// schema skips structural parameter checks.
type SchemaRegistry struct {
	mu      sync.RWMutex
	schemas map[string]*jsonschema.Schema
}

func NewSchemaRegistry() *SchemaRegistry {
	return &SchemaRegistry{schemas: make(map[string]*jsonschema.Schema)}
}

// Register compiles and stores a parameter schema for a verb. An empty
// schema string removes any prior registration.
func (r *SchemaRegistry) Register(verb string, schema string) error {
	verb = strings.ToLower(verb)
	r.mu.Lock()
	defer r.mu.Unlock()

	if schema == "" {
		delete(r.schemas, verb)
		return nil
	}

	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	schemaURL := fmt.Sprintf("https://opsgate.schemas.local/params/%s.schema.json", verb)
	if err := c.AddResource(schemaURL, strings.NewReader(schema)); err != nil {
		return fmt.Errorf("param schema load failed for %q: %w", verb, err)
	}
	compiled, err := c.Compile(schemaURL)
	if err != nil {
		return fmt.Errorf("param schema compile failed for %q: %w", verb, err)
	}
	r.schemas[verb] = compiled
	return nil
}

// Validate checks params against the verb's schema, if one is
// registered. Schema violations come back as errors; an unregistered
// verb validates vacuously.
func (r *SchemaRegistry) Validate(verb string, params map[string]string) error {
	r.mu.RLock()
	schema, ok := r.schemas[strings.ToLower(verb)]
	r.mu.RUnlock()
	if !ok || schema == nil {
		return nil
	}

	// jsonschema validates generic JSON values, so widen the map.
	doc := make(map[string]any, len(params))
	for k, v := range params {
		doc[k] = v
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("parameters rejected by schema for %q: %w", verb, err)
	}
	return nil
}

// Verb extracts the leading verb token of a command for schema lookup.
func Verb(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(fields[0])
}
