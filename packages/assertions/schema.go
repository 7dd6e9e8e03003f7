package assertions

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// JSONSchemaValidator validates values against JSON Schema documents. A
// schema reference is a registered name, an inline JSON schema or a file
// path relative to the base directory.
type JSONSchemaValidator struct {
	baseDir string
	mu      sync.Mutex
	named   map[string]string
	schemas map[string]*gojsonschema.Schema
}

func NewJSONSchemaValidator(baseDir string) *JSONSchemaValidator {
	return &JSONSchemaValidator{
		baseDir: baseDir,
		named:   make(map[string]string),
		schemas: make(map[string]*gojsonschema.Schema),
	}
}

// Register makes an inline schema available under name.
func (v *JSONSchemaValidator) Register(name, schemaJSON string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.named[name] = schemaJSON
	delete(v.schemas, name)
}

// Validate returns the violations of value against the referenced schema.
// An error means the schema itself could not be loaded.
func (v *JSONSchemaValidator) Validate(value any, schemaRef string) ([]string, error) {
	schema, err := v.load(schemaRef)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal value: %w", err)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("schema validation error: %w", err)
	}
	if result.Valid() {
		return nil, nil
	}

	violations := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		violations = append(violations, desc.String())
	}
	return violations, nil
}

func (v *JSONSchemaValidator) load(ref string) (*gojsonschema.Schema, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if s, ok := v.schemas[ref]; ok {
		return s, nil
	}

	var data []byte
	switch {
	case v.named[ref] != "":
		data = []byte(v.named[ref])
	case strings.HasPrefix(strings.TrimSpace(ref), "{"):
		data = []byte(ref)
	default:
		path := ref
		if !filepath.IsAbs(path) && v.baseDir != "" {
			path = filepath.Join(v.baseDir, path)
		}
		if err := validatePathWithinBase(path, v.baseDir); err != nil {
			return nil, err
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read schema file: %w", err)
		}
		data = raw
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("invalid schema %s: %w", ref, err)
	}
	v.schemas[ref] = schema
	return schema, nil
}

// validatePathWithinBase checks that the resolved path stays within the base directory
func validatePathWithinBase(path, baseDir string) error {
	if baseDir == "" {
		return nil
	}

	cleanBase, err := filepath.Abs(baseDir)
	if err != nil {
		return fmt.Errorf("failed to resolve base directory: %v", err)
	}

	cleanPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %v", err)
	}

	if !strings.HasPrefix(cleanPath, cleanBase+string(filepath.Separator)) && cleanPath != cleanBase {
		return fmt.Errorf("path traversal detected: %s is outside allowed directory %s", path, baseDir)
	}

	return nil
}
