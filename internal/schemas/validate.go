// Package schemas provides JSON Schema validation for generated sections and run inputs.
package schemas

import (
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/jonathan/unit-planner/internal/types"
	"github.com/xeipuuv/gojsonschema"
)

//go:embed definitions/*.schema.json
var definitionFS embed.FS

// Names of the non-section schemas
const (
	OutlineSchema         = "outline"
	GenerationInputSchema = "generation_input"
)

type compiled struct {
	schema   *gojsonschema.Schema
	required []string
}

var (
	loadOnce sync.Once
	registry map[string]compiled
	loadErr  error
)

func load() (map[string]compiled, error) {
	loadOnce.Do(func() {
		entries, err := definitionFS.ReadDir("definitions")
		if err != nil {
			loadErr = &SchemaLoadError{Path: "definitions", Message: "failed to list embedded schemas", Cause: err}
			return
		}
		registry = make(map[string]compiled, len(entries))
		for _, entry := range entries {
			path := "definitions/" + entry.Name()
			data, err := definitionFS.ReadFile(path)
			if err != nil {
				loadErr = &SchemaLoadError{Path: path, Message: "failed to read schema", Cause: err}
				return
			}
			schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(data))
			if err != nil {
				loadErr = &SchemaLoadError{Path: path, Message: "failed to compile schema", Cause: err}
				return
			}
			var header struct {
				Required []string `json:"required"`
			}
			if err := json.Unmarshal(data, &header); err != nil {
				loadErr = &SchemaLoadError{Path: path, Message: "failed to read required keys", Cause: err}
				return
			}
			name := strings.TrimSuffix(entry.Name(), ".schema.json")
			registry[name] = compiled{schema: schema, required: header.Required}
		}
	})
	return registry, loadErr
}

func lookup(name string) (compiled, error) {
	reg, err := load()
	if err != nil {
		return compiled{}, err
	}
	c, ok := reg[name]
	if !ok {
		return compiled{}, &SchemaLoadError{Path: name, Message: "unknown schema"}
	}
	return c, nil
}

// RequiredKeys returns the required top-level keys of a section type, in schema order
func RequiredKeys(t types.SectionType) []string {
	return RequiredKeysOf(string(t))
}

// RequiredKeysOf returns the required top-level keys of the named schema
func RequiredKeysOf(name string) []string {
	c, err := lookup(name)
	if err != nil {
		return nil
	}
	return append([]string(nil), c.required...)
}

// ValidateSection checks that obj carries every required key of section type t.
// Validation is presence-only; nested shapes are not checked.
func ValidateSection(t types.SectionType, obj map[string]any) error {
	if !t.Valid() {
		return &SchemaLoadError{Path: string(t), Message: "unknown section type"}
	}
	return ValidateObject(string(t), obj)
}

// ValidateObject validates a decoded JSON object against the named embedded schema
func ValidateObject(name string, obj map[string]any) error {
	c, err := lookup(name)
	if err != nil {
		return err
	}
	result, err := c.schema.Validate(gojsonschema.NewGoLoader(obj))
	if err != nil {
		return &SchemaLoadError{Path: name, Message: "document could not be loaded", Cause: err}
	}
	return resultError(name, c.required, result)
}

// ValidateJSONString validates JSON content against the named embedded schema
func ValidateJSONString(name, jsonContent string) error {
	c, err := lookup(name)
	if err != nil {
		return err
	}
	result, err := c.schema.Validate(gojsonschema.NewStringLoader(jsonContent))
	if err != nil {
		return &SchemaLoadError{Path: name, Message: "document could not be loaded", Cause: err}
	}
	return resultError(name, c.required, result)
}

// ValidateJSONFile validates a JSON file on disk against the named embedded schema
func ValidateJSONFile(name, jsonPath string) error {
	absPath, err := filepath.Abs(jsonPath)
	if err != nil {
		return fmt.Errorf("failed to resolve JSON path: %w", err)
	}
	data, err := os.ReadFile(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("JSON file not found: %s", absPath)
		}
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	return ValidateJSONString(name, string(data))
}

// resultError converts a gojsonschema result into SchemaViolationError (missing
// required keys only) or ValidationError (anything else)
func resultError(name string, required []string, result *gojsonschema.Result) error {
	if result.Valid() {
		return nil
	}

	missing := make(map[string]bool)
	var other []FieldError
	for _, desc := range result.Errors() {
		if desc.Type() == "required" && desc.Field() == gojsonschema.STRING_CONTEXT_ROOT {
			if prop, ok := desc.Details()["property"].(string); ok {
				missing[prop] = true
				continue
			}
		}
		field := desc.Field()
		if field == "" {
			field = "(root)"
		}
		other = append(other, FieldError{Field: field, Message: desc.Description()})
	}

	if len(missing) > 0 {
		return &SchemaViolationError{Schema: name, MissingKeys: orderKeys(missing, required)}
	}
	return &ValidationError{Errors: other}
}

// orderKeys lists the keys of set in the order they appear in required
func orderKeys(set map[string]bool, required []string) []string {
	out := make([]string, 0, len(set))
	for _, k := range required {
		if set[k] {
			out = append(out, k)
			delete(set, k)
		}
	}
	rest := make([]string, 0, len(set))
	for k := range set {
		rest = append(rest, k)
	}
	sort.Strings(rest)
	return append(out, rest...)
}
