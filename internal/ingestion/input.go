// Package ingestion loads run inputs from disk and prepares competency and source text for generation.
package ingestion

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonathan/unit-planner/internal/schemas"
	"github.com/jonathan/unit-planner/internal/types"
	"gopkg.in/yaml.v3"
)

// InputError reports an input file that could not be loaded
type InputError struct {
	Path    string
	Message string
	Cause   error
}

func (e *InputError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("input %s: %s: %v", e.Path, e.Message, e.Cause)
	}
	return fmt.Sprintf("input %s: %s", e.Path, e.Message)
}

func (e *InputError) Unwrap() error {
	return e.Cause
}

// LoadInput reads a GenerationInput from a .json, .yaml or .yml file.
// The document is checked against the generation_input schema before decoding,
// then normalized and validated.
func LoadInput(path string) (*types.GenerationInput, *Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, &InputError{Path: path, Message: "file not found", Cause: err}
		}
		return nil, nil, &InputError{Path: path, Message: "failed to read file", Cause: err}
	}

	in, err := DecodeInput(filepath.Ext(path), data)
	if err != nil {
		return nil, nil, &InputError{Path: path, Message: "invalid input", Cause: err}
	}
	meta := NewMetadata(string(data), path)
	meta.SourceTitles = in.SourceTitles
	return in, meta, nil
}

// DecodeInput decodes and validates input bytes; ext selects the format
// (".yaml" and ".yml" are YAML, anything else is JSON).
func DecodeInput(ext string, data []byte) (*types.GenerationInput, error) {
	var obj map[string]any
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &obj); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil, fmt.Errorf("failed to parse JSON: %w", err)
		}
	}
	if obj == nil {
		return nil, fmt.Errorf("input document is empty")
	}
	if err := schemas.ValidateObject(schemas.GenerationInputSchema, obj); err != nil {
		return nil, err
	}

	// Both formats share the JSON field names, so re-encode the validated object.
	raw, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode input: %w", err)
	}
	var in types.GenerationInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("failed to decode input: %w", err)
	}

	NormalizeInput(&in)
	if err := schemas.ValidateInput(&in); err != nil {
		return nil, err
	}
	return &in, nil
}

// NormalizeInput cleans every free-text field of in
func NormalizeInput(in *types.GenerationInput) {
	in.ContentStandard = NormalizeText(in.ContentStandard)
	in.PerformanceStandard = NormalizeText(in.PerformanceStandard)
	in.CompetenciesRaw = NormalizeCompetencies(in.CompetenciesRaw)
	in.UnitTitle = NormalizeText(in.UnitTitle)
	titles := make([]string, 0, len(in.SourceTitles))
	for _, title := range in.SourceTitles {
		if s := NormalizeText(title); s != "" {
			titles = append(titles, s)
		}
	}
	in.SourceTitles = titles
}
