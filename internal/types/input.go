// Package types provides type definitions for structured data used throughout the unit-planner system.
//
//nolint:revive // types is a standard Go package name pattern
package types

import "github.com/go-playground/validator/v10"

// Language selects the instructional language of a generated document
type Language string

const (
	// LanguagePrimary is academic English
	LanguagePrimary Language = "primary"
	// LanguageSecondary is formal (academic) Filipino
	LanguageSecondary Language = "secondary"
)

// DisplayName returns the human-readable language name used in prompts
func (l Language) DisplayName() string {
	if l == LanguageSecondary {
		return "Filipino"
	}
	return "English"
}

// TargetStem returns the learning-target sentence stem for the language
func (l Language) TargetStem() string {
	if l == LanguageSecondary {
		return "Kaya kong..."
	}
	return "I can..."
}

// Register describes the academic register the model should write in
func (l Language) Register() string {
	if l == LanguageSecondary {
		return "Formal Filipino (Academic)."
	}
	return "Academic English."
}

// GenerationInput holds the curriculum inputs for one pipeline run.
// It is treated as immutable for the duration of the run.
type GenerationInput struct {
	ContentStandard     string   `json:"content_standard" yaml:"content_standard" validate:"required"`
	PerformanceStandard string   `json:"performance_standard" yaml:"performance_standard" validate:"required"`
	CompetenciesRaw     string   `json:"competencies_raw" yaml:"competencies_raw" validate:"required"`
	SourceTitles        []string `json:"source_titles" yaml:"source_titles" validate:"dive,required"`
	Language            Language `json:"language" yaml:"language" validate:"required,oneof=primary secondary"`

	// UnitTitle names the source unit(s); used for the document title only
	UnitTitle string `json:"unit_title,omitempty" yaml:"unit_title,omitempty"`
}

// DocumentTitle returns the title given to the assembled document
func (in GenerationInput) DocumentTitle() string {
	if in.UnitTitle == "" {
		return "Unit Learning Plan"
	}
	return "ULP: " + in.UnitTitle
}

// Validate validates the GenerationInput using the validator.
func (in *GenerationInput) Validate() error {
	validate := validator.New()
	return validate.Struct(in)
}
