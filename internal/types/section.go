package types

import "fmt"

// Category classifies a learning competency into one of the three UbD stages
type Category string

const (
	CategoryAcquisition   Category = "acquisition"
	CategoryMeaningMaking Category = "meaning_making"
	CategoryTransfer      Category = "transfer"
)

// Categories lists the categories in queue order
var Categories = []Category{CategoryAcquisition, CategoryMeaningMaking, CategoryTransfer}

// CodePrefix returns the prefix used for fallback competency codes (A1, M1, T1)
func (c Category) CodePrefix() string {
	switch c {
	case CategoryAcquisition:
		return "A"
	case CategoryMeaningMaking:
		return "M"
	case CategoryTransfer:
		return "T"
	default:
		return "X"
	}
}

// SectionType returns the section generated for competencies of this category
func (c Category) SectionType() SectionType {
	switch c {
	case CategoryAcquisition:
		return SectionFirmUp
	case CategoryMeaningMaking:
		return SectionDeepen
	default:
		return SectionTransfer
	}
}

// CompetencyItem is a single coded learning competency.
// Created once by the outline step and never mutated afterwards.
type CompetencyItem struct {
	Code     string   `json:"code"`
	Text     string   `json:"text"`
	Category Category `json:"category"`
}

// SectionType identifies one kind of document section
type SectionType string

const (
	SectionExplore         SectionType = "explore"
	SectionFirmUp          SectionType = "firmUp"
	SectionDeepen          SectionType = "deepen"
	SectionTransfer        SectionType = "transfer"
	SectionSynthesis       SectionType = "synthesis"
	SectionPerformanceTask SectionType = "performanceTask"
	SectionValues          SectionType = "values"
)

// SectionTypes lists every section type in document order
var SectionTypes = []SectionType{
	SectionExplore,
	SectionFirmUp,
	SectionDeepen,
	SectionTransfer,
	SectionSynthesis,
	SectionPerformanceTask,
	SectionValues,
}

// Valid reports whether t is a known section type
func (t SectionType) Valid() bool {
	return t.Order() >= 0
}

// Order returns the position of t in the document, or -1 if unknown
func (t SectionType) Order() int {
	for i, s := range SectionTypes {
		if s == t {
			return i
		}
	}
	return -1
}

// NeedsCompetency reports whether sections of this type are generated per competency
func (t SectionType) NeedsCompetency() bool {
	return t == SectionFirmUp || t == SectionDeepen || t == SectionTransfer
}

// SectionTask is one entry of the generation queue
type SectionTask struct {
	Type       SectionType     `json:"type"`
	Competency *CompetencyItem `json:"competency,omitempty"`
}

// String renders the task for logs and error messages, e.g. "firmUp(A1)"
func (t SectionTask) String() string {
	if t.Competency != nil && t.Competency.Code != "" {
		return fmt.Sprintf("%s(%s)", t.Type, t.Competency.Code)
	}
	return string(t.Type)
}
