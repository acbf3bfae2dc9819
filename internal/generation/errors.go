package generation

import (
	"fmt"

	"github.com/jonathan/unit-planner/internal/types"
)

// Stage is the attempt state in which a failure happened
type Stage string

const (
	StageDrafting   Stage = "drafting"
	StageExtracting Stage = "extracting"
	StageRepairing  Stage = "repairing"
	StageValidating Stage = "validating"
)

// GenerationExhaustedError is returned when every attempt for a request failed
type GenerationExhaustedError struct {
	// Label names the request, e.g. "firmUp(A1)" or "outline"
	Label string
	// Task is set for section requests
	Task          *types.SectionTask
	Attempts      int
	LastStage     Stage
	LastRawOutput string
	LastError     error
}

func (e *GenerationExhaustedError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts (%s): %v", e.Label, e.Attempts, e.LastStage, e.LastError)
}

func (e *GenerationExhaustedError) Unwrap() error {
	return e.LastError
}
