package pipeline

import (
	"errors"
	"fmt"

	"github.com/jonathan/unit-planner/internal/types"
)

// ErrAlreadyRunning is returned when Run or Resume is called while the
// orchestrator is already driving its queue
var ErrAlreadyRunning = errors.New("pipeline run already in progress")

// StatusError is returned when an operation is not valid in the run's current status
type StatusError struct {
	Op     string
	Status types.RunStatus
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("cannot %s a %s run", e.Op, e.Status)
}

// PausedError is returned when a task exhausted its attempts. The run can be
// resumed from AtTask; State is a snapshot taken at the pause.
type PausedError struct {
	State  *types.PipelineState
	AtTask int
	Task   types.SectionTask
	Cause  error
}

func (e *PausedError) Error() string {
	return fmt.Sprintf("run paused at task %d/%d (%s): %v", e.AtTask+1, e.State.TotalTasks, e.Task, e.Cause)
}

func (e *PausedError) Unwrap() error {
	return e.Cause
}

// AbortedError is returned when the run stopped on cancellation or because
// its outline could not be built. Completed sections are kept in State.
type AbortedError struct {
	State *types.PipelineState
	Cause error
}

func (e *AbortedError) Error() string {
	return fmt.Sprintf("run aborted after %d of %d sections: %v", len(e.State.Completed), e.State.TotalTasks, e.Cause)
}

func (e *AbortedError) Unwrap() error {
	return e.Cause
}
