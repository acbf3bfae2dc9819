package types

// RunStatus is the lifecycle state of a pipeline run
type RunStatus string

const (
	RunIdle      RunStatus = "idle"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunPaused    RunStatus = "paused"
	RunAborted   RunStatus = "aborted"
)

// Terminal reports whether the run has stopped (successfully or not)
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunPaused || s == RunAborted
}

// Resumable reports whether a run in this state can be resumed
func (s RunStatus) Resumable() bool {
	return s == RunPaused || s == RunAborted
}

// PipelineState is the inspectable, persistable state of one run.
// Completed only grows and Remaining only shrinks, one task per successful step.
type PipelineState struct {
	RunID        string           `json:"run_id"`
	Input        GenerationInput  `json:"input"`
	Status       RunStatus        `json:"status"`
	Competencies []CompetencyItem `json:"competencies,omitempty"`
	Completed    SectionList      `json:"completed"`
	Remaining    []SectionTask    `json:"remaining"`
	ContextLog   []string         `json:"context_log,omitempty"`

	// TotalTasks is len(Completed)+len(Remaining) once the outline exists
	TotalTasks int `json:"total_tasks"`
	// LastError is the message of the failure that paused the run, if any
	LastError string `json:"last_error,omitempty"`
}

// AtTask returns the index (within the full queue) of the next task to run
func (s *PipelineState) AtTask() int {
	return len(s.Completed)
}

// NextTask returns the next task to run, if any
func (s *PipelineState) NextTask() (SectionTask, bool) {
	if len(s.Remaining) == 0 {
		return SectionTask{}, false
	}
	return s.Remaining[0], true
}

// Planned reports whether the outline step has produced the task queue
func (s *PipelineState) Planned() bool {
	return s.TotalTasks > 0
}

// Clone returns a copy that shares no slices with s
func (s *PipelineState) Clone() *PipelineState {
	if s == nil {
		return nil
	}
	c := *s
	c.Input.SourceTitles = append([]string(nil), s.Input.SourceTitles...)
	c.Competencies = append([]CompetencyItem(nil), s.Competencies...)
	c.Completed = append(SectionList(nil), s.Completed...)
	c.Remaining = append([]SectionTask(nil), s.Remaining...)
	c.ContextLog = append([]string(nil), s.ContextLog...)
	return &c
}
