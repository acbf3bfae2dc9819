package outline

import "fmt"

// ClassificationFailedError is returned when the competencies could not be
// classified; no task queue can be built without them.
type ClassificationFailedError struct {
	Message string
	Cause   error
}

func (e *ClassificationFailedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("competency classification failed: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("competency classification failed: %s", e.Message)
}

func (e *ClassificationFailedError) Unwrap() error {
	return e.Cause
}
