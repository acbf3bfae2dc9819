package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jonathan/unit-planner/internal/ingestion"
	"github.com/jonathan/unit-planner/internal/pipeline"
	"github.com/jonathan/unit-planner/internal/schemas"
)

// ErrRunNotFound indicates no run exists for the ID
type ErrRunNotFound struct {
	RunID string
}

func (e *ErrRunNotFound) Error() string {
	return fmt.Sprintf("run not found: %s", e.RunID)
}

// ErrRunActive indicates the run is currently executing in this process
type ErrRunActive struct {
	RunID string
}

func (e *ErrRunActive) Error() string {
	return fmt.Sprintf("run is already executing: %s", e.RunID)
}

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var (
		notFound  *ErrRunNotFound
		active    *ErrRunActive
		invalid   *ErrValidation
		status    *pipeline.StatusError
		input     *ingestion.InputError
		violation *schemas.SchemaViolationError
		fields    *schemas.ValidationError
	)
	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &active), errors.As(err, &status), errors.Is(err, pipeline.ErrAlreadyRunning):
		return http.StatusConflict
	case errors.As(err, &invalid), errors.As(err, &input), errors.As(err, &violation), errors.As(err, &fields):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
