package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed or missing input rejected before the board is touched.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidColumn is returned when a column name is not part of the board.
	ErrInvalidColumn = errors.New("invalid column")
	// ErrTaskNotFound is returned when a task id is absent from the expected column.
	ErrTaskNotFound = errors.New("task not found")
	// ErrDeliveryFailure marks an event that could not be handed to one recipient.
	ErrDeliveryFailure = errors.New("delivery failure")
	// ErrDuplicateRequest is returned when a request id has already been processed.
	ErrDuplicateRequest = errors.New("duplicate request")
	// ErrDuplicateTask is returned when a caller-supplied task id is already on the board.
	ErrDuplicateTask = fmt.Errorf("%w: task id already exists", ErrValidation)
)

// Validationf builds an ErrValidation with a formatted reason.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Wire codes reported to clients.
const (
	CodeValidation       = "validation_error"
	CodeInvalidColumn    = "invalid_column"
	CodeTaskNotFound     = "task_not_found"
	CodeDuplicateRequest = "duplicate_request"
	CodeDuplicateTask    = "duplicate_task"
	CodeInternal         = "internal_error"
)

// Code maps an error to the code sent to the requesting client.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDuplicateTask):
		return CodeDuplicateTask
	case errors.Is(err, ErrValidation):
		return CodeValidation
	case errors.Is(err, ErrInvalidColumn):
		return CodeInvalidColumn
	case errors.Is(err, ErrTaskNotFound):
		return CodeTaskNotFound
	case errors.Is(err, ErrDuplicateRequest):
		return CodeDuplicateRequest
	default:
		return CodeInternal
	}
}
