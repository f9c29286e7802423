package api

import (
	"errors"
	"fmt"
)

var (
	ErrNotAnObject            = errors.New("definition must be an object")
	ErrMissingPipeline        = errors.New(`definition must contain a "pipeline" list`)
	ErrInvalidStep            = errors.New("step must be an object")
	ErrMissingName            = errors.New(`step must have a non-empty "name" string`)
	ErrDuplicateName          = errors.New("duplicate step name")
	ErrMissingCode            = errors.New(`script step must have "code" as a string or list of strings`)
	ErrMissingMethod          = errors.New(`request step must have a "method" string`)
	ErrMissingURL             = errors.New(`request step must have a "url" string`)
	ErrInvalidMethod          = errors.New("invalid method")
	ErrInvalidContinueOnError = errors.New(`"continueOnError" must be a boolean`)
	ErrInvalidField           = errors.New("invalid field")
)

// ValidationError reports a malformed pipeline definition.
type ValidationError struct {
	Index   int    // step position, -1 for document-level problems
	Step    string // step name when known
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	switch {
	case e.Step != "":
		return fmt.Sprintf("step %q: %s", e.Step, e.Message)
	case e.Index >= 0:
		return fmt.Sprintf("step %d: %s", e.Index, e.Message)
	default:
		return e.Message
	}
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func newValidationError(index int, step, message string, err error) *ValidationError {
	return &ValidationError{Index: index, Step: step, Message: message, Err: err}
}
