package steps

import (
	"context"
	"fmt"

	"github.com/systemstart/pipecall/pkg/api"
	"github.com/systemstart/pipecall/pkg/session"
)

// Executor performs one kind of step.
//
// Execute writes the result under the step name, and under the step's alias
// when one is set, before returning it.
type Executor interface {
	CanHandle(step api.Step) bool
	Execute(ctx context.Context, step api.Step, store *session.Store) (any, error)
}

// DispatchError is returned when no executor handles a step's kind.
type DispatchError struct {
	StepName string
	Kind     string
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("no executor found for step %q with type %q", e.StepName, e.Kind)
}

// RequestExecutionError reports a failed outbound request.
type RequestExecutionError struct {
	StepName string
	Message  string
	Err      error

	// Response holds the stored-result shape of an error response, if one arrived.
	Response map[string]any
}

func (e *RequestExecutionError) Error() string {
	return fmt.Sprintf("request step %q failed: %s", e.StepName, e.Message)
}

func (e *RequestExecutionError) Unwrap() error { return e.Err }

// ScriptExecutionError reports a fault raised while evaluating a script step.
type ScriptExecutionError struct {
	StepName string
	Message  string
	Err      error
}

func (e *ScriptExecutionError) Error() string {
	return fmt.Sprintf("failed to execute script for step %q: %s", e.StepName, e.Message)
}

func (e *ScriptExecutionError) Unwrap() error { return e.Err }

func storeResult(store *session.Store, step api.Step, result any) {
	store.Set(step.Name, result)
	if step.Alias != "" {
		store.Set(step.Alias, result)
	}
}
