package steps

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"reflect"
	"slices"

	"github.com/systemstart/pipecall/pkg/api"
	"github.com/systemstart/pipecall/pkg/session"
)

// Evaluator runs script source with the store bound as its only input.
// The returned value must be a plain Go value.
type Evaluator interface {
	Evaluate(ctx context.Context, name, source string, store *session.Store) (any, error)
}

// ScriptExecutor runs script steps through an Evaluator.
type ScriptExecutor struct {
	evaluator Evaluator
}

// NewScriptExecutor creates a script executor.
func NewScriptExecutor(evaluator Evaluator) *ScriptExecutor {
	return &ScriptExecutor{evaluator: evaluator}
}

func (e *ScriptExecutor) CanHandle(step api.Step) bool {
	return step.Kind == api.KindScript
}

func (e *ScriptExecutor) Execute(ctx context.Context, step api.Step, store *session.Store) (any, error) {
	slog.Info("executing script step", "step", step.Name)

	result, err := e.evaluator.Evaluate(ctx, step.Name, step.Code, store)
	if err != nil {
		return nil, &ScriptExecutionError{StepName: step.Name, Message: err.Error(), Err: err}
	}

	result = detach(result, nil)
	storeResult(store, step, result)

	slog.Info("script step completed", "step", step.Name, "resultType", fmt.Sprintf("%T", result))
	if m, ok := result.(map[string]any); ok && m != nil {
		slog.Info("script result properties", "step", step.Name, "properties", slices.Sorted(maps.Keys(m)))
	}

	return result, nil
}

// circularMarker replaces a back-reference to an enclosing object.
const circularMarker = "[Circular]"

// detach deep-copies maps and slices returned by a script so the stored value
// shares nothing with the live store map and contains no cycles. path holds
// the containers enclosing v.
func detach(v any, path []uintptr) any {
	switch t := v.(type) {
	case map[string]any:
		if t == nil {
			return t
		}
		ptr := reflect.ValueOf(t).Pointer()
		if slices.Contains(path, ptr) {
			return circularMarker
		}
		path = append(path, ptr)
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = detach(val, path)
		}
		return out
	case []any:
		if len(t) == 0 {
			return t
		}
		ptr := reflect.ValueOf(t).Pointer()
		if slices.Contains(path, ptr) {
			return circularMarker
		}
		path = append(path, ptr)
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = detach(val, path)
		}
		return out
	default:
		return v
	}
}
