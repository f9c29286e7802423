package steps

import (
	"github.com/systemstart/pipecall/pkg/api"
)

// Dispatcher maps a step to its executor. The set of kinds is closed.
type Dispatcher struct {
	Request *RequestExecutor
	Script  *ScriptExecutor
}

// NewDispatcher creates a dispatcher over the two step executors.
func NewDispatcher(request *RequestExecutor, script *ScriptExecutor) *Dispatcher {
	return &Dispatcher{Request: request, Script: script}
}

// For returns the executor for step.
func (d *Dispatcher) For(step api.Step) (Executor, error) {
	switch step.Kind {
	case "", api.KindRequest:
		if d.Request != nil && d.Request.CanHandle(step) {
			return d.Request, nil
		}
	case api.KindScript:
		if d.Script != nil && d.Script.CanHandle(step) {
			return d.Script, nil
		}
	}
	return nil, &DispatchError{StepName: step.Name, Kind: step.Kind}
}
