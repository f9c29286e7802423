// Package sandbox evaluates script steps in an embedded JavaScript engine.
package sandbox

import (
	"context"
	"errors"
	"fmt"

	"github.com/dop251/goja"

	"github.com/systemstart/pipecall/pkg/api"
	"github.com/systemstart/pipecall/pkg/session"
)

// ErrUnsettledPromise is returned when a script's promise is still pending
// after all queued jobs have run. There is no event loop to wait on.
var ErrUnsettledPromise = errors.New("script returned a promise that never settled")

// Goja evaluates script source with github.com/dop251/goja.
//
// The source is the body of a function whose only parameter, sessionStore,
// is the store's live map. Each evaluation gets a fresh runtime.
type Goja struct{}

// NewGoja creates a goja evaluator.
func NewGoja() *Goja {
	return &Goja{}
}

// Evaluate runs source and returns its exported result. A returned promise
// is settled before returning. Cancelling ctx interrupts the script.
func (g *Goja) Evaluate(ctx context.Context, name, source string, store *session.Store) (any, error) {
	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

	wrapped := "(function(" + api.ScriptStoreBinding + ") {\n" + source + "\n})"
	prog, err := goja.Compile(name, wrapped, false)
	if err != nil {
		return nil, fmt.Errorf("compile: %s", err.Error())
	}

	stop := context.AfterFunc(ctx, func() {
		vm.Interrupt(ctx.Err())
	})
	defer stop()

	fnValue, err := vm.RunProgram(prog)
	if err != nil {
		return nil, fault(ctx, err)
	}
	fn, ok := goja.AssertFunction(fnValue)
	if !ok {
		return nil, errors.New("script did not compile to a function")
	}

	ret, err := fn(goja.Undefined(), vm.ToValue(store.Map()))
	if err != nil {
		return nil, fault(ctx, err)
	}
	return settle(ret)
}

func settle(v goja.Value) (any, error) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, nil
	}

	p, ok := v.Export().(*goja.Promise)
	if !ok {
		return v.Export(), nil
	}

	switch p.State() {
	case goja.PromiseStateFulfilled:
		return settle(p.Result())
	case goja.PromiseStateRejected:
		return nil, errors.New(message(p.Result()))
	default:
		return nil, ErrUnsettledPromise
	}
}

// fault turns a goja error into a plain error carrying the script's message.
func fault(ctx context.Context, err error) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if ctx.Err() != nil {
			return fmt.Errorf("script interrupted: %w", ctx.Err())
		}
		return errors.New("script interrupted")
	}

	var ex *goja.Exception
	if errors.As(err, &ex) {
		return errors.New(message(ex.Value()))
	}
	return errors.New(err.Error())
}

// message extracts Error.message from a thrown value, falling back to its
// string form for non-Error throws.
func message(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) {
		return "undefined"
	}
	if obj, ok := v.(*goja.Object); ok {
		if m := obj.Get("message"); m != nil && !goja.IsUndefined(m) && !goja.IsNull(m) {
			return m.String()
		}
	}
	return v.String()
}
