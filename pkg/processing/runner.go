package processing

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/systemstart/pipecall/pkg/api"
	"github.com/systemstart/pipecall/pkg/metrics"
	"github.com/systemstart/pipecall/pkg/sandbox"
	"github.com/systemstart/pipecall/pkg/session"
	"github.com/systemstart/pipecall/pkg/steps"
	"github.com/systemstart/pipecall/pkg/telemetry"
	"github.com/systemstart/pipecall/pkg/templating"
)

// Status is the outcome of one Execute call.
type Status string

const (
	StatusCompleted           Status = "completed"
	StatusCompletedWithErrors Status = "completed_with_errors"
	StatusAborted             Status = "aborted"
)

// Hook is called around every step attempt. Errors and panics raised by a
// hook are logged and never change the outcome of the run.
type Hook func(step api.Step, pipeline *api.Pipeline, store *session.Store) error

// ExecutionError records one failed step, whether the run aborted or continued.
type ExecutionError struct {
	StepName  string    `json:"stepName" yaml:"stepName"`
	Message   string    `json:"error" yaml:"error"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

// PipelineExecutionError is returned by Execute when a step without
// continueOnError fails.
type PipelineExecutionError struct {
	StepName string
	Err      error
}

func (e *PipelineExecutionError) Error() string {
	return fmt.Sprintf("pipeline execution failed at step %q: %v", e.StepName, e.Err)
}

func (e *PipelineExecutionError) Unwrap() error { return e.Err }

// Runner executes pipelines step by step against a result store that
// persists across Execute calls until ClearSession.
//
// A Runner is not safe for concurrent use.
type Runner struct {
	store      *session.Store
	errors     []ExecutionError
	templating *templating.Engine
	dispatcher *steps.Dispatcher

	transport   steps.Transport
	evaluator   steps.Evaluator
	onStepStart Hook
	onStepEnd   Hook
	metrics     *metrics.Collector
	logger      *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithTransport replaces the default net/http transport for request steps.
func WithTransport(t steps.Transport) Option {
	return func(r *Runner) { r.transport = t }
}

// WithEvaluator replaces the default goja evaluator for script steps.
func WithEvaluator(e steps.Evaluator) Option {
	return func(r *Runner) { r.evaluator = e }
}

// WithOnStepStart sets the hook called before each step attempt.
func WithOnStepStart(h Hook) Option {
	return func(r *Runner) { r.onStepStart = h }
}

// WithOnStepEnd sets the hook called after each step attempt, successful or not.
func WithOnStepEnd(h Hook) Option {
	return func(r *Runner) { r.onStepEnd = h }
}

// WithMetrics records step outcomes and durations in c.
func WithMetrics(c *metrics.Collector) Option {
	return func(r *Runner) { r.metrics = c }
}

// WithLogger sets the logger used for run progress. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// NewRunner creates a runner with an empty store.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{store: session.New()}
	for _, opt := range opts {
		opt(r)
	}

	if r.transport == nil {
		r.transport = steps.NewHTTPTransport()
	}
	if r.evaluator == nil {
		r.evaluator = sandbox.NewGoja()
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}

	r.templating = templating.New(r.store)
	r.dispatcher = steps.NewDispatcher(
		steps.NewRequestExecutor(r.templating, r.transport),
		steps.NewScriptExecutor(r.evaluator),
	)
	return r
}

// Execute validates raw and runs its steps in order. A validation error is
// returned as is before any step runs. A fatal step failure is returned as a
// *PipelineExecutionError with StatusAborted.
func (r *Runner) Execute(ctx context.Context, raw any) (Status, error) {
	pipeline, err := api.Parse(raw)
	if err != nil {
		return StatusAborted, err
	}
	return r.Run(ctx, pipeline)
}

// Run executes an already validated pipeline.
func (r *Runner) Run(ctx context.Context, pipeline *api.Pipeline) (Status, error) {
	r.errors = nil

	runID := uuid.NewString()
	logger := r.logger.With("run", runID)
	if pipeline.FilePath != "" {
		logger = logger.With("pipeline", pipeline.FilePath)
	}

	ctx, span := otel.Tracer(telemetry.TracerName).Start(ctx, "pipeline",
		trace.WithAttributes(
			attribute.String("pipecall.run_id", runID),
			attribute.Int("pipecall.steps", len(pipeline.Steps)),
		))
	defer span.End()

	logger.Info("starting pipeline", "steps", len(pipeline.Steps))

	for _, step := range pipeline.Steps {
		if err := r.runStep(ctx, logger, pipeline, step); err != nil {
			span.SetStatus(codes.Error, err.Error())
			r.observeRun(StatusAborted)
			return StatusAborted, err
		}
	}

	status := StatusCompleted
	if len(r.errors) > 0 {
		status = StatusCompletedWithErrors
		logger.Warn("pipeline completed with errors", "errors", len(r.errors))
	} else {
		logger.Info("pipeline completed")
	}
	r.observeRun(status)
	return status, nil
}

// runStep performs one attempt and applies the continuation policy. It returns
// a non-nil error only when the run must abort.
func (r *Runner) runStep(ctx context.Context, logger *slog.Logger, pipeline *api.Pipeline, step api.Step) error {
	ctx, span := otel.Tracer(telemetry.TracerName).Start(ctx, "step "+step.Name,
		trace.WithAttributes(
			attribute.String("pipecall.step", step.Name),
			attribute.String("pipecall.kind", step.Kind),
		))
	defer span.End()

	logger = logger.With("step", step.Name)
	r.callHook(logger, "onStepStart", r.onStepStart, step, pipeline)

	start := time.Now()
	err := r.attempt(ctx, step)
	elapsed := time.Since(start)

	if err == nil {
		r.observeStep(step, metrics.OutcomeSucceeded, elapsed)
		r.callHook(logger, "onStepEnd", r.onStepEnd, step, pipeline)
		return nil
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	record := ExecutionError{StepName: step.Name, Message: err.Error(), Timestamp: time.Now().UTC()}
	r.errors = append(r.errors, record)
	logger.Error("step failed", "error", err)

	if !step.ContinueOnError {
		r.observeStep(step, metrics.OutcomeFailed, elapsed)
		logger.Error("pipeline stopped due to error")
		r.callHook(logger, "onStepEnd", r.onStepEnd, step, pipeline)
		return &PipelineExecutionError{StepName: step.Name, Err: err}
	}

	r.observeStep(step, metrics.OutcomeRecovered, elapsed)
	logger.Warn("continuing despite error", "continueOnError", true)
	r.store.Set(step.Name, errorMarker(record))
	r.callHook(logger, "onStepEnd", r.onStepEnd, step, pipeline)
	return nil
}

func (r *Runner) attempt(ctx context.Context, step api.Step) error {
	executor, err := r.dispatcher.For(step)
	if err != nil {
		return err
	}
	_, err = executor.Execute(ctx, step, r.store)
	return err
}

// errorMarker is the value stored for a step that failed with continueOnError,
// so later placeholders such as {{step.errorMessage}} resolve.
func errorMarker(e ExecutionError) map[string]any {
	return map[string]any{
		"error":        true,
		"errorMessage": e.Message,
		"stepName":     e.StepName,
		"timestamp":    e.Timestamp.Format(time.RFC3339Nano),
	}
}

func (r *Runner) callHook(logger *slog.Logger, name string, hook Hook, step api.Step, pipeline *api.Pipeline) {
	if hook == nil {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			logger.Error("hook panicked", "hook", name, "panic", p)
		}
	}()
	if err := hook(step, pipeline, r.store); err != nil {
		logger.Error("hook failed", "hook", name, "error", err)
	}
}

func (r *Runner) observeStep(step api.Step, outcome string, elapsed time.Duration) {
	if r.metrics != nil {
		r.metrics.ObserveStep(step.Kind, outcome, elapsed)
	}
}

func (r *Runner) observeRun(status Status) {
	if r.metrics != nil {
		r.metrics.ObserveRun(string(status))
	}
}

// ClearSession empties the store and the error log. The store keeps its
// identity, so the templating engine and script bindings see the reset.
func (r *Runner) ClearSession() {
	r.store.Clear()
	r.errors = nil
}

// ValidatePlaceholders parses raw and lists the placeholders in request URLs
// and bodies that the current store cannot resolve. Nothing is executed.
func (r *Runner) ValidatePlaceholders(raw any) ([]string, error) {
	pipeline, err := api.Parse(raw)
	if err != nil {
		return nil, err
	}

	var unresolved []string
	for _, step := range pipeline.Steps {
		if !step.IsRequest() {
			continue
		}
		unresolved = append(unresolved, r.templating.ValidateString(step.URL)...)
		unresolved = append(unresolved, r.templating.ValidateValue(step.Body)...)
	}
	return unresolved, nil
}

// Store returns a shallow copy of the result store.
func (r *Runner) Store() map[string]any {
	return r.store.Snapshot()
}

// ExecutionErrors returns a copy of the error log of the last run.
func (r *Runner) ExecutionErrors() []ExecutionError {
	return slices.Clone(r.errors)
}

// HasExecutionErrors reports whether the last run logged any step failure.
func (r *Runner) HasExecutionErrors() bool {
	return len(r.errors) > 0
}
