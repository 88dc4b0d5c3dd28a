package workflow

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/stepflow/pkg/contract"
	"github.com/dukex/stepflow/pkg/eventbus"
	"github.com/dukex/stepflow/pkg/events"
	"github.com/dukex/stepflow/pkg/history"
	"github.com/dukex/stepflow/pkg/log"
	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/otelhelper"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
)

const tracerName = "github.com/dukex/stepflow/pkg/workflow"

// Executor runs committed workflows. It holds no per-run state, so one
// executor may run any number of workflows concurrently.
type Executor struct {
	logger      *slog.Logger
	tracer      trace.Tracer
	stepTimeout time.Duration
	sem         *semaphore.Weighted
	publisher   eventbus.EventPublisher
	history     history.Store
}

type ExecutorOption func(*Executor)

func WithLogger(logger *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		e.logger = logger
	}
}

func WithTracer(tracer trace.Tracer) ExecutorOption {
	return func(e *Executor) {
		e.tracer = tracer
	}
}

// WithStepTimeout bounds steps that do not declare their own timeout. Zero disables it.
func WithStepTimeout(timeout time.Duration) ExecutorOption {
	return func(e *Executor) {
		e.stepTimeout = timeout
	}
}

// WithMaxConcurrency caps how many step bodies run at once across every run
// of this executor. Values below one mean no cap.
func WithMaxConcurrency(n int64) ExecutorOption {
	return func(e *Executor) {
		if n > 0 {
			e.sem = semaphore.NewWeighted(n)
		}
	}
}

// WithEventPublisher publishes run and step lifecycle events to publisher.
func WithEventPublisher(publisher eventbus.EventPublisher) ExecutorOption {
	return func(e *Executor) {
		e.publisher = publisher
	}
}

// WithHistory saves the outcome of every top-level run to store.
func WithHistory(store history.Store) ExecutorOption {
	return func(e *Executor) {
		e.history = store
	}
}

func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{
		logger: log.WithModule("workflow_executor"),
		tracer: otel.Tracer(tracerName),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Result describes a finished run. Output is only set when the run succeeded;
// Nodes reports the final status of every node of the top-level graph.
type Result struct {
	ExecutionID string                       `json:"execution_id"`
	WorkflowID  string                       `json:"workflow_id"`
	Status      models.RunStatus             `json:"status"`
	Output      any                          `json:"output,omitempty"`
	Error       string                       `json:"error,omitempty"`
	Nodes       map[string]models.NodeStatus `json:"nodes"`
	StartedAt   time.Time                    `json:"started_at"`
	Duration    time.Duration                `json:"duration"`
}

// Run executes wf with trigger as its input and returns the mapped output.
// On failure the returned error is the first failure of the run and the
// result carries no output.
func (e *Executor) Run(ctx context.Context, wf *Workflow, trigger map[string]any) (*Result, error) {
	if !wf.Committed() {
		return nil, ErrWorkflowNotCommitted
	}

	execCtx := models.NewExecutionContext(generateExecutionID(), wf.name, trigger, e.logger)
	logger := execCtx.Logger()

	result := &Result{
		ExecutionID: execCtx.ID(),
		WorkflowID:  wf.name,
		Status:      models.RunStatusRunning,
		StartedAt:   time.Now().UTC(),
	}

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.run",
		attribute.String(otelhelper.WorkflowIDKey, wf.name),
		attribute.String(otelhelper.ExecutionIDKey, execCtx.ID()),
	)
	defer span.End()

	logger.InfoContext(ctx, "Starting workflow run")
	e.publish(ctx, execCtx.ID(), events.RunStarted{
		BaseEvent:   events.NewBaseEvent(events.RunStartedEvent, wf.name, execCtx.ID()),
		TriggerData: execCtx.TriggerData(),
	})

	output, nodes, err := e.execute(ctx, wf, execCtx, nil)
	result.Duration = time.Since(result.StartedAt)
	result.Nodes = nodes

	if err != nil {
		result.Status = models.RunStatusFailed
		result.Error = err.Error()

		otelhelper.SetError(span, err, attribute.String(otelhelper.StepIDKey, FailedStepID(err)))
		logger.ErrorContext(ctx, "Workflow run failed", "error", err, "duration", result.Duration)
		e.publish(ctx, execCtx.ID(), events.RunFailed{
			BaseEvent: events.NewBaseEvent(events.RunFailedEvent, wf.name, execCtx.ID()),
			StepID:    FailedStepID(err),
			Error:     err.Error(),
			Duration:  result.Duration,
		})
		e.saveHistory(ctx, result, execCtx, err)

		return result, err
	}

	result.Status = models.RunStatusSucceeded
	result.Output = output

	otelhelper.SetOK(span)
	logger.InfoContext(ctx, "Workflow run completed", "duration", result.Duration)
	e.publish(ctx, execCtx.ID(), events.RunSucceeded{
		BaseEvent: events.NewBaseEvent(events.RunSucceededEvent, wf.name, execCtx.ID()),
		Output:    output,
		Duration:  result.Duration,
	})
	e.saveHistory(ctx, result, execCtx, nil)

	return result, nil
}

// execute runs one workflow, top-level or nested, against execCtx. prefix is
// the node path of the sub-workflow node that started it.
func (e *Executor) execute(ctx context.Context, wf *Workflow, execCtx *models.ExecutionContext, prefix []string) (any, map[string]models.NodeStatus, error) {
	if err := contract.Validate(wf.inputSchema, execCtx.TriggerData()); err != nil {
		return nil, nil, &ContractViolationError{
			WorkflowID: wf.name,
			StepID:     lastOf(prefix),
			Path:       prefix,
			Phase:      PhaseTrigger,
			Err:        err,
		}
	}

	r := newRun(e, wf, execCtx, prefix)

	if err := r.start(ctx); err != nil {
		return nil, r.statuses(), err
	}

	output, err := r.output()
	if err != nil {
		return nil, r.statuses(), err
	}

	if err := contract.Validate(wf.outputSchema, output); err != nil {
		return nil, r.statuses(), &ContractViolationError{
			WorkflowID: wf.name,
			StepID:     lastOf(prefix),
			Path:       prefix,
			Phase:      PhaseResult,
			Err:        err,
		}
	}

	return output, r.statuses(), nil
}

// invoke calls the step body under its timeout and releases the concurrency
// slot taken by the caller once the body returns. When the timeout fires the
// executor stops waiting even if the body ignores its context; the slot stays
// taken until the body is done.
func (e *Executor) invoke(ctx context.Context, step *models.StepDefinition, input any, view models.ExecutionView) (any, error) {
	timeout := cmp.Or(step.Timeout, e.stepTimeout)
	if timeout <= 0 {
		defer e.release()

		return callStep(ctx, step, input, view)
	}

	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		output any
		err    error
	}

	done := make(chan outcome, 1)

	go func() {
		defer e.release()

		output, err := callStep(stepCtx, step, input, view)
		done <- outcome{output: output, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil && ctx.Err() == nil && stepCtx.Err() != nil {
			return nil, &StepTimeoutError{StepID: step.ID, Timeout: timeout}
		}

		return out.output, out.err
	case <-stepCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		return nil, &StepTimeoutError{StepID: step.ID, Timeout: timeout}
	}
}

func callStep(ctx context.Context, step *models.StepDefinition, input any, view models.ExecutionView) (output any, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("%w: %v", ErrStepPanicked, recovered)
		}
	}()

	return step.Run(ctx, input, view)
}

func (e *Executor) acquire(ctx context.Context) error {
	if e.sem == nil {
		return nil
	}

	return e.sem.Acquire(ctx, 1)
}

func (e *Executor) release() {
	if e.sem != nil {
		e.sem.Release(1)
	}
}

func (e *Executor) publish(ctx context.Context, key string, event eventbus.Event) {
	if e.publisher == nil {
		return
	}

	if err := e.publisher.Publish(ctx, key, event); err != nil {
		e.logger.WarnContext(ctx, "Failed to publish event", "event_type", event.GetType(), "error", err)
	}
}

func (e *Executor) saveHistory(ctx context.Context, result *Result, execCtx *models.ExecutionContext, runErr error) {
	if e.history == nil {
		return
	}

	record := history.Record{
		ExecutionID: result.ExecutionID,
		WorkflowID:  result.WorkflowID,
		Status:      result.Status,
		TriggerData: execCtx.TriggerData(),
		Output:      result.Output,
		Nodes:       result.Nodes,
		StartedAt:   result.StartedAt,
		FinishedAt:  result.StartedAt.Add(result.Duration),
	}

	if runErr != nil {
		record.Error = runErr.Error()
		record.FailedStep = FailedStepID(runErr)
	}

	// the run outcome must be saved even when the caller already gave up
	if err := e.history.Save(context.WithoutCancel(ctx), record); err != nil {
		e.logger.WarnContext(ctx, "Failed to save run history", "execution_id", result.ExecutionID, "error", err)
	}
}

// generateExecutionID generates a unique execution ID
func generateExecutionID() string {
	return fmt.Sprintf("exec-%s", uuid.New().String()[:8])
}

func lastOf(path []string) string {
	if len(path) == 0 {
		return ""
	}

	return path[len(path)-1]
}
