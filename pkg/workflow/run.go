package workflow

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"github.com/dukex/stepflow/pkg/contract"
	"github.com/dukex/stepflow/pkg/events"
	"github.com/dukex/stepflow/pkg/log"
	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/otelhelper"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// errRunAbandoned stops a step that got its concurrency slot after another
// node of the run failed.
var errRunAbandoned = errors.New("run already failed")

type branch int

const (
	noBranch branch = iota
	thenBranch
	elseBranch
)

func (b branch) String() string {
	switch b {
	case thenBranch:
		return "then"
	case elseBranch:
		return "else"
	default:
		return "none"
	}
}

// nodeRun is the state of one node during one run. Every field written by
// the node's goroutine is written before done is closed, and readers only
// look at it after receiving from done.
type nodeRun struct {
	node   *Node
	path   []string
	prev   *nodeRun
	owner  *nodeRun
	side   branch
	nested bool
	after  []*nodeRun

	// sources are the nodes a sub-workflow reads its bindings from.
	sources []*nodeRun

	members  []*nodeRun
	thenTail *nodeRun
	elseTail *nodeRun

	// released is closed by a container once its children may decide whether to run.
	released chan struct{}
	admitted bool
	chosen   branch

	done   chan struct{}
	status models.NodeStatus
	input  any
	output any
}

func (n *nodeRun) release(admitted bool, chosen branch) {
	n.admitted = admitted
	n.chosen = chosen
	close(n.released)
}

func (n *nodeRun) admits(child *nodeRun) bool {
	if !n.admitted {
		return false
	}

	if n.node.Kind == KindConditional {
		return n.chosen == child.side
	}

	return true
}

// dependencies are the nodes that must succeed before n can run. A Join at
// the top level waits only for its predecessors; inside a branch it also
// stays behind the node before it. A node following a top-level Join also
// waits for whatever the Join did not, so its path stays ordered.
func (n *nodeRun) dependencies() []*nodeRun {
	if n.node.Kind == KindJoin {
		deps := slices.Clone(n.after)
		if n.nested && n.prev != nil {
			deps = append(deps, n.prev)
		}

		return deps
	}

	if n.prev == nil {
		return nil
	}

	deps := []*nodeRun{n.prev}
	for p := n.prev; p.node.Kind == KindJoin && !p.nested && p.prev != nil; p = p.prev {
		deps = append(deps, p.prev)
	}

	return deps
}

// run schedules every node of a workflow on its own goroutine. A node starts
// once its dependencies finished; it is skipped when one of them did not
// succeed, when its branch was not taken, or once any node of the run failed.
type run struct {
	executor *Executor
	workflow *Workflow
	execCtx  *models.ExecutionContext
	prefix   []string

	nodes []*nodeRun
	byID  map[string]*nodeRun
	tail  *nodeRun

	failed    atomic.Bool
	cancelled atomic.Bool
}

func newRun(executor *Executor, wf *Workflow, execCtx *models.ExecutionContext, prefix []string) *run {
	r := &run{
		executor: executor,
		workflow: wf,
		execCtx:  execCtx,
		prefix:   prefix,
		byID:     make(map[string]*nodeRun, len(wf.index)),
	}

	r.tail = r.plan(wf.nodes, nil, noBranch, prefix)

	return r
}

func (r *run) plan(nodes []*Node, owner *nodeRun, side branch, parentPath []string) *nodeRun {
	var prev *nodeRun

	for _, node := range nodes {
		nr := &nodeRun{
			node:   node,
			path:   append(slices.Clone(parentPath), node.ID),
			prev:   prev,
			side:   side,
			nested: owner != nil,
			done:   make(chan struct{}),
			status: models.NodeStatusPending,
		}

		if prev == nil {
			nr.owner = owner
		}

		r.nodes = append(r.nodes, nr)
		r.byID[node.ID] = nr

		switch node.Kind {
		case KindConditional:
			nr.released = make(chan struct{})
			nr.thenTail = r.plan(node.Then, nr, thenBranch, nr.path)
			nr.elseTail = r.plan(node.Else, nr, elseBranch, nr.path)
		case KindFork:
			nr.released = make(chan struct{})
			for _, member := range node.Members {
				nr.members = append(nr.members, r.plan([]*Node{member}, nr, noBranch, nr.path))
			}
		case KindJoin:
			for _, id := range node.After {
				nr.after = append(nr.after, r.byID[id])
			}
		case KindSubWorkflow:
			for _, source := range node.Bindings {
				nr.sources = append(nr.sources, r.byID[sourceNodeID(source)])
			}
		}

		prev = nr
	}

	return prev
}

// start runs every node and returns the first failure.
func (r *run) start(ctx context.Context) error {
	var g errgroup.Group

	for _, nr := range r.nodes {
		g.Go(func() error {
			return r.runNode(ctx, nr)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	if r.cancelled.Load() {
		return ctx.Err()
	}

	return nil
}

func (r *run) runNode(ctx context.Context, nr *nodeRun) error {
	defer close(nr.done)

	if !r.await(ctx, nr) || r.failed.Load() {
		r.skip(ctx, nr)

		return nil
	}

	nr.status = models.NodeStatusRunning
	nr.input = r.inputFor(nr)

	var err error

	switch nr.node.Kind {
	case KindConditional:
		err = r.runConditional(ctx, nr)
	case KindFork:
		err = r.runFork(ctx, nr)
	case KindSubWorkflow:
		nr.output, err = r.runSubWorkflow(ctx, nr)
	default:
		nr.output, err = r.runStep(ctx, nr)
	}

	if err == nil && nr.node.recordsResult() {
		if recordErr := r.execCtx.Record(nr.node.ID, nr.output); recordErr != nil {
			err = &StepExecutionError{WorkflowID: r.workflow.name, StepID: nr.node.ID, Path: nr.path, Cause: recordErr}
		}
	}

	if errors.Is(err, errRunAbandoned) {
		r.skip(ctx, nr)

		return nil
	}

	if err != nil {
		nr.status = models.NodeStatusError
		r.failed.Store(true)

		return err
	}

	// containers report the status of the branch or members they waited on
	if nr.status == models.NodeStatusRunning {
		nr.status = models.NodeStatusSuccess
	}

	return nil
}

func (r *run) await(ctx context.Context, nr *nodeRun) bool {
	for _, dep := range nr.dependencies() {
		if !r.wait(ctx, dep.done) || dep.status != models.NodeStatusSuccess {
			return false
		}
	}

	if nr.owner != nil {
		if !r.wait(ctx, nr.owner.released) || !nr.owner.admits(nr) {
			return false
		}
	}

	// a binding source may be skipped; subTrigger reports it as missing
	for _, source := range nr.sources {
		if !r.wait(ctx, source.done) {
			return false
		}
	}

	return true
}

func (r *run) wait(ctx context.Context, ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	case <-ctx.Done():
		r.cancelled.Store(true)

		return false
	}
}

func (r *run) skip(ctx context.Context, nr *nodeRun) {
	nr.status = models.NodeStatusSkipped

	if nr.released != nil {
		nr.release(false, noBranch)
	}

	r.execCtx.Logger().DebugContext(ctx, "Node skipped", "node_id", nr.node.ID)
	r.executor.publish(ctx, r.execCtx.ID(), events.NodeSkipped{
		BaseEvent: events.NewBaseEvent(events.NodeSkippedEvent, r.workflow.name, r.execCtx.ID()),
		NodeID:    nr.node.ID,
		Path:      nr.path,
		Status:    nr.status,
	})
}

// inputFor resolves what a node receives: a join gets the outputs of its
// predecessors keyed by id, other nodes the output of the node before them,
// the input of their container when they head a branch or fork, or the
// trigger when they come first in the workflow. Every node gets its own copy.
func (r *run) inputFor(nr *nodeRun) any {
	switch {
	case nr.node.Kind == KindJoin:
		input := make(map[string]any, len(nr.after))
		for _, dep := range nr.after {
			input[dep.node.ID] = models.Clone(dep.output)
		}

		return input
	case nr.prev != nil:
		return models.Clone(nr.prev.output)
	case nr.owner != nil:
		return models.Clone(nr.owner.input)
	default:
		return r.execCtx.TriggerData()
	}
}

func (r *run) runStep(ctx context.Context, nr *nodeRun) (any, error) {
	step := nr.node.Step
	logger := r.execCtx.Logger().With("step_id", step.ID)

	if err := contract.Validate(step.InputSchema, nr.input); err != nil {
		logger.ErrorContext(ctx, "Step input rejected", "error", err)

		return nil, r.contractError(nr, PhaseInput, err)
	}

	ctx, span := otelhelper.StartSpan(ctx, r.executor.tracer, "workflow.step",
		attribute.String(otelhelper.WorkflowIDKey, r.workflow.name),
		attribute.String(otelhelper.ExecutionIDKey, r.execCtx.ID()),
		attribute.String(otelhelper.StepIDKey, step.ID),
		attribute.StringSlice(otelhelper.NodePathKey, nr.path),
	)
	defer span.End()

	if err := r.executor.acquire(ctx); err != nil {
		return nil, r.stepError(nr, err)
	}

	if r.failed.Load() {
		r.executor.release()

		return nil, errRunAbandoned
	}

	r.executor.publish(ctx, r.execCtx.ID(), events.StepStarted{
		BaseEvent: events.NewBaseEvent(events.StepStartedEvent, r.workflow.name, r.execCtx.ID()),
		StepID:    step.ID,
		Path:      nr.path,
	})
	logger.DebugContext(ctx, "Executing step")

	started := time.Now()
	output, err := r.executor.invoke(log.NewContext(ctx, logger), step, nr.input, r.execCtx)
	duration := time.Since(started)

	if err == nil {
		if violation := contract.Validate(step.OutputSchema, output); violation != nil {
			err = r.contractError(nr, PhaseOutput, violation)
		}
	} else {
		err = r.stepError(nr, err)
	}

	if err != nil {
		otelhelper.SetError(span, err, attribute.String(otelhelper.StepIDKey, step.ID))
		logger.ErrorContext(ctx, "Step failed", "error", err, "duration", duration)
		r.executor.publish(ctx, r.execCtx.ID(), events.StepFailed{
			BaseEvent: events.NewBaseEvent(events.StepFailedEvent, r.workflow.name, r.execCtx.ID()),
			StepID:    step.ID,
			Path:      nr.path,
			Error:     err.Error(),
			Duration:  duration,
		})

		return nil, err
	}

	otelhelper.SetOK(span)
	logger.DebugContext(ctx, "Step completed", "duration", duration)
	r.executor.publish(ctx, r.execCtx.ID(), events.StepSucceeded{
		BaseEvent: events.NewBaseEvent(events.StepSucceededEvent, r.workflow.name, r.execCtx.ID()),
		StepID:    step.ID,
		Path:      nr.path,
		Duration:  duration,
	})

	return output, nil
}

func (r *run) runConditional(ctx context.Context, nr *nodeRun) error {
	ctx, span := otelhelper.StartSpan(ctx, r.executor.tracer, "workflow.conditional",
		attribute.String(otelhelper.NodeIDKey, nr.node.ID),
		attribute.String(otelhelper.NodeKindKey, string(nr.node.Kind)),
	)
	defer span.End()

	take, err := r.evaluate(ctx, nr)
	if err != nil {
		nr.release(false, noBranch)

		err = &StepExecutionError{
			WorkflowID: r.workflow.name,
			StepID:     nr.node.ID,
			Path:       nr.path,
			Cause:      fmt.Errorf("predicate: %w", err),
		}
		otelhelper.SetError(span, err)

		return err
	}

	chosen, tail := elseBranch, nr.elseTail
	if take {
		chosen, tail = thenBranch, nr.thenTail
	}

	span.SetAttributes(attribute.String(otelhelper.BranchKey, chosen.String()))
	r.execCtx.Logger().DebugContext(ctx, "Conditional evaluated", "node_id", nr.node.ID, "branch", chosen.String())

	nr.release(true, chosen)

	if tail == nil {
		nr.output = nr.input

		return nil
	}

	<-tail.done

	nr.output = tail.output
	if tail.status != models.NodeStatusSuccess {
		nr.status = tail.status
	}

	return nil
}

func (r *run) evaluate(ctx context.Context, nr *nodeRun) (take bool, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("%w: %v", ErrStepPanicked, recovered)
		}
	}()

	return nr.node.Predicate(ctx, r.execCtx)
}

func (r *run) runFork(_ context.Context, nr *nodeRun) error {
	nr.release(true, noBranch)

	outputs := make(map[string]any, len(nr.members))

	for _, member := range nr.members {
		<-member.done

		if member.status != models.NodeStatusSuccess {
			if nr.status != models.NodeStatusError {
				nr.status = member.status
			}

			continue
		}

		outputs[member.node.ID] = member.output
	}

	nr.output = outputs

	return nil
}

func (r *run) runSubWorkflow(ctx context.Context, nr *nodeRun) (any, error) {
	sub := nr.node.Workflow

	trigger, err := r.subTrigger(nr)
	if err != nil {
		return nil, r.stepError(nr, err)
	}

	ctx, span := otelhelper.StartSpan(ctx, r.executor.tracer, "workflow.subworkflow",
		attribute.String(otelhelper.NodeIDKey, nr.node.ID),
		attribute.String(otelhelper.WorkflowIDKey, sub.name),
	)
	defer span.End()

	child := models.NewExecutionContext(generateExecutionID(), sub.name, trigger, r.executor.logger)
	r.execCtx.Logger().DebugContext(ctx, "Starting sub-workflow", "node_id", nr.node.ID, "child_execution_id", child.ID())

	output, _, err := r.executor.execute(ctx, sub, child, nr.path)
	if err != nil {
		otelhelper.SetError(span, err)

		switch err.(type) {
		case *StepExecutionError, *StepTimeoutError, *ContractViolationError:
			return nil, err
		default:
			return nil, r.stepError(nr, err)
		}
	}

	return output, nil
}

// subTrigger assembles the trigger of a sub-workflow from its bindings, or
// from the node input when no binding is declared.
func (r *run) subTrigger(nr *nodeRun) (map[string]any, error) {
	if len(nr.node.Bindings) == 0 {
		normalized, err := contract.Normalize(nr.input)
		if err != nil {
			return nil, err
		}

		if normalized == nil {
			return map[string]any{}, nil
		}

		trigger, ok := normalized.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: input of type %T is not an object", ErrInvalidBinding, nr.input)
		}

		return trigger, nil
	}

	trigger := make(map[string]any, len(nr.node.Bindings))

	for field, source := range nr.node.Bindings {
		value, ok := resolveSource(r.execCtx, source)
		if !ok {
			return nil, fmt.Errorf("%w: %q for field %q", ErrSourceNotFound, source, field)
		}

		trigger[field] = value
	}

	return trigger, nil
}

// output projects the workflow output once every node finished.
func (r *run) output() (any, error) {
	if !r.workflow.mapping.IsZero() {
		return r.workflow.mapping.Project(r.execCtx)
	}

	if r.tail.status != models.NodeStatusSuccess {
		return nil, &OutputMappingError{WorkflowID: r.workflow.name, Sources: []string{r.tail.node.ID}}
	}

	return r.tail.output, nil
}

func (r *run) statuses() map[string]models.NodeStatus {
	out := make(map[string]models.NodeStatus, len(r.nodes))
	for _, nr := range r.nodes {
		out[nr.node.ID] = nr.status
	}

	return out
}

func (r *run) stepError(nr *nodeRun, err error) error {
	if timeout, ok := err.(*StepTimeoutError); ok {
		timeout.WorkflowID = r.workflow.name
		timeout.Path = nr.path

		return timeout
	}

	return &StepExecutionError{WorkflowID: r.workflow.name, StepID: nr.node.ID, Path: nr.path, Cause: err}
}

func (r *run) contractError(nr *nodeRun, phase ContractPhase, err error) error {
	return &ContractViolationError{
		WorkflowID: r.workflow.name,
		StepID:     nr.node.ID,
		Path:       nr.path,
		Phase:      phase,
		Err:        err,
	}
}
