package workflow

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Graph construction errors, wrapped by GraphValidationError.
var (
	ErrWorkflowNameRequired   = errors.New("workflow name is required")
	ErrNodesRequired          = errors.New("workflow must have at least one node")
	ErrInvalidStep            = errors.New("invalid step definition")
	ErrDuplicateNodeID        = errors.New("duplicate node id")
	ErrUnknownPredecessor     = errors.New("unknown predecessor")
	ErrJoinWithoutPredecessor = errors.New("join must list at least one predecessor")
	ErrForkWithoutMembers     = errors.New("fork must have at least one member")
	ErrMissingPredicate       = errors.New("conditional requires a predicate")
	ErrSubWorkflowNotReady    = errors.New("sub-workflow must be committed before it is embedded")
	ErrInvalidBinding         = errors.New("invalid sub-workflow binding")
	ErrUnknownMappingSource   = errors.New("result mapping references an unknown node")
	ErrGraphCommitted         = errors.New("workflow graph already committed")
)

var (
	// ErrWorkflowNotCommitted is returned when a workflow that never went through Commit is run.
	ErrWorkflowNotCommitted = errors.New("workflow is not committed")
	ErrStepPanicked         = errors.New("step panicked")
	ErrSourceNotFound       = errors.New("source has no value")
)

// GraphValidationError reports a structural problem found while committing a workflow.
type GraphValidationError struct {
	Workflow string
	NodeID   string
	Err      error
}

func (e *GraphValidationError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("invalid workflow %s at node %s: %v", e.Workflow, e.NodeID, e.Err)
	}

	return fmt.Sprintf("invalid workflow %s: %v", e.Workflow, e.Err)
}

func (e *GraphValidationError) Unwrap() error {
	return e.Err
}

func (e *GraphValidationError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

type ContractPhase string

const (
	// PhaseTrigger is the workflow input check.
	PhaseTrigger ContractPhase = "trigger"
	PhaseInput   ContractPhase = "input"
	PhaseOutput  ContractPhase = "output"
	// PhaseResult is the workflow output check after result mapping.
	PhaseResult ContractPhase = "result"
)

// ContractViolationError reports a payload that does not satisfy a declared schema.
type ContractViolationError struct {
	WorkflowID string
	StepID     string
	Path       []string
	Phase      ContractPhase
	Err        error
}

func (e *ContractViolationError) Error() string {
	if e.StepID == "" {
		return fmt.Sprintf("contract violation on %s of workflow %s: %v", e.Phase, e.WorkflowID, e.Err)
	}

	return fmt.Sprintf("contract violation on %s of step %s (path %s): %v", e.Phase, e.StepID, formatPath(e.Path), e.Err)
}

func (e *ContractViolationError) Unwrap() error {
	return e.Err
}

// StepExecutionError wraps the error returned by a step body.
// Path lists the node ids from the top-level graph down to the failing step.
type StepExecutionError struct {
	WorkflowID string
	StepID     string
	Path       []string
	Cause      error
}

func (e *StepExecutionError) Error() string {
	return fmt.Sprintf("step %s failed (path %s): %v", e.StepID, formatPath(e.Path), e.Cause)
}

func (e *StepExecutionError) Unwrap() error {
	return e.Cause
}

// StepTimeoutError reports a step that did not finish within its timeout.
type StepTimeoutError struct {
	WorkflowID string
	StepID     string
	Path       []string
	Timeout    time.Duration
}

func (e *StepTimeoutError) Error() string {
	return fmt.Sprintf("step %s timed out after %s (path %s)", e.StepID, e.Timeout, formatPath(e.Path))
}

// OutputMappingError reports a result mapping field whose sources all lacked a value.
type OutputMappingError struct {
	WorkflowID string
	Field      string
	Sources    []string
}

func (e *OutputMappingError) Error() string {
	field := e.Field
	if field == "" {
		field = "<output>"
	}

	return fmt.Sprintf("workflow %s: no value for output field %s (sources: %s)", e.WorkflowID, field, strings.Join(e.Sources, ", "))
}

func IsGraphValidationError(err error) bool {
	var target *GraphValidationError

	return errors.As(err, &target)
}

func IsContractViolation(err error) bool {
	var target *ContractViolationError

	return errors.As(err, &target)
}

func IsStepExecutionError(err error) bool {
	var target *StepExecutionError

	return errors.As(err, &target)
}

func IsStepTimeout(err error) bool {
	var target *StepTimeoutError

	return errors.As(err, &target)
}

func IsOutputMappingError(err error) bool {
	var target *OutputMappingError

	return errors.As(err, &target)
}

// FailedStepID returns the id of the step a run error originated from, if any.
func FailedStepID(err error) string {
	var (
		execErr     *StepExecutionError
		timeoutErr  *StepTimeoutError
		contractErr *ContractViolationError
	)

	switch {
	case errors.As(err, &timeoutErr):
		return timeoutErr.StepID
	case errors.As(err, &execErr):
		return execErr.StepID
	case errors.As(err, &contractErr):
		return contractErr.StepID
	default:
		return ""
	}
}

func formatPath(path []string) string {
	return strings.Join(path, " > ")
}
