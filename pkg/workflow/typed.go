package workflow

import (
	"context"
	"fmt"

	"github.com/dukex/stepflow/pkg/contract"
	"github.com/dukex/stepflow/pkg/models"
)

// TypedStep adapts a function over concrete types to a StepFunc. Inputs that
// are not already an I are decoded from their JSON form.
func TypedStep[I, O any](fn func(ctx context.Context, input I, view models.ExecutionView) (O, error)) models.StepFunc {
	return func(ctx context.Context, raw any, view models.ExecutionView) (any, error) {
		input, ok := raw.(I)
		if !ok {
			if err := contract.Decode(raw, &input); err != nil {
				return nil, fmt.Errorf("invalid step input: %w", err)
			}
		}

		return fn(ctx, input, view)
	}
}

// RunTyped runs wf with trigger, which must encode to a JSON object, and
// decodes the workflow output into O.
func RunTyped[O any](ctx context.Context, executor *Executor, wf *Workflow, trigger any) (O, *Result, error) {
	var out O

	if !wf.Committed() {
		return out, nil, ErrWorkflowNotCommitted
	}

	payload, err := triggerMap(trigger)
	if err != nil {
		return out, nil, &ContractViolationError{WorkflowID: wf.name, Phase: PhaseTrigger, Err: err}
	}

	result, err := executor.Run(ctx, wf, payload)
	if err != nil {
		return out, result, err
	}

	if err := contract.Decode(result.Output, &out); err != nil {
		return out, result, fmt.Errorf("failed to decode output of workflow %s: %w", wf.name, err)
	}

	return out, result, nil
}

func triggerMap(trigger any) (map[string]any, error) {
	if payload, ok := trigger.(map[string]any); ok {
		return payload, nil
	}

	normalized, err := contract.Normalize(trigger)
	if err != nil {
		return nil, err
	}

	if normalized == nil {
		return map[string]any{}, nil
	}

	payload, ok := normalized.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("trigger of type %T is not an object", trigger)
	}

	return payload, nil
}
