package workflow

import (
	"context"
	"fmt"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/template"
)

// Expression returns a predicate that renders expr as a text/template against
// the run state and reports whether the rendered value is truthy. The
// template sees .step_results, .trigger_data, .execution and .env; numbers
// in step results are float64, so compare them with float literals:
//
//	{{ gt (index .step_results "fetch-weather" "precipitationChance") 50.0 }}
func Expression(expr string) Predicate {
	return func(_ context.Context, view models.ExecutionView) (bool, error) {
		value, err := template.RenderWithView(expr, view)
		if err != nil {
			return false, err
		}

		return template.Truthy(value), nil
	}
}

// Field returns a predicate applying test to the value found at source,
// written "<node-id>" or "<node-id>.<dotted.path>".
func Field(source string, test func(value any) bool) Predicate {
	return func(_ context.Context, view models.ExecutionView) (bool, error) {
		value, ok := resolveSource(view, source)
		if !ok {
			return false, fmt.Errorf("%w: %s", ErrSourceNotFound, source)
		}

		return test(value), nil
	}
}

func Not(predicate Predicate) Predicate {
	return func(ctx context.Context, view models.ExecutionView) (bool, error) {
		ok, err := predicate(ctx, view)

		return !ok, err
	}
}
