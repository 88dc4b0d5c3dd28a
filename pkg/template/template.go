// Package template renders text/template expressions against a run's state.
package template

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/template"

	"github.com/dukex/stepflow/pkg/contract"
	"github.com/dukex/stepflow/pkg/models"
)

// RenderWithView renders input with the results and trigger of view.
// Step results are exposed in their JSON form, so numbers are float64.
func RenderWithView(input string, view models.ExecutionView) (any, error) {
	results, err := contract.Normalize(view.Results())
	if err != nil {
		return nil, fmt.Errorf("failed to prepare step results: %w", err)
	}

	trigger, err := contract.Normalize(view.TriggerData())
	if err != nil {
		return nil, fmt.Errorf("failed to prepare trigger data: %w", err)
	}

	data := map[string]any{
		"step_results": results,
		"trigger_data": trigger,
		"env":          getEnvVars(),
		"execution": map[string]any{
			"id":          view.ID(),
			"workflow_id": view.WorkflowID(),
		},
	}

	return Render(input, data)
}

// Render executes templateStr against data. Output that parses as a number
// comes back as float64 and output that parses as a boolean as bool; anything
// else is returned as the trimmed string.
func Render(templateStr string, data any) (any, error) {
	tmpl, err := template.New("expression").Parse(templateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return nil, fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	result := strings.TrimSpace(buf.String())

	if num, err := strconv.ParseFloat(result, 64); err == nil {
		return num, nil
	}

	if b, err := strconv.ParseBool(result); err == nil {
		return b, nil
	}

	return result, nil
}

// Truthy reports whether a rendered value counts as true.
// Strings that parse as booleans use that value; other strings are true when non-empty.
func Truthy(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}

		return v != ""
	case int:
		return v != 0
	case int64:
		return v != 0
	case float64:
		return v != 0
	case []any:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	default:
		return false
	}
}

// getEnvVars returns environment variables as a map.
func getEnvVars() map[string]any {
	envMap := make(map[string]any)

	for _, env := range os.Environ() {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) == 2 {
			envMap[parts[0]] = parts[1]
		}
	}

	return envMap
}
