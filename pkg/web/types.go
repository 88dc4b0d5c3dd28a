// Package web provides HTTP request and response types for the workflow API.
package web

import (
	"time"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/workflow"
)

// WorkflowSummary is one entry of the workflow listing.
type WorkflowSummary struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Steps       []string `json:"steps"`
}

func NewWorkflowSummary(wf *workflow.Workflow) WorkflowSummary {
	return WorkflowSummary{
		Name:        wf.Name(),
		Description: wf.Description(),
		Steps:       wf.StepIDs(),
	}
}

// RunResponse is returned by a successful run.
type RunResponse struct {
	ExecutionID string                       `json:"execution_id"`
	WorkflowID  string                       `json:"workflow_id"`
	Status      models.RunStatus             `json:"status"`
	Output      any                          `json:"output"`
	Nodes       map[string]models.NodeStatus `json:"nodes"`
	StartedAt   time.Time                    `json:"started_at"`
	DurationMS  int64                        `json:"duration_ms"`
}

func NewRunResponse(result *workflow.Result) RunResponse {
	return RunResponse{
		ExecutionID: result.ExecutionID,
		WorkflowID:  result.WorkflowID,
		Status:      result.Status,
		Output:      result.Output,
		Nodes:       result.Nodes,
		StartedAt:   result.StartedAt,
		DurationMS:  result.Duration.Milliseconds(),
	}
}

// ListRunsRequest holds the query parameters of GET /runs.
type ListRunsRequest struct {
	Workflow string `query:"workflow"`
	Limit    int    `query:"limit"    validate:"gte=0,lte=500"`
}
