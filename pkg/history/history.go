// Package history stores the outcome of finished runs.
package history

import (
	"context"
	"errors"
	"time"

	"github.com/dukex/stepflow/pkg/models"
)

var ErrRecordNotFound = errors.New("run record not found")

// Record is the terminal state of one top-level run. Step outputs are not
// kept; only the mapped workflow output of a successful run is.
type Record struct {
	ExecutionID string                       `json:"execution_id"`
	WorkflowID  string                       `json:"workflow_id"`
	Status      models.RunStatus             `json:"status"`
	TriggerData map[string]any               `json:"trigger_data,omitempty"`
	Output      any                          `json:"output,omitempty"`
	Error       string                       `json:"error,omitempty"`
	FailedStep  string                       `json:"failed_step,omitempty"`
	Nodes       map[string]models.NodeStatus `json:"nodes,omitempty"`
	StartedAt   time.Time                    `json:"started_at"`
	FinishedAt  time.Time                    `json:"finished_at"`
}

type Store interface {
	Save(ctx context.Context, record Record) error
	Get(ctx context.Context, executionID string) (*Record, error)
	// List returns the newest records first. An empty workflowID lists every workflow.
	List(ctx context.Context, workflowID string, limit int) ([]Record, error)
	Close(ctx context.Context) error
}

func IsRecordNotFound(err error) bool {
	return errors.Is(err, ErrRecordNotFound)
}
