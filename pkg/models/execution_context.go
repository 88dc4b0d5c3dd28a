package models

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
)

var ErrResultAlreadyRecorded = errors.New("step result already recorded")

// ExecutionView is the read-only face of an ExecutionContext handed to steps and predicates.
type ExecutionView interface {
	ID() string
	WorkflowID() string
	TriggerData() map[string]any
	Result(stepID string) (any, bool)
	Results() map[string]any
	Logger() *slog.Logger
}

// ExecutionContext holds the state of one run: its trigger input and the
// results recorded by completed steps. Each step id may be recorded once.
type ExecutionContext struct {
	id          string
	workflowID  string
	triggerData map[string]any
	logger      *slog.Logger

	mu      sync.RWMutex
	results map[string]any
}

func NewExecutionContext(id, workflowID string, triggerData map[string]any, logger *slog.Logger) *ExecutionContext {
	if logger == nil {
		logger = slog.Default()
	}

	trigger := CloneMap(triggerData)
	if trigger == nil {
		trigger = make(map[string]any)
	}

	return &ExecutionContext{
		id:          id,
		workflowID:  workflowID,
		triggerData: trigger,
		logger:      logger.With("execution_id", id, "workflow_id", workflowID),
		results:     make(map[string]any),
	}
}

func (c *ExecutionContext) ID() string {
	return c.id
}

func (c *ExecutionContext) WorkflowID() string {
	return c.workflowID
}

// TriggerData returns a copy of the trigger; callers may modify it freely.
func (c *ExecutionContext) TriggerData() map[string]any {
	return CloneMap(c.triggerData)
}

func (c *ExecutionContext) Logger() *slog.Logger {
	return c.logger
}

// Record stores the output of stepID. A second write for the same id is rejected.
func (c *ExecutionContext) Record(stepID string, value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.results[stepID]; exists {
		return fmt.Errorf("%w: %s", ErrResultAlreadyRecorded, stepID)
	}

	c.results[stepID] = value

	return nil
}

func (c *ExecutionContext) Result(stepID string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	value, ok := c.results[stepID]

	return Clone(value), ok
}

// Results returns a snapshot of every recorded result.
func (c *ExecutionContext) Results() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return CloneMap(c.results)
}

// StepIDs returns the recorded step ids in lexical order.
func (c *ExecutionContext) StepIDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return slices.Sorted(maps.Keys(c.results))
}

// Snapshot is the serializable state of a run, used by template rendering and history.
type Snapshot struct {
	ID          string         `json:"id"`
	WorkflowID  string         `json:"workflow_id"`
	TriggerData map[string]any `json:"trigger_data,omitempty"`
	StepResults map[string]any `json:"step_results,omitempty"`
}

func (c *ExecutionContext) Snapshot() Snapshot {
	return Snapshot{
		ID:          c.id,
		WorkflowID:  c.workflowID,
		TriggerData: c.TriggerData(),
		StepResults: c.Results(),
	}
}

// ResultOrTrigger returns the recorded result of stepID, falling back to the
// trigger field triggerKey. Steps reused inside a sub-workflow read their
// inputs through it, since the sub-workflow only sees its own trigger.
func ResultOrTrigger(view ExecutionView, stepID, triggerKey string) (any, bool) {
	if value, ok := view.Result(stepID); ok {
		return value, true
	}

	value, ok := view.TriggerData()[triggerKey]

	return value, ok
}

// Clone copies the maps and slices of a JSON-like value recursively. Other
// values, structs included, are returned as they are.
func Clone(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return CloneMap(v)
	case []any:
		if v == nil {
			return v
		}

		out := make([]any, len(v))
		for i, item := range v {
			out[i] = Clone(item)
		}

		return out
	default:
		return value
	}
}

func CloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}

	out := make(map[string]any, len(m))
	for key, value := range m {
		out[key] = Clone(value)
	}

	return out
}
