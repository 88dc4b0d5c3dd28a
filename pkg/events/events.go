// Package events defines the lifecycle notifications emitted while workflows run.
package events

import (
	"time"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Topic is the default Kafka topic for run lifecycle events.
const Topic = "stepflow.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	RunStartedEvent   EventType = "run.started"
	RunSucceededEvent EventType = "run.succeeded"
	RunFailedEvent    EventType = "run.failed"

	StepStartedEvent   EventType = "step.started"
	StepSucceededEvent EventType = "step.succeeded"
	StepFailedEvent    EventType = "step.failed"
	NodeSkippedEvent   EventType = "node.skipped"
)

type BaseEvent struct {
	ID          string         `json:"id"`
	Type        EventType      `json:"type"`
	Timestamp   time.Time      `json:"timestamp"`
	WorkflowID  string         `json:"workflow_id"`
	ExecutionID string         `json:"execution_id"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, workflowID, executionID string) BaseEvent {
	return BaseEvent{
		ID:          uuid.New().String(),
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		WorkflowID:  workflowID,
		ExecutionID: executionID,
		Metadata:    make(map[string]any),
	}
}

type RunStarted struct {
	BaseEvent

	TriggerData map[string]any `json:"trigger_data,omitempty"`
}

func (e RunStarted) GetType() EventType {
	return RunStartedEvent
}

type RunSucceeded struct {
	BaseEvent

	Output   any           `json:"output,omitempty"`
	Duration time.Duration `json:"duration"`
}

func (e RunSucceeded) GetType() EventType {
	return RunSucceededEvent
}

type RunFailed struct {
	BaseEvent

	StepID   string        `json:"step_id,omitempty"`
	Error    string        `json:"error"`
	Duration time.Duration `json:"duration"`
}

func (e RunFailed) GetType() EventType {
	return RunFailedEvent
}

// Step events

type StepStarted struct {
	BaseEvent

	StepID string   `json:"step_id"`
	Path   []string `json:"path"`
}

func (e StepStarted) GetType() EventType {
	return StepStartedEvent
}

type StepSucceeded struct {
	BaseEvent

	StepID   string        `json:"step_id"`
	Path     []string      `json:"path"`
	Duration time.Duration `json:"duration"`
}

func (e StepSucceeded) GetType() EventType {
	return StepSucceededEvent
}

type StepFailed struct {
	BaseEvent

	StepID   string        `json:"step_id"`
	Path     []string      `json:"path"`
	Error    string        `json:"error"`
	Duration time.Duration `json:"duration"`
}

func (e StepFailed) GetType() EventType {
	return StepFailedEvent
}

// NodeSkipped is emitted for nodes that never ran: inactive branches,
// dependents of failed nodes, and nodes pending when a run stops.
type NodeSkipped struct {
	BaseEvent

	NodeID string            `json:"node_id"`
	Path   []string          `json:"path"`
	Status models.NodeStatus `json:"status"`
}

func (e NodeSkipped) GetType() EventType {
	return NodeSkippedEvent
}
