package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetType(t *testing.T) {
	tests := []struct {
		event interface{ GetType() EventType }
		want  EventType
	}{
		{RunStarted{}, RunStartedEvent},
		{RunSucceeded{}, RunSucceededEvent},
		{RunFailed{}, RunFailedEvent},
		{StepStarted{}, StepStartedEvent},
		{StepSucceeded{}, StepSucceededEvent},
		{StepFailed{}, StepFailedEvent},
		{NodeSkipped{}, NodeSkippedEvent},
	}

	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.event.GetType())
		})
	}
}

func TestNewBaseEvent(t *testing.T) {
	before := time.Now().UTC()
	event := NewBaseEvent(StepStartedEvent, "weather-workflow", "exec-1")

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, StepStartedEvent, event.Type)
	assert.Equal(t, "weather-workflow", event.WorkflowID)
	assert.Equal(t, "exec-1", event.ExecutionID)
	assert.False(t, event.Timestamp.Before(before))
	assert.NotNil(t, event.Metadata)

	assert.NotEqual(t, event.ID, NewBaseEvent(StepStartedEvent, "weather-workflow", "exec-1").ID)
}

func TestStepFailed_JSON(t *testing.T) {
	original := StepFailed{
		BaseEvent: NewBaseEvent(StepFailedEvent, "weather-workflow", "exec-1"),
		StepID:    "synthesize",
		Path:      []string{"if-1", "activity-planning", "synthesize"},
		Error:     "agent unavailable",
		Duration:  time.Second,
	}

	data, err := json.Marshal(original)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"step.failed"`)
	assert.Contains(t, string(data), `"step_id":"synthesize"`)

	var decoded StepFailed
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, original.Path, decoded.Path)
	assert.Equal(t, original.ExecutionID, decoded.ExecutionID)
}

func TestNodeSkipped_JSON(t *testing.T) {
	event := NodeSkipped{
		BaseEvent: NewBaseEvent(NodeSkippedEvent, "weather-workflow", "exec-1"),
		NodeID:    "plan-activities",
		Status:    models.NodeStatusSkipped,
	}

	data, err := json.Marshal(event)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"status":"skipped"`)
}
