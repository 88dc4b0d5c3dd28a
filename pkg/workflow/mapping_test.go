package workflow

import (
	"testing"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type forecast struct {
	City                string  `json:"city"`
	PrecipitationChance float64 `json:"precipitationChance"`
}

func mappingView(t *testing.T, results map[string]any) *models.ExecutionContext {
	t.Helper()

	execCtx := models.NewExecutionContext("exec-test", "mapped", nil, nil)
	for id, value := range results {
		require.NoError(t, execCtx.Record(id, value))
	}

	return execCtx
}

func TestResolveSource(t *testing.T) {
	view := mappingView(t, map[string]any{
		"fetch": forecast{City: "Lisbon", PrecipitationChance: 80},
		"plan":  map[string]any{"activities": []any{"museum", "cinema"}},
		"empty": nil,
	})

	tests := []struct {
		source string
		want   any
		found  bool
	}{
		{source: "fetch.city", want: "Lisbon", found: true},
		{source: "fetch.precipitationChance", want: 80.0, found: true},
		{source: "plan.activities", want: []any{"museum", "cinema"}, found: true},
		{source: "plan.activities.1", want: "cinema", found: true},
		{source: "empty", want: nil, found: true},
		{source: "fetch.missing", found: false},
		{source: "unknown", found: false},
		{source: "unknown.city", found: false},
	}

	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			value, ok := resolveSource(view, tt.source)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.want, value)
		})
	}

	// a whole result is returned as recorded, not normalized
	value, ok := resolveSource(view, "fetch")
	require.True(t, ok)
	assert.Equal(t, forecast{City: "Lisbon", PrecipitationChance: 80}, value)
}

func TestResultMapping_Project(t *testing.T) {
	view := mappingView(t, map[string]any{
		"plan-activities": map[string]any{"activities": []any{"beach"}, "mood": "sunny"},
		"fetch":           map[string]any{"city": "Porto"},
	})

	t.Run("first available source wins", func(t *testing.T) {
		out, err := Mapping(
			MapField("activities", "activity-planning.activities", "plan-activities.activities"),
			MapField("city", "fetch.city"),
		).Project(view)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"activities": []any{"beach"}, "city": "Porto"}, out)
	})

	t.Run("root target", func(t *testing.T) {
		out, err := Mapping(MapField("", "plan-activities")).Project(view)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"activities": []any{"beach"}, "mood": "sunny"}, out)
	})

	t.Run("root merged with named fields", func(t *testing.T) {
		out, err := Mapping(
			MapField("", "plan-activities"),
			MapField("mood", "fetch.city"),
		).Project(view)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"activities": []any{"beach"}, "mood": "Porto"}, out)
	})

	t.Run("scalar root cannot carry fields", func(t *testing.T) {
		_, err := Mapping(
			MapField("", "fetch.city"),
			MapField("mood", "plan-activities.mood"),
		).Project(view)
		require.Error(t, err)
	})

	t.Run("no source available", func(t *testing.T) {
		_, err := Mapping(MapField("activities", "activity-planning.activities")).Project(view)

		var mappingErr *OutputMappingError
		require.ErrorAs(t, err, &mappingErr)
		assert.Equal(t, "mapped", mappingErr.WorkflowID)
		assert.Equal(t, "activities", mappingErr.Field)
		assert.Contains(t, err.Error(), "activity-planning.activities")
	})
}

func TestResultMapping_IsZero(t *testing.T) {
	assert.True(t, ResultMapping{}.IsZero())
	assert.True(t, Mapping().IsZero())
	assert.False(t, Mapping(MapField("a", "b")).IsZero())
}
