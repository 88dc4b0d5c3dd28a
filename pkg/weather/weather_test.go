package weather_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dukex/stepflow/pkg/agent"
	"github.com/dukex/stepflow/pkg/fetch"
	"github.com/dukex/stepflow/pkg/log"
	"github.com/dukex/stepflow/pkg/mocks"
	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/testutil"
	"github.com/dukex/stepflow/pkg/weather"
	"github.com/dukex/stepflow/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	testGeocodingURL = "http://geocoding.test/v1/search"
	testForecastURL  = "http://forecast.test/v1/forecast"
)

func testConfig() weather.Config {
	return weather.Config{
		GeocodingURL:  testGeocodingURL,
		ForecastURL:   testForecastURL,
		RainThreshold: weather.DefaultRainThreshold,
	}
}

// stubFetcher answers geocoding requests with Paris and forecast requests
// with the configured precipitation chance.
type stubFetcher struct {
	precipitationChance float64
}

func (f stubFetcher) FetchJSON(_ context.Context, url string, out any) error {
	body := `{"results":[{"name":"Paris","country":"France","latitude":48.85,"longitude":2.35}]}`
	if strings.HasPrefix(url, testForecastURL) {
		body = fmt.Sprintf(`{"daily":{"time":["2026-10-18"],"temperature_2m_max":[17.5],`+
			`"temperature_2m_min":[9.1],"precipitation_probability_max":[%g],"weathercode":[61]}}`, f.precipitationChance)
	}

	return json.Unmarshal([]byte(body), out)
}

type agents struct {
	recorder    *testutil.Recorder
	planner     agent.Agent
	indoor      agent.Agent
	synthesizer agent.Agent
}

func (a agents) registry(t *testing.T) *agent.Registry {
	t.Helper()

	registry := agent.NewRegistry()
	require.NoError(t, registry.Register(weather.PlannerAgent, a.recorded(weather.PlannerAgent, a.planner)))
	require.NoError(t, registry.Register(weather.IndoorPlannerAgent, a.recorded(weather.IndoorPlannerAgent, a.indoor)))
	require.NoError(t, registry.Register(weather.SynthesizerAgent, a.recorded(weather.SynthesizerAgent, a.synthesizer)))

	return registry
}

func (a agents) recorded(name string, inner agent.Agent) agent.Agent {
	return agent.Func(func(ctx context.Context, messages []agent.Message, emit func(string) error) error {
		a.recorder.Record(name)

		stream, err := inner.StreamText(ctx, messages)
		if err != nil {
			return err
		}
		defer stream.Close()

		for stream.Next() {
			if err := emit(stream.Text()); err != nil {
				return err
			}
		}

		return stream.Err()
	})
}

func staticAgents() agents {
	return agents{
		recorder:    &testutil.Recorder{},
		planner:     agent.Static{"Walk along ", "the Seine"},
		indoor:      agent.Static{"Visit the Louvre"},
		synthesizer: agent.Static{"Louvre, then a covered passage walk"},
	}
}

func newWorkflow(t *testing.T, fetcher fetch.Fetcher, a agents) *workflow.Workflow {
	t.Helper()

	steps, err := weather.NewSteps(fetcher, a.registry(t), testConfig(), nil)
	require.NoError(t, err)

	wf, err := steps.NewWorkflow()
	require.NoError(t, err)

	return wf
}

func newExecutor() *workflow.Executor {
	return workflow.NewExecutor(workflow.WithLogger(log.Discard()), workflow.WithStepTimeout(5*time.Second))
}

func TestScenarioA_DryForecastTakesElseBranch(t *testing.T) {
	t.Parallel()

	a := staticAgents()
	wf := newWorkflow(t, stubFetcher{precipitationChance: 10}, a)

	result, err := newExecutor().Run(context.Background(), wf, map[string]any{"city": "Paris"})
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusSucceeded, result.Status)
	assert.Equal(t, map[string]any{"activities": "Walk along the Seine"}, result.Output)
	assert.Equal(t, []string{weather.PlannerAgent}, a.recorder.IDs())

	assert.Equal(t, models.NodeStatusSuccess, result.Nodes[weather.FetchWeatherID])
	assert.Equal(t, models.NodeStatusSuccess, result.Nodes[weather.PlanActivitiesID])
	assert.Equal(t, models.NodeStatusSkipped, result.Nodes[weather.PlanningWorkflowName])
}

func TestScenarioB_RainyForecastRunsPlanningSubWorkflow(t *testing.T) {
	t.Parallel()

	barrier := testutil.NewBarrier(2)

	waiting := func(text string) agent.Agent {
		return agent.Func(func(_ context.Context, _ []agent.Message, emit func(string) error) error {
			if err := barrier.Wait(2 * time.Second); err != nil {
				return err
			}

			return emit(text)
		})
	}

	var synthesizerInput string

	a := agents{
		recorder: &testutil.Recorder{},
		planner:  waiting("Walk along the Seine"),
		indoor:   waiting("Visit the Louvre"),
		synthesizer: agent.Func(func(_ context.Context, messages []agent.Message, emit func(string) error) error {
			synthesizerInput = messages[len(messages)-1].Content

			return emit("Louvre in the morning, Seine if it clears")
		}),
	}

	wf := newWorkflow(t, stubFetcher{precipitationChance: 60}, a)

	result, err := newExecutor().Run(context.Background(), wf, map[string]any{"city": "Paris"})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"activities": "Louvre in the morning, Seine if it clears"}, result.Output)

	calls := a.recorder.IDs()
	require.Len(t, calls, 3)
	assert.ElementsMatch(t, []string{weather.PlannerAgent, weather.IndoorPlannerAgent}, calls[:2])
	assert.Equal(t, weather.SynthesizerAgent, calls[2])
	assert.Contains(t, synthesizerInput, "Walk along the Seine")
	assert.Contains(t, synthesizerInput, "Visit the Louvre")

	assert.Equal(t, models.NodeStatusSuccess, result.Nodes[weather.PlanningWorkflowName])
	assert.Equal(t, models.NodeStatusSkipped, result.Nodes[weather.PlanActivitiesID])
	assert.NotContains(t, result.Nodes, weather.SynthesizeID)
	assert.NotContains(t, result.Nodes, weather.PlanIndoorActivitiesID)
}

func TestScenarioC_FetchFailureStopsRun(t *testing.T) {
	t.Parallel()

	fetcher := &mocks.MockFetcher{}
	fetcher.On("FetchJSON", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("geocoding service down"))

	a := staticAgents()
	wf := newWorkflow(t, fetcher, a)

	result, err := newExecutor().Run(context.Background(), wf, map[string]any{"city": "Paris"})
	require.Error(t, err)

	var stepErr *workflow.StepExecutionError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, weather.FetchWeatherID, stepErr.StepID)
	assert.Contains(t, err.Error(), "geocoding service down")

	assert.Equal(t, models.RunStatusFailed, result.Status)
	assert.Nil(t, result.Output)
	assert.Empty(t, a.recorder.IDs())
	assert.Equal(t, models.NodeStatusSkipped, result.Nodes[weather.PlanActivitiesID])
	assert.Equal(t, models.NodeStatusSkipped, result.Nodes[weather.PlanningWorkflowName])
	fetcher.AssertNumberOfCalls(t, "FetchJSON", 1)
}

func TestScenarioD_CommitIsIdempotent(t *testing.T) {
	t.Parallel()

	steps, err := weather.NewSteps(stubFetcher{}, staticAgents().registry(t), testConfig(), nil)
	require.NoError(t, err)

	builder := workflow.New(weather.WorkflowName).
		Step(steps.FetchWeather()).
		Then(steps.PlanActivities())

	first, err := builder.Commit()
	require.NoError(t, err)

	second, err := builder.Commit()
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, []string{weather.FetchWeatherID, weather.PlanActivitiesID}, second.StepIDs())
}

func TestRainThresholdIsExclusive(t *testing.T) {
	t.Parallel()

	a := staticAgents()
	wf := newWorkflow(t, stubFetcher{precipitationChance: weather.DefaultRainThreshold}, a)

	result, err := newExecutor().Run(context.Background(), wf, map[string]any{"city": "Paris"})
	require.NoError(t, err)
	assert.Equal(t, models.NodeStatusSuccess, result.Nodes[weather.PlanActivitiesID])
}

func TestTriggerWithoutCityIsRejected(t *testing.T) {
	t.Parallel()

	wf := newWorkflow(t, stubFetcher{}, staticAgents())

	_, err := newExecutor().Run(context.Background(), wf, map[string]any{"town": "Paris"})
	require.True(t, workflow.IsContractViolation(err))
}

func TestPlansAreEchoedToOutput(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer

	steps, err := weather.NewSteps(stubFetcher{precipitationChance: 10}, staticAgents().registry(t), testConfig(), &out)
	require.NoError(t, err)

	wf, err := steps.NewWorkflow()
	require.NoError(t, err)

	_, err = newExecutor().Run(context.Background(), wf, map[string]any{"city": "Paris"})
	require.NoError(t, err)
	assert.Equal(t, "== plan-activities ==\nWalk along the Seine\n", out.String())
}

func TestPlanningWorkflowRunsOnItsOwn(t *testing.T) {
	t.Parallel()

	steps, err := weather.NewSteps(stubFetcher{}, staticAgents().registry(t), testConfig(), nil)
	require.NoError(t, err)

	planning, err := steps.NewPlanningWorkflow()
	require.NoError(t, err)

	out, _, err := workflow.RunTyped[weather.Plan](context.Background(), newExecutor(), planning, map[string]any{
		weather.ForecastKey: weather.Forecast{City: "Paris", PrecipitationChance: 80},
	})
	require.NoError(t, err)
	assert.Equal(t, "Louvre, then a covered passage walk", out.Activities)
}

func TestNewSteps(t *testing.T) {
	t.Parallel()

	t.Run("missing agent", func(t *testing.T) {
		registry := agent.NewRegistry()
		require.NoError(t, registry.Register(weather.PlannerAgent, agent.Echo{}))

		_, err := weather.NewSteps(stubFetcher{}, registry, testConfig(), nil)
		require.ErrorIs(t, err, agent.ErrAgentNotRegistered)
	})

	t.Run("invalid config", func(t *testing.T) {
		cfg := testConfig()
		cfg.ForecastURL = "not a url"
		cfg.RainThreshold = 120

		_, err := weather.NewSteps(stubFetcher{}, weather.DefaultAgents(), cfg, nil)
		require.Error(t, err)
	})

	t.Run("default agents", func(t *testing.T) {
		_, err := weather.NewSteps(stubFetcher{}, weather.DefaultAgents(), weather.DefaultConfig(), nil)
		require.NoError(t, err)
	})
}

func TestForecastFrom_RecordedResultWins(t *testing.T) {
	t.Parallel()

	execCtx := models.NewExecutionContext("exec-1", weather.PlanningWorkflowName, map[string]any{
		weather.ForecastKey: map[string]any{"city": "Lyon", "precipitationChance": 20.0},
	}, log.Discard())

	forecast, err := weather.ForecastFrom(execCtx)
	require.NoError(t, err)
	assert.Equal(t, "Lyon", forecast.City)

	require.NoError(t, execCtx.Record(weather.FetchWeatherID, weather.Forecast{City: "Paris", PrecipitationChance: 70}))

	forecast, err = weather.ForecastFrom(execCtx)
	require.NoError(t, err)
	assert.Equal(t, "Paris", forecast.City)

	_, err = weather.ForecastFrom(models.NewExecutionContext("exec-2", "empty", nil, log.Discard()))
	require.ErrorIs(t, err, weather.ErrNoForecast)
}

func TestFetchWeather_OverHTTP(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/search", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("name") != "Paris" {
			_, _ = w.Write([]byte(`{}`))

			return
		}

		_, _ = w.Write([]byte(`{"results":[{"name":"Paris","country":"France","latitude":48.85,"longitude":2.35}]}`))
	})
	mux.HandleFunc("/v1/forecast", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "48.85", r.URL.Query().Get("latitude"))
		_, _ = w.Write([]byte(`{"daily":{"time":["2026-10-18"],"temperature_2m_max":[18],` +
			`"temperature_2m_min":[10],"precipitation_probability_max":[35],"weathercode":[3]}}`))
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	cfg := weather.Config{
		GeocodingURL:  server.URL + "/v1/search",
		ForecastURL:   server.URL + "/v1/forecast",
		RainThreshold: weather.DefaultRainThreshold,
	}

	steps, err := weather.NewSteps(fetch.NewHTTPFetcher(), weather.DefaultAgents(), cfg, nil)
	require.NoError(t, err)

	wf, err := workflow.New("fetch-only").Step(steps.FetchWeather()).Commit()
	require.NoError(t, err)

	forecast, _, err := workflow.RunTyped[weather.Forecast](context.Background(), newExecutor(), wf, weather.CityInput{City: "Paris"})
	require.NoError(t, err)
	assert.Equal(t, weather.Forecast{
		City:                "Paris",
		Country:             "France",
		Latitude:            48.85,
		Longitude:           2.35,
		Date:                "2026-10-18",
		MaxTemperature:      18,
		MinTemperature:      10,
		PrecipitationChance: 35,
		WeatherCode:         3,
	}, forecast)

	_, _, err = workflow.RunTyped[weather.Forecast](context.Background(), newExecutor(), wf, weather.CityInput{City: "Atlantis"})
	require.ErrorIs(t, err, weather.ErrLocationNotFound)
	require.ErrorIs(t, err, fetch.ErrEmptyResult)
}
