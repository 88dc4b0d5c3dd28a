package weather

import (
	"fmt"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/workflow"
)

// NewPlanningWorkflow plans general and indoor activities concurrently and
// synthesizes both plans. Its trigger carries the forecast under "forecast".
func (s *Steps) NewPlanningWorkflow() (*workflow.Workflow, error) {
	return workflow.New(PlanningWorkflowName,
		workflow.WithDescription("Plans general and indoor activities in parallel, then merges them"),
		workflow.WithInputSchema(models.ObjectSchema(map[string]*models.Property{
			ForecastKey: models.ObjectProperty("Forecast to plan for", forecastProperties(), "city", "precipitationChance"),
		}, ForecastKey)),
		workflow.WithOutputSchema(planSchema()),
		workflow.WithResultMapping(workflow.Mapping(
			workflow.MapField("activities", SynthesizeID+".activities"),
		)),
	).
		Parallel(s.PlanActivities(), s.PlanIndoorActivities()).
		After(PlanActivitiesID, PlanIndoorActivitiesID).Step(s.Synthesize()).
		Commit()
}

// NewWorkflow fetches the forecast of the trigger city. Above the rain
// threshold it runs the planning sub-workflow, otherwise a single planner.
func (s *Steps) NewWorkflow() (*workflow.Workflow, error) {
	planning, err := s.NewPlanningWorkflow()
	if err != nil {
		return nil, err
	}

	return workflow.New(WorkflowName,
		workflow.WithDescription("Plans the day's activities from the weather forecast of a city"),
		workflow.WithInputSchema(cityInputSchema()),
		workflow.WithOutputSchema(planSchema()),
		workflow.WithResultMapping(workflow.Mapping(
			workflow.MapField("activities", PlanningWorkflowName+".activities", PlanActivitiesID+".activities"),
		)),
	).
		Step(s.FetchWeather()).
		If(RainLikely(s.config.RainThreshold)).
		ThenWorkflow(planning, workflow.Bindings{ForecastKey: FetchWeatherID}).
		Else().
		Then(s.PlanActivities()).
		EndIf().
		Commit()
}

// RainLikely holds when the fetched precipitation chance is above threshold percent.
func RainLikely(threshold float64) workflow.Predicate {
	return workflow.Expression(fmt.Sprintf(
		`{{ gt (index .step_results %q "precipitationChance") %.2f }}`, FetchWeatherID, threshold))
}
