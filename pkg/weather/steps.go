package weather

import (
	"context"
	"fmt"
	"strings"

	"github.com/dukex/stepflow/pkg/agent"
	"github.com/dukex/stepflow/pkg/contract"
	"github.com/dukex/stepflow/pkg/fetch"
	"github.com/dukex/stepflow/pkg/log"
	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/workflow"
)

type CityInput struct {
	City string `json:"city"`
}

type geocodingResponse struct {
	Results []struct {
		Name      string  `json:"name"`
		Country   string  `json:"country"`
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"results"`
}

type forecastResponse struct {
	Daily struct {
		Time                        []string  `json:"time"`
		Temperature2mMax            []float64 `json:"temperature_2m_max"`
		Temperature2mMin            []float64 `json:"temperature_2m_min"`
		PrecipitationProbabilityMax []float64 `json:"precipitation_probability_max"`
		WeatherCode                 []int     `json:"weathercode"`
	} `json:"daily"`
}

func cityInputSchema() *models.JSONSchema {
	return models.ObjectSchema(map[string]*models.Property{
		"city": models.StringProperty("Name of the city to plan for"),
	}, "city")
}

func forecastProperties() map[string]*models.Property {
	minimum, maximum := 0.0, 100.0
	chance := models.NumberProperty("Chance of precipitation, in percent")
	chance.Minimum = &minimum
	chance.Maximum = &maximum

	return map[string]*models.Property{
		"city":                models.StringProperty("Resolved city name"),
		"date":                models.StringProperty("Forecast date"),
		"maxTemperature":      models.NumberProperty("Maximum temperature in Celsius"),
		"minTemperature":      models.NumberProperty("Minimum temperature in Celsius"),
		"precipitationChance": chance,
	}
}

func forecastSchema() *models.JSONSchema {
	return models.ObjectSchema(forecastProperties(), "city", "precipitationChance")
}

func planSchema() *models.JSONSchema {
	return models.ObjectSchema(map[string]*models.Property{
		"activities": models.StringProperty("Suggested activities"),
	}, "activities")
}

// FetchWeather geocodes the trigger city and fetches its forecast for today.
func (s *Steps) FetchWeather() *models.StepDefinition {
	return &models.StepDefinition{
		ID:           FetchWeatherID,
		Description:  "Fetches today's forecast for a city",
		InputSchema:  cityInputSchema(),
		OutputSchema: forecastSchema(),
		Run:          workflow.TypedStep(s.fetchWeather),
	}
}

func (s *Steps) fetchWeather(ctx context.Context, in CityInput, view models.ExecutionView) (Forecast, error) {
	var geo geocodingResponse
	if err := s.fetcher.FetchJSON(ctx, s.geocodingURL(in.City), &geo); err != nil {
		return Forecast{}, fmt.Errorf("geocoding %s: %w", in.City, err)
	}

	if len(geo.Results) == 0 {
		return Forecast{}, fmt.Errorf("%w: %w: %s", ErrLocationNotFound, fetch.ErrEmptyResult, in.City)
	}

	place := geo.Results[0]

	var resp forecastResponse
	if err := s.fetcher.FetchJSON(ctx, s.forecastURL(place.Latitude, place.Longitude), &resp); err != nil {
		return Forecast{}, fmt.Errorf("forecast for %s: %w", place.Name, err)
	}

	daily := resp.Daily
	if len(daily.Time) == 0 || len(daily.PrecipitationProbabilityMax) == 0 {
		return Forecast{}, fmt.Errorf("%w: %w: %s", ErrNoForecast, fetch.ErrEmptyResult, place.Name)
	}

	forecast := Forecast{
		City:                place.Name,
		Country:             place.Country,
		Latitude:            place.Latitude,
		Longitude:           place.Longitude,
		Date:                daily.Time[0],
		PrecipitationChance: daily.PrecipitationProbabilityMax[0],
	}

	if len(daily.Temperature2mMax) > 0 {
		forecast.MaxTemperature = daily.Temperature2mMax[0]
	}

	if len(daily.Temperature2mMin) > 0 {
		forecast.MinTemperature = daily.Temperature2mMin[0]
	}

	if len(daily.WeatherCode) > 0 {
		forecast.WeatherCode = daily.WeatherCode[0]
	}

	view.Logger().InfoContext(ctx, "Forecast fetched", "city", forecast.City, "precipitation_chance", forecast.PrecipitationChance)

	return forecast, nil
}

// PlanActivities asks the planner agent for a plan suited to the forecast.
func (s *Steps) PlanActivities() *models.StepDefinition {
	return &models.StepDefinition{
		ID:           PlanActivitiesID,
		Description:  "Plans activities for the forecast",
		OutputSchema: planSchema(),
		Run:          s.plan(PlanActivitiesID, s.planner, "Suggest activities for the day, indoor and outdoor."),
	}
}

// PlanIndoorActivities asks the indoor-planner agent for indoor-only activities.
func (s *Steps) PlanIndoorActivities() *models.StepDefinition {
	return &models.StepDefinition{
		ID:           PlanIndoorActivitiesID,
		Description:  "Plans indoor activities for a rainy forecast",
		OutputSchema: planSchema(),
		Run:          s.plan(PlanIndoorActivitiesID, s.indoor, "Suggest indoor activities only."),
	}
}

func (s *Steps) plan(stepID string, a agent.Agent, instructions string) models.StepFunc {
	return func(ctx context.Context, _ any, view models.ExecutionView) (any, error) {
		forecast, err := ForecastFrom(view)
		if err != nil {
			return nil, err
		}

		text, err := s.generate(ctx, stepID, a, []agent.Message{
			agent.SystemMessage(instructions),
			agent.UserMessage(describe(forecast)),
		})
		if err != nil {
			return nil, err
		}

		return Plan{Activities: text}, nil
	}
}

// Synthesize merges the general and indoor plans into one.
func (s *Steps) Synthesize() *models.StepDefinition {
	return &models.StepDefinition{
		ID:          SynthesizeID,
		Description: "Merges the general and indoor plans",
		InputSchema: models.ObjectSchema(map[string]*models.Property{
			PlanActivitiesID:       models.ObjectProperty("General plan", nil, "activities"),
			PlanIndoorActivitiesID: models.ObjectProperty("Indoor plan", nil, "activities"),
		}, PlanActivitiesID, PlanIndoorActivitiesID),
		OutputSchema: planSchema(),
		Run: workflow.TypedStep(func(ctx context.Context, plans map[string]Plan, _ models.ExecutionView) (Plan, error) {
			text, err := s.generate(ctx, SynthesizeID, s.synthesizer, []agent.Message{
				agent.SystemMessage("Merge both plans into one list for a rainy day."),
				agent.UserMessage(plans[PlanActivitiesID].Activities + "\n" + plans[PlanIndoorActivitiesID].Activities),
			})
			if err != nil {
				return Plan{}, err
			}

			return Plan{Activities: text}, nil
		}),
	}
}

func (s *Steps) generate(ctx context.Context, stepID string, a agent.Agent, messages []agent.Message) (string, error) {
	stream, err := a.StreamText(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("agent stream: %w", err)
	}

	text, err := stream.Collect()
	if err != nil {
		return "", fmt.Errorf("agent stream: %w", err)
	}

	text = strings.TrimSpace(text)
	log.FromContext(ctx).DebugContext(ctx, "Agent answered", "step_id", stepID, "length", len(text))
	s.print(stepID, text)

	return text, nil
}

// ForecastFrom reads the forecast of the current run. The recorded
// fetch-weather result wins over a forecast passed in the trigger.
func ForecastFrom(view models.ExecutionView) (Forecast, error) {
	raw, ok := models.ResultOrTrigger(view, FetchWeatherID, ForecastKey)
	if !ok {
		return Forecast{}, ErrNoForecast
	}

	var forecast Forecast
	if err := contract.Decode(raw, &forecast); err != nil {
		return Forecast{}, fmt.Errorf("invalid forecast: %w", err)
	}

	return forecast, nil
}

func describe(f Forecast) string {
	return fmt.Sprintf("Forecast for %s on %s: %.0f to %.0f degrees, %.0f%% chance of precipitation.",
		f.City, f.Date, f.MinTemperature, f.MaxTemperature, f.PrecipitationChance)
}
