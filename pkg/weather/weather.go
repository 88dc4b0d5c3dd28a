// Package weather builds the activity-planning workflows: fetch a forecast for
// a city, then plan activities with one agent, or with two agents in parallel
// whose plans are synthesized when rain is likely.
package weather

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"sync"

	"github.com/dukex/stepflow/pkg/agent"
	"github.com/dukex/stepflow/pkg/fetch"
	"github.com/go-playground/validator/v10"
)

const (
	FetchWeatherID         = "fetch-weather"
	PlanActivitiesID       = "plan-activities"
	PlanIndoorActivitiesID = "plan-indoor-activities"
	SynthesizeID           = "synthesize"

	WorkflowName         = "weather-workflow"
	PlanningWorkflowName = "activity-planning"

	PlannerAgent       = "planner"
	IndoorPlannerAgent = "indoor-planner"
	SynthesizerAgent   = "synthesizer"

	// ForecastKey is the trigger field the planning workflow reads its forecast from.
	ForecastKey = "forecast"

	DefaultGeocodingURL  = "https://geocoding-api.open-meteo.com/v1/search"
	DefaultForecastURL   = "https://api.open-meteo.com/v1/forecast"
	DefaultRainThreshold = 50.0
)

var (
	ErrLocationNotFound = errors.New("location not found")
	ErrNoForecast       = errors.New("no forecast data")
)

// Forecast is the output of fetch-weather.
type Forecast struct {
	City                string  `json:"city"`
	Country             string  `json:"country,omitempty"`
	Latitude            float64 `json:"latitude"`
	Longitude           float64 `json:"longitude"`
	Date                string  `json:"date"`
	MaxTemperature      float64 `json:"maxTemperature"`
	MinTemperature      float64 `json:"minTemperature"`
	PrecipitationChance float64 `json:"precipitationChance"`
	WeatherCode         int     `json:"weatherCode"`
}

// Plan is the output of every planning step.
type Plan struct {
	Activities string `json:"activities"`
}

type Config struct {
	GeocodingURL  string  `validate:"required,url"`
	ForecastURL   string  `validate:"required,url"`
	RainThreshold float64 `validate:"gte=0,lte=100"`
}

func DefaultConfig() Config {
	return Config{
		GeocodingURL:  DefaultGeocodingURL,
		ForecastURL:   DefaultForecastURL,
		RainThreshold: DefaultRainThreshold,
	}
}

func (c Config) Validate() error {
	return validator.New().Struct(c)
}

// Steps holds the collaborators of the weather steps. Agents are resolved
// once, when Steps is built.
type Steps struct {
	config      Config
	fetcher     fetch.Fetcher
	planner     agent.Agent
	indoor      agent.Agent
	synthesizer agent.Agent

	mu  sync.Mutex
	out io.Writer
}

// NewSteps resolves the planner, indoor-planner and synthesizer agents from
// agents. Generated plans are echoed to out when it is not nil.
func NewSteps(fetcher fetch.Fetcher, agents *agent.Registry, cfg Config, out io.Writer) (*Steps, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid weather config: %w", err)
	}

	s := &Steps{config: cfg, fetcher: fetcher, out: out}

	for name, target := range map[string]*agent.Agent{
		PlannerAgent:       &s.planner,
		IndoorPlannerAgent: &s.indoor,
		SynthesizerAgent:   &s.synthesizer,
	} {
		found, err := agents.Lookup(name)
		if err != nil {
			return nil, err
		}

		*target = found
	}

	return s, nil
}

// DefaultAgents registers offline agents under every name the steps need.
func DefaultAgents() *agent.Registry {
	registry := agent.NewRegistry()

	_ = registry.Register(PlannerAgent, agent.Echo{})
	_ = registry.Register(IndoorPlannerAgent, agent.Echo{})
	_ = registry.Register(SynthesizerAgent, agent.Echo{})

	return registry
}

func (s *Steps) geocodingURL(city string) string {
	query := url.Values{}
	query.Set("name", city)
	query.Set("count", "1")
	query.Set("format", "json")

	return s.config.GeocodingURL + "?" + query.Encode()
}

func (s *Steps) forecastURL(latitude, longitude float64) string {
	query := url.Values{}
	query.Set("latitude", strconv.FormatFloat(latitude, 'f', -1, 64))
	query.Set("longitude", strconv.FormatFloat(longitude, 'f', -1, 64))
	query.Set("daily", "temperature_2m_max,temperature_2m_min,precipitation_probability_max,weathercode")
	query.Set("timezone", "auto")
	query.Set("forecast_days", "1")

	return s.config.ForecastURL + "?" + query.Encode()
}

func (s *Steps) print(stepID, text string) {
	if s.out == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = fmt.Fprintf(s.out, "== %s ==\n%s\n", stepID, text)
}
