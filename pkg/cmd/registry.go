package cmd

import (
	"io"
	"log/slog"

	"github.com/dukex/stepflow/pkg/agent"
	"github.com/dukex/stepflow/pkg/fetch"
	"github.com/dukex/stepflow/pkg/registry"
	"github.com/dukex/stepflow/pkg/weather"
)

// NewRegistry registers the weather workflow and its planning sub-workflow.
// Step output is echoed to out.
func NewRegistry(logger *slog.Logger, cfg weather.Config, fetcher fetch.Fetcher, agents *agent.Registry, out io.Writer) (*registry.Registry, error) {
	steps, err := weather.NewSteps(fetcher, agents, cfg, out)
	if err != nil {
		return nil, err
	}

	reg := registry.NewRegistry(logger)

	planning, err := steps.NewPlanningWorkflow()
	if err != nil {
		return nil, err
	}

	if err := reg.Register(planning); err != nil {
		return nil, err
	}

	wf, err := steps.NewWorkflow()
	if err != nil {
		return nil, err
	}

	if err := reg.Register(wf); err != nil {
		return nil, err
	}

	return reg, nil
}
