package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/dukex/stepflow/pkg/cmd"
	"github.com/dukex/stepflow/pkg/eventbus"
	"github.com/dukex/stepflow/pkg/events"
	"github.com/dukex/stepflow/pkg/fetch"
	"github.com/dukex/stepflow/pkg/history"
	"github.com/dukex/stepflow/pkg/log"
	"github.com/dukex/stepflow/pkg/otelhelper"
	"github.com/dukex/stepflow/pkg/registry"
	"github.com/dukex/stepflow/pkg/weather"
	"github.com/dukex/stepflow/pkg/workflow"
)

// app holds everything a command needs to run workflows.
type app struct {
	logger   *slog.Logger
	registry *registry.Registry
	history  history.Store
	eventBus eventbus.EventBus
	executor *workflow.Executor
	shutdown otelhelper.ShutdownFunc
}

func newApp(ctx context.Context, config cmd.Config, out io.Writer) (*app, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log.Setup(config.LogLevel)
	logger := log.WithModule("stepflow")

	a := &app{logger: logger}

	reg, err := cmd.NewRegistry(logger, config.Weather, fetch.NewHTTPFetcher(), weather.DefaultAgents(), out)
	if err != nil {
		return nil, fmt.Errorf("failed to build workflows: %w", err)
	}

	a.registry = reg

	a.history, err = cmd.NewHistory(ctx, logger, config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open run history: %w", err)
	}

	a.eventBus, err = cmd.NewEventBus(config.EventBus, config.KafkaBrokers, logger)
	if err != nil {
		a.Close(ctx)

		return nil, err
	}

	opts := []workflow.ExecutorOption{
		workflow.WithStepTimeout(config.StepTimeout),
		workflow.WithMaxConcurrency(config.MaxConcurrency),
		workflow.WithEventPublisher(a.eventBus),
		workflow.WithHistory(a.history),
	}

	if config.OTel {
		tracer, shutdown, err := otelhelper.NewTracer(ctx, "stepflow")
		if err != nil {
			a.Close(ctx)

			return nil, fmt.Errorf("failed to set up tracing: %w", err)
		}

		a.shutdown = shutdown
		opts = append(opts, workflow.WithTracer(tracer))
	}

	a.executor = workflow.NewExecutor(opts...)

	return a, nil
}

// logEvents logs every run event published on the bus at debug level.
func (a *app) logEvents(ctx context.Context) error {
	eventLogger := a.logger.With("component", "events")

	for _, eventType := range []events.EventType{
		events.RunStartedEvent,
		events.RunSucceededEvent,
		events.RunFailedEvent,
		events.StepStartedEvent,
		events.StepSucceededEvent,
		events.StepFailedEvent,
		events.NodeSkippedEvent,
	} {
		err := a.eventBus.Handle(eventType, func(ctx context.Context, event any) error {
			eventLogger.DebugContext(ctx, "Run event", "event_type", eventType, "event", event)

			return nil
		})
		if err != nil {
			return err
		}
	}

	return a.eventBus.Subscribe(ctx)
}

// runWorkflow runs the named workflow. It is the callback every trigger uses.
func (a *app) runWorkflow(ctx context.Context, name string, trigger map[string]any) (*workflow.Result, error) {
	wf, err := a.registry.Workflow(name)
	if err != nil {
		return nil, err
	}

	return a.executor.Run(ctx, wf, trigger)
}

func (a *app) Close(ctx context.Context) {
	if a.eventBus != nil {
		if err := a.eventBus.Close(); err != nil {
			a.logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}

	if a.history != nil {
		if err := a.history.Close(ctx); err != nil {
			a.logger.ErrorContext(ctx, "Failed to close run history", "error", err)
		}
	}

	if a.shutdown != nil {
		if err := a.shutdown(ctx); err != nil {
			a.logger.ErrorContext(ctx, "Failed to shut down tracer", "error", err)
		}
	}
}
