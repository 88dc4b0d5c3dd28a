package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dukex/stepflow/pkg/triggers/queue"
	"github.com/dukex/stepflow/pkg/triggers/schedule"
	"github.com/dukex/stepflow/pkg/weather"
	"github.com/dukex/stepflow/pkg/workflow"
	cli "github.com/urfave/cli/v3"
)

var ErrCityRequired = errors.New("a city is required")

var workflowFlag = &cli.StringFlag{
	Name:  "workflow",
	Usage: "Name of the workflow to run",
	Value: weather.WorkflowName,
}

func withApp(out io.Writer, action func(ctx context.Context, command *cli.Command, a *app) error) cli.ActionFunc {
	return func(ctx context.Context, command *cli.Command) error {
		a, err := newApp(ctx, configFrom(command), out)
		if err != nil {
			return err
		}
		defer a.Close(context.WithoutCancel(ctx))

		if err := a.logEvents(ctx); err != nil {
			return fmt.Errorf("failed to subscribe to run events: %w", err)
		}

		return action(ctx, command, a)
	}
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run a workflow once and print its result",
		Flags: []cli.Flag{
			workflowFlag,
			&cli.StringFlag{
				Name:  "city",
				Usage: "City to plan activities for",
			},
			&cli.StringFlag{
				Name:  "input",
				Usage: "Trigger data as a JSON object, merged under --city",
			},
		},
		Action: withApp(os.Stderr, func(ctx context.Context, command *cli.Command, a *app) error {
			trigger, err := triggerFrom(command.String("input"), command.String("city"))
			if err != nil {
				return err
			}

			result, err := a.runWorkflow(ctx, command.String("workflow"), trigger)
			if result != nil {
				if encodeErr := printJSON(os.Stdout, result); encodeErr != nil {
					return encodeErr
				}
			}

			return err
		}),
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the HTTP API",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
		},
		Action: withApp(os.Stderr, func(ctx context.Context, command *cli.Command, a *app) error {
			api := NewAPI(a.logger, a.registry, a.executor, a.history)

			return api.Start(ctx, command.Int("port"))
		}),
	}
}

func scheduleCommand() *cli.Command {
	return &cli.Command{
		Name:  "schedule",
		Usage: "Run a workflow on a cron schedule until interrupted",
		Flags: []cli.Flag{
			workflowFlag,
			&cli.StringFlag{
				Name:     "cron",
				Usage:    "Standard five field cron expression",
				Required: true,
				Sources:  cli.EnvVars("SCHEDULE_CRON"),
			},
			&cli.StringFlag{
				Name:     "city",
				Usage:    "City to plan activities for",
				Required: true,
			},
		},
		Action: withApp(os.Stderr, func(ctx context.Context, command *cli.Command, a *app) error {
			trigger, err := schedule.NewTrigger(schedule.Config{
				ID:      "schedule-" + command.String("workflow"),
				Cron:    command.String("cron"),
				Payload: map[string]any{"city": command.String("city")},
			}, a.logger)
			if err != nil {
				return err
			}

			if err := trigger.Start(ctx, a.callback(command.String("workflow"))); err != nil {
				return err
			}

			<-ctx.Done()

			return trigger.Stop(context.WithoutCancel(ctx))
		}),
	}
}

func consumeCommand() *cli.Command {
	return &cli.Command{
		Name:  "consume",
		Usage: "Run a workflow for every message pushed onto a redis list",
		Flags: []cli.Flag{
			workflowFlag,
			&cli.StringFlag{
				Name:    "redis-addr",
				Usage:   "Redis address",
				Value:   "localhost:6379",
				Sources: cli.EnvVars("REDIS_ADDR"),
			},
			&cli.StringFlag{
				Name:    "redis-password",
				Usage:   "Redis password",
				Sources: cli.EnvVars("REDIS_PASSWORD"),
			},
			&cli.IntFlag{
				Name:    "redis-db",
				Usage:   "Redis database",
				Sources: cli.EnvVars("REDIS_DB"),
			},
			&cli.StringFlag{
				Name:    "queue",
				Usage:   "Name of the redis list to consume",
				Value:   "stepflow:runs",
				Sources: cli.EnvVars("QUEUE_NAME"),
			},
		},
		Action: withApp(os.Stderr, func(ctx context.Context, command *cli.Command, a *app) error {
			trigger, err := queue.NewTrigger(queue.Config{
				Addr:     command.String("redis-addr"),
				Password: command.String("redis-password"),
				DB:       command.Int("redis-db"),
				Queue:    command.String("queue"),
			}, a.logger)
			if err != nil {
				return err
			}

			if err := trigger.Start(ctx, a.callback(command.String("workflow"))); err != nil {
				return err
			}

			<-ctx.Done()

			return trigger.Stop(context.WithoutCancel(ctx))
		}),
	}
}

func describeCommand() *cli.Command {
	return &cli.Command{
		Name:  "describe",
		Usage: "Print the graph of every registered workflow",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "workflow",
				Usage: "Only describe this workflow",
			},
		},
		Action: withApp(io.Discard, func(_ context.Context, command *cli.Command, a *app) error {
			if name := command.String("workflow"); name != "" {
				wf, err := a.registry.Workflow(name)
				if err != nil {
					return err
				}

				return printJSON(os.Stdout, wf.Describe())
			}

			descriptions := make([]workflow.Description, 0)
			for _, wf := range a.registry.Workflows() {
				descriptions = append(descriptions, wf.Describe())
			}

			return printJSON(os.Stdout, descriptions)
		}),
	}
}

// callback runs name for every trigger firing. A bare queue message is taken
// as the city.
func (a *app) callback(name string) func(ctx context.Context, data map[string]any) error {
	return func(ctx context.Context, data map[string]any) error {
		if _, ok := data["city"]; !ok {
			if message, ok := data["message"].(string); ok {
				data["city"] = message
			}
		}

		result, err := a.runWorkflow(ctx, name, data)
		if err != nil {
			return err
		}

		a.logger.InfoContext(ctx, "Workflow run finished",
			"workflow_id", result.WorkflowID,
			"execution_id", result.ExecutionID,
			"duration", result.Duration,
		)

		return nil
	}
}

func triggerFrom(input, city string) (map[string]any, error) {
	var trigger map[string]any

	if input != "" {
		if err := json.Unmarshal([]byte(input), &trigger); err != nil {
			return nil, fmt.Errorf("invalid --input: %w", err)
		}
	}

	if trigger == nil {
		trigger = map[string]any{}
	}

	if city != "" {
		trigger["city"] = city
	}

	if len(trigger) == 0 {
		return nil, ErrCityRequired
	}

	return trigger, nil
}

func printJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	return encoder.Encode(v)
}
