package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukex/stepflow/pkg/cmd"
	"github.com/dukex/stepflow/pkg/weather"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func main() {
	defaults := cmd.DefaultConfig()

	command := &cli.Command{
		Name:                  "stepflow",
		Usage:                 "Run contract-checked workflows",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   defaults.LogLevel,
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Run event bus provider (gochannel, kafka)",
				Value:   defaults.EventBus,
				Sources: cli.EnvVars("EVENT_BUS"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma separated Kafka brokers for the kafka event bus",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Run history store (memory://, file://<dir> or postgres://...)",
				Value:   defaults.DatabaseURL,
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.DurationFlag{
				Name:    "step-timeout",
				Usage:   "Default timeout of steps that declare none (0 disables it)",
				Sources: cli.EnvVars("STEP_TIMEOUT"),
			},
			&cli.IntFlag{
				Name:    "max-concurrency",
				Usage:   "Maximum steps running at once in a run (0 is unlimited)",
				Sources: cli.EnvVars("MAX_CONCURRENCY"),
			},
			&cli.BoolFlag{
				Name:    "otel",
				Usage:   "Export traces over OTLP/HTTP",
				Sources: cli.EnvVars("OTEL_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "geocoding-url",
				Usage:   "Geocoding API endpoint",
				Value:   weather.DefaultGeocodingURL,
				Sources: cli.EnvVars("GEOCODING_URL"),
			},
			&cli.StringFlag{
				Name:    "forecast-url",
				Usage:   "Forecast API endpoint",
				Value:   weather.DefaultForecastURL,
				Sources: cli.EnvVars("FORECAST_URL"),
			},
			&cli.FloatFlag{
				Name:    "rain-threshold",
				Usage:   "Precipitation chance, in percent, above which indoor plans are added",
				Value:   weather.DefaultRainThreshold,
				Sources: cli.EnvVars("RAIN_THRESHOLD"),
			},
		},
		Commands: []*cli.Command{
			runCommand(),
			serveCommand(),
			scheduleCommand(),
			consumeCommand(),
			describeCommand(),
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := command.Run(ctx, os.Args)
	if err != nil {
		panic(err)
	}
}

func configFrom(command *cli.Command) cmd.Config {
	return cmd.Config{
		LogLevel:       command.String("log-level"),
		EventBus:       command.String("event-bus"),
		KafkaBrokers:   command.String("kafka-brokers"),
		DatabaseURL:    command.String("database-url"),
		StepTimeout:    command.Duration("step-timeout"),
		MaxConcurrency: int64(command.Int("max-concurrency")),
		OTel:           command.Bool("otel"),
		Weather: weather.Config{
			GeocodingURL:  command.String("geocoding-url"),
			ForecastURL:   command.String("forecast-url"),
			RainThreshold: command.Float("rain-threshold"),
		},
	}
}

const shutdownTimeout = 10 * time.Second
