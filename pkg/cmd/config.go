// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"time"

	"github.com/dukex/stepflow/pkg/weather"
	"github.com/go-playground/validator/v10"
)

// Config is the process-wide configuration shared by every stepflow command.
type Config struct {
	LogLevel       string `validate:"oneof=debug info warn warning error"`
	EventBus       string `validate:"omitempty,oneof=gochannel kafka"`
	KafkaBrokers   string `validate:"required_if=EventBus kafka"`
	DatabaseURL    string
	StepTimeout    time.Duration `validate:"gte=0"`
	MaxConcurrency int64         `validate:"gte=0"`
	OTel           bool
	Weather        weather.Config
}

func DefaultConfig() Config {
	return Config{
		LogLevel:    "info",
		EventBus:    EventBusGoChannel,
		DatabaseURL: "memory://",
		Weather:     weather.DefaultConfig(),
	}
}

// Validate checks the config and its nested weather settings.
func (c Config) Validate() error {
	return validator.New(validator.WithRequiredStructEnabled()).Struct(c)
}
