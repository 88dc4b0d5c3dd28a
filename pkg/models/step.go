// Package models defines the domain types shared by workflow graphs, steps and runs.
package models

import (
	"context"
	"time"
)

// StepFunc is the body of a step. It receives the resolved input and a
// read-only view of the run it belongs to.
type StepFunc func(ctx context.Context, input any, view ExecutionView) (any, error)

// StepDefinition is a named unit of work with optional input and output contracts.
type StepDefinition struct {
	ID           string        `json:"id"                      validate:"required,min=1,excludesall=."`
	Description  string        `json:"description,omitempty"`
	InputSchema  *JSONSchema   `json:"input_schema,omitempty"`
	OutputSchema *JSONSchema   `json:"output_schema,omitempty"`
	Timeout      time.Duration `json:"timeout,omitempty"       validate:"gte=0"`
	Run          StepFunc      `json:"-"                       validate:"required"`
}
