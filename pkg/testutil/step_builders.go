// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dukex/stepflow/pkg/models"
)

// CreateTestStep creates a step returning output, with overrides applied on top.
func CreateTestStep(id string, output any, overrides ...func(*models.StepDefinition)) *models.StepDefinition {
	step := &models.StepDefinition{
		ID:          id,
		Description: "Test step " + id,
		Run: func(context.Context, any, models.ExecutionView) (any, error) {
			return output, nil
		},
	}

	for _, override := range overrides {
		override(step)
	}

	return step
}

// WithRun replaces the step body.
func WithRun(run models.StepFunc) func(*models.StepDefinition) {
	return func(s *models.StepDefinition) {
		s.Run = run
	}
}

// WithEcho makes the step return its input unchanged.
func WithEcho() func(*models.StepDefinition) {
	return WithRun(func(_ context.Context, input any, _ models.ExecutionView) (any, error) {
		return input, nil
	})
}

// WithError makes the step fail with err.
func WithError(err error) func(*models.StepDefinition) {
	return WithRun(func(context.Context, any, models.ExecutionView) (any, error) {
		return nil, err
	})
}

// WithDelay makes the step wait d, or until its context ends, before returning output.
func WithDelay(d time.Duration, output any) func(*models.StepDefinition) {
	return WithRun(func(ctx context.Context, _ any, _ models.ExecutionView) (any, error) {
		select {
		case <-time.After(d):
			return output, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
}

func WithTimeout(timeout time.Duration) func(*models.StepDefinition) {
	return func(s *models.StepDefinition) {
		s.Timeout = timeout
	}
}

func WithSchemas(input, output *models.JSONSchema) func(*models.StepDefinition) {
	return func(s *models.StepDefinition) {
		s.InputSchema = input
		s.OutputSchema = output
	}
}

// ErrBarrierTimeout is returned by Barrier.Wait when the other parties never arrived.
var ErrBarrierTimeout = errors.New("barrier timed out")

// Barrier blocks its callers until n of them arrived. Steps that wait on a
// shared barrier only finish if they run concurrently.
type Barrier struct {
	wg      sync.WaitGroup
	release chan struct{}
}

func NewBarrier(n int) *Barrier {
	b := &Barrier{release: make(chan struct{})}
	b.wg.Add(n)

	go func() {
		b.wg.Wait()
		close(b.release)
	}()

	return b
}

func (b *Barrier) Wait(timeout time.Duration) error {
	b.wg.Done()

	select {
	case <-b.release:
		return nil
	case <-time.After(timeout):
		return ErrBarrierTimeout
	}
}

// Recorder collects the ids of steps as they run.
type Recorder struct {
	mu  sync.Mutex
	ids []string
}

func (r *Recorder) Record(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ids = append(r.ids, id)
}

func (r *Recorder) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.ids...)
}

// WithRecorder wraps the current step body so each call is recorded first.
func WithRecorder(recorder *Recorder) func(*models.StepDefinition) {
	return func(s *models.StepDefinition) {
		run := s.Run
		s.Run = func(ctx context.Context, input any, view models.ExecutionView) (any, error) {
			recorder.Record(s.ID)

			return run(ctx, input, view)
		}
	}
}
