// Package schedule starts workflow runs on a cron schedule.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dukex/stepflow/pkg/triggers"
	"github.com/robfig/cron/v3"
)

var (
	ErrIDRequired       = errors.New("schedule trigger ID is required")
	ErrCronRequired     = errors.New("schedule trigger cron expression is required")
	ErrAlreadyStarted   = errors.New("schedule trigger already started")
	ErrCallbackRequired = errors.New("schedule trigger callback is required")
)

type Config struct {
	ID   string
	Cron string
	// Payload is passed, with a timestamp, as the trigger of every run.
	Payload map[string]any
}

type Trigger struct {
	config   Config
	cron     *cron.Cron
	callback triggers.Callback
	logger   *slog.Logger
	ctx      context.Context

	mu sync.Mutex
}

func NewTrigger(config Config, logger *slog.Logger) (*Trigger, error) {
	trigger := &Trigger{
		config: config,
		logger: logger.With(
			"module", "schedule_trigger",
			"id", config.ID,
			"cron", config.Cron,
		),
	}

	if err := trigger.Validate(); err != nil {
		return nil, err
	}

	return trigger, nil
}

func (t *Trigger) Validate() error {
	if t.config.ID == "" {
		return ErrIDRequired
	}

	if t.config.Cron == "" {
		return ErrCronRequired
	}

	if _, err := cron.ParseStandard(t.config.Cron); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	return nil
}

// Start schedules callback. A tick that comes while the previous run is
// still in progress is skipped.
func (t *Trigger) Start(ctx context.Context, callback triggers.Callback) error {
	if callback == nil {
		return ErrCallbackRequired
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cron != nil {
		return ErrAlreadyStarted
	}

	t.logger.InfoContext(ctx, "Starting schedule trigger")

	logger := cronLogger{logger: t.logger}
	t.ctx = ctx
	t.callback = callback
	t.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(logger),
		cron.Recover(logger),
	))

	id, err := t.cron.AddFunc(t.config.Cron, t.run)
	if err != nil {
		t.cron = nil

		return fmt.Errorf("failed to add cron job for trigger %s: %w", t.config.ID, err)
	}

	t.logger.InfoContext(ctx, "Added cron job for trigger", "entry_id", id)
	t.cron.Start()

	return nil
}

func (t *Trigger) run() {
	t.logger.InfoContext(t.ctx, "Cron job triggered")

	if err := t.callback(t.ctx, triggers.WithTimestamp(t.config.Payload)); err != nil {
		t.logger.ErrorContext(t.ctx, "Error executing workflow for trigger", "error", err)
	}
}

// Stop removes the schedule and waits for a run in progress to finish.
func (t *Trigger) Stop(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.logger.InfoContext(ctx, "Stopping schedule trigger")

	if t.cron != nil {
		<-t.cron.Stop().Done()
		t.cron = nil
	}

	return nil
}

// cronLogger routes cron's own logging to slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append([]any{"error", err}, keysAndValues...)...)
}
