package cmd_test

import (
	"context"
	"io"
	"testing"

	"github.com/dukex/stepflow/pkg/cmd"
	"github.com/dukex/stepflow/pkg/fetch"
	"github.com/dukex/stepflow/pkg/history/file"
	"github.com/dukex/stepflow/pkg/history/memory"
	"github.com/dukex/stepflow/pkg/log"
	"github.com/dukex/stepflow/pkg/weather"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		modify  func(*cmd.Config)
		wantErr bool
	}{
		{name: "defaults", modify: func(*cmd.Config) {}},
		{name: "kafka with brokers", modify: func(c *cmd.Config) {
			c.EventBus = cmd.EventBusKafka
			c.KafkaBrokers = "localhost:9092"
		}},
		{name: "kafka without brokers", modify: func(c *cmd.Config) { c.EventBus = cmd.EventBusKafka }, wantErr: true},
		{name: "unknown event bus", modify: func(c *cmd.Config) { c.EventBus = "nats" }, wantErr: true},
		{name: "unknown log level", modify: func(c *cmd.Config) { c.LogLevel = "verbose" }, wantErr: true},
		{name: "negative timeout", modify: func(c *cmd.Config) { c.StepTimeout = -1 }, wantErr: true},
		{name: "invalid forecast url", modify: func(c *cmd.Config) { c.Weather.ForecastURL = "not a url" }, wantErr: true},
		{name: "threshold above 100", modify: func(c *cmd.Config) { c.Weather.RainThreshold = 101 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := cmd.DefaultConfig()
			tt.modify(&cfg)

			if tt.wantErr {
				assert.Error(t, cfg.Validate())
			} else {
				assert.NoError(t, cfg.Validate())
			}
		})
	}
}

func TestNewEventBus(t *testing.T) {
	t.Parallel()

	bus, err := cmd.NewEventBus(cmd.EventBusGoChannel, "", log.Discard())
	require.NoError(t, err)
	require.NoError(t, bus.Close())

	_, err = cmd.NewEventBus("nats", "", log.Discard())
	require.ErrorIs(t, err, cmd.ErrUnsupportedEventBus)
}

func TestNewHistory(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	for _, url := range []string{"", "memory://"} {
		store, err := cmd.NewHistory(ctx, log.Discard(), url)
		require.NoError(t, err)
		assert.IsType(t, &memory.Store{}, store)
	}

	store, err := cmd.NewHistory(ctx, log.Discard(), "file://"+t.TempDir())
	require.NoError(t, err)
	assert.IsType(t, &file.Store{}, store)

	_, err = cmd.NewHistory(ctx, log.Discard(), "mongodb://localhost")
	require.ErrorIs(t, err, cmd.ErrUnsupportedHistory)
}

func TestNewRegistry(t *testing.T) {
	t.Parallel()

	reg, err := cmd.NewRegistry(log.Discard(), weather.DefaultConfig(), fetch.NewHTTPFetcher(), weather.DefaultAgents(), io.Discard)
	require.NoError(t, err)

	names := make([]string, 0)
	for _, wf := range reg.Workflows() {
		names = append(names, wf.Name())
	}

	assert.Equal(t, []string{weather.PlanningWorkflowName, weather.WorkflowName}, names)
}
