package agent_test

import (
	"context"
	"errors"
	"testing"

	"github.com/dukex/stepflow/pkg/agent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	t.Parallel()

	registry := agent.NewRegistry()
	require.NoError(t, registry.Register("planner", agent.Static{"a"}))
	require.NoError(t, registry.Register("indoor", agent.Echo{}))

	err := registry.Register("planner", agent.Echo{})
	require.ErrorIs(t, err, agent.ErrAgentAlreadyExists)

	found, err := registry.Lookup("planner")
	require.NoError(t, err)
	assert.Equal(t, agent.Static{"a"}, found)

	_, err = registry.Lookup("missing")
	require.ErrorIs(t, err, agent.ErrAgentNotRegistered)

	assert.Equal(t, []string{"indoor", "planner"}, registry.Names())
	assert.Panics(t, func() { registry.MustLookup("missing") })
	assert.NotPanics(t, func() { registry.MustLookup("indoor") })
}

func TestStatic_Collect(t *testing.T) {
	t.Parallel()

	stream, err := agent.Static{"Visit ", "the ", "Louvre"}.StreamText(context.Background(), nil)
	require.NoError(t, err)

	text, err := stream.Collect()
	require.NoError(t, err)
	assert.Equal(t, "Visit the Louvre", text)
}

func TestEcho_StreamsLastUserMessage(t *testing.T) {
	t.Parallel()

	stream, err := agent.Echo{}.StreamText(context.Background(), []agent.Message{
		agent.SystemMessage("You plan activities."),
		agent.UserMessage("first"),
		agent.UserMessage("rainy day in Paris"),
	})
	require.NoError(t, err)

	var chunks []string
	for stream.Next() {
		chunks = append(chunks, stream.Text())
	}

	require.NoError(t, stream.Err())
	assert.Equal(t, []string{"rainy", " day", " in", " Paris"}, chunks)
}

func TestFunc_ProducerError(t *testing.T) {
	t.Parallel()

	boom := errors.New("model overloaded")

	a := agent.Func(func(_ context.Context, _ []agent.Message, emit func(string) error) error {
		if err := emit("partial"); err != nil {
			return err
		}

		return boom
	})

	stream, err := a.StreamText(context.Background(), nil)
	require.NoError(t, err)

	text, err := stream.Collect()
	require.ErrorIs(t, err, boom)
	assert.Equal(t, "partial", text)
}

func TestStream_CloseStopsProducer(t *testing.T) {
	t.Parallel()

	stream := agent.NewStream(context.Background(), func(_ context.Context, emit func(string) error) error {
		for {
			if err := emit("chunk"); err != nil {
				return err
			}
		}
	})

	require.True(t, stream.Next())
	assert.Equal(t, "chunk", stream.Text())

	stream.Close()
	stream.Close()

	assert.False(t, stream.Next())
	require.ErrorIs(t, stream.Err(), context.Canceled)
}

func TestStream_ParentContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())

	stream := agent.NewStream(ctx, func(ctx context.Context, emit func(string) error) error {
		<-ctx.Done()

		return ctx.Err()
	})

	cancel()

	assert.False(t, stream.Next())
	require.ErrorIs(t, stream.Err(), context.Canceled)
}
