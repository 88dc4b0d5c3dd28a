package workflow

import (
	"context"
	"testing"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func alwaysTrue(context.Context, models.ExecutionView) (bool, error) {
	return true, nil
}

func committedSub(t *testing.T, name string) *Workflow {
	t.Helper()

	wf, err := New(name).Step(testutil.CreateTestStep(name+"-step", "sub")).Commit()
	require.NoError(t, err)

	return wf
}

func TestBuilder_Commit(t *testing.T) {
	wf, err := New("sequence", WithDescription("three steps")).
		Step(testutil.CreateTestStep("a", 1)).
		Then(testutil.CreateTestStep("b", 2)).
		Then(testutil.CreateTestStep("c", 3)).
		Commit()

	require.NoError(t, err)
	assert.True(t, wf.Committed())
	assert.Equal(t, "sequence", wf.Name())
	assert.Equal(t, "three steps", wf.Description())
	assert.Equal(t, []string{"a", "b", "c"}, wf.StepIDs())
}

func TestBuilder_CommitIsIdempotent(t *testing.T) {
	builder := New("sequence").Step(testutil.CreateTestStep("a", 1))

	first, err := builder.Commit()
	require.NoError(t, err)

	second, err := builder.Commit()
	require.NoError(t, err)

	assert.Same(t, first, second)
}

func TestBuilder_MutationAfterCommit(t *testing.T) {
	builder := New("sequence").Step(testutil.CreateTestStep("a", 1))

	wf, err := builder.Commit()
	require.NoError(t, err)

	builder.Step(testutil.CreateTestStep("b", 2))

	_, err = builder.Commit()
	require.ErrorIs(t, err, ErrGraphCommitted)
	assert.True(t, IsGraphValidationError(err))

	// the committed graph is untouched
	assert.Equal(t, []string{"a"}, wf.StepIDs())
}

func TestBuilder_BranchMutationAfterCommit(t *testing.T) {
	builder := New("branching").Step(testutil.CreateTestStep("a", 1))
	cond := builder.If(alwaysTrue).Then(testutil.CreateTestStep("b", 2))

	wf, err := cond.EndIf().Commit()
	require.NoError(t, err)

	cond.Else().Then(testutil.CreateTestStep("c", 3))

	_, err = builder.Commit()
	require.ErrorIs(t, err, ErrGraphCommitted)
	assert.Equal(t, []string{"a", "b"}, wf.StepIDs())
}

func TestBuilder_GeneratedIDs(t *testing.T) {
	wf, err := New("ids").
		Step(testutil.CreateTestStep("a", 1)).
		Parallel(testutil.CreateTestStep("b", 2), testutil.CreateTestStep("c", 3)).
		If(alwaysTrue).Then(testutil.CreateTestStep("d", 4)).EndIf().
		If(alwaysTrue).Then(testutil.CreateTestStep("e", 5)).EndIf().
		Commit()
	require.NoError(t, err)

	for _, id := range []string{"parallel-1", "if-1", "if-2"} {
		_, ok := wf.Node(id)
		assert.True(t, ok, id)
	}

	node, ok := wf.Node("d")
	require.True(t, ok)
	assert.Equal(t, KindSequential, node.Kind)
}

func TestBuilder_ValidationErrors(t *testing.T) {
	noRun := &models.StepDefinition{ID: "no-run"}

	tests := []struct {
		name    string
		build   func() *Builder
		wantErr error
	}{
		{
			name:    "empty name",
			build:   func() *Builder { return New(" ").Step(testutil.CreateTestStep("a", 1)) },
			wantErr: ErrWorkflowNameRequired,
		},
		{
			name:    "no nodes",
			build:   func() *Builder { return New("empty") },
			wantErr: ErrNodesRequired,
		},
		{
			name:    "nil step",
			build:   func() *Builder { return New("wf").Step(nil) },
			wantErr: ErrInvalidStep,
		},
		{
			name:    "step without body",
			build:   func() *Builder { return New("wf").Step(noRun) },
			wantErr: ErrInvalidStep,
		},
		{
			name:    "step id with dot",
			build:   func() *Builder { return New("wf").Step(testutil.CreateTestStep("a.b", 1)) },
			wantErr: ErrInvalidStep,
		},
		{
			name: "negative timeout",
			build: func() *Builder {
				return New("wf").Step(testutil.CreateTestStep("a", 1, testutil.WithTimeout(-1)))
			},
			wantErr: ErrInvalidStep,
		},
		{
			name: "duplicate step id",
			build: func() *Builder {
				return New("wf").Step(testutil.CreateTestStep("a", 1)).Then(testutil.CreateTestStep("a", 2))
			},
			wantErr: ErrDuplicateNodeID,
		},
		{
			name: "duplicate id inside a branch",
			build: func() *Builder {
				return New("wf").Step(testutil.CreateTestStep("a", 1)).
					If(alwaysTrue).Then(testutil.CreateTestStep("a", 2)).EndIf()
			},
			wantErr: ErrDuplicateNodeID,
		},
		{
			name: "duplicate id across branches",
			build: func() *Builder {
				return New("wf").
					If(alwaysTrue).Then(testutil.CreateTestStep("x", 1)).
					Else().Then(testutil.CreateTestStep("x", 2)).EndIf()
			},
			wantErr: ErrDuplicateNodeID,
		},
		{
			name: "join on unknown step",
			build: func() *Builder {
				return New("wf").Step(testutil.CreateTestStep("a", 1)).
					After("missing").Step(testutil.CreateTestStep("b", 2))
			},
			wantErr: ErrUnknownPredecessor,
		},
		{
			name: "join on later step",
			build: func() *Builder {
				return New("wf").
					After("b").Step(testutil.CreateTestStep("a", 1)).
					Then(testutil.CreateTestStep("b", 2))
			},
			wantErr: ErrUnknownPredecessor,
		},
		{
			name: "join on container",
			build: func() *Builder {
				return New("wf").
					Parallel(testutil.CreateTestStep("a", 1)).
					After("parallel-1").Step(testutil.CreateTestStep("b", 2))
			},
			wantErr: ErrUnknownPredecessor,
		},
		{
			name: "join without predecessors",
			build: func() *Builder {
				return New("wf").Step(testutil.CreateTestStep("a", 1)).
					After().Step(testutil.CreateTestStep("b", 2))
			},
			wantErr: ErrJoinWithoutPredecessor,
		},
		{
			name:    "empty fork",
			build:   func() *Builder { return New("wf").Parallel() },
			wantErr: ErrForkWithoutMembers,
		},
		{
			name: "conditional without predicate",
			build: func() *Builder {
				return New("wf").If(nil).Then(testutil.CreateTestStep("a", 1)).EndIf()
			},
			wantErr: ErrMissingPredicate,
		},
		{
			name: "uncommitted sub-workflow",
			build: func() *Builder {
				return New("wf").SubWorkflow(&Workflow{name: "raw"}, nil)
			},
			wantErr: ErrSubWorkflowNotReady,
		},
		{
			name:    "nil sub-workflow",
			build:   func() *Builder { return New("wf").SubWorkflow(nil, nil) },
			wantErr: ErrSubWorkflowNotReady,
		},
		{
			name: "binding from unknown node",
			build: func() *Builder {
				return New("wf").Step(testutil.CreateTestStep("a", 1)).
					SubWorkflow(committedSub(t, "child"), Bindings{"forecast": "missing.field"})
			},
			wantErr: ErrInvalidBinding,
		},
		{
			name: "mapping from unknown node",
			build: func() *Builder {
				return New("wf", WithResultMapping(Mapping(MapField("out", "missing")))).
					Step(testutil.CreateTestStep("a", 1))
			},
			wantErr: ErrUnknownMappingSource,
		},
		{
			name: "mapping field without sources",
			build: func() *Builder {
				return New("wf", WithResultMapping(Mapping(MapField("out")))).
					Step(testutil.CreateTestStep("a", 1))
			},
			wantErr: ErrUnknownMappingSource,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wf, err := tt.build().Commit()

			require.Error(t, err)
			assert.Nil(t, wf)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, IsGraphValidationError(err))
		})
	}
}

func TestBuilder_JoinOnForkMembers(t *testing.T) {
	wf, err := New("fan-in").
		Parallel(testutil.CreateTestStep("a", 1), testutil.CreateTestStep("b", 2)).
		After("a", "b").Step(testutil.CreateTestStep("c", 3)).
		Commit()

	require.NoError(t, err)

	node, ok := wf.Node("c")
	require.True(t, ok)
	assert.Equal(t, KindJoin, node.Kind)
	assert.Equal(t, []string{"a", "b"}, node.After)
}

func TestBuilder_SubWorkflowIDIsWorkflowName(t *testing.T) {
	sub := committedSub(t, "child")

	wf, err := New("parent").Step(testutil.CreateTestStep("a", 1)).SubWorkflow(sub, nil).Commit()
	require.NoError(t, err)

	node, ok := wf.Node("child")
	require.True(t, ok)
	assert.Equal(t, KindSubWorkflow, node.Kind)
	assert.Same(t, sub, node.Workflow)

	// the child's own steps are not part of the parent graph
	_, ok = wf.Node("child-step")
	assert.False(t, ok)
}

func TestBuilder_MustCommitPanics(t *testing.T) {
	assert.Panics(t, func() { New("empty").MustCommit() })
	assert.NotPanics(t, func() { New("ok").Step(testutil.CreateTestStep("a", 1)).MustCommit() })
}

func TestWorkflow_Describe(t *testing.T) {
	sub := committedSub(t, "child")

	wf, err := New("described", WithDescription("demo")).
		Step(testutil.CreateTestStep("a", 1)).
		If(alwaysTrue).ThenWorkflow(sub, Bindings{"value": "a"}).
		Else().Then(testutil.CreateTestStep("b", 2)).EndIf().
		Commit()
	require.NoError(t, err)

	desc := wf.Describe()

	assert.Equal(t, "described", desc.Name)
	assert.Equal(t, "demo", desc.Description)
	require.Len(t, desc.Nodes, 2)
	assert.Equal(t, KindConditional, desc.Nodes[1].Kind)
	require.Len(t, desc.Nodes[1].Then, 1)
	assert.Equal(t, "child", desc.Nodes[1].Then[0].ID)
	require.NotNil(t, desc.Nodes[1].Then[0].Workflow)
	assert.Equal(t, "child-step", desc.Nodes[1].Then[0].Workflow.Nodes[0].ID)
	assert.Equal(t, "b", desc.Nodes[1].Else[0].ID)
}
