// Package workflow builds immutable step graphs and runs them.
package workflow

import (
	"context"

	"github.com/dukex/stepflow/pkg/models"
)

type NodeKind string

const (
	KindSequential  NodeKind = "sequential"
	KindConditional NodeKind = "conditional"
	KindFork        NodeKind = "fork"
	KindJoin        NodeKind = "join"
	KindSubWorkflow NodeKind = "subworkflow"
)

// Predicate decides which branch of a conditional runs.
type Predicate func(ctx context.Context, view models.ExecutionView) (bool, error)

// Bindings builds the trigger of a sub-workflow. Each key is a trigger field and
// each value a source of the form "<node-id>" or "<node-id>.<dotted.path>".
type Bindings map[string]string

// Node is one element of a workflow graph.
//
// Sequential and Join nodes wrap a step. A Join only starts after every node
// listed in After has produced a result. Conditional and Fork nodes are
// containers: they hold branches or members and never record a result of
// their own. A SubWorkflow node runs a committed workflow with its own
// execution context and records that workflow's output under its id.
type Node struct {
	Kind      NodeKind
	ID        string
	Step      *models.StepDefinition
	Predicate Predicate
	Then      []*Node
	Else      []*Node
	Members   []*Node
	After     []string
	Workflow  *Workflow
	Bindings  Bindings
}

// recordsResult reports whether the node writes its output to the execution context.
func (n *Node) recordsResult() bool {
	switch n.Kind {
	case KindSequential, KindJoin, KindSubWorkflow:
		return true
	default:
		return false
	}
}

func stepNode(kind NodeKind, def *models.StepDefinition) *Node {
	node := &Node{Kind: kind, Step: def}
	if def != nil {
		node.ID = def.ID
	}

	return node
}
