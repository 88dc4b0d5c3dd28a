package workflow

import (
	"github.com/dukex/stepflow/pkg/models"
)

// Workflow is a committed, immutable graph. The zero value is not runnable.
type Workflow struct {
	name         string
	description  string
	inputSchema  *models.JSONSchema
	outputSchema *models.JSONSchema
	mapping      ResultMapping
	nodes        []*Node
	index        map[string]*Node
	committed    bool
}

func (w *Workflow) Name() string {
	return w.name
}

func (w *Workflow) Description() string {
	return w.description
}

func (w *Workflow) InputSchema() *models.JSONSchema {
	return w.inputSchema
}

func (w *Workflow) OutputSchema() *models.JSONSchema {
	return w.outputSchema
}

func (w *Workflow) Committed() bool {
	return w != nil && w.committed
}

// Node returns the node with the given id, searching branches and fork members too.
func (w *Workflow) Node(id string) (*Node, bool) {
	node, ok := w.index[id]

	return node, ok
}

// StepIDs lists the ids of every result-producing node in declaration order.
func (w *Workflow) StepIDs() []string {
	var ids []string

	var walk func(nodes []*Node)
	walk = func(nodes []*Node) {
		for _, node := range nodes {
			if node.recordsResult() {
				ids = append(ids, node.ID)
			}

			walk(node.Then)
			walk(node.Else)
			walk(node.Members)
		}
	}

	walk(w.nodes)

	return ids
}

// Description is a serializable outline of a workflow, used by the API and the CLI.
type Description struct {
	Name         string             `json:"name"`
	Description  string             `json:"description,omitempty"`
	InputSchema  *models.JSONSchema `json:"input_schema,omitempty"`
	OutputSchema *models.JSONSchema `json:"output_schema,omitempty"`
	Mapping      ResultMapping      `json:"result_mapping,omitzero"`
	Nodes        []NodeDescription  `json:"nodes"`
}

type NodeDescription struct {
	ID           string             `json:"id"`
	Kind         NodeKind           `json:"kind"`
	Description  string             `json:"description,omitempty"`
	InputSchema  *models.JSONSchema `json:"input_schema,omitempty"`
	OutputSchema *models.JSONSchema `json:"output_schema,omitempty"`
	After        []string           `json:"after,omitempty"`
	Then         []NodeDescription  `json:"then,omitempty"`
	Else         []NodeDescription  `json:"else,omitempty"`
	Members      []NodeDescription  `json:"members,omitempty"`
	Bindings     Bindings           `json:"bindings,omitempty"`
	Workflow     *Description       `json:"workflow,omitempty"`
}

func (w *Workflow) Describe() Description {
	return Description{
		Name:         w.name,
		Description:  w.description,
		InputSchema:  w.inputSchema,
		OutputSchema: w.outputSchema,
		Mapping:      w.mapping,
		Nodes:        describeNodes(w.nodes),
	}
}

func describeNodes(nodes []*Node) []NodeDescription {
	if len(nodes) == 0 {
		return nil
	}

	out := make([]NodeDescription, 0, len(nodes))

	for _, node := range nodes {
		desc := NodeDescription{
			ID:       node.ID,
			Kind:     node.Kind,
			After:    node.After,
			Then:     describeNodes(node.Then),
			Else:     describeNodes(node.Else),
			Members:  describeNodes(node.Members),
			Bindings: node.Bindings,
		}

		if node.Step != nil {
			desc.Description = node.Step.Description
			desc.InputSchema = node.Step.InputSchema
			desc.OutputSchema = node.Step.OutputSchema
		}

		if node.Workflow != nil {
			sub := node.Workflow.Describe()
			desc.Workflow = &sub
		}

		out = append(out, desc)
	}

	return out
}
