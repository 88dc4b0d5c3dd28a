package workflow

import (
	"fmt"

	"github.com/dukex/stepflow/pkg/models"
)

type Option func(*Builder)

func WithDescription(description string) Option {
	return func(b *Builder) {
		b.description = description
	}
}

// WithInputSchema declares the contract the trigger of every run must satisfy.
func WithInputSchema(schema *models.JSONSchema) Option {
	return func(b *Builder) {
		b.inputSchema = schema
	}
}

// WithOutputSchema declares the contract of the mapped workflow output.
func WithOutputSchema(schema *models.JSONSchema) Option {
	return func(b *Builder) {
		b.outputSchema = schema
	}
}

// WithResultMapping sets how the workflow output is projected from step results.
// Without a mapping the output is the output of the last top-level node.
func WithResultMapping(mapping ResultMapping) Option {
	return func(b *Builder) {
		b.mapping = mapping
	}
}

// Builder assembles a workflow graph. Nothing is validated until Commit,
// after which the builder refuses further changes.
type Builder struct {
	name         string
	description  string
	inputSchema  *models.JSONSchema
	outputSchema *models.JSONSchema
	mapping      ResultMapping

	nodes     []*Node
	counters  map[NodeKind]int
	committed *Workflow
	sealedErr error
}

func New(name string, opts ...Option) *Builder {
	b := &Builder{
		name:     name,
		counters: make(map[NodeKind]int),
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Step appends a sequential node running def.
func (b *Builder) Step(def *models.StepDefinition) *Builder {
	return b.append(stepNode(KindSequential, def))
}

// Then is an alias of Step that reads better in the middle of a chain.
func (b *Builder) Then(def *models.StepDefinition) *Builder {
	return b.Step(def)
}

// Parallel appends a fork whose members run concurrently on the same input.
// The fork gets a generated id of the form parallel-<n>.
func (b *Builder) Parallel(defs ...*models.StepDefinition) *Builder {
	return b.ParallelWithID(b.nextID(KindFork, "parallel"), defs...)
}

// ParallelWithID is Parallel with an explicit fork id.
func (b *Builder) ParallelWithID(id string, defs ...*models.StepDefinition) *Builder {
	members := make([]*Node, 0, len(defs))
	for _, def := range defs {
		members = append(members, stepNode(KindSequential, def))
	}

	return b.append(&Node{Kind: KindFork, ID: id, Members: members})
}

// After starts a join on the given predecessors. The join node takes the id
// of the step passed to the returned builder.
func (b *Builder) After(ids ...string) *JoinBuilder {
	return &JoinBuilder{builder: b, after: ids}
}

// SubWorkflow appends a node running sub, a committed workflow, with a
// trigger assembled from bindings. With no bindings the sub-workflow receives
// the output of the previous node.
func (b *Builder) SubWorkflow(sub *Workflow, bindings Bindings) *Builder {
	return b.append(subWorkflowNode(sub, bindings))
}

// If starts a conditional. Steps added through the returned builder go to the
// then branch until Else is called. EndIf returns to this builder.
func (b *Builder) If(predicate Predicate) *ConditionalBuilder {
	node := &Node{
		Kind:      KindConditional,
		ID:        b.nextID(KindConditional, "if"),
		Predicate: predicate,
	}
	b.append(node)

	return &ConditionalBuilder{builder: b, node: node}
}

// Commit validates the graph and seals it. Calling Commit again returns the
// same workflow. Any change attempted after the first successful Commit makes
// later calls fail with ErrGraphCommitted.
func (b *Builder) Commit() (*Workflow, error) {
	if b.sealedErr != nil {
		return nil, &GraphValidationError{Workflow: b.name, Err: b.sealedErr}
	}

	if b.committed != nil {
		return b.committed, nil
	}

	index, err := validateGraph(b.name, b.nodes, b.mapping)
	if err != nil {
		return nil, err
	}

	b.committed = &Workflow{
		name:         b.name,
		description:  b.description,
		inputSchema:  b.inputSchema,
		outputSchema: b.outputSchema,
		mapping:      b.mapping,
		nodes:        b.nodes,
		index:        index,
		committed:    true,
	}

	return b.committed, nil
}

// MustCommit is like Commit but panics on error.
func (b *Builder) MustCommit() *Workflow {
	wf, err := b.Commit()
	if err != nil {
		panic(fmt.Sprintf("workflow: %v", err))
	}

	return wf
}

func (b *Builder) append(node *Node) *Builder {
	if b.sealed() {
		return b
	}

	b.nodes = append(b.nodes, node)

	return b
}

// sealed records a change attempted after Commit and reports whether it must be dropped.
func (b *Builder) sealed() bool {
	if b.committed == nil {
		return false
	}

	b.sealedErr = ErrGraphCommitted

	return true
}

func (b *Builder) nextID(kind NodeKind, prefix string) string {
	b.counters[kind]++

	return fmt.Sprintf("%s-%d", prefix, b.counters[kind])
}

func subWorkflowNode(sub *Workflow, bindings Bindings) *Node {
	node := &Node{Kind: KindSubWorkflow, Workflow: sub, Bindings: bindings}
	if sub != nil {
		node.ID = sub.Name()
	}

	return node
}

// JoinBuilder completes a join started by Builder.After.
type JoinBuilder struct {
	builder *Builder
	after   []string
}

// Step appends the join node running def once every predecessor has a result.
func (j *JoinBuilder) Step(def *models.StepDefinition) *Builder {
	node := stepNode(KindJoin, def)
	node.After = j.after

	return j.builder.append(node)
}

// ConditionalBuilder fills the branches of a conditional started by Builder.If.
type ConditionalBuilder struct {
	builder *Builder
	node    *Node
	inElse  bool
}

// Then appends a step to the current branch.
func (c *ConditionalBuilder) Then(def *models.StepDefinition) *ConditionalBuilder {
	return c.add(stepNode(KindSequential, def))
}

// ThenWorkflow appends a sub-workflow to the current branch.
func (c *ConditionalBuilder) ThenWorkflow(sub *Workflow, bindings Bindings) *ConditionalBuilder {
	return c.add(subWorkflowNode(sub, bindings))
}

// Else switches to the else branch.
func (c *ConditionalBuilder) Else() *ConditionalBuilder {
	c.inElse = true

	return c
}

func (c *ConditionalBuilder) EndIf() *Builder {
	return c.builder
}

func (c *ConditionalBuilder) add(node *Node) *ConditionalBuilder {
	if c.builder.sealed() {
		return c
	}

	if c.inElse {
		c.node.Else = append(c.node.Else, node)
	} else {
		c.node.Then = append(c.node.Then, node)
	}

	return c
}
