package workflow

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// validateGraph checks the structural rules of a graph and returns every
// node indexed by id. Node ids are unique across the whole graph, branches
// and fork members included.
func validateGraph(name string, nodes []*Node, mapping ResultMapping) (map[string]*Node, error) {
	if strings.TrimSpace(name) == "" {
		return nil, &GraphValidationError{Workflow: name, Err: ErrWorkflowNameRequired}
	}

	if len(nodes) == 0 {
		return nil, &GraphValidationError{Workflow: name, Err: ErrNodesRequired}
	}

	v := &graphValidator{workflow: name, index: make(map[string]*Node)}
	if err := v.walk(nodes); err != nil {
		return nil, err
	}

	if err := v.checkMapping(mapping); err != nil {
		return nil, err
	}

	return v.index, nil
}

type graphValidator struct {
	workflow string
	index    map[string]*Node
}

func (v *graphValidator) walk(nodes []*Node) error {
	for _, node := range nodes {
		if err := v.check(node); err != nil {
			return err
		}

		v.index[node.ID] = node

		switch node.Kind {
		case KindConditional:
			if err := v.walk(node.Then); err != nil {
				return err
			}

			if err := v.walk(node.Else); err != nil {
				return err
			}
		case KindFork:
			if err := v.walk(node.Members); err != nil {
				return err
			}
		}
	}

	return nil
}

func (v *graphValidator) check(node *Node) error {
	switch node.Kind {
	case KindSequential, KindJoin:
		if node.Step == nil {
			return v.fail(node.ID, fmt.Errorf("%w: step is nil", ErrInvalidStep))
		}

		if err := validate.Struct(node.Step); err != nil {
			return v.fail(node.ID, fmt.Errorf("%w: %w", ErrInvalidStep, err))
		}
	case KindSubWorkflow:
		if node.Workflow == nil || !node.Workflow.committed {
			return v.fail(node.ID, ErrSubWorkflowNotReady)
		}
	}

	if node.ID == "" {
		return v.fail("", fmt.Errorf("%w: empty id", ErrInvalidStep))
	}

	if strings.Contains(node.ID, ".") {
		return v.fail(node.ID, fmt.Errorf("%w: id must not contain '.'", ErrInvalidStep))
	}

	if _, exists := v.index[node.ID]; exists {
		return v.fail(node.ID, ErrDuplicateNodeID)
	}

	switch node.Kind {
	case KindConditional:
		if node.Predicate == nil {
			return v.fail(node.ID, ErrMissingPredicate)
		}
	case KindFork:
		if len(node.Members) == 0 {
			return v.fail(node.ID, ErrForkWithoutMembers)
		}
	case KindJoin:
		if len(node.After) == 0 {
			return v.fail(node.ID, ErrJoinWithoutPredecessor)
		}

		for _, id := range node.After {
			if err := v.checkSource(node.ID, id, ErrUnknownPredecessor); err != nil {
				return err
			}
		}
	case KindSubWorkflow:
		for field, source := range node.Bindings {
			if strings.TrimSpace(field) == "" {
				return v.fail(node.ID, fmt.Errorf("%w: empty target field", ErrInvalidBinding))
			}

			if err := v.checkSource(node.ID, sourceNodeID(source), ErrInvalidBinding); err != nil {
				return err
			}
		}
	}

	return nil
}

// checkSource ensures id names an earlier node that records a result.
func (v *graphValidator) checkSource(nodeID, id string, sentinel error) error {
	source, ok := v.index[id]
	if !ok {
		return v.fail(nodeID, fmt.Errorf("%w: %q is not declared before this node", sentinel, id))
	}

	if !source.recordsResult() {
		return v.fail(nodeID, fmt.Errorf("%w: %q does not produce a result", sentinel, id))
	}

	return nil
}

func (v *graphValidator) checkMapping(mapping ResultMapping) error {
	if err := validate.Struct(mapping); err != nil {
		return v.fail("", fmt.Errorf("%w: %w", ErrUnknownMappingSource, err))
	}

	for _, field := range mapping.Fields {
		for _, source := range field.Sources {
			if err := v.checkSource("", sourceNodeID(source), ErrUnknownMappingSource); err != nil {
				return err
			}
		}
	}

	return nil
}

func (v *graphValidator) fail(nodeID string, err error) error {
	return &GraphValidationError{Workflow: v.workflow, NodeID: nodeID, Err: err}
}
