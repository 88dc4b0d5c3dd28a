package workflow

import (
	"fmt"
	"maps"
	"strings"

	"github.com/dukex/stepflow/pkg/contract"
	"github.com/dukex/stepflow/pkg/models"
	"github.com/xeipuuv/gojsonpointer"
)

// FieldMapping projects one field of the workflow output. Sources are tried
// in order and the first one holding a value wins. An empty Target places the
// value at the root of the output.
type FieldMapping struct {
	Target  string   `json:"target"`
	Sources []string `json:"sources" validate:"required,min=1,dive,required"`
}

// ResultMapping declares the workflow output in terms of step results.
type ResultMapping struct {
	Fields []FieldMapping `json:"fields,omitempty" validate:"dive"`
}

func MapField(target string, sources ...string) FieldMapping {
	return FieldMapping{Target: target, Sources: sources}
}

func Mapping(fields ...FieldMapping) ResultMapping {
	return ResultMapping{Fields: fields}
}

func (m ResultMapping) IsZero() bool {
	return len(m.Fields) == 0
}

// Project builds the workflow output from the results recorded in view.
func (m ResultMapping) Project(view models.ExecutionView) (any, error) {
	var (
		root    any
		hasRoot bool
	)

	out := make(map[string]any, len(m.Fields))

	for _, field := range m.Fields {
		value, ok := resolveFirst(view, field.Sources)
		if !ok {
			return nil, &OutputMappingError{WorkflowID: view.WorkflowID(), Field: field.Target, Sources: field.Sources}
		}

		if field.Target == "" {
			root, hasRoot = value, true

			continue
		}

		out[field.Target] = value
	}

	if !hasRoot {
		return out, nil
	}

	if len(out) == 0 {
		return root, nil
	}

	normalized, err := contract.Normalize(root)
	if err != nil {
		return nil, err
	}

	base, ok := normalized.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("workflow %s: root output of type %T cannot carry extra fields", view.WorkflowID(), root)
	}

	merged := maps.Clone(base)
	maps.Copy(merged, out)

	return merged, nil
}

func resolveFirst(view models.ExecutionView, sources []string) (any, bool) {
	for _, source := range sources {
		if value, ok := resolveSource(view, source); ok {
			return value, true
		}
	}

	return nil, false
}

// resolveSource reads "<node-id>[.<dotted.path>]" from the recorded results.
// A path that does not exist in the result counts as no value.
func resolveSource(view models.ExecutionView, source string) (any, bool) {
	nodeID, path, _ := strings.Cut(source, ".")

	value, ok := view.Result(nodeID)
	if !ok {
		return nil, false
	}

	if path == "" {
		return value, true
	}

	doc, err := contract.Normalize(value)
	if err != nil {
		return nil, false
	}

	pointer, err := gojsonpointer.NewJsonPointer("/" + strings.ReplaceAll(path, ".", "/"))
	if err != nil {
		return nil, false
	}

	found, _, err := pointer.Get(doc)
	if err != nil {
		return nil, false
	}

	return found, true
}

func sourceNodeID(source string) string {
	nodeID, _, _ := strings.Cut(source, ".")

	return nodeID
}
