// Package registry indexes the committed workflows a process can run by name.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/dukex/stepflow/pkg/workflow"
)

var (
	ErrWorkflowNotFound      = errors.New("workflow not found")
	ErrWorkflowAlreadyExists = errors.New("workflow already registered")
)

type Registry struct {
	logger    *slog.Logger
	mu        sync.RWMutex
	workflows map[string]*workflow.Workflow
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:    log,
		workflows: make(map[string]*workflow.Workflow),
	}
}

// Register adds wf under its name. Only committed workflows are accepted.
func (r *Registry) Register(wf *workflow.Workflow) error {
	if !wf.Committed() {
		return workflow.ErrWorkflowNotCommitted
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.workflows[wf.Name()]; exists {
		return fmt.Errorf("%w: %s", ErrWorkflowAlreadyExists, wf.Name())
	}

	r.workflows[wf.Name()] = wf
	r.logger.Info("Registered workflow", "workflow_id", wf.Name(), "steps", len(wf.StepIDs()))

	return nil
}

func (r *Registry) Workflow(name string) (*workflow.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	wf, ok := r.workflows[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, name)
	}

	return wf, nil
}

// Workflows returns every registered workflow ordered by name.
func (r *Registry) Workflows() []*workflow.Workflow {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := slices.Sorted(maps.Keys(r.workflows))

	out := make([]*workflow.Workflow, 0, len(names))
	for _, name := range names {
		out = append(out, r.workflows[name])
	}

	return out
}

func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}
