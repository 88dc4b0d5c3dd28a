// Package memory keeps run history in process memory.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/dukex/stepflow/pkg/history"
)

type Store struct {
	mu      sync.RWMutex
	records map[string]history.Record
}

func NewStore() *Store {
	return &Store{records: make(map[string]history.Record)}
}

func (s *Store) Save(_ context.Context, record history.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[record.ExecutionID] = record

	return nil
}

func (s *Store) Get(_ context.Context, executionID string) (*history.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[executionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", history.ErrRecordNotFound, executionID)
	}

	return &record, nil
}

func (s *Store) List(_ context.Context, workflowID string, limit int) ([]history.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]history.Record, 0, len(s.records))

	for _, record := range s.records {
		if workflowID == "" || record.WorkflowID == workflowID {
			records = append(records, record)
		}
	}

	slices.SortFunc(records, func(a, b history.Record) int {
		return cmp.Or(b.StartedAt.Compare(a.StartedAt), cmp.Compare(a.ExecutionID, b.ExecutionID))
	})

	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}

	return records, nil
}

func (s *Store) Close(context.Context) error {
	return nil
}
