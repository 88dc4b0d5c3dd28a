// Package file stores run history as one JSON document per run.
package file

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/dukex/stepflow/pkg/history"
)

var ErrInvalidExecutionID = errors.New("execution ID contains invalid characters")

// Store keeps records under <root>/runs/<execution id>.json.
type Store struct {
	root string
	mu   sync.RWMutex
}

// NewStore creates a store rooted at root. A file:// prefix is stripped.
func NewStore(root string) (*Store, error) {
	cleanRoot := strings.TrimPrefix(root, "file://")

	err := os.MkdirAll(filepath.Join(cleanRoot, "runs"), 0750)
	if err != nil {
		return nil, fmt.Errorf("failed to create runs directory: %w", err)
	}

	return &Store{root: cleanRoot}, nil
}

func (s *Store) path(executionID string) (string, error) {
	if executionID == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidExecutionID)
	}

	if strings.Contains(executionID, "..") || strings.ContainsAny(executionID, `/\`) {
		return "", fmt.Errorf("%w: %s", ErrInvalidExecutionID, executionID)
	}

	return filepath.Join(s.root, "runs", executionID+".json"), nil
}

func (s *Store) Save(_ context.Context, record history.Record) error {
	filePath, err := s.path(record.ExecutionID)
	if err != nil {
		return err
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal run %s: %w", record.ExecutionID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err = os.WriteFile(filePath, data, 0600)
	if err != nil {
		return fmt.Errorf("failed to write run %s: %w", record.ExecutionID, err)
	}

	return nil
}

func (s *Store) Get(_ context.Context, executionID string) (*history.Record, error) {
	filePath, err := s.path(executionID)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return readRecord(filePath, executionID)
}

func (s *Store) List(_ context.Context, workflowID string, limit int) ([]history.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(filepath.Join(s.root, "runs"))
	if err != nil {
		return nil, fmt.Errorf("failed to read runs directory: %w", err)
	}

	records := make([]history.Record, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		executionID := strings.TrimSuffix(entry.Name(), ".json")

		record, err := readRecord(filepath.Join(s.root, "runs", entry.Name()), executionID)
		if err != nil {
			return nil, err
		}

		if workflowID == "" || record.WorkflowID == workflowID {
			records = append(records, *record)
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

// HealthCheck verifies the root directory still exists.
func (s *Store) HealthCheck(context.Context) error {
	if _, err := os.Stat(s.root); err != nil {
		return err
	}

	return nil
}

func readRecord(filePath, executionID string) (*history.Record, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", history.ErrRecordNotFound, executionID)
		}

		return nil, fmt.Errorf("failed to read run %s: %w", executionID, err)
	}

	var record history.Record

	err = json.Unmarshal(data, &record)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal run %s: %w", executionID, err)
	}

	return &record, nil
}
