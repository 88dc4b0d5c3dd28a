package mocks

import (
	"context"

	"github.com/dukex/stepflow/pkg/history"
	"github.com/stretchr/testify/mock"
)

// MockHistoryStore is a mock implementation of history.Store interface.
type MockHistoryStore struct {
	mock.Mock
}

func (m *MockHistoryStore) Save(ctx context.Context, record history.Record) error {
	args := m.Called(ctx, record)

	return args.Error(0)
}

func (m *MockHistoryStore) Get(ctx context.Context, executionID string) (*history.Record, error) {
	args := m.Called(ctx, executionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*history.Record), args.Error(1)
}

func (m *MockHistoryStore) List(ctx context.Context, workflowID string, limit int) ([]history.Record, error) {
	args := m.Called(ctx, workflowID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]history.Record), args.Error(1)
}

func (m *MockHistoryStore) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
