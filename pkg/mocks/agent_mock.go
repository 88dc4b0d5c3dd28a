package mocks

import (
	"context"

	"github.com/dukex/stepflow/pkg/agent"
	"github.com/stretchr/testify/mock"
)

// MockAgent is a mock implementation of agent.Agent interface.
type MockAgent struct {
	mock.Mock
}

func (m *MockAgent) StreamText(ctx context.Context, messages []agent.Message) (*agent.Stream, error) {
	args := m.Called(ctx, messages)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*agent.Stream), args.Error(1)
}
