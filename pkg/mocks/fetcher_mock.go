package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockFetcher is a mock implementation of fetch.Fetcher interface.
type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) FetchJSON(ctx context.Context, url string, out any) error {
	args := m.Called(ctx, url, out)

	return args.Error(0)
}
