package services

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/abrahamahn/abe-stack-sub003/search/models"
)

// MockSearcher is a test double for a search provider.
type MockSearcher struct {
	mock.Mock
}

var _ Searcher = (*MockSearcher)(nil)

func (m *MockSearcher) Name() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockSearcher) Search(ctx context.Context, query models.SearchQuery) (*models.SearchResult, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SearchResult), args.Error(1)
}

func (m *MockSearcher) SearchFaceted(ctx context.Context, query models.SearchQuery) (*models.FacetedSearchResult, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.FacetedSearchResult), args.Error(1)
}

func (m *MockSearcher) SearchWithCursor(ctx context.Context, query models.SearchQuery) (*models.CursorSearchResult, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CursorSearchResult), args.Error(1)
}

func (m *MockSearcher) Count(ctx context.Context, query models.SearchQuery) (int64, error) {
	args := m.Called(ctx, query)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockSearcher) Capabilities() models.Capabilities {
	args := m.Called()
	return args.Get(0).(models.Capabilities)
}

func (m *MockSearcher) HealthCheck(ctx context.Context) bool {
	args := m.Called(ctx)
	return args.Bool(0)
}

func (m *MockSearcher) Close() error {
	args := m.Called()
	return args.Error(0)
}
