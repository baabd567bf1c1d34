package services

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	searcherrors "github.com/abrahamahn/abe-stack-sub003/search/errors"
	"github.com/abrahamahn/abe-stack-sub003/search/models"
)

// Searcher is the contract every search provider implements.
type Searcher interface {
	Name() string
	Search(ctx context.Context, query models.SearchQuery) (*models.SearchResult, error)
	SearchFaceted(ctx context.Context, query models.SearchQuery) (*models.FacetedSearchResult, error)
	SearchWithCursor(ctx context.Context, query models.SearchQuery) (*models.CursorSearchResult, error)
	Count(ctx context.Context, query models.SearchQuery) (int64, error)
	Capabilities() models.Capabilities
	HealthCheck(ctx context.Context) bool
	Close() error
}

// Service routes search requests to the provider registered for a resource.
type Service interface {
	// Resources returns the registered resource names in sorted order.
	Resources() []string

	Search(ctx context.Context, resource string, query models.SearchQuery) (*models.SearchResult, error)
	SearchFaceted(ctx context.Context, resource string, query models.SearchQuery) (*models.FacetedSearchResult, error)
	SearchWithCursor(ctx context.Context, resource string, query models.SearchQuery) (*models.CursorSearchResult, error)
	Count(ctx context.Context, resource string, query models.SearchQuery) (int64, error)

	// Capabilities returns the capability descriptor of every resource.
	Capabilities() map[string]models.Capabilities

	// Health checks every resource concurrently.
	Health(ctx context.Context) map[string]bool

	Close() error
}

type service struct {
	mu        sync.RWMutex
	providers map[string]Searcher
}

// NewService constructs a search service over the given resource providers.
func NewService(providers map[string]Searcher) Service {
	s := &service{providers: make(map[string]Searcher, len(providers))}
	for name, p := range providers {
		s.providers[name] = p
	}
	return s
}

func (s *service) provider(resource string) (Searcher, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.providers[resource]
	if !ok {
		return nil, fmt.Errorf("%w: %q", searcherrors.ErrResourceNotFound, resource)
	}
	return p, nil
}

func (s *service) Resources() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.providers))
	for name := range s.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *service) Search(ctx context.Context, resource string, query models.SearchQuery) (*models.SearchResult, error) {
	p, err := s.provider(resource)
	if err != nil {
		return nil, err
	}
	return p.Search(ctx, query)
}

func (s *service) SearchFaceted(ctx context.Context, resource string, query models.SearchQuery) (*models.FacetedSearchResult, error) {
	p, err := s.provider(resource)
	if err != nil {
		return nil, err
	}
	return p.SearchFaceted(ctx, query)
}

func (s *service) SearchWithCursor(ctx context.Context, resource string, query models.SearchQuery) (*models.CursorSearchResult, error) {
	p, err := s.provider(resource)
	if err != nil {
		return nil, err
	}
	return p.SearchWithCursor(ctx, query)
}

func (s *service) Count(ctx context.Context, resource string, query models.SearchQuery) (int64, error) {
	p, err := s.provider(resource)
	if err != nil {
		return 0, err
	}
	return p.Count(ctx, query)
}

func (s *service) Capabilities() map[string]models.Capabilities {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]models.Capabilities, len(s.providers))
	for name, p := range s.providers {
		out[name] = p.Capabilities()
	}
	return out
}

func (s *service) Health(ctx context.Context) map[string]bool {
	s.mu.RLock()
	providers := make(map[string]Searcher, len(s.providers))
	for name, p := range s.providers {
		providers[name] = p
	}
	s.mu.RUnlock()

	var (
		mu      sync.Mutex
		results = make(map[string]bool, len(providers))
		g       errgroup.Group
	)
	for name, p := range providers {
		name, p := name, p
		g.Go(func() error {
			ok := p.HealthCheck(ctx)
			mu.Lock()
			results[name] = ok
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Close closes every provider and reports the first failure.
func (s *service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var first error
	for name, p := range s.providers {
		if err := p.Close(); err != nil && first == nil {
			first = fmt.Errorf("close %s: %w", name, err)
		}
	}
	return first
}
