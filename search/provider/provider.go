// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/abrahamahn/abe-stack-sub003/internal/pkg/log"
	searcherrors "github.com/abrahamahn/abe-stack-sub003/search/errors"
	"github.com/abrahamahn/abe-stack-sub003/search/models"
)

// Default limits.
const (
	DefaultProviderName  = "postgresql"
	DefaultMaxPageSize   = 100
	DefaultPageSize      = 20
	DefaultMaxQueryDepth = 5
	DefaultMaxConditions = 50
	DefaultFacetSize     = 10
)

// Config configures a Provider. Zero values fall back to the defaults above.
type Config struct {
	Table           models.TableConfig
	Name            string
	MaxPageSize     int
	DefaultPageSize int
	MaxQueryDepth   int
	MaxConditions   int
	Metrics         MetricsRecorder
}

// Provider compiles SearchQuery values into parameterized SQL against one
// table and runs them through an Executor. It holds no per-request state and
// is safe for concurrent use.
type Provider struct {
	table      models.TableConfig
	name       string
	maxPage    int
	defPage    int
	exec       Executor
	resolver   *columnResolver
	translator *translator
	metrics    MetricsRecorder
}

// New validates the table allow-list and builds a provider.
func New(cfg Config, exec Executor) (*Provider, error) {
	if exec == nil {
		return nil, errors.New("search provider requires an executor")
	}

	table := cfg.Table
	table.Columns = append([]models.ColumnConfig(nil), cfg.Table.Columns...)
	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("invalid table config: %w", err)
	}

	p := &Provider{
		table:   table,
		name:    cfg.Name,
		maxPage: cfg.MaxPageSize,
		defPage: cfg.DefaultPageSize,
		exec:    exec,
		metrics: cfg.Metrics,
	}
	if p.name == "" {
		p.name = DefaultProviderName
	}
	if p.maxPage <= 0 {
		p.maxPage = DefaultMaxPageSize
	}
	if p.defPage <= 0 {
		p.defPage = DefaultPageSize
	}
	if p.defPage > p.maxPage {
		p.defPage = p.maxPage
	}

	maxDepth := cfg.MaxQueryDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxQueryDepth
	}
	maxConditions := cfg.MaxConditions
	if maxConditions <= 0 {
		maxConditions = DefaultMaxConditions
	}

	p.resolver = newColumnResolver(&p.table)
	p.translator = &translator{
		resolver:      p.resolver,
		provider:      p.name,
		maxDepth:      maxDepth,
		maxConditions: maxConditions,
	}

	if p.resolver.bootstrap {
		log.Warn("search provider for table %s has no column allow-list; field names are used as column names verbatim", table.Table)
	}

	return p, nil
}

// Name returns the provider name used in wrapped errors.
func (p *Provider) Name() string {
	return p.name
}

// Table returns the physical table name.
func (p *Provider) Table() string {
	return p.table.Table
}

// Search runs an offset-paginated search.
func (p *Provider) Search(ctx context.Context, query models.SearchQuery) (*models.SearchResult, error) {
	started := time.Now()
	res, err := p.search(ctx, &query, nil)
	err = p.finish(ctx, "search", started, err)
	if err != nil {
		return nil, err
	}
	return &res.SearchResult, nil
}

// SearchFaceted runs an offset-paginated search plus one aggregate per facet.
func (p *Provider) SearchFaceted(ctx context.Context, query models.SearchQuery) (*models.FacetedSearchResult, error) {
	started := time.Now()
	res, err := p.search(ctx, &query, query.Facets)
	err = p.finish(ctx, "searchFaceted", started, err)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// SearchWithCursor runs a keyset-paginated search.
func (p *Provider) SearchWithCursor(ctx context.Context, query models.SearchQuery) (*models.CursorSearchResult, error) {
	started := time.Now()
	res, err := p.searchWithCursor(ctx, &query)
	err = p.finish(ctx, "searchWithCursor", started, err)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Count returns the number of rows matching the query filters.
func (p *Provider) Count(ctx context.Context, query models.SearchQuery) (int64, error) {
	started := time.Now()
	var total int64
	stmt, err := p.countStatement(query.Filters)
	if err == nil {
		total, err = p.runCount(ctx, stmt)
	}
	err = p.finish(ctx, "count", started, err)
	if err != nil {
		return 0, err
	}
	return total, nil
}

// Capabilities describes what this provider supports.
func (p *Provider) Capabilities() models.Capabilities {
	ops := make([]models.Operator, len(models.SupportedOperators))
	copy(ops, models.SupportedOperators)
	return models.Capabilities{
		Provider:           p.name,
		FullTextSearch:     false,
		FuzzyMatching:      false,
		Highlighting:       false,
		NestedFields:       false,
		ArrayOperations:    true,
		CursorPagination:   true,
		Faceting:           true,
		MaxPageSize:        p.maxPage,
		SupportedOperators: ops,
	}
}

// HealthCheck runs a trivial query against the table. Failures are logged
// and reported as false.
func (p *Provider) HealthCheck(ctx context.Context) bool {
	started := time.Now()
	_, err := p.exec.Execute(ctx, fmt.Sprintf("SELECT 1 FROM %s LIMIT 1", p.table.Table), nil)
	p.record("healthCheck", started, err)
	if err != nil {
		log.WarnWithContext(ctx, "search health check failed for table %s: %v", p.table.Table, err)
		return false
	}
	return true
}

// Close is a no-op; the executor owns the connection lifecycle.
func (p *Provider) Close() error {
	return nil
}

// finish records metrics and normalizes err: domain errors pass through,
// anything else becomes a provider error naming the operation.
func (p *Provider) finish(ctx context.Context, operation string, started time.Time, err error) error {
	p.record(operation, started, err)
	if err == nil {
		return nil
	}

	if searcherrors.IsDomainError(err) {
		log.WarnWithContext(ctx, "search %s on %s rejected: %v", operation, p.table.Table, err)
		return err
	}

	wrapped := searcherrors.Wrap(p.name, operation, err)
	var se *searcherrors.SearchError
	if errors.As(wrapped, &se) && se.Kind == searcherrors.KindProvider && se.Code == searcherrors.CodeProviderError {
		se.Code = classify(err)
	}
	log.ErrorWithContext(ctx, "search %s on %s failed: %v", operation, p.table.Table, err)
	return wrapped
}

func (p *Provider) record(operation string, started time.Time, err error) {
	if p.metrics != nil {
		p.metrics.RecordQuery(operation, p.table.Table, time.Since(started), err)
	}
}

// codedError is implemented by executor errors that carry a stable code.
type codedError interface {
	ErrorCode() string
}

func classify(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return searcherrors.CodeQueryTimeout
	}
	var ce codedError
	if errors.As(err, &ce) && ce.ErrorCode() != "" {
		return ce.ErrorCode()
	}
	return searcherrors.CodeProviderError
}

func elapsedMillis(started time.Time) int64 {
	return time.Since(started).Milliseconds()
}
