// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package provider

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	searcherrors "github.com/abrahamahn/abe-stack-sub003/search/errors"
	"github.com/abrahamahn/abe-stack-sub003/search/models"
)

// normalizeLimit clamps limit to [1, maxPage]; zero selects the default page size.
func (p *Provider) normalizeLimit(limit int) int {
	switch {
	case limit == 0:
		return p.defPage
	case limit < 1:
		return 1
	case limit > p.maxPage:
		return p.maxPage
	}
	return limit
}

func normalizePage(page int) int {
	if page < 1 {
		return 1
	}
	return page
}

// checkOffset rejects a page whose offset does not fit in an int.
func checkOffset(page, limit int) error {
	if page-1 > math.MaxInt/limit {
		return searcherrors.NewInvalidFilterError("page", "", "page %d is out of range for limit %d", page, limit)
	}
	return nil
}

// whereClause compiles filters into " WHERE ..." using the statement's state.
// It returns "" when the filters contribute no condition.
func (p *Provider) whereClause(filters models.FilterNode, st *compileState, extra ...string) (string, error) {
	var parts []string
	frag, err := p.translator.translate(filters, 1, st)
	if err != nil {
		return "", err
	}
	if frag != nil {
		parts = append(parts, frag.text)
	}
	for _, e := range extra {
		if e != "" {
			parts = append(parts, e)
		}
	}
	switch len(parts) {
	case 0:
		return "", nil
	case 1:
		return " WHERE " + parts[0], nil
	default:
		for i := range parts {
			parts[i] = "(" + parts[i] + ")"
		}
		return " WHERE " + strings.Join(parts, " AND "), nil
	}
}

type resolvedSort struct {
	field  string
	column string
	order  models.SortOrder
}

func parseSortOrder(field string, order models.SortOrder) (models.SortOrder, error) {
	switch models.SortOrder(strings.ToLower(string(order))) {
	case "", models.SortAsc:
		return models.SortAsc, nil
	case models.SortDesc:
		return models.SortDesc, nil
	}
	return "", searcherrors.NewInvalidFilterError(field, "", "invalid sort order %q for %q", order, field)
}

// resolveSort resolves every sort field. Without sort entries it falls back
// to the primary key ascending.
func (p *Provider) resolveSort(sort []models.SortConfig) ([]resolvedSort, error) {
	if len(sort) == 0 {
		return []resolvedSort{{field: p.table.PrimaryKey, column: p.table.PrimaryKey, order: models.SortAsc}}, nil
	}
	out := make([]resolvedSort, 0, len(sort))
	for _, s := range sort {
		column, err := p.resolver.resolve(s.Field)
		if err != nil {
			return nil, err
		}
		order, err := parseSortOrder(s.Field, s.Order)
		if err != nil {
			return nil, err
		}
		out = append(out, resolvedSort{field: s.Field, column: column, order: order})
	}
	return out, nil
}

func orderByClause(sorts []resolvedSort) string {
	parts := make([]string, len(sorts))
	for i, s := range sorts {
		parts[i] = s.column + " " + strings.ToUpper(string(s.order))
	}
	return " ORDER BY " + strings.Join(parts, ", ")
}

// offsetStatement builds the page query. It fetches limit+1 rows so hasNext
// is known without a second round trip.
func (p *Provider) offsetStatement(q *models.SearchQuery, page, limit int) (statement, error) {
	st := newCompileState()
	where, err := p.whereClause(q.Filters, st)
	if err != nil {
		return statement{}, err
	}
	sorts, err := p.resolveSort(q.Sort)
	if err != nil {
		return statement{}, err
	}

	var sb strings.Builder
	sb.WriteString("SELECT * FROM ")
	sb.WriteString(p.table.Table)
	sb.WriteString(where)
	sb.WriteString(orderByClause(sorts))
	sb.WriteString(" LIMIT ")
	sb.WriteString(st.binder.bind(limit + 1))
	sb.WriteString(" OFFSET ")
	sb.WriteString(st.binder.bind((page - 1) * limit))

	return statement{text: sb.String(), params: st.binder.values}, nil
}

// countStatement is compiled independently of any page statement, so its
// parameters are numbered from $1.
func (p *Provider) countStatement(filters models.FilterNode) (statement, error) {
	st := newCompileState()
	where, err := p.whereClause(filters, st)
	if err != nil {
		return statement{}, err
	}
	return statement{
		text:   "SELECT COUNT(*) AS count FROM " + p.table.Table + where,
		params: st.binder.values,
	}, nil
}

func (p *Provider) runCount(ctx context.Context, stmt statement) (int64, error) {
	rows, err := p.exec.Execute(ctx, stmt.text, stmt.params)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	n, ok := toInt64(rows[0]["count"])
	if !ok {
		return 0, fmt.Errorf("unexpected count value %v (%T)", rows[0]["count"], rows[0]["count"])
	}
	return n, nil
}

// search runs the offset strategy. All statements are compiled before any of
// them is executed, so an invalid query never reaches the executor.
func (p *Provider) search(ctx context.Context, q *models.SearchQuery, facets []models.FacetConfig) (*models.FacetedSearchResult, error) {
	started := time.Now()
	page := normalizePage(q.Page)
	limit := p.normalizeLimit(q.Limit)
	if err := checkOffset(page, limit); err != nil {
		return nil, err
	}

	mainStmt, err := p.offsetStatement(q, page, limit)
	if err != nil {
		return nil, err
	}

	var countStmt statement
	if q.IncludeCount {
		if countStmt, err = p.countStatement(q.Filters); err != nil {
			return nil, err
		}
	}

	facetJobs, err := p.facetStatements(q.Filters, facets)
	if err != nil {
		return nil, err
	}

	var (
		rows  []models.Row
		total int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rows, err = p.exec.Execute(gctx, mainStmt.text, mainStmt.params)
		return err
	})
	if q.IncludeCount {
		g.Go(func() error {
			var err error
			total, err = p.runCount(gctx, countStmt)
			return err
		})
	}
	facetResults := p.runFacets(gctx, g, facetJobs)
	if err := g.Wait(); err != nil {
		return nil, err
	}

	hasNext := len(rows) > limit
	if hasNext {
		rows = rows[:limit]
	}
	if rows == nil {
		rows = []models.Row{}
	}

	res := &models.FacetedSearchResult{
		SearchResult: models.SearchResult{
			Data:    rows,
			Page:    page,
			Limit:   limit,
			HasNext: hasNext,
			HasPrev: page > 1,
		},
	}
	if q.IncludeCount {
		pages := (total + int64(limit) - 1) / int64(limit)
		res.Total = &total
		res.TotalPages = &pages
	}
	if len(facets) > 0 {
		res.Facets = facetResults
	}
	res.ExecutionTime = elapsedMillis(started)
	return res, nil
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case uint64:
		return int64(n), true
	case float64:
		return int64(n), true
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	case []byte:
		i, err := strconv.ParseInt(string(n), 10, 64)
		return i, err == nil
	case fmt.Stringer:
		i, err := strconv.ParseInt(n.String(), 10, 64)
		return i, err == nil
	}
	return 0, false
}
