package provider

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"

	"github.com/abrahamahn/abe-stack-sub003/search/models"
)

// renderStatements prints executed statements in a stable order.
func renderStatements(stmts []executedStatement) []byte {
	sort.Slice(stmts, func(i, j int) bool { return stmts[i].query < stmts[j].query })
	var buf bytes.Buffer
	for _, s := range stmts {
		fmt.Fprintf(&buf, "%s\n-- params: %v\n", s.query, s.params)
	}
	return buf.Bytes()
}

func TestCompiledSQLGolden(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name string
		run  func(p *Provider) error
	}{
		{
			name: "offset_example",
			run: func(p *Provider) error {
				_, err := p.Search(ctx, models.SearchQuery{
					Filters: models.And(models.Cond("age", models.OpGte, 18), models.Cond("name", models.OpContains, "jo")),
					Sort:    []models.SortConfig{{Field: "age", Order: models.SortAsc}},
					Limit:   2,
				})
				return err
			},
		},
		{
			name: "offset_nested",
			run: func(p *Provider) error {
				_, err := p.Search(ctx, models.SearchQuery{
					Filters: models.And(
						models.Or(models.Cond("status", models.OpEq, "active"), models.Cond("status", models.OpEq, "trial")),
						models.Not(models.Cond("email", models.OpIsNull, nil)),
					),
					Sort:  []models.SortConfig{{Field: "createdAt", Order: models.SortDesc}},
					Page:  3,
					Limit: 10,
				})
				return err
			},
		},
		{
			name: "keyset_next",
			run: func(p *Provider) error {
				data, err := models.NewCursorData("age", int64(22), int64(3), models.SortAsc, models.CursorNext)
				if err != nil {
					return err
				}
				cursor, err := models.EncodeCursor(data)
				if err != nil {
					return err
				}
				_, err = p.SearchWithCursor(ctx, models.SearchQuery{
					Filters: models.Cond("status", models.OpIn, []interface{}{"a", "b"}),
					Sort:    []models.SortConfig{{Field: "age"}},
					Cursor:  cursor,
				})
				return err
			},
		},
		{
			name: "faceted",
			run: func(p *Provider) error {
				_, err := p.SearchFaceted(ctx, models.SearchQuery{
					Filters: models.Cond("age", models.OpBetween, models.Range{Min: 18, Max: 30}),
					Facets:  []models.FacetConfig{{Field: "status", Size: 3}},
				})
				return err
			},
		},
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			exec := &fakeExecutor{}
			require.NoError(t, tc.run(newTestProvider(exec)))
			g.Assert(t, tc.name, renderStatements(exec.statements()))
		})
	}
}
