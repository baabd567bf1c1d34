// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package provider

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/abrahamahn/abe-stack-sub003/internal/pkg/log"
	searcherrors "github.com/abrahamahn/abe-stack-sub003/search/errors"
	"github.com/abrahamahn/abe-stack-sub003/search/models"
)

type facetJob struct {
	field string
	stmt  statement
	skip  bool
}

func (p *Provider) facetSize(size int) int {
	if size <= 0 {
		return DefaultFacetSize
	}
	if size > p.maxPage {
		return p.maxPage
	}
	return size
}

// facetStatements compiles one aggregate per facet, each with its own binder.
// A facet on an unknown field is skipped and later reported with no buckets;
// errors in the shared filter still fail the request.
func (p *Provider) facetStatements(filters models.FilterNode, facets []models.FacetConfig) ([]facetJob, error) {
	jobs := make([]facetJob, len(facets))
	for i, facet := range facets {
		jobs[i].field = facet.Field

		column, err := p.resolver.resolve(facet.Field)
		if err != nil {
			if searcherrors.KindOf(err) == searcherrors.KindInvalidFilter {
				log.Warn("search facet %q on %s skipped: %v", facet.Field, p.table.Table, err)
				jobs[i].skip = true
				continue
			}
			return nil, err
		}

		st := newCompileState()
		where, err := p.whereClause(filters, st)
		if err != nil {
			return nil, err
		}
		text := fmt.Sprintf("SELECT %s AS value, COUNT(*) AS count FROM %s%s GROUP BY %s ORDER BY count DESC LIMIT %s",
			column, p.table.Table, where, column, st.binder.bind(p.facetSize(facet.Size)))
		jobs[i].stmt = statement{text: text, params: st.binder.values}
	}
	return jobs, nil
}

// runFacets schedules every facet query on g. The returned slice is complete
// once g.Wait returns without error; it keeps the order of jobs.
func (p *Provider) runFacets(ctx context.Context, g *errgroup.Group, jobs []facetJob) []models.FacetResult {
	results := make([]models.FacetResult, len(jobs))
	for i := range jobs {
		i := i
		results[i] = models.FacetResult{Field: jobs[i].field, Buckets: []models.FacetBucket{}}
		if jobs[i].skip {
			continue
		}
		g.Go(func() error {
			rows, err := p.exec.Execute(ctx, jobs[i].stmt.text, jobs[i].stmt.params)
			if err != nil {
				return err
			}
			buckets := make([]models.FacetBucket, 0, len(rows))
			for _, row := range rows {
				count, ok := toInt64(row["count"])
				if !ok {
					return fmt.Errorf("unexpected facet count %v (%T) for %s", row["count"], row["count"], jobs[i].field)
				}
				buckets = append(buckets, models.FacetBucket{Value: row["value"], Count: count})
			}
			results[i].Buckets = buckets
			return nil
		})
	}
	return results
}
