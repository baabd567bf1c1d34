// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package provider

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/abrahamahn/abe-stack-sub003/internal/pkg/log"
	searcherrors "github.com/abrahamahn/abe-stack-sub003/search/errors"
	"github.com/abrahamahn/abe-stack-sub003/search/models"
)

func flip(order models.SortOrder) models.SortOrder {
	if order == models.SortDesc {
		return models.SortAsc
	}
	return models.SortDesc
}

// keysetComparison is > when walking in ascending order and < otherwise.
func keysetComparison(order models.SortOrder) string {
	if order == models.SortDesc {
		return "<"
	}
	return ">"
}

// decodeCursorFor decodes token and checks it was issued for primary.
func (p *Provider) decodeCursorFor(token string, primary resolvedSort) (*models.CursorData, error) {
	data, err := models.DecodeCursor(token)
	if err != nil {
		return nil, searcherrors.NewInvalidCursorError(err, "cursor cannot be decoded")
	}
	if data.Field != primary.field {
		return nil, searcherrors.NewInvalidCursorError(nil, "cursor was issued for sort field %q, not %q", data.Field, primary.field)
	}
	if data.SortOrder != primary.order {
		return nil, searcherrors.NewInvalidCursorError(nil, "cursor was issued for %s order, not %s", data.SortOrder, primary.order)
	}
	return data, nil
}

// keysetPredicate binds the cursor position. With a tie-breaker the
// comparison is on the composite (sort value, primary key) so rows sharing a
// sort value are neither skipped nor repeated across pages.
func (p *Provider) keysetPredicate(primary resolvedSort, walk models.SortOrder, data *models.CursorData, b *paramBinder) string {
	op := keysetComparison(walk)
	pk := p.table.PrimaryKey
	value := b.bind(data.Value)
	if primary.column == pk || data.TieBreaker == nil {
		return primary.column + " " + op + " " + value
	}
	tie := b.bind(data.TieBreaker)
	return "(" + primary.column + " " + op + " " + value +
		" OR (" + primary.column + " = " + value + " AND " + pk + " " + op + " " + tie + "))"
}

func (p *Provider) keysetOrderBy(primary resolvedSort, walk models.SortOrder) string {
	dir := strings.ToUpper(string(walk))
	clause := " ORDER BY " + primary.column + " " + dir
	if primary.column != p.table.PrimaryKey {
		clause += ", " + p.table.PrimaryKey + " " + dir
	}
	return clause
}

// cursorFromRow builds the token that resumes after (or before) row.
func (p *Provider) cursorFromRow(row models.Row, primary resolvedSort, direction models.CursorDirection) (string, error) {
	value := rowValue(row, primary.column)
	var tieBreaker interface{}
	if primary.column != p.table.PrimaryKey {
		tieBreaker = rowValue(row, p.table.PrimaryKey)
	}
	data, err := models.NewCursorData(primary.field, value, tieBreaker, primary.order, direction)
	if err != nil {
		return "", err
	}
	return models.EncodeCursor(data)
}

// rowValue looks a column up by its full name, then by its unqualified name.
func rowValue(row models.Row, column string) interface{} {
	if v, ok := row[column]; ok {
		return v
	}
	if i := strings.LastIndex(column, "."); i >= 0 {
		return row[column[i+1:]]
	}
	return nil
}

// searchWithCursor runs the keyset strategy. Only the first sort entry takes
// part in the keyset; the primary key is appended as tie-breaker.
func (p *Provider) searchWithCursor(ctx context.Context, q *models.SearchQuery) (*models.CursorSearchResult, error) {
	started := time.Now()
	limit := p.normalizeLimit(q.Limit)

	sorts, err := p.resolveSort(q.Sort)
	if err != nil {
		return nil, err
	}
	primary := sorts[0]

	var data *models.CursorData
	if q.Cursor != "" {
		if data, err = p.decodeCursorFor(q.Cursor, primary); err != nil {
			return nil, err
		}
	}
	backward := data != nil && data.IsPrev()
	walk := primary.order
	if backward {
		walk = flip(walk)
	}

	st := newCompileState()
	frag, err := p.translator.translate(q.Filters, 1, st)
	if err != nil {
		return nil, err
	}
	var parts []string
	if frag != nil {
		parts = append(parts, frag.text)
	}
	if data != nil {
		parts = append(parts, p.keysetPredicate(primary, walk, data, st.binder))
	}
	where := ""
	switch len(parts) {
	case 1:
		where = " WHERE " + parts[0]
	case 2:
		where = " WHERE (" + parts[0] + ") AND (" + parts[1] + ")"
	}
	text := "SELECT * FROM " + p.table.Table + where + p.keysetOrderBy(primary, walk) + " LIMIT " + st.binder.bind(limit+1)
	mainStmt := statement{text: text, params: st.binder.values}

	var countStmt statement
	if q.IncludeCount {
		if countStmt, err = p.countStatement(q.Filters); err != nil {
			return nil, err
		}
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
	if err := g.Wait(); err != nil {
		return nil, err
	}

	more := len(rows) > limit
	if more {
		rows = rows[:limit]
	}
	if rows == nil {
		rows = []models.Row{}
	}

	res := &models.CursorSearchResult{Limit: limit}
	if backward {
		for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
			rows[i], rows[j] = rows[j], rows[i]
		}
		res.HasPrev = more
		res.HasNext = true
	} else {
		res.HasNext = more
		res.HasPrev = data != nil
	}
	res.Data = rows

	if len(rows) > 0 {
		if res.HasNext {
			if res.NextCursor, err = p.cursorFromRow(rows[len(rows)-1], primary, models.CursorNext); err != nil {
				log.WarnWithContext(ctx, "search on %s: next cursor unavailable: %v", p.table.Table, err)
			}
		}
		if res.HasPrev {
			if res.PrevCursor, err = p.cursorFromRow(rows[0], primary, models.CursorPrev); err != nil {
				log.WarnWithContext(ctx, "search on %s: previous cursor unavailable: %v", p.table.Table, err)
			}
		}
	}

	if q.IncludeCount {
		res.Total = &total
	}
	res.ExecutionTime = elapsedMillis(started)
	return res, nil
}
