package provider

import (
	"context"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	searcherrors "github.com/abrahamahn/abe-stack-sub003/search/errors"
	"github.com/abrahamahn/abe-stack-sub003/search/models"
)

var byAge = []models.SortConfig{{Field: "age", Order: models.SortAsc}}

func TestSearchWithCursorFirstPage(t *testing.T) {
	ctx := context.Background()
	exec := &fakeExecutor{rows: userRows(4)}
	p := newTestProvider(exec)

	res, err := p.SearchWithCursor(ctx, models.SearchQuery{Sort: byAge, Limit: 3})
	require.NoError(t, err)

	stmts := exec.statements()
	require.Len(t, stmts, 1)
	assert.Equal(t, "SELECT * FROM users ORDER BY age ASC, id ASC LIMIT $1", stmts[0].query)
	assert.Equal(t, []interface{}{4}, stmts[0].params)

	assert.Len(t, res.Data, 3)
	assert.True(t, res.HasNext)
	assert.False(t, res.HasPrev)
	assert.Empty(t, res.PrevCursor)
	require.NotEmpty(t, res.NextCursor)

	data, err := models.DecodeCursor(res.NextCursor)
	require.NoError(t, err)
	assert.Equal(t, "age", data.Field)
	assert.Equal(t, int64(22), data.Value)
	assert.Equal(t, int64(3), data.TieBreaker)
	assert.Equal(t, models.SortAsc, data.SortOrder)
	assert.Equal(t, models.CursorNext, data.Direction)
}

func TestSearchWithCursorPredicate(t *testing.T) {
	ctx := context.Background()

	t.Run("composite keyset after the cursor", func(t *testing.T) {
		exec := &fakeExecutor{rows: userRows(2)}
		p := newTestProvider(exec)
		cursor := mustCursor(t, "age", int64(22), int64(3), models.SortAsc, models.CursorNext)

		res, err := p.SearchWithCursor(ctx, models.SearchQuery{Sort: byAge, Limit: 3, Cursor: cursor})
		require.NoError(t, err)

		stmt, _ := exec.find("SELECT * ")
		assert.Equal(t, "SELECT * FROM users WHERE (age > $1 OR (age = $1 AND id > $2)) ORDER BY age ASC, id ASC LIMIT $3", stmt.query)
		assert.Equal(t, []interface{}{int64(22), int64(3), 4}, stmt.params)
		assert.False(t, res.HasNext)
		assert.True(t, res.HasPrev)
		assert.NotEmpty(t, res.PrevCursor)
	})

	t.Run("descending order compares with less-than", func(t *testing.T) {
		exec := &fakeExecutor{}
		p := newTestProvider(exec)
		cursor := mustCursor(t, "createdAt", "2024-05-01", "u-9", models.SortDesc, models.CursorNext)

		_, err := p.SearchWithCursor(ctx, models.SearchQuery{
			Sort:   []models.SortConfig{{Field: "createdAt", Order: models.SortDesc}},
			Cursor: cursor,
		})
		require.NoError(t, err)
		stmt, _ := exec.find("SELECT * ")
		assert.Equal(t, "SELECT * FROM users WHERE (created_at < $1 OR (created_at = $1 AND id < $2)) ORDER BY created_at DESC, id DESC LIMIT $3", stmt.query)
	})

	t.Run("filters bind before the cursor", func(t *testing.T) {
		exec := &fakeExecutor{}
		p := newTestProvider(exec)
		cursor := mustCursor(t, "age", int64(30), int64(8), models.SortAsc, models.CursorNext)

		_, err := p.SearchWithCursor(ctx, models.SearchQuery{
			Filters: models.Cond("status", models.OpEq, "active"),
			Sort:    byAge,
			Limit:   10,
			Cursor:  cursor,
		})
		require.NoError(t, err)
		stmt, _ := exec.find("SELECT * ")
		assert.Equal(t, "SELECT * FROM users WHERE (status = $1) AND ((age > $2 OR (age = $2 AND id > $3))) ORDER BY age ASC, id ASC LIMIT $4", stmt.query)
		assert.Equal(t, []interface{}{"active", int64(30), int64(8), 11}, stmt.params)
	})

	t.Run("primary key sort needs no tie-breaker", func(t *testing.T) {
		exec := &fakeExecutor{rows: userRows(3)}
		p := newTestProvider(exec)

		res, err := p.SearchWithCursor(ctx, models.SearchQuery{Limit: 2})
		require.NoError(t, err)
		require.NotEmpty(t, res.NextCursor)

		data, err := models.DecodeCursor(res.NextCursor)
		require.NoError(t, err)
		assert.Equal(t, "id", data.Field)
		assert.Nil(t, data.TieBreaker)

		_, err = p.SearchWithCursor(ctx, models.SearchQuery{Limit: 2, Cursor: res.NextCursor})
		require.NoError(t, err)
		stmts := exec.statements()
		assert.Equal(t, "SELECT * FROM users WHERE id > $1 ORDER BY id ASC LIMIT $2", stmts[len(stmts)-1].query)
		assert.Equal(t, []interface{}{int64(2), 3}, stmts[len(stmts)-1].params)
	})

	t.Run("count is independent of the cursor", func(t *testing.T) {
		exec := &fakeExecutor{count: 9}
		p := newTestProvider(exec)
		cursor := mustCursor(t, "age", int64(30), int64(8), models.SortAsc, models.CursorNext)

		res, err := p.SearchWithCursor(ctx, models.SearchQuery{
			Filters:      models.Cond("age", models.OpGt, 1),
			Sort:         byAge,
			Cursor:       cursor,
			IncludeCount: true,
		})
		require.NoError(t, err)
		require.NotNil(t, res.Total)
		assert.Equal(t, int64(9), *res.Total)

		stmt, _ := exec.find("SELECT COUNT(*)")
		assert.Equal(t, "SELECT COUNT(*) AS count FROM users WHERE age > $1", stmt.query)
		assert.Equal(t, []interface{}{1}, stmt.params)
	})
}

func TestSearchWithCursorBackwards(t *testing.T) {
	ctx := context.Background()
	rows := []models.Row{
		{"id": int64(5), "age": int64(25)},
		{"id": int64(4), "age": int64(24)},
		{"id": int64(3), "age": int64(23)},
	}
	exec := &fakeExecutor{rows: rows}
	p := newTestProvider(exec)
	cursor := mustCursor(t, "age", int64(26), int64(6), models.SortAsc, models.CursorPrev)

	res, err := p.SearchWithCursor(ctx, models.SearchQuery{Sort: byAge, Limit: 2, Cursor: cursor})
	require.NoError(t, err)

	stmt, _ := exec.find("SELECT * ")
	assert.Equal(t, "SELECT * FROM users WHERE (age < $1 OR (age = $1 AND id < $2)) ORDER BY age DESC, id DESC LIMIT $3", stmt.query)

	require.Len(t, res.Data, 2)
	assert.Equal(t, int64(24), res.Data[0]["age"])
	assert.Equal(t, int64(25), res.Data[1]["age"])
	assert.True(t, res.HasPrev)
	assert.True(t, res.HasNext)

	prev, err := models.DecodeCursor(res.PrevCursor)
	require.NoError(t, err)
	assert.Equal(t, int64(24), prev.Value)
	assert.True(t, prev.IsPrev())

	next, err := models.DecodeCursor(res.NextCursor)
	require.NoError(t, err)
	assert.Equal(t, int64(25), next.Value)
	assert.False(t, next.IsPrev())
}

func TestSearchWithCursorRejects(t *testing.T) {
	ctx := context.Background()
	exec := &fakeExecutor{}
	p := newTestProvider(exec)

	cases := []struct {
		name  string
		query models.SearchQuery
	}{
		{"garbage", models.SearchQuery{Sort: byAge, Cursor: "%%%not-a-cursor"}},
		{"not json", models.SearchQuery{Sort: byAge, Cursor: "bm90LWpzb24"}},
		{"other sort field", models.SearchQuery{Sort: []models.SortConfig{{Field: "name"}}, Cursor: mustCursor(t, "age", int64(1), int64(1), models.SortAsc, models.CursorNext)}},
		{"other sort order", models.SearchQuery{Sort: []models.SortConfig{{Field: "age", Order: models.SortDesc}}, Cursor: mustCursor(t, "age", int64(1), int64(1), models.SortAsc, models.CursorNext)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := p.SearchWithCursor(ctx, tc.query)
			require.ErrorIs(t, err, searcherrors.ErrInvalidCursor)
			assert.Equal(t, searcherrors.KindInvalidCursor, searcherrors.KindOf(err))
		})
	}
	assert.Empty(t, exec.statements())
}

func TestSearchWithCursorNullSortValue(t *testing.T) {
	exec := &fakeExecutor{rows: []models.Row{
		{"id": int64(1), "age": int64(30)},
		{"id": int64(2), "age": nil},
		{"id": int64(3), "age": nil},
	}}
	p := newTestProvider(exec)

	res, err := p.SearchWithCursor(context.Background(), models.SearchQuery{Sort: byAge, Limit: 2})
	require.NoError(t, err)
	assert.True(t, res.HasNext)
	assert.Empty(t, res.NextCursor)
}

func TestSearchWithCursorDates(t *testing.T) {
	created := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	exec := &fakeExecutor{rows: []models.Row{
		{"id": "a", "created_at": created},
		{"id": "b", "created_at": created.Add(time.Hour)},
	}}
	p := newTestProvider(exec)
	sortByCreated := []models.SortConfig{{Field: "createdAt", Order: models.SortAsc}}

	res, err := p.SearchWithCursor(context.Background(), models.SearchQuery{Sort: sortByCreated, Limit: 1})
	require.NoError(t, err)

	data, err := models.DecodeCursor(res.NextCursor)
	require.NoError(t, err)
	assert.Equal(t, models.CursorValueDate, data.ValueType)
	assert.True(t, created.Equal(data.Value.(time.Time)))
	assert.Equal(t, "a", data.TieBreaker)

	_, err = p.SearchWithCursor(context.Background(), models.SearchQuery{Sort: sortByCreated, Limit: 1, Cursor: res.NextCursor})
	require.NoError(t, err)
	stmts := exec.statements()
	last := stmts[len(stmts)-1]
	assert.True(t, created.Equal(last.params[0].(time.Time)))
	assert.Equal(t, "a", last.params[1])
}

// keysetExecutor serves userRows ordered by (age, id) and applies the
// ascending composite predicate from the bound parameters.
type keysetExecutor struct {
	rows []models.Row
}

func (e *keysetExecutor) Execute(ctx context.Context, query string, params []interface{}) ([]models.Row, error) {
	sorted := append([]models.Row(nil), e.rows...)
	sort.Slice(sorted, func(i, j int) bool {
		ai, aj := sorted[i]["age"].(int64), sorted[j]["age"].(int64)
		if ai != aj {
			return ai < aj
		}
		return sorted[i]["id"].(int64) < sorted[j]["id"].(int64)
	})

	limit := params[len(params)-1].(int)
	var out []models.Row
	for _, row := range sorted {
		if strings.Contains(query, " WHERE ") {
			age, id := row["age"].(int64), row["id"].(int64)
			v, tb := params[0].(int64), params[1].(int64)
			if !(age > v || (age == v && id > tb)) {
				continue
			}
		}
		out = append(out, row)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func TestSearchWithCursorWalksEveryRowOnce(t *testing.T) {
	ctx := context.Background()
	var rows []models.Row
	for i := 1; i <= 11; i++ {
		// Sort values repeat so page boundaries fall inside runs of equal ages.
		rows = append(rows, models.Row{"id": int64(i), "age": int64(20 + i/3)})
	}
	p := newTestProvider(&keysetExecutor{rows: rows})

	seen := map[int64]bool{}
	cursor := ""
	for pages := 0; pages < 10; pages++ {
		res, err := p.SearchWithCursor(ctx, models.SearchQuery{Sort: byAge, Limit: 2, Cursor: cursor})
		require.NoError(t, err)
		for _, row := range res.Data {
			id := row["id"].(int64)
			require.False(t, seen[id], "row %d returned twice", id)
			seen[id] = true
		}
		if !res.HasNext {
			break
		}
		cursor = res.NextCursor
	}
	assert.Len(t, seen, len(rows))
}

func mustCursor(t *testing.T, field string, value, tieBreaker interface{}, order models.SortOrder, direction models.CursorDirection) string {
	t.Helper()
	data, err := models.NewCursorData(field, value, tieBreaker, order, direction)
	require.NoError(t, err)
	token, err := models.EncodeCursor(data)
	require.NoError(t, err)
	return token
}
