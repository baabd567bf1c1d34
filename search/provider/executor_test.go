package provider

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/abrahamahn/abe-stack-sub003/search/models"
)

type executedStatement struct {
	query  string
	params []interface{}
}

// fakeExecutor records every statement and answers by SQL prefix.
type fakeExecutor struct {
	mu       sync.Mutex
	executed []executedStatement

	rows   []models.Row
	count  int64
	facets map[string][]models.Row
	err    error
}

func (f *fakeExecutor) Execute(ctx context.Context, query string, params []interface{}) ([]models.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executed = append(f.executed, executedStatement{query: query, params: params})
	if f.err != nil {
		return nil, f.err
	}
	switch {
	case strings.HasPrefix(query, "SELECT COUNT(*)"):
		return []models.Row{{"count": f.count}}, nil
	case strings.HasPrefix(query, "SELECT 1 "):
		return []models.Row{{"?column?": int64(1)}}, nil
	case strings.HasPrefix(query, "SELECT * "):
		return f.rows, nil
	}
	for column, rows := range f.facets {
		if strings.HasPrefix(query, "SELECT "+column+" AS value") {
			return rows, nil
		}
	}
	return nil, nil
}

func (f *fakeExecutor) statements() []executedStatement {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]executedStatement(nil), f.executed...)
}

// find returns the first executed statement whose text starts with prefix.
func (f *fakeExecutor) find(prefix string) (executedStatement, bool) {
	for _, s := range f.statements() {
		if strings.HasPrefix(s.query, prefix) {
			return s, true
		}
	}
	return executedStatement{}, false
}

type recordedQuery struct {
	operation string
	table     string
	err       error
}

type fakeMetrics struct {
	mu      sync.Mutex
	queries []recordedQuery
}

func (m *fakeMetrics) RecordQuery(operation, table string, duration time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, recordedQuery{operation: operation, table: table, err: err})
}

func usersTable() models.TableConfig {
	return models.TableConfig{
		Table:      "users",
		PrimaryKey: "id",
		Columns: []models.ColumnConfig{
			{Field: "id", Column: "id", Type: models.ColumnUUID},
			{Field: "name", Column: "name", Type: models.ColumnString},
			{Field: "age", Column: "age", Type: models.ColumnNumber},
			{Field: "status", Column: "status", Type: models.ColumnString},
			{Field: "createdAt", Column: "created_at", Type: models.ColumnDate},
			{Field: "email", Column: "email_address", Type: models.ColumnString},
		},
	}
}

func newTestProvider(exec Executor) *Provider {
	p, err := New(Config{Table: usersTable()}, exec)
	if err != nil {
		panic(err)
	}
	return p
}
